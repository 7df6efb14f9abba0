package ubifs

// Key is a UBIFS compound key: the inum in the high 32 bits, a 3-bit
// type discriminant and a 29-bit hash-or-block-number in the low 32
// bits, matching the kernel's key_r5_hash/key_test_hash layout. Ordered
// lexicographically as (inum, type, hash) by plain numeric comparison of
// the packed uint64, per spec.md §3.
type Key uint64

const (
	keyTypeShift = 29
	keyTypeMask  = 0x7
	keyHashMask  = (1 << keyTypeShift) - 1
)

func packKey(inum uint32, typ uint8, hashOrBlock uint32) Key {
	low := (uint32(typ) << keyTypeShift) | (hashOrBlock & keyHashMask)
	return Key(uint64(inum)<<32 | uint64(low))
}

// InodeKey builds the key for an inode node.
func InodeKey(inum uint32) Key {
	return packKey(inum, KeyInode, 0)
}

// DentKey builds the key for a directory-entry node, parented at dirInum,
// hashed by name under the configured hash function.
func DentKey(dirInum uint32, name string, hash KeyHashType) Key {
	return packKey(dirInum, KeyDent, hashName(name, hash))
}

// XentKey builds the key for an xattr-entry node.
func XentKey(hostInum uint32, name string, hash KeyHashType) Key {
	return packKey(hostInum, KeyXent, hashName(name, hash))
}

// DataKey builds the key for a data node at the given block number.
func DataKey(inum uint32, block uint32) Key {
	return packKey(inum, KeyData, block)
}

// Inum returns the inode number this key is scoped to.
func (k Key) Inum() uint32 { return uint32(k >> 32) }

// Type returns the key's type discriminant (KeyInode/KeyDent/KeyData/KeyXent).
func (k Key) Type() uint8 { return uint8((uint32(k) >> keyTypeShift) & keyTypeMask) }

// HashOrBlock returns the low 29 bits: a name hash for dent/xent keys, or
// a block number for data keys.
func (k Key) HashOrBlock() uint32 { return uint32(k) & keyHashMask }

// hashName dispatches to the configured name-hash function, masking the
// result to the 29 bits the key format allows (the two top bits are
// reserved by the kernel format for collision-chain markers, which this
// offline builder never needs to set).
func hashName(name string, kind KeyHashType) uint32 {
	switch kind {
	case KeyHashTest:
		return testHash(name) & keyHashMask
	default:
		return r5Hash(name) & keyHashMask
	}
}

// r5Hash is the classic Reiser r5 string hash used by UBIFS's default
// key-hash function.
func r5Hash(name string) uint32 {
	var a uint32 = 0
	for _, c := range []byte(name) {
		a += uint32(c) << 4
		a += uint32(c) >> 4
		a *= 11
	}
	return a
}

// testHash is UBIFS's deliberately-degenerate "test" hash, used only to
// force key collisions in test images (it packs the first four name
// bytes verbatim, matching the kernel's key_test_hash).
func testHash(name string) uint32 {
	b := []byte(name)
	var v uint32
	for i := 0; i < 4 && i < len(b); i++ {
		v |= uint32(b[i]) << uint(8*i)
	}
	return v
}

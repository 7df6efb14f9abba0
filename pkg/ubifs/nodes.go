package ubifs

import "encoding/binary"

// This file holds the on-flash struct layouts for every node type named
// in spec.md §6, following the teacher's encoding/binary.Write-over-a-
// fixed-layout-struct idiom (see ext4's Superblock/Inode structs).

// inodeNode is the body that follows the common header for NodeTypeInode.
type inodeNode struct {
	Key          [MaxKeyLen]byte
	CreatSqnum   uint64
	Size         uint64
	AtimeSec     uint64
	CtimeSec     uint64
	MtimeSec     uint64
	AtimeNsec    uint32
	CtimeNsec    uint32
	MtimeNsec    uint32
	Nlink        uint32
	UID          uint32
	GID          uint32
	Mode         uint32
	Flags        uint32
	DataLen      uint32
	XattrCnt     uint32
	XattrSize    uint32
	_            uint32
	XattrNames   uint32
	Compression  uint16
	_            uint16
}

func packKeyBytes(k Key) [MaxKeyLen]byte {
	var out [MaxKeyLen]byte
	binary.LittleEndian.PutUint64(out[0:8], uint64(k))
	return out
}

// encodeInode serializes an inode node body plus any inline data
// (symlink target, device major/minor, or small-file tail) appended
// after the fixed struct, matching UBIFS's variable-length inode node.
func encodeInode(key Key, creatSqnum uint64, size uint64, mtime int64, nlink, uid, gid, mode uint32, compression uint16, xattrCnt, xattrSize, xattrNames uint32, inline []byte) []byte {
	n := inodeNode{
		Key:         packKeyBytes(key),
		CreatSqnum:  creatSqnum,
		Size:        size,
		AtimeSec:    uint64(mtime),
		CtimeSec:    uint64(mtime),
		MtimeSec:    uint64(mtime),
		Nlink:       nlink,
		UID:         uid,
		GID:         gid,
		Mode:        mode,
		DataLen:     uint32(len(inline)),
		XattrCnt:    xattrCnt,
		XattrSize:   xattrSize,
		XattrNames:  xattrNames,
		Compression: compression,
	}
	buf := writeLE(&n)
	buf = append(buf, inline...)
	return buf
}

// encodeDent serializes a dentry (or xattr-entry) node body: a fixed
// header followed by the (possibly encrypted) name bytes and a single NUL
// terminator; the Write Head's 8-byte alignment pads the node after that.
type dentNode struct {
	Key     [MaxKeyLen]byte
	Inum    uint64
	_       uint8
	Type    uint8
	NLen    uint16
	_       uint32
	Sqnum   uint64
}

func encodeDent(key Key, inum uint64, fileType uint8, name []byte) []byte {
	n := dentNode{
		Key:  packKeyBytes(key),
		Inum: inum,
		Type: fileType,
		NLen: uint16(len(name)),
	}
	buf := writeLE(&n)
	buf = append(buf, name...)
	buf = append(buf, 0) // NUL terminator, matching mkfs.ubifs's on-disk dent names
	return buf
}

// dataNodeHdr is the fixed part of a data node; the compressed (or raw)
// payload follows immediately.
type dataNodeHdr struct {
	Key        [MaxKeyLen]byte
	Size       uint32
	Compression uint16
	_          uint16
}

func encodeData(key Key, size uint32, compression uint16, payload []byte) []byte {
	h := dataNodeHdr{Key: packKeyBytes(key), Size: size, Compression: compression}
	buf := writeLE(&h)
	buf = append(buf, payload...)
	return buf
}

// branch is one entry of an index node: the key of its first descendant
// leaf/subtree and the on-flash position of the child.
type branch struct {
	Key  [MaxKeyLen]byte
	Lnum uint32
	Offs uint32
	Len  uint32
}

// encodeIndex serializes an index node: child count, level, then
// `cnt` branches of BranchSz bytes each (8-byte key, lnum, offs, len).
func encodeIndex(level int, branches []branch) []byte {
	buf := writeLE(uint16(len(branches)), uint8(level))
	buf = append(buf, make([]byte, IdxNodeHdrSz-len(buf))...)
	for _, b := range branches {
		buf = append(buf, b.Key[:8]...)
		buf = append(buf, writeLE(b.Lnum, b.Offs, b.Len)...)
	}
	return buf
}

// superblockNode mirrors mkfs.ubifs's ubifs_sb_node body.
type superblockNode struct {
	_              [2]byte
	KeyHash        uint8
	KeyFmt         uint8
	Flags          uint32
	MinIOSize      uint32
	LEBSize        uint32
	LEBCnt         uint32
	MaxLEBCnt      uint32
	MaxBudBytes    uint64
	LogLebs        uint32
	LPTLebs        uint32
	OrphLebs       uint32
	JheadCnt       uint32
	Fanout         uint32
	LSaveCnt       uint32
	FmtVersion     uint32
	DefaultCompr   uint16
	_              uint16
	RPUID          uint32
	RPGID          uint32
	RPSize         uint64
	TimeGran       uint32
	UUID           [16]byte
	RoCompatVersion uint32
	HashAlgo       uint16
	HashMst        [64]byte
}

func encodeSuperblock(sb *superblockNode) []byte {
	return writeLE(sb)
}

// masterNode mirrors mkfs.ubifs's ubifs_mst_node body.
type masterNode struct {
	HighestInum uint64
	CmtNo       uint64
	Flags       uint32
	LogLnum     uint32
	RootLnum    uint32
	RootOffs    uint32
	RootLen     uint32
	GCLnum      uint32
	IheadLnum   uint32
	IheadOffs   uint32
	IndexSize   uint64
	TotalFree   uint64
	TotalDirty  uint64
	TotalUsed   uint64
	TotalDead   uint64
	TotalDark   uint64
	LebCnt      uint32
	EmptyLebs   uint32
	IdxLebs     uint32
	LptLnum     uint32
	LptOffs     uint32
	NheadLnum   uint32
	NheadOffs   uint32
	LtabLnum    uint32
	LtabOffs    uint32
	LsaveLnum   uint32
	LsaveOffs   uint32
	LscanLnum   uint32
	HashRootIdx [64]byte
	HashLpt     [64]byte
}

func encodeMaster(m *masterNode) []byte {
	return writeLE(m)
}

// commitStartNode mirrors mkfs.ubifs's ubifs_cs_node body (just a
// constant marker; the log is otherwise empty in an offline image).
type commitStartNode struct {
	CmtNo uint64
}

func encodeCommitStart(cmtNo uint64) []byte {
	return writeLE(&commitStartNode{CmtNo: cmtNo})
}

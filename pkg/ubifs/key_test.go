package ubifs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackKeyRoundTrip(t *testing.T) {
	k := packKey(42, KeyDent, 0x1234)
	assert.Equal(t, uint32(42), k.Inum())
	assert.Equal(t, uint8(KeyDent), k.Type())
	assert.Equal(t, uint32(0x1234), k.HashOrBlock())
}

func TestInodeKey(t *testing.T) {
	k := InodeKey(7)
	assert.Equal(t, uint32(7), k.Inum())
	assert.Equal(t, uint8(KeyInode), k.Type())
	assert.Equal(t, uint32(0), k.HashOrBlock())
}

func TestDataKeyOrdering(t *testing.T) {
	a := DataKey(5, 0)
	b := DataKey(5, 1)
	c := DataKey(6, 0)
	assert.Less(t, uint64(a), uint64(b))
	assert.Less(t, uint64(b), uint64(c))
}

func TestTestHashPacksFirstFourBytes(t *testing.T) {
	got := hashName("abcd", KeyHashTest)
	want := (uint32('a') | uint32('b')<<8 | uint32('c')<<16 | uint32('d')<<24) & keyHashMask
	assert.Equal(t, want, got)
}

func TestR5HashIsDeterministic(t *testing.T) {
	a := hashName("hello", KeyHashR5)
	b := hashName("hello", KeyHashR5)
	c := hashName("world", KeyHashR5)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestXentKeyUsesXentType(t *testing.T) {
	k := XentKey(3, "security.selinux", KeyHashR5)
	assert.Equal(t, uint8(KeyXent), k.Type())
}

package ubifs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorteil/ubifs/pkg/hostfs"
)

func testHostFile(name string) hostfs.File {
	return hostfs.CustomFile(hostfs.CustomFileArgs{Name: name, LinkCount: 2})
}

func TestIdentityTableInsertAndLookup(t *testing.T) {
	tbl := NewIdentityTable()

	_, ok := tbl.Lookup(1, 42)
	assert.False(t, ok)

	f := testHostFile("a")
	e := tbl.Insert(1, 42, 100, f, 0, 0, "a")
	require.NotNil(t, e)

	got, ok := tbl.Lookup(1, 42)
	require.True(t, ok)
	assert.Same(t, e, got)
	assert.Equal(t, uint32(100), got.targetInum)
}

func TestIdentityTableBumpIncrements(t *testing.T) {
	tbl := NewIdentityTable()
	e := tbl.Insert(1, 42, 100, testHostFile("a"), 0, 0, "a")
	e.Bump()
	e.Bump()
	assert.Equal(t, 3, e.observedLink)
}

func TestIdentityTableEntriesPreservesFirstSeenOrder(t *testing.T) {
	tbl := NewIdentityTable()
	tbl.Insert(1, 1, 10, testHostFile("a"), 0, 0, "a")
	tbl.Insert(1, 2, 11, testHostFile("b"), 0, 0, "b")
	tbl.Insert(1, 3, 12, testHostFile("c"), 0, 0, "c")

	entries := tbl.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].firstPath)
	assert.Equal(t, "b", entries[1].firstPath)
	assert.Equal(t, "c", entries[2].firstPath)
}

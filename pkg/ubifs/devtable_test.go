package ubifs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceTableBasic(t *testing.T) {
	src := `# comment
/dev/console c 0600 0 0 5 1
/dev/null    c 0666 0 0 1 3
`
	dt, err := ParseDeviceTable(strings.NewReader(src))
	require.NoError(t, err)

	e, ok := dt.Lookup("dev/console")
	require.True(t, ok)
	assert.Equal(t, byte('c'), e.Type)
	assert.Equal(t, uint32(5), e.Major)
	assert.Equal(t, uint32(1), e.Minor)

	_, ok = dt.Lookup("dev/missing")
	assert.False(t, ok)
}

func TestParseDeviceTableRejectsRegularFile(t *testing.T) {
	_, err := ParseDeviceTable(strings.NewReader("/etc/passwd f 0644 0 0 0 0\n"))
	assert.Error(t, err)
}

func TestParseDeviceTableRangeForm(t *testing.T) {
	src := "/dev/tty%d c 0660 0 5 4 0 0 1 4\n"
	dt, err := ParseDeviceTable(strings.NewReader(src))
	require.NoError(t, err)

	entries := dt.Synthetic()
	require.Len(t, entries, 1)

	expanded := entries[0].Expand()
	require.Len(t, expanded, 4)
	assert.Equal(t, "dev/tty0", expanded[0].Path)
	assert.Equal(t, "dev/tty3", expanded[3].Path)
	assert.Equal(t, uint32(0), expanded[0].Minor)
	assert.Equal(t, uint32(3), expanded[3].Minor)
}

func TestDeviceTableEntryExpandNonRange(t *testing.T) {
	e := &DeviceTableEntry{Path: "dev/null", Type: 'c'}
	out := e.Expand()
	require.Len(t, out, 1)
	assert.Same(t, e, out[0])
}

func TestNilDeviceTableIsSafe(t *testing.T) {
	var dt *DeviceTable
	_, ok := dt.Lookup("anything")
	assert.False(t, ok)
	assert.Nil(t, dt.Synthetic())
}

func TestLoadDeviceTableEmptyPath(t *testing.T) {
	dt, err := LoadDeviceTable("")
	require.NoError(t, err)
	assert.Nil(t, dt)
}

package ubifs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGeometry(t *testing.T) *Geometry {
	t.Helper()
	g, err := NewGeometry(baseTestConfig())
	require.NoError(t, err)
	return g
}

func TestLedgerRecordMainAccumulates(t *testing.T) {
	l := NewLedger(testGeometry(t))
	l.RecordMain(5, 100, 50)

	props := l.Props()
	require.Contains(t, props, uint32(5))
	assert.Equal(t, LebProps{Free: 100, Dirty: 50, Flags: 0}, props[5])
	assert.Equal(t, uint32(100), l.TotalFree)
	assert.Equal(t, uint32(50), l.TotalDirty)
	assert.Equal(t, uint32(0), l.IdxLebs)
}

func TestLedgerRecordIndexSetsFlagAndCounts(t *testing.T) {
	l := NewLedger(testGeometry(t))
	l.RecordIndex(1, 10, 0)
	assert.Equal(t, uint32(1), l.IdxLebs)
	assert.Equal(t, uint8(LPFlagIndex), l.Props()[1].Flags)
}

func TestLedgerRecordEmptyBumpsCountOnly(t *testing.T) {
	l := NewLedger(testGeometry(t))
	l.RecordEmpty(9)
	assert.Equal(t, uint32(1), l.EmptyLebs)
	assert.NotContains(t, l.Props(), uint32(9))
}

func TestLedgerLebCountIsHighestPlusOne(t *testing.T) {
	l := NewLedger(testGeometry(t))
	l.RecordMain(2, 0, 0)
	l.RecordMain(7, 0, 0)
	assert.Equal(t, uint32(8), l.LebCount())
}

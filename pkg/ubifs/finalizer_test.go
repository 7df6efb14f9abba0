package ubifs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFinalizableImage(t *testing.T) (*Image, *fakeSink) {
	t.Helper()
	geom := testGeometry(t)
	sink := newFakeSink()
	ledger := NewLedger(geom)
	head := NewWriteHead(geom, ledger, sink, geom.MainFirst)

	img := &Image{
		cfg:    &Config{},
		geom:   geom,
		head:   head,
		ledger: ledger,
		sink:   sink,
	}
	img.pushLeaf(IndexLeaf{Key: InodeKey(RootIno), Lnum: 0, Offs: 0, Len: 0})
	return img, sink
}

func TestFinalizeWritesSuperblockMasterAndLog(t *testing.T) {
	img, sink := newFinalizableImage(t)

	require.NoError(t, img.Finalize())

	assert.Contains(t, sink.lebs, uint32(SBLnum))
	assert.Contains(t, sink.lebs, uint32(MstLnum))
	assert.Contains(t, sink.lebs, uint32(MstLnum+1))
	assert.Equal(t, sink.lebs[MstLnum], sink.lebs[MstLnum+1])
	assert.Contains(t, sink.lebs, uint32(LogLnum))
	assert.True(t, sink.finalized)
	assert.NotZero(t, img.ledger.IdxLebs, "the index LEB(s) built by BuildIndex must be recorded with flags=INDEX")
}

func TestSuperblockFlagsReflectConfig(t *testing.T) {
	img, _ := newFinalizableImage(t)
	img.cfg.SpaceFixup = true
	img.cfg.KeyHash = KeyHashTest

	flags := img.superblockFlags()
	assert.NotZero(t, flags&FlagSpaceFixup)
	assert.NotZero(t, flags&FlagDoubleHash)
	assert.Zero(t, flags&FlagEncryption)
}

func TestWriteWholeLEBPadsWithFF(t *testing.T) {
	img, sink := newFinalizableImage(t)
	require.NoError(t, img.writeWholeLEB(3, []byte{1, 2, 3}))

	leb := sink.lebs[3]
	require.Len(t, leb, int(img.geom.LEBSize))
	assert.Equal(t, []byte{1, 2, 3}, leb[:3])
	assert.Equal(t, byte(0xFF), leb[3])
}

func TestWriteEmptyLEBRecordsLedger(t *testing.T) {
	img, sink := newFinalizableImage(t)
	require.NoError(t, img.writeEmptyLEB(9))
	assert.Contains(t, sink.lebs, uint32(9))
	assert.Equal(t, uint32(1), img.ledger.EmptyLebs)
}

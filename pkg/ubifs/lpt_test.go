package ubifs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLptGeometryCompactFormForSmallImage(t *testing.T) {
	lebs, big := lptGeometry(2048, 126976)
	assert.Equal(t, uint32(3), lebs)
	assert.False(t, big)
}

func TestLptGeometryBigFormForLargeImage(t *testing.T) {
	lebs, big := lptGeometry(10_000_000, 2048)
	assert.True(t, big)
	assert.True(t, lebs > 3)
}

func TestPackPnodesGroupsByFour(t *testing.T) {
	props := map[uint32]LebProps{
		0: {Free: 1}, 1: {Free: 2}, 2: {Free: 3}, 3: {Free: 4}, 4: {Free: 5},
	}
	pnodes := packPnodes(props, 5)
	require.Len(t, pnodes, 2)
	assert.Equal(t, uint32(1), pnodes[0].Props[0].Free)
	assert.Equal(t, uint32(5), pnodes[1].Props[0].Free)
}

func TestFirstNLebsPadsWithZero(t *testing.T) {
	got := firstNLebs(2, 4)
	assert.Equal(t, []uint32{0, 1, 0, 0}, got)
}

func TestFirstNLebsTruncatesToAvailable(t *testing.T) {
	got := firstNLebs(6, 3)
	assert.Equal(t, []uint32{0, 1, 2}, got)
}

func TestWriteLPTCompactForm(t *testing.T) {
	img := newTestImage(t)
	img.ledger.RecordMain(img.geom.MainFirst, 1000, 0)

	res, err := img.WriteLPT(img.geom.MainFirst, img.geom.LptLebs)
	require.NoError(t, err)
	assert.False(t, res.BigLPT)
	assert.Equal(t, img.geom.MainFirst, res.LscanLnum)
}

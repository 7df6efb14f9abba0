package ubifs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseTestConfig() *Config {
	return &Config{
		MinIOSize: 2048,
		LEBSize:   126976,
		MaxLEBCnt: 2048,
		Fanout:    8,
		OrphLebs:  1,
	}
}

func TestNewGeometryDefaults(t *testing.T) {
	cfg := baseTestConfig()
	g, err := NewGeometry(cfg)
	require.NoError(t, err)
	assert.Equal(t, uint32(2048), g.MinIOSize)
	assert.Equal(t, FmtVersion4, g.FmtVersion)
	assert.True(t, g.MainFirst > 0)
}

func TestNewGeometryRoundsSmallMinIOSize(t *testing.T) {
	cfg := baseTestConfig()
	cfg.MinIOSize = 1
	g, err := NewGeometry(cfg)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), g.MinIOSize)
}

func TestNewGeometryRejectsNonPowerOfTwoMinIOSize(t *testing.T) {
	cfg := baseTestConfig()
	cfg.MinIOSize = 12
	_, err := NewGeometry(cfg)
	assert.Error(t, err)
}

func TestNewGeometryRejectsLEBSizeOutOfRange(t *testing.T) {
	cfg := baseTestConfig()
	cfg.LEBSize = 1
	_, err := NewGeometry(cfg)
	assert.Error(t, err)
}

func TestNewGeometryRejectsFanoutOutOfRange(t *testing.T) {
	cfg := baseTestConfig()
	cfg.Fanout = 1
	_, err := NewGeometry(cfg)
	assert.Error(t, err)
}

func TestNewGeometryEncryptionForcesFmtVersion5AndNoCompression(t *testing.T) {
	cfg := baseTestConfig()
	cfg.KeyFile = "testdata/key"
	cfg.Compression = ComprZstd
	g, err := NewGeometry(cfg)
	require.NoError(t, err)
	assert.Equal(t, FmtVersion5, g.FmtVersion)
	assert.Equal(t, ComprNone, g.Compression)
}

func TestNewGeometryRejectsTooFewMaxLEBCnt(t *testing.T) {
	cfg := baseTestConfig()
	cfg.MaxLEBCnt = 4
	_, err := NewGeometry(cfg)
	assert.Error(t, err)
}

func TestAddSpaceOverheadZeroWhenRPSizeZero(t *testing.T) {
	assert.Equal(t, uint64(0), addSpaceOverhead(0, 1024, 8))
}

func TestAlignRoundsUpToMultiple(t *testing.T) {
	assert.Equal(t, 16, align(10, 8))
	assert.Equal(t, 8, align(8, 8))
	assert.Equal(t, 0, align(5, 0))
}

func TestIsPowerOfTwo(t *testing.T) {
	assert.True(t, isPowerOfTwo(1))
	assert.True(t, isPowerOfTwo(2048))
	assert.False(t, isPowerOfTwo(0))
	assert.False(t, isPowerOfTwo(3))
}

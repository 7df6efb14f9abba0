package ubifs

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorteil/ubifs/pkg/elog"
	"github.com/vorteil/ubifs/pkg/hostfs"
)

func testLogger() elog.View {
	return &elog.CLI{DisableTTY: true}
}

func TestNewBuilderAppliesDefaultsAndDerivesGeometry(t *testing.T) {
	cfg := &Config{LEBSize: 126976, MaxLEBCnt: 2048, TargetPath: "out.img"}
	b, err := NewBuilder(&BuilderArgs{Config: cfg, Logger: testLogger()})
	require.NoError(t, err)
	assert.Equal(t, DefaultFanout, cfg.Fanout)
	assert.NotNil(t, b.geom)
}

func TestNewBuilderRejectsInvalidConfig(t *testing.T) {
	cfg := &Config{LEBSize: 126976, MaxLEBCnt: 2048, Padding: 7, TargetPath: "out.img"}
	_, err := NewBuilder(&BuilderArgs{Config: cfg, Logger: testLogger()})
	assert.Error(t, err)
}

func TestPrebuildAndBuildProduceAnImageFile(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "etc"), 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(src, "etc", "hostname"), []byte("box"), 0644))

	out := filepath.Join(t.TempDir(), "image.ubifs")
	cfg := &Config{
		Root:       src,
		LEBSize:    126976,
		MaxLEBCnt:  2048,
		TargetPath: out,
	}

	b, err := NewBuilder(&BuilderArgs{Config: cfg, Logger: testLogger()})
	require.NoError(t, err)
	require.NoError(t, b.Prebuild())
	require.NoError(t, b.Build())

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, int64(b.img.head.Lnum())*int64(b.geom.LEBSize), info.Size())
}

func TestPrebuildWithEmptyRootUsesEmptyTree(t *testing.T) {
	out := filepath.Join(t.TempDir(), "empty.ubifs")
	cfg := &Config{LEBSize: 126976, MaxLEBCnt: 2048, TargetPath: out}

	b, err := NewBuilder(&BuilderArgs{Config: cfg, Logger: testLogger()})
	require.NoError(t, err)
	require.NoError(t, b.Prebuild())
	assert.Equal(t, 1, b.tree.NodeCount())
}

func TestPrebuildFailsWhenKeyFileIsMissing(t *testing.T) {
	out := filepath.Join(t.TempDir(), "will-fail.ubifs")
	cfg := &Config{LEBSize: 126976, MaxLEBCnt: 2048, TargetPath: out, KeyFile: filepath.Join(t.TempDir(), "missing-key")}

	b, err := NewBuilder(&BuilderArgs{Config: cfg, Logger: testLogger()})
	require.NoError(t, err)
	err = b.Prebuild()
	require.Error(t, err)
}

func TestInjectSyntheticSkipsExistingHostPaths(t *testing.T) {
	tree := hostfs.NewTree()
	require.NoError(t, tree.Map("dev/null", regularFile("null", "placeholder")))

	entry := &DeviceTableEntry{Path: "dev/null", Type: 'c', Major: 1, Minor: 3}
	devtable := &DeviceTable{all: []*DeviceTableEntry{entry}}

	require.NoError(t, injectSynthetic(tree, devtable))

	n, err := tree.Lookup("dev/null")
	require.NoError(t, err)
	assert.Equal(t, "null", n.File.Name())
}

func TestInjectSyntheticMapsMissingEntries(t *testing.T) {
	tree := hostfs.NewTree()
	entry := &DeviceTableEntry{Path: "dev/console", Type: 'c', Mode: 0600, Major: 5, Minor: 1}
	devtable := &DeviceTable{all: []*DeviceTableEntry{entry}}

	require.NoError(t, injectSynthetic(tree, devtable))

	n, err := tree.Lookup("dev/console")
	require.NoError(t, err)
	assert.True(t, n.File.IsDevice())
}

func TestBaseNameReturnsFinalComponent(t *testing.T) {
	assert.Equal(t, "tty0", baseName("dev/tty0"))
	assert.Equal(t, "x", baseName("x"))
}

func TestSyntheticDeviceFileBuildsDirAndDeviceNodes(t *testing.T) {
	dirEntry := &DeviceTableEntry{Path: "dev", Type: 'd', Mode: 0755}
	f := syntheticDeviceFile(dirEntry)
	assert.True(t, f.IsDir())
	assert.Equal(t, uint32(2), f.Nlink())

	chrEntry := &DeviceTableEntry{Path: "dev/null", Type: 'c', Mode: 0666, Major: 1, Minor: 3}
	f = syntheticDeviceFile(chrEntry)
	assert.True(t, f.IsDevice())
	major, minor := f.Rdev()
	assert.Equal(t, uint32(1), major)
	assert.Equal(t, uint32(3), minor)
}

package ubifs

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeCRCMatchesIEEE(t *testing.T) {
	buf := []byte("ubifs common header")
	assert.Equal(t, crc32.ChecksumIEEE(buf), nodeCRC(buf))
}

func TestNodeCRCEmpty(t *testing.T) {
	assert.Equal(t, uint32(0), nodeCRC(nil))
}

package ubifs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestXTSCryptor(t *testing.T) *xtsCryptor {
	t.Helper()
	key := bytes.Repeat([]byte{0x11}, 64)
	c, err := NewXTSCryptor(key, 16, "testkeydesc")
	require.NoError(t, err)
	return c.(*xtsCryptor)
}

func TestXTSCryptDecryptRoundTrip(t *testing.T) {
	x := newTestXTSCryptor(t)
	plain := bytes.Repeat([]byte("A"), 64)
	buf := make([]byte, len(plain))
	copy(buf, plain)

	x.xtsCrypt(buf, 42, true)
	assert.NotEqual(t, plain, buf)

	x.xtsCrypt(buf, 42, false)
	assert.Equal(t, plain, buf)
}

func TestXTSDifferentSectorsProduceDifferentCiphertext(t *testing.T) {
	x := newTestXTSCryptor(t)
	plain := bytes.Repeat([]byte("B"), 32)

	a := make([]byte, len(plain))
	copy(a, plain)
	x.xtsCrypt(a, 1, true)

	b := make([]byte, len(plain))
	copy(b, plain)
	x.xtsCrypt(b, 2, true)

	assert.NotEqual(t, a, b)
}

func TestPaddedLenRoundsUp(t *testing.T) {
	x := newTestXTSCryptor(t)
	assert.Equal(t, 16, x.PaddedLen(1))
	assert.Equal(t, 16, x.PaddedLen(16))
	assert.Equal(t, 32, x.PaddedLen(17))
}

func TestEncryptSymlinkRejectsOverlongTarget(t *testing.T) {
	x := newTestXTSCryptor(t)
	_, err := x.EncryptSymlink(bytes.Repeat([]byte("x"), MaxInoData+1), 5)
	assert.Error(t, err)
}

func TestDeriveContextEmbedsKeyDescAndInum(t *testing.T) {
	x := newTestXTSCryptor(t)
	ctx := x.DeriveContext(7)
	assert.Equal(t, len(x.keyDesc)+4, len(ctx))
	assert.Equal(t, []byte("testkeydesc"), ctx[:len(x.keyDesc)])
}

func TestNewXTSCryptorDerivesKeyFromShortInput(t *testing.T) {
	c, err := NewXTSCryptor([]byte("short"), 16, "d")
	require.NoError(t, err)
	assert.NotNil(t, c)
}

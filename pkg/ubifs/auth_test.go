package ubifs

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSignerWithoutFilesSkipsIO(t *testing.T) {
	s, err := NewSigner(HashAlgoSHA256Type, "", "")
	require.NoError(t, err)
	assert.Nil(t, s.entity)
}

func TestSignerHashSizeMatchesAlgo(t *testing.T) {
	assert.Equal(t, sha1.Size, (&Signer{hashAlgo: HashAlgoSHA1Type}).HashSize())
	assert.Equal(t, sha256.Size, (&Signer{hashAlgo: HashAlgoSHA256Type}).HashSize())
	assert.Equal(t, sha512.Size, (&Signer{hashAlgo: HashAlgoSHA512Type}).HashSize())
	assert.Equal(t, sha256.Size, (&Signer{}).HashSize()) // default
}

func TestComputeNodeHashIsDeterministic(t *testing.T) {
	s := &Signer{hashAlgo: HashAlgoSHA256Type}
	node := []byte("a fully assembled node")
	assert.Equal(t, s.ComputeNodeHash(node), s.ComputeNodeHash(node))
}

func TestSignSuperblockRequiresEntity(t *testing.T) {
	s := &Signer{hashAlgo: HashAlgoSHA256Type}
	_, err := s.SignSuperblock([]byte("digest"))
	assert.Error(t, err)
}

func TestAuthStateDigestAccumulatesAcrossNodes(t *testing.T) {
	s := &Signer{hashAlgo: HashAlgoSHA256Type}
	a := newAuthState(s)

	a.recordNodeHash([]byte("node one"))
	first := a.digest()

	a.recordNodeHash([]byte("node two"))
	second := a.digest()

	assert.NotEqual(t, first, second)
}

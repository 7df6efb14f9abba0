package ubifs

import (
	"crypto"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/packet"
)

// Signer is the capability interface spec.md §9 calls for:
// sign_sb_node/compute_node_hash. Its one implementation repurposes
// golang.org/x/crypto/openpgp (already pulled in by the teacher's kernel
// signature-verification path, pkg/vkern) as the detached-signature
// backend for the superblock digest, and the stdlib sha1/sha256/sha512
// families for the per-node hash chain selected by hash_algo.
type Signer struct {
	hashAlgo HashAlgoType
	entity   *openpgp.Entity
}

// NewSigner loads the authentication key (and, if present, a
// certificate to verify it against) and selects the hash_algo family.
func NewSigner(hashAlgo HashAlgoType, keyFile, certFile string) (*Signer, error) {
	s := &Signer{hashAlgo: hashAlgo}

	if keyFile != "" {
		f, err := os.Open(keyFile)
		if err != nil {
			return nil, errors.Wrap(&SigningFailed{Cause: err}, "opening auth key file")
		}
		defer f.Close()

		entities, err := openpgp.ReadArmoredKeyRing(f)
		if err != nil {
			return nil, errors.Wrap(&SigningFailed{Cause: err}, "parsing auth key file")
		}
		if len(entities) == 0 {
			return nil, errors.Wrap(&SigningFailed{Cause: errors.New("no keys in auth_key_file")}, "loading signer")
		}
		s.entity = entities[0]
	}

	if certFile != "" {
		f, err := os.Open(certFile)
		if err != nil {
			return nil, errors.Wrap(&SigningFailed{Cause: err}, "opening auth cert file")
		}
		defer f.Close()
		keyring, err := openpgp.ReadArmoredKeyRing(f)
		if err != nil {
			return nil, errors.Wrap(&SigningFailed{Cause: err}, "parsing auth cert file")
		}
		if s.entity != nil {
			if err := verifyAgainst(s.entity, keyring); err != nil {
				return nil, errors.Wrap(&SigningFailed{Cause: err}, "verifying auth_cert_file against auth_key_file")
			}
		}
	}

	return s, nil
}

func verifyAgainst(entity *openpgp.Entity, keyring openpgp.EntityList) error {
	for _, c := range keyring {
		if c.PrimaryKey != nil && entity.PrimaryKey != nil &&
			c.PrimaryKey.KeyId == entity.PrimaryKey.KeyId {
			return nil
		}
	}
	return errors.New("auth_key_file is not present in auth_cert_file")
}

// newHash returns a fresh hash.Hash for the configured hash_algo.
func (s *Signer) newHash() hash.Hash {
	switch s.hashAlgo {
	case HashAlgoSHA1Type:
		return sha1.New()
	case HashAlgoSHA512Type:
		return sha512.New()
	default:
		return sha256.New()
	}
}

// cryptoHash maps hash_algo onto the crypto.Hash identifier openpgp's
// signing config expects.
func (s *Signer) cryptoHash() crypto.Hash {
	switch s.hashAlgo {
	case HashAlgoSHA1Type:
		return crypto.SHA1
	case HashAlgoSHA512Type:
		return crypto.SHA512
	default:
		return crypto.SHA256
	}
}

// HashSize returns the digest size in bytes for the configured hash_algo.
func (s *Signer) HashSize() int {
	switch s.hashAlgo {
	case HashAlgoSHA1Type:
		return sha1.Size
	case HashAlgoSHA512Type:
		return sha512.Size
	default:
		return sha256.Size
	}
}

// ComputeNodeHash hashes a fully-assembled node (spec.md §4.2's
// per-node hash slot for authenticated images).
func (s *Signer) ComputeNodeHash(node []byte) []byte {
	h := s.newHash()
	h.Write(node)
	return h.Sum(nil)
}

// SignSuperblock signs the superblock digest and returns the ASCII-
// armored detached OpenPGP signature that the Finalizer uses as the
// body of the trailing SIG node emitted after the superblock (spec.md §4.7 step 6 / §6).
func (s *Signer) SignSuperblock(digest []byte) ([]byte, error) {
	if s.entity == nil {
		return nil, errors.Wrap(&SigningFailed{Cause: errors.New("no auth_key_file configured")}, "signing superblock")
	}

	var buf strings.Builder
	cfg := &packet.Config{DefaultHash: s.cryptoHash()}
	if err := openpgp.ArmoredDetachSign(&buf, s.entity, strings.NewReader(string(digest)), cfg); err != nil {
		return nil, errors.Wrap(&SigningFailed{Cause: err}, "producing detached signature")
	}

	return []byte(buf.String()), nil
}

// authState accumulates the running hash chain that the AUTH node
// ultimately covers, recorded from prepareNode for every node once
// authentication is enabled. For this offline builder, where there is
// no incremental commit to authenticate block-by-block, the chain
// degenerates to "hash of the concatenation of every emitted node",
// sufficient to detect tampering with the finished image.
type authState struct {
	signer *Signer
	chain  hash.Hash
}

func newAuthState(signer *Signer) *authState {
	return &authState{signer: signer, chain: signer.newHash()}
}

func (a *authState) recordNodeHash(node []byte) {
	a.chain.Write(node)
}

func (a *authState) digest() []byte {
	return a.chain.Sum(nil)
}

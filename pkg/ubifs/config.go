package ubifs

import "github.com/pkg/errors"

// Config collects every user-facing knob from spec.md §6. A cmd/mkfs-ubifs
// binds these to pflag/viper flags; tests construct a Config literal
// directly.
type Config struct {
	Root string // source directory; empty means an empty image

	MinIOSize  uint32
	LEBSize    uint32
	MaxLEBCnt  uint32
	Fanout     int
	MaxBudBytes uint32
	JrnSize    uint32
	LogLebs    uint32
	OrphLebs   uint32
	RPSize     uint64

	Compression  CompressionType
	FavorPercent int
	KeyHash      KeyHashType

	SpaceFixup   bool
	SquashOwner  bool
	SquashUID    uint32
	SquashGID    uint32
	SetInumAttr  bool

	KeyFile string
	KeyDesc string
	Cipher  string
	Padding int

	HashAlgo     HashAlgoType
	AuthKeyFile  string
	AuthCertFile string

	DeviceTableFile string
	SelinuxLabelFile string

	TargetPath string
	TargetIsUBI bool
}

// CompressionType is the compr enum of spec.md §6.
type CompressionType int

const (
	ComprNone CompressionType = iota
	ComprLZO
	ComprZlib
	ComprZstd
	ComprFavorLZO
)

func ParseCompressionType(s string) (CompressionType, error) {
	switch s {
	case "none", "":
		return ComprNone, nil
	case "lzo":
		return ComprLZO, nil
	case "zlib":
		return ComprZlib, nil
	case "zstd":
		return ComprZstd, nil
	case "favor_lzo":
		return ComprFavorLZO, nil
	default:
		return 0, &InvalidOption{Option: "compr", Reason: "unknown compression type " + s}
	}
}

// KeyHashType selects the dentry/xattr name-hash function (spec.md §6).
type KeyHashType int

const (
	KeyHashR5 KeyHashType = iota
	KeyHashTest
)

func ParseKeyHashType(s string) (KeyHashType, error) {
	switch s {
	case "r5", "":
		return KeyHashR5, nil
	case "test":
		return KeyHashTest, nil
	default:
		return 0, &InvalidOption{Option: "keyhash", Reason: "unknown hash " + s}
	}
}

// HashAlgoType selects the authentication hash (spec.md §6).
type HashAlgoType int

const (
	HashAlgoNone HashAlgoType = iota
	HashAlgoSHA1Type
	HashAlgoSHA256Type
	HashAlgoSHA512Type
)

func ParseHashAlgo(s string) (HashAlgoType, error) {
	switch s {
	case "", "none":
		return HashAlgoNone, nil
	case "sha1":
		return HashAlgoSHA1Type, nil
	case "sha256":
		return HashAlgoSHA256Type, nil
	case "sha512":
		return HashAlgoSHA512Type, nil
	default:
		return 0, &InvalidOption{Option: "hash_algo", Reason: "unknown algorithm " + s}
	}
}

// EncryptionEnabled reports whether enough encryption configuration was
// supplied to turn the feature on.
func (c *Config) EncryptionEnabled() bool {
	return c.KeyFile != ""
}

// AuthenticationEnabled reports whether enough authentication
// configuration was supplied to turn the feature on.
func (c *Config) AuthenticationEnabled() bool {
	return c.AuthKeyFile != ""
}

// Default fills in the zero-valued fields of Config with spec.md §6's
// stated defaults. Called once after flag parsing, before Validate.
func (c *Config) Default() {
	if c.Fanout == 0 {
		c.Fanout = DefaultFanout
	}
	if c.FavorPercent == 0 {
		c.FavorPercent = 20
	}
	if c.OrphLebs == 0 {
		c.OrphLebs = DefaultOrphLebs
	}
	if c.Padding == 0 {
		c.Padding = 16
	}
	if c.Cipher == "" {
		c.Cipher = "aes256-xts"
	}
	if c.EncryptionEnabled() {
		c.Compression = ComprNone
	}
}

// Validate performs the structural checks of spec.md §6 that are not
// already covered by NewGeometry and ValidateFull (enum values, mutually exclusive
// combinations). Geometry-specific checks live in geometry.go.
func (c *Config) Validate() error {
	switch c.Padding {
	case 4, 8, 16, 32:
	default:
		return errors.Wrap(&InvalidOption{Option: "padding", Reason: "must be one of 4,8,16,32"}, "validating config")
	}
	if c.RPSize > 0 && uint64(c.LEBSize)*uint64(c.MaxLEBCnt)/2 <= c.RPSize {
		return errors.Wrap(&InvalidGeometry{Reason: "rp_size too large for image"}, "validating config")
	}
	return nil
}

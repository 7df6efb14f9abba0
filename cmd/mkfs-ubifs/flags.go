package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/vorteil/ubifs/pkg/ubifs"
)

// buildConfig translates the merged flag/config-file values into a
// ubifs.Config, resolving the string-enum flags (compr, key-hash,
// hash-algo) against their parsers. Values are read through viper rather
// than the package-level flag variables directly, so a --config file's
// settings apply to any flag the caller didn't explicitly pass.
func buildConfig(root string) (*ubifs.Config, error) {
	output := viper.GetString("output")
	if output == "" {
		return nil, errors.New("--output is required")
	}

	compr, err := ubifs.ParseCompressionType(viper.GetString("compr"))
	if err != nil {
		return nil, err
	}
	keyHash, err := ubifs.ParseKeyHashType(viper.GetString("key-hash"))
	if err != nil {
		return nil, err
	}
	hashAlgo, err := ubifs.ParseHashAlgo(viper.GetString("hash-algo"))
	if err != nil {
		return nil, err
	}

	return &ubifs.Config{
		Root: root,

		MinIOSize:   uint32(viper.GetUint64("min-io-size")),
		LEBSize:     uint32(viper.GetUint64("leb-size")),
		MaxLEBCnt:   uint32(viper.GetUint64("max-leb-cnt")),
		Fanout:      viper.GetInt("fanout"),
		MaxBudBytes: uint32(viper.GetUint64("max-bud-bytes")),
		JrnSize:     uint32(viper.GetUint64("jrn-size")),
		LogLebs:     uint32(viper.GetUint64("log-lebs")),
		OrphLebs:    uint32(viper.GetUint64("orph-lebs")),
		RPSize:      viper.GetUint64("rp-size"),

		Compression:  compr,
		FavorPercent: viper.GetInt("favor-percent"),
		KeyHash:      keyHash,

		SpaceFixup:  viper.GetBool("space-fixup"),
		SquashOwner: viper.GetBool("squash-owner"),
		SquashUID:   uint32(viper.GetUint64("squash-uid")),
		SquashGID:   uint32(viper.GetUint64("squash-gid")),
		SetInumAttr: viper.GetBool("set-inum-attr"),

		KeyFile: viper.GetString("key-file"),
		KeyDesc: viper.GetString("key-desc"),
		Cipher:  viper.GetString("cipher"),
		Padding: viper.GetInt("padding"),

		HashAlgo:     hashAlgo,
		AuthKeyFile:  viper.GetString("auth-key-file"),
		AuthCertFile: viper.GetString("auth-cert-file"),

		DeviceTableFile:  viper.GetString("device-table"),
		SelinuxLabelFile: viper.GetString("selinux-labels"),

		TargetPath: output,
	}, nil
}

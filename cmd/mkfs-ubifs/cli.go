package main

import (
	"os"

	"code.cloudfoundry.org/bytefmt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vorteil/ubifs/pkg/elog"
	"github.com/vorteil/ubifs/pkg/ubifs"
)

var log elog.View

var (
	flagVerbose bool
	flagDebug   bool
	flagJSON    bool

	flagMinIOSize  uint32
	flagLEBSize    uint32
	flagMaxLEBCnt  uint32
	flagFanout     int
	flagMaxBudBytes uint32
	flagJrnSize    uint32
	flagLogLebs    uint32
	flagOrphLebs   uint32
	flagRPSize     uint64

	flagCompr        string
	flagFavorPercent int
	flagKeyHash      string

	flagSpaceFixup  bool
	flagSquashOwner bool
	flagSquashUID   uint32
	flagSquashGID   uint32
	flagSetInumAttr bool

	flagKeyFile string
	flagKeyDesc string
	flagCipher  string
	flagPadding int

	flagHashAlgo     string
	flagAuthKeyFile  string
	flagAuthCertFile string

	flagDeviceTable string
	flagSelinux     string

	flagOutput string
	flagConfig string
)

var rootCmd = &cobra.Command{
	Use:   "mkfs-ubifs ROOT",
	Short: "Build a UBIFS image offline from a source directory",
	Long: `mkfs-ubifs builds a UBIFS filesystem image from a source directory
without a live UBI device, producing a flat file ready to be written to
flash or loaded by a UBI volume.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := ""
		if len(args) == 1 {
			root = args[0]
		}

		cfg, err := buildConfig(root)
		if err != nil {
			return err
		}

		b, err := ubifs.NewBuilder(&ubifs.BuilderArgs{Config: cfg, Logger: log})
		if err != nil {
			return err
		}
		if err := b.Prebuild(); err != nil {
			return err
		}
		if err := b.Build(); err != nil {
			return err
		}

		size := int64(0)
		if info, statErr := os.Stat(cfg.TargetPath); statErr == nil {
			size = info.Size()
		}
		log.Printf("created image: %s (%s)", cfg.TargetPath, bytefmt.ByteSize(uint64(size)))
		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	f.BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")
	f.BoolVarP(&flagJSON, "json", "j", false, "enable json output")
	f.StringVar(&flagConfig, "config", "", "path to a YAML file of flag defaults")

	flags := rootCmd.Flags()
	flags.StringVarP(&flagOutput, "output", "o", "", "path to the output image file (required)")

	flags.Uint32Var(&flagMinIOSize, "min-io-size", 0, "minimum I/O unit size in bytes")
	flags.Uint32Var(&flagLEBSize, "leb-size", 0, "logical erase block size in bytes")
	flags.Uint32Var(&flagMaxLEBCnt, "max-leb-cnt", 0, "maximum LEB count")
	flags.IntVar(&flagFanout, "fanout", 0, "index node fanout")
	flags.Uint32Var(&flagMaxBudBytes, "max-bud-bytes", 0, "maximum bud bytes budget")
	flags.Uint32Var(&flagJrnSize, "jrn-size", 0, "journal size in bytes (accepted; has no effect on the image)")
	flags.Uint32Var(&flagLogLebs, "log-lebs", 0, "number of log LEBs")
	flags.Uint32Var(&flagOrphLebs, "orph-lebs", 0, "number of orphan LEBs")
	flags.Uint64Var(&flagRPSize, "rp-size", 0, "reserved pool size in bytes")

	flags.StringVar(&flagCompr, "compr", "none", "compression type (none, lzo, zlib, zstd, favor_lzo)")
	flags.IntVar(&flagFavorPercent, "favor-percent", 0, "favor_lzo tie-break percentage")
	flags.StringVar(&flagKeyHash, "key-hash", "r5", "dentry/xattr name hash (r5, test)")

	flags.BoolVar(&flagSpaceFixup, "space-fixup", false, "mark the image for space fixup on first mount")
	flags.BoolVar(&flagSquashOwner, "squash-owner", false, "squash all file ownership to squash-uid/squash-gid")
	flags.Uint32Var(&flagSquashUID, "squash-uid", 0, "uid to squash ownership to")
	flags.Uint32Var(&flagSquashGID, "squash-gid", 0, "gid to squash ownership to")
	flags.BoolVar(&flagSetInumAttr, "set-inum-attr", false, "accepted; has no effect on the image (no inode-number xattr is written)")

	flags.StringVar(&flagKeyFile, "key-file", "", "path to the fscrypt key file (enables encryption)")
	flags.StringVar(&flagKeyDesc, "key-desc", "", "fscrypt key descriptor")
	flags.StringVar(&flagCipher, "cipher", "aes256-xts", "encryption cipher")
	flags.IntVar(&flagPadding, "padding", 0, "filename padding (4, 8, 16, or 32)")

	flags.StringVar(&flagHashAlgo, "hash-algo", "none", "authentication hash algorithm (none, sha1, sha256, sha512)")
	flags.StringVar(&flagAuthKeyFile, "auth-key-file", "", "path to the authentication private key (enables authentication)")
	flags.StringVar(&flagAuthCertFile, "auth-cert-file", "", "path to the authentication certificate")

	flags.StringVar(&flagDeviceTable, "device-table", "", "path to a device table file")
	flags.StringVar(&flagSelinux, "selinux-labels", "", "path to a selinux label (file_contexts-style) file")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if flagConfig != "" {
			viper.SetConfigFile(flagConfig)
			if err := viper.ReadInConfig(); err != nil {
				return err
			}
		}

		logger := &elog.CLI{}

		if flagJSON {
			logger.DisableTTY = true
			logrus.SetFormatter(&logrus.JSONFormatter{})
		} else {
			logrus.SetFormatter(logger)
		}

		logrus.SetLevel(logrus.TraceLevel)

		if flagDebug {
			logger.IsDebug = true
			logger.IsVerbose = true
		} else if flagVerbose {
			logger.IsVerbose = true
		}

		log = logger
		return nil
	}
}

package ubifs

import (
	"io/ioutil"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/vorteil/ubifs/pkg/elog"
	"github.com/vorteil/ubifs/pkg/hostfs"
)

// BuilderArgs collects every input NewBuilder needs.
type BuilderArgs struct {
	Config *Config
	Logger elog.View
}

// Builder drives the staged NewBuilder -> Prebuild -> Build pipeline:
// construction validates configuration and derives Geometry; Prebuild
// scans the source tree and constructs every pipeline collaborator;
// Build drives emission and finalization (spec.md §4 end to end).
type Builder struct {
	log  elog.View
	cfg  *Config
	geom *Geometry

	tree *hostfs.Tree
	img  *Image
}

// NewBuilder fills cfg's defaults, validates it, and derives Geometry.
// In this state the Builder can report nothing else useful yet; call
// Prebuild to proceed.
func NewBuilder(args *BuilderArgs) (*Builder, error) {
	cfg := args.Config
	cfg.Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	geom, err := NewGeometry(cfg)
	if err != nil {
		return nil, err
	}
	if err := ValidateFull(cfg, geom); err != nil {
		return nil, err
	}

	return &Builder{log: args.Logger, cfg: cfg, geom: geom}, nil
}

// Prebuild scans the source tree (applying any device-table overlay,
// including its synthetic entries), and constructs every collaborator
// the Image needs: compressor, cryptor, signer, device table, and
// selinux labels.
func (b *Builder) Prebuild() error {
	progress := b.log.NewProgress("Scanning source tree", "", 0)
	defer progress.Finish(false)

	tree, err := b.loadTree()
	if err != nil {
		return err
	}

	devtable, err := LoadDeviceTable(b.cfg.DeviceTableFile)
	if err != nil {
		return err
	}
	if err := injectSynthetic(tree, devtable); err != nil {
		return err
	}

	var selinuxLabels *SelinuxLabels
	if b.cfg.SelinuxLabelFile != "" {
		selinuxLabels, err = LoadSelinuxLabels(b.cfg.SelinuxLabelFile)
		if err != nil {
			return err
		}
	}

	compressor, err := NewCompressor(b.cfg.Compression, b.cfg.FavorPercent)
	if err != nil {
		return err
	}

	cryptor, err := b.buildCryptor()
	if err != nil {
		return err
	}

	var signer *Signer
	var auth *authState
	if b.cfg.AuthenticationEnabled() {
		signer, err = NewSigner(b.cfg.HashAlgo, b.cfg.AuthKeyFile, b.cfg.AuthCertFile)
		if err != nil {
			return err
		}
		auth = newAuthState(signer)
	}

	sink, err := b.buildSink()
	if err != nil {
		return err
	}

	ledger := NewLedger(b.geom)
	head := NewWriteHead(b.geom, ledger, sink, b.geom.MainFirst)

	b.tree = tree
	b.img = &Image{
		cfg:           b.cfg,
		geom:          b.geom,
		log:           b.log,
		highestInum:   FirstIno - 1,
		head:          head,
		ledger:        ledger,
		sink:          sink,
		identity:      NewIdentityTable(),
		compressor:    compressor,
		cryptor:       cryptor,
		signer:        signer,
		auth:          auth,
		devtable:      devtable,
		selinuxLabels: selinuxLabels,
	}

	progress.Finish(true)
	return nil
}

func (b *Builder) loadTree() (*hostfs.Tree, error) {
	if b.cfg.Root == "" {
		return hostfs.NewTree(), nil
	}
	tree, err := hostfs.TreeFromDirectory(b.cfg.Root)
	if err != nil {
		return nil, errors.Wrap(&SourceIO{Path: b.cfg.Root, Cause: err}, "scanning source tree")
	}
	return tree, nil
}

func (b *Builder) buildCryptor() (Cryptor, error) {
	if !b.cfg.EncryptionEnabled() {
		return nil, nil
	}
	key, err := ioutil.ReadFile(b.cfg.KeyFile)
	if err != nil {
		return nil, errors.Wrap(&EncryptionFailed{Context: "key file", Cause: err}, "loading key_file")
	}
	return NewXTSCryptor(key, b.cfg.Padding, b.cfg.KeyDesc)
}

func (b *Builder) buildSink() (Sink, error) {
	if b.cfg.TargetIsUBI {
		return nil, errors.New("ubi volume targets must be wired in by the caller via NewUBISink")
	}
	return NewFileSink(b.cfg.TargetPath)
}

// injectSynthetic maps every device-table entry (after range-form
// expansion) into tree that doesn't already correspond to a host path,
// so a device table can provision nodes -- typically /dev entries --
// that are absent from the source directory entirely (spec.md §6's
// device-table overlay, generalized per SPEC_FULL.md's [DEVICE TABLE]
// module).
func injectSynthetic(tree *hostfs.Tree, devtable *DeviceTable) error {
	for _, entry := range devtable.Synthetic() {
		for _, expanded := range entry.Expand() {
			if _, err := tree.Lookup(expanded.Path); err == nil {
				continue // a host file already occupies this path; the
				// per-entry override path in the Leaf Emitter handles it.
			}
			f := syntheticDeviceFile(expanded)
			if err := tree.Map(expanded.Path, f); err != nil {
				return errors.Wrap(&DeviceTableInvalid{Reason: "mapping synthetic entry " + expanded.Path + ": " + err.Error()}, "injecting device table")
			}
		}
	}
	return nil
}

func syntheticDeviceFile(e *DeviceTableEntry) hostfs.File {
	args := hostfs.CustomFileArgs{
		Name:      baseName(e.Path),
		ModTime:   time.Unix(0, 0).UTC(),
		Mode:      os.FileMode(e.Mode),
		UID:       e.UID,
		GID:       e.GID,
		LinkCount: 1,
	}
	switch e.Type {
	case 'd':
		args.IsDir = true
		args.LinkCount = 2
	case 'c', 'b':
		args.IsDeviceNode = true
		args.Major, args.Minor = e.Major, e.Minor
	}
	return hostfs.CustomFile(args)
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// Build drives emission and finalization: Prebuild must have already
// constructed the Image and source tree.
func (b *Builder) Build() error {
	progress := b.log.NewProgress("Writing image", "nodes", 0)
	defer progress.Finish(false)

	if _, err := b.img.Emit(b.tree); err != nil {
		b.img.sink.Abort()
		return err
	}
	if err := b.img.Finalize(); err != nil {
		b.img.sink.Abort()
		return err
	}

	progress.Finish(true)
	return nil
}

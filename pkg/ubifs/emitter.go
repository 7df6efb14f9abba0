package ubifs

import (
	"os"

	"github.com/pkg/errors"
	"github.com/vorteil/ubifs/pkg/hostfs"
)

const (
	dentTypeDir  = 2
	dentTypeReg  = 0
	dentTypeLnk  = 3
	dentTypeChr  = 4
	dentTypeBlk  = 5
	dentTypeFifo = 6
	dentTypeSock = 7
)

// pendingDirEntry is what emitDir hands back to its caller once a
// directory subtree (and its own inode) has been fully written.
type pendingDirEntry struct {
	inum uint32
}

// Emit walks the source tree rooted at tree and emits every data,
// inode, dentry, and xattr node it produces, per spec.md §4.4. It
// returns the root directory's target inum.
func (img *Image) Emit(tree *hostfs.Tree) (uint32, error) {
	rootInum := img.nextInum() // consumes FirstIno
	entry, err := img.emitDir(tree.Root(), rootInum, "")
	if err != nil {
		return 0, err
	}
	if err := img.emitMultiLinked(); err != nil {
		return 0, err
	}
	return entry.inum, nil
}

// emitDir recursively processes a directory node: each child is
// dispatched by mode (spec.md §4.4); a directory's own inode is written
// after all its children, but its creat_sqnum is captured before they
// are emitted, matching kernel ordering semantics (spec.md §5).
func (img *Image) emitDir(node *hostfs.Node, inum uint32, relPath string) (*pendingDirEntry, error) {
	creatSqnum := img.maxSqnum + 1

	var size uint64
	nlink := uint32(2) // self + parent reference

	for _, child := range node.Children {
		f := child.File
		name := []byte(f.Name())
		relPath := child.RelPath()

		override, hasOverride := img.devtable.Lookup(relPath)
		if hasOverride && override.Type != 'f' && !f.IsDir() && !f.IsSymlink() && !f.IsDevice() {
			return nil, &DeviceTableInvalid{Reason: "device table cannot override a regular file: " + relPath}
		}

		uid, gid := f.UID(), f.GID()
		if img.cfg.SquashOwner {
			uid, gid = img.cfg.SquashUID, img.cfg.SquashGID
		}

		if f.IsDir() {
			childInum := img.nextInum()
			if _, err := img.emitDir(child, childInum, relPath); err != nil {
				return nil, err
			}
			if err := img.emitDentry(inum, name, childInum, dentTypeDir); err != nil {
				return nil, err
			}
			nlink++
			size += dentSize(name)
			continue
		}

		childInum, fileType, firstOccurrence, err := img.resolveInum(f, relPath, uid, gid, hasOverride, override)
		if err != nil {
			return nil, err
		}

		if err := img.emitDentry(inum, name, childInum, fileType); err != nil {
			return nil, err
		}
		size += dentSize(name)

		if firstOccurrence && f.Nlink() <= 1 {
			if err := img.emitLeaf(f, childInum, 1, uid, gid, hasOverride, override, relPath); err != nil {
				return nil, err
			}
		}
	}

	uid, gid := uint32(0), uint32(0)
	if node.File != nil {
		uid, gid = node.File.UID(), node.File.GID()
	}
	if img.cfg.SquashOwner {
		uid, gid = img.cfg.SquashUID, img.cfg.SquashGID
	}

	mode := uint32(os.ModeDir) | 0755
	if err := img.emitInode(inum, creatSqnum, size, mode, nlink, uid, gid, nil, 0, nil, relPath); err != nil {
		return nil, err
	}

	return &pendingDirEntry{inum: inum}, nil
}

// resolveInum implements spec.md §3/§4.4's hardlink handling: a file
// whose host nlink is >1 consumes a fresh inum only on its first
// occurrence in the tree; later occurrences reuse it without drawing
// from the counter. The inode+data write for such a file is parked in the
// identity table and performed by the deferred pass (emitMultiLinked)
// after the full walk, per spec.md §4.4's last sentence.
func (img *Image) resolveInum(f hostfs.File, relPath string, uid, gid uint32, hasOverride bool, ov *DeviceTableEntry) (inum uint32, fileType uint8, firstOccurrence bool, err error) {
	fileType = dentTypeOf(f, hasOverride, ov)

	if f.Nlink() <= 1 {
		return img.nextInum(), fileType, true, nil
	}

	dev, ino := f.DevIno()
	if entry, seen := img.identity.Lookup(dev, ino); seen {
		entry.Bump()
		return entry.targetInum, fileType, false, nil
	}
	candidate := img.nextInum()
	img.identity.Insert(dev, ino, candidate, f, uid, gid, relPath)
	return candidate, fileType, true, nil
}

func dentTypeOf(f hostfs.File, hasOverride bool, ov *DeviceTableEntry) uint8 {
	if hasOverride {
		return devTableTypeByte(ov.Type)
	}
	switch {
	case f.IsSymlink():
		return dentTypeLnk
	case f.IsDevice():
		return dentTypeChr
	default:
		return dentTypeReg
	}
}

func devTableTypeByte(t byte) uint8 {
	switch t {
	case 'd':
		return dentTypeDir
	case 'c':
		return dentTypeChr
	case 'b':
		return dentTypeBlk
	case 'p':
		return dentTypeFifo
	case 's':
		return dentTypeSock
	default:
		return dentTypeReg
	}
}

func dentSize(name []byte) uint64 {
	return uint64(align(DentNodeSz+len(name)+1, 8))
}

// emitMultiLinked finishes every hardlinked file the tree walk parked in
// the identity table, now that the full tree is known, in table order
// (spec.md §4.4). Each inode's nlink is written as the host file's own
// link count, per spec.md §8's invariant that I.nlink equals the number
// of dentries referencing I.
func (img *Image) emitMultiLinked() error {
	for _, entry := range img.identity.Entries() {
		if err := img.emitLeaf(entry.file, entry.targetInum, entry.file.Nlink(), entry.uid, entry.gid, false, nil, entry.firstPath); err != nil {
			return err
		}
	}
	return nil
}

func (img *Image) emitDentry(parentInum uint32, name []byte, targetInum uint32, fileType uint8) error {
	key := DentKey(parentInum, string(name), img.cfg.KeyHash)
	nameBytes := name
	if img.cryptor != nil {
		enc, err := img.cryptor.EncryptName(name, parentInum)
		if err != nil {
			return errors.Wrap(&EncryptionFailed{Context: "dentry name", Cause: err}, "emitting dentry")
		}
		nameBytes = enc
	}
	body := encodeDent(key, uint64(targetInum), fileType, nameBytes)
	node := img.prepareNode(uint8(NodeTypeDent), GroupNone, body)
	lnum, offs, err := img.head.WriteAt(node)
	if err != nil {
		return err
	}
	img.pushLeaf(IndexLeaf{Key: key, Name: append([]byte(nil), name...), Lnum: lnum, Offs: offs, Len: uint32(len(node))})
	return nil
}

func (img *Image) emitInode(inum uint32, creatSqnum uint64, size uint64, mode uint32, nlink uint32, uid, gid uint32, inline []byte, compression uint16, xattrs map[string][]byte, relPath string) error {
	key := InodeKey(inum)

	xattrCnt, xattrSize, xattrNames := uint32(0), uint32(0), uint32(0)
	for name, val := range xattrs {
		written, err := img.emitXattr(inum, name, val, relPath)
		if err != nil {
			return err
		}
		xattrCnt++
		xattrSize += uint32(len(written))
		xattrNames += uint32(len(name))
	}

	body := encodeInode(key, creatSqnum, size, 0, nlink, uid, gid, mode, compression, xattrCnt, xattrSize, xattrNames, inline)
	node := img.prepareNode(uint8(NodeTypeInode), GroupNone, body)
	lnum, offs, err := img.head.WriteAt(node)
	if err != nil {
		return err
	}
	img.pushLeaf(IndexLeaf{Key: key, Lnum: lnum, Offs: offs, Len: uint32(len(node))})
	return nil
}

// emitXattr writes one xattr as a dentry+inode pair, per spec.md §4.4.
// For security.selinux, when a label file was supplied it substitutes the
// file's looked-up context in place of the host's own value (SPEC_FULL.md's
// [SELINUX LABELS] module); with no label file, or no matching rule, the
// host's value passes through unchanged. It returns the bytes actually
// written, for the caller's xattr_size accounting.
func (img *Image) emitXattr(hostInum uint32, name string, val []byte, relPath string) ([]byte, error) {
	if isSelinuxAttr(name) {
		if ctx, ok := img.selinuxLabels.Lookup(relPath); ok {
			val = append([]byte(ctx), 0)
		}
	}

	key := XentKey(hostInum, name, img.cfg.KeyHash)
	xinum := img.nextInum()

	dentBody := encodeDent(key, uint64(xinum), 0, []byte(name))
	dentNode := img.prepareNode(uint8(NodeTypeXent), GroupNone, dentBody)
	lnum, offs, err := img.head.WriteAt(dentNode)
	if err != nil {
		return nil, err
	}
	img.pushLeaf(IndexLeaf{Key: key, Name: []byte(name), Lnum: lnum, Offs: offs, Len: uint32(len(dentNode))})

	inoKey := InodeKey(xinum)
	inoBody := encodeInode(inoKey, img.maxSqnum, uint64(len(val)), 0, 1, 0, 0, uint32(0100644), 0, 0, 0, 0, val)
	inoNode := img.prepareNode(uint8(NodeTypeInode), GroupNone, inoBody)
	ilnum, ioffs, err := img.head.WriteAt(inoNode)
	if err != nil {
		return nil, err
	}
	img.pushLeaf(IndexLeaf{Key: inoKey, Lnum: ilnum, Offs: ioffs, Len: uint32(len(inoNode))})
	return val, nil
}

func isSelinuxAttr(name string) bool {
	return name == "security.selinux"
}

// emitLeaf dispatches a non-directory host entry by mode, per spec.md
// §4.4: regular files stream data nodes; symlinks/devices/sockets/fifos
// carry their content inline in the inode. nlink is the inode's final
// link count (spec.md §8): 1 for a file emitted on its only occurrence,
// or the host file's own Nlink() when emitMultiLinked emits a parked
// hardlinked file.
func (img *Image) emitLeaf(f hostfs.File, inum uint32, nlink, uid, gid uint32, hasOverride bool, ov *DeviceTableEntry, relPath string) error {
	creatSqnum := img.maxSqnum + 1
	mode := uint32(f.Mode().Perm())

	switch {
	case hasOverride && ov.Type != 'f':
		return img.emitDeviceOverrideLeaf(inum, creatSqnum, uid, gid, ov)

	case f.IsSymlink():
		target := []byte(f.Symlink())
		if img.cryptor != nil {
			enc, err := img.cryptor.EncryptSymlink(target, inum)
			if err != nil {
				return errors.Wrap(&EncryptionFailed{Context: "symlink", Cause: err}, "emitting symlink")
			}
			target = enc
		} else if len(target) > MaxInoData {
			return errors.Wrap(&SourceIO{Path: f.Name(), Cause: errors.New("symlink target exceeds MAX_INO_DATA")}, "emitting symlink")
		}
		return img.emitInode(inum, creatSqnum, uint64(len(f.Symlink())), 0120777, nlink, uid, gid, target, 0, xattrsOrNil(img, f), relPath)

	case f.IsDevice():
		major, minor := f.Rdev()
		inline := encodeRdev(major, minor)
		return img.emitInode(inum, creatSqnum, 0, 0020666, nlink, uid, gid, inline, 0, xattrsOrNil(img, f), relPath)

	case f.Mode()&(os.ModeNamedPipe|os.ModeSocket) != 0:
		return img.emitInode(inum, creatSqnum, 0, mode, nlink, uid, gid, nil, 0, xattrsOrNil(img, f), relPath)

	default:
		return img.emitRegularFile(f, inum, creatSqnum, nlink, uid, gid, mode, relPath)
	}
}

func encodeRdev(major, minor uint32) []byte {
	return writeLE(uint32(major<<8 | (minor & 0xff) | ((minor & 0xfff00) << 12)))
}

func xattrsOrNil(img *Image, f hostfs.File) map[string][]byte {
	xattrs, err := f.Xattrs()
	if err != nil {
		img.log.Warnf("%v", &HostAttrUnavailable{Path: f.Name(), Attr: "xattrs", Cause: err})
		return nil
	}
	return xattrs
}

func (img *Image) emitDeviceOverrideLeaf(inum uint32, creatSqnum uint64, uid, gid uint32, ov *DeviceTableEntry) error {
	switch ov.Type {
	case 'd':
		return img.emitInode(inum, creatSqnum, 0, ov.Mode|uint32(os.ModeDir), 2, ov.UID, ov.GID, nil, 0, nil, ov.Path)
	case 'p', 's':
		return img.emitInode(inum, creatSqnum, 0, ov.Mode, 1, ov.UID, ov.GID, nil, 0, nil, ov.Path)
	default: // 'c','b'
		return img.emitInode(inum, creatSqnum, 0, ov.Mode, 1, ov.UID, ov.GID, encodeRdev(ov.Major, ov.Minor), 0, nil, ov.Path)
	}
}

// emitRegularFile streams a regular file's content in BlockSize chunks,
// per spec.md §4.4: all-zero blocks are skipped (sparse), otherwise
// compressed (or stored raw if compression doesn't shrink the block),
// optionally encrypted, and recorded as a data-node leaf.
func (img *Image) emitRegularFile(f hostfs.File, inum uint32, creatSqnum uint64, nlink, uid, gid, mode uint32, relPath string) error {
	buf := make([]byte, BlockSize)
	var block uint32
	var total uint64

	for {
		n, readErr := readFull(f, buf)
		total += uint64(n)

		if n > 0 {
			chunk := buf[:n]
			if !isAllZero(chunk) {
				if err := img.emitDataBlock(chunk, inum, block); err != nil {
					return err
				}
			}
			block++
		}

		if readErr != nil {
			break
		}
	}

	return img.emitInode(inum, creatSqnum, total, mode, nlink, uid, gid, nil, 0, xattrsOrNil(img, f), relPath)
}

func (img *Image) emitDataBlock(chunk []byte, inum uint32, block uint32) error {
	compressed, tag, err := compressBlock(img.compressor, chunk)
	if err != nil {
		return err
	}
	payload := compressed
	if img.cryptor != nil {
		enc, eerr := img.cryptor.EncryptData(payload, inum, block)
		if eerr != nil {
			return errors.Wrap(&EncryptionFailed{Context: "data block", Cause: eerr}, "emitting file")
		}
		payload = enc
	}
	key := DataKey(inum, block)
	body := encodeData(key, uint32(len(chunk)), tag, payload)
	node := img.prepareNode(uint8(NodeTypeData), GroupNone, body)
	lnum, offs, err := img.head.WriteAt(node)
	if err != nil {
		return err
	}
	img.pushLeaf(IndexLeaf{Key: key, Lnum: lnum, Offs: offs, Len: uint32(len(node))})
	return nil
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// readFull reads up to len(buf) bytes from f, returning n>0 together
// with a non-nil error on a short final read (a streamed file's last
// block is usually short of BlockSize).
func readFull(f hostfs.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, errReadZero
		}
	}
	return total, nil
}

var errReadZero = errors.New("read returned 0 bytes with nil error")

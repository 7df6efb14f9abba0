// Package hostfs provides the small capability surface the image builder
// uses to read a source tree off the host filesystem: stat, readlink, and
// xattr enumeration. Everything above this package deals only in the File
// and Tree abstractions; nothing else reads the source tree through os or
// syscall.
package hostfs

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// File represents a single file, directory, symlink, device node, or
// other special file from a source tree.
type File interface {
	Name() string
	Size() int64
	ModTime() time.Time
	Read(p []byte) (n int, err error)
	Close() error

	IsDir() bool
	IsSymlink() bool
	SymlinkIsCached() bool
	Symlink() string

	Mode() os.FileMode
	UID() uint32
	GID() uint32

	// IsDevice reports whether this is a character or block device node.
	IsDevice() bool
	// Rdev returns the (major, minor) pair for a device node.
	Rdev() (major, minor uint32)

	// Nlink reports the host link count, used to decide whether a file
	// is worth tracking in the hardlink identity table.
	Nlink() uint32
	// DevIno returns the host (device, inode) pair a multi-linked file
	// is identified by. Meaningless (and unused) for Nlink() <= 1.
	DevIno() (dev, ino uint64)

	// Xattrs returns the host extended attributes attached to the file,
	// or nil if none are available. A host that can't report xattrs for
	// a file (EOPNOTSUPP, or none present) returns a nil map and a nil
	// error: that condition is not an error, see HostAttrUnavailable.
	Xattrs() (map[string][]byte, error)
}

// CustomFileArgs constructs a File that may or may not be backed by a real
// path on disk -- used both for host-sourced entries and for synthetic
// entries injected by a device table or the multi-link emission pass.
type CustomFileArgs struct {
	Name               string
	Size               int64
	ModTime            time.Time
	IsDir              bool
	IsSymlink          bool
	IsSymlinkNotCached bool
	Symlink            string
	Mode               os.FileMode
	UID, GID           uint32
	Major, Minor       uint32
	IsDeviceNode       bool
	LinkCount          uint32
	Dev, Ino           uint64
	XattrMap           map[string][]byte
	ReadCloser         io.ReadCloser
}

// CustomFile builds a File from CustomFileArgs.
func CustomFile(args CustomFileArgs) File {
	return &customFile{args: args}
}

type customFile struct {
	args      CustomFileArgs
	xattrFunc func() (map[string][]byte, error)
}

func (f *customFile) Name() string    { return f.args.Name }
func (f *customFile) Size() int64     { return f.args.Size }
func (f *customFile) ModTime() time.Time { return f.args.ModTime }
func (f *customFile) IsDir() bool     { return f.args.IsDir }
func (f *customFile) IsSymlink() bool { return f.args.IsSymlink }
func (f *customFile) SymlinkIsCached() bool {
	return !f.args.IsSymlinkNotCached
}
func (f *customFile) Symlink() string    { return f.args.Symlink }
func (f *customFile) Mode() os.FileMode  { return f.args.Mode }
func (f *customFile) UID() uint32        { return f.args.UID }
func (f *customFile) GID() uint32        { return f.args.GID }
func (f *customFile) IsDevice() bool     { return f.args.IsDeviceNode }
func (f *customFile) Rdev() (uint32, uint32) { return f.args.Major, f.args.Minor }
func (f *customFile) Nlink() uint32      { return f.args.LinkCount }
func (f *customFile) DevIno() (uint64, uint64) { return f.args.Dev, f.args.Ino }

func (f *customFile) Xattrs() (map[string][]byte, error) {
	if f.xattrFunc != nil {
		return f.xattrFunc()
	}
	return f.args.XattrMap, nil
}

func (f *customFile) Read(p []byte) (int, error) {
	if f.args.ReadCloser == nil {
		return 0, io.EOF
	}
	return f.args.ReadCloser.Read(p)
}

func (f *customFile) Close() error {
	if f.args.ReadCloser != nil {
		return f.args.ReadCloser.Close()
	}
	return nil
}

// LazyOpen mimics os.Open/os.Lstat but returns a File whose content isn't
// opened until the first attempted read, and whose xattrs are read via
// the host's llistxattr/lgetxattr syscalls on first request.
func LazyOpen(path string) (File, error) {

	fi, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}

	var major, minor uint32
	isDevice := fi.Mode()&(os.ModeDevice) != 0
	if isDevice {
		major, minor = rdevOf(fi)
	}

	var symlink string
	var symlinkCached bool
	if fi.Mode()&os.ModeSymlink != 0 {
		symlink, err = os.Readlink(path)
		if err != nil {
			return nil, err
		}
		symlink = filepath.ToSlash(symlink)
		symlinkCached = true
	}

	openFunc := func() (io.Reader, error) {
		if symlinkCached {
			return strings.NewReader(symlink), nil
		}
		return os.Open(path)
	}

	var opened *os.File
	rc := lazyReadCloser(func() (io.Reader, error) {
		r, err := openFunc()
		if err != nil {
			return nil, err
		}
		if f, ok := r.(*os.File); ok {
			opened = f
		}
		return r, nil
	}, func() error {
		if opened != nil {
			return opened.Close()
		}
		return nil
	})

	size := fi.Size()
	if symlinkCached {
		size = int64(len(symlink))
	}

	uid, gid := ownerOf(fi)
	nlink, dev, ino := linkIdentityOf(fi)

	return &customFile{
		args: CustomFileArgs{
			Name:         fi.Name(),
			Size:         size,
			ModTime:      fi.ModTime(),
			IsDir:        fi.IsDir(),
			IsSymlink:    fi.Mode()&os.ModeSymlink != 0,
			Symlink:      symlink,
			Mode:         fi.Mode(),
			UID:          uid,
			GID:          gid,
			IsDeviceNode: isDevice,
			Major:        major,
			Minor:        minor,
			LinkCount:    nlink,
			Dev:          dev,
			Ino:          ino,
			ReadCloser:   rc,
		},
		xattrFunc: func() (map[string][]byte, error) {
			return ReadXattrs(path)
		},
	}, nil
}

// ReadXattrs enumerates the extended attributes attached to path using
// llistxattr/lgetxattr. A nil, nil result means the host reported no
// xattrs or doesn't support them (EOPNOTSUPP) -- not an error.
func ReadXattrs(path string) (map[string][]byte, error) {

	size, err := unix.Llistxattr(path, nil)
	if err != nil {
		if err == unix.EOPNOTSUPP || err == unix.ENOTSUP {
			return nil, nil
		}
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, size)
	n, err := unix.Llistxattr(path, buf)
	if err != nil {
		return nil, err
	}

	names := splitNulTerminated(buf[:n])
	if len(names) == 0 {
		return nil, nil
	}

	out := make(map[string][]byte, len(names))
	for _, name := range names {
		vsize, err := unix.Lgetxattr(path, name, nil)
		if err != nil {
			continue
		}
		val := make([]byte, vsize)
		if vsize > 0 {
			n, err := unix.Lgetxattr(path, name, val)
			if err != nil {
				continue
			}
			val = val[:n]
		}
		out[name] = val
	}

	return out, nil
}

func splitNulTerminated(buf []byte) []string {
	var out []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				out = append(out, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

func lazyReadCloser(openFunc func() (io.Reader, error), closeFunc func() error) io.ReadCloser {
	return &lazyRC{openFunc: openFunc, closeFunc: closeFunc}
}

type lazyRC struct {
	r         io.Reader
	openFunc  func() (io.Reader, error)
	closeFunc func() error
	closed    bool
}

func (rc *lazyRC) Read(p []byte) (int, error) {
	if rc.closed {
		return 0, io.ErrClosedPipe
	}
	if rc.r == nil {
		r, err := rc.openFunc()
		if err != nil {
			return 0, err
		}
		rc.r = r
	}
	return rc.r.Read(p)
}

func (rc *lazyRC) Close() error {
	if rc.closed {
		return nil
	}
	rc.closed = true
	return rc.closeFunc()
}

// Discard consumes and closes a File without examining its content. Used
// when a node in the tree is being replaced or unmapped.
func Discard(f File) error {
	if f == nil {
		return nil
	}
	if !f.IsDir() {
		_, err := io.Copy(ioutil.Discard, f)
		if err != nil {
			_ = f.Close()
			return err
		}
	}
	return f.Close()
}

package hostfs

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomFileBasicFields(t *testing.T) {
	f := CustomFile(CustomFileArgs{
		Name:      "widget",
		UID:       1000,
		GID:       1000,
		LinkCount: 3,
		Mode:      0644,
	})
	assert.Equal(t, "widget", f.Name())
	assert.Equal(t, uint32(1000), f.UID())
	assert.Equal(t, uint32(1000), f.GID())
	assert.Equal(t, uint32(3), f.Nlink())
	assert.False(t, f.IsDir())
	assert.False(t, f.IsDevice())
}

func TestCustomFileDeviceNode(t *testing.T) {
	f := CustomFile(CustomFileArgs{Name: "sda", IsDeviceNode: true, Major: 8, Minor: 0})
	assert.True(t, f.IsDevice())
	major, minor := f.Rdev()
	assert.Equal(t, uint32(8), major)
	assert.Equal(t, uint32(0), minor)
}

func TestCustomFileReadUsesReadCloser(t *testing.T) {
	f := CustomFile(CustomFileArgs{Name: "data", ReadCloser: ioutil.NopCloser(strings.NewReader("payload"))})
	data, err := ioutil.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.NoError(t, f.Close())
}

func TestCustomFileReadWithoutReadCloserIsEOF(t *testing.T) {
	f := CustomFile(CustomFileArgs{Name: "empty"})
	buf := make([]byte, 1)
	_, err := f.Read(buf)
	assert.Equal(t, io.EOF, err)
}

func TestCustomFileXattrsUsesMap(t *testing.T) {
	f := CustomFile(CustomFileArgs{Name: "x", XattrMap: map[string][]byte{"user.a": []byte("1")}})
	xattrs, err := f.Xattrs()
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), xattrs["user.a"])
}

func TestSplitNulTerminated(t *testing.T) {
	buf := []byte("user.a\x00user.b\x00")
	got := splitNulTerminated(buf)
	assert.Equal(t, []string{"user.a", "user.b"}, got)
}

func TestSplitNulTerminatedSkipsEmptyEntries(t *testing.T) {
	buf := []byte("\x00user.a\x00\x00")
	got := splitNulTerminated(buf)
	assert.Equal(t, []string{"user.a"}, got)
}

func TestDiscardClosesNonDirFile(t *testing.T) {
	f := CustomFile(CustomFileArgs{Name: "x", ReadCloser: ioutil.NopCloser(strings.NewReader("abc"))})
	assert.NoError(t, Discard(f))
}

func TestDiscardSkipsDirectories(t *testing.T) {
	f := CustomFile(CustomFileArgs{Name: "d", IsDir: true})
	assert.NoError(t, Discard(f))
}

func TestDiscardNilIsNoop(t *testing.T) {
	assert.NoError(t, Discard(nil))
}

func TestLazyOpenReadsRegularFileLazily(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	require.NoError(t, ioutil.WriteFile(path, []byte("hello"), 0644))

	f, err := LazyOpen(path)
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", f.Name())
	assert.False(t, f.IsDir())

	data, err := ioutil.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.NoError(t, f.Close())
}

func TestLazyOpenSymlinkCachesTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	require.NoError(t, ioutil.WriteFile(target, []byte("x"), 0644))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink("real", link))

	f, err := LazyOpen(link)
	require.NoError(t, err)
	assert.True(t, f.IsSymlink())
	assert.Equal(t, "real", f.Symlink())
}

func TestLazyOpenDirectory(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))

	f, err := LazyOpen(sub)
	require.NoError(t, err)
	assert.True(t, f.IsDir())
}

package hostfs

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFile(name string) File {
	return CustomFile(CustomFileArgs{Name: name})
}

func TestTreeMapCreatesIntermediateDirectories(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Map("a/b/c", testFile("c")))

	n, err := tree.Lookup("a")
	require.NoError(t, err)
	assert.True(t, n.File.IsDir())

	n, err = tree.Lookup("a/b")
	require.NoError(t, err)
	assert.True(t, n.File.IsDir())

	n, err = tree.Lookup("a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "c", n.File.Name())
}

func TestTreeLookupMissingReturnsErrNodeNotFound(t *testing.T) {
	tree := NewTree()
	_, err := tree.Lookup("nope")
	assert.Equal(t, ErrNodeNotFound, err)
}

func TestTreeMapReplacesExistingNode(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Map("x", testFile("x")))
	require.NoError(t, tree.Map("x", CustomFile(CustomFileArgs{Name: "x", Size: 42})))

	n, err := tree.Lookup("x")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n.File.Size())
}

func TestTreeLookupRootOnEmptyPath(t *testing.T) {
	tree := NewTree()
	n, err := tree.Lookup("")
	require.NoError(t, err)
	assert.Same(t, tree.Root(), n)
}

func TestNodeRelPathStripsLeadingSlash(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Map("dev/tty0", testFile("tty0")))
	n, err := tree.Lookup("dev/tty0")
	require.NoError(t, err)
	assert.Equal(t, "dev/tty0", n.RelPath())
	assert.Equal(t, "/dev/tty0", n.Path())
}

func TestTreeWalkNodeVisitsPreOrder(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Map("a", testFile("a")))
	require.NoError(t, tree.Map("b/c", testFile("c")))

	var visited []string
	require.NoError(t, tree.WalkNode(func(path string, n *Node) error {
		visited = append(visited, path)
		return nil
	}))

	assert.Equal(t, []string{"/", "/a", "/b", "/b/c"}, visited)
}

func TestTreeWalkNodeErrSkipPrunesSubtree(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Map("skip-me/child", testFile("child")))
	require.NoError(t, tree.Map("keep-me", testFile("keep-me")))

	var visited []string
	require.NoError(t, tree.WalkNode(func(path string, n *Node) error {
		visited = append(visited, path)
		if path == "/skip-me" {
			return ErrSkip
		}
		return nil
	}))

	assert.NotContains(t, visited, "/skip-me/child")
	assert.Contains(t, visited, "/keep-me")
}

func TestTreeNodeCountIncludesRoot(t *testing.T) {
	tree := NewTree()
	assert.Equal(t, 1, tree.NodeCount())
	require.NoError(t, tree.Map("a", testFile("a")))
	assert.Equal(t, 2, tree.NodeCount())
}

func TestTreeMapRejectsRootPath(t *testing.T) {
	tree := NewTree()
	err := tree.Map("/", testFile("x"))
	assert.Error(t, err)
}

func TestCleanPathNormalizesVariants(t *testing.T) {
	assert.Equal(t, "a/b", cleanPath("/a/b"))
	assert.Equal(t, "a/b", cleanPath("./a/b"))
	assert.Equal(t, "", cleanPath("/"))
	assert.Equal(t, "", cleanPath("."))
}

func TestTreeFromDirectoryMirrorsHostLayout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "etc"), 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "etc", "hostname"), []byte("box"), 0644))

	tree, err := TreeFromDirectory(dir)
	require.NoError(t, err)

	n, err := tree.Lookup("etc/hostname")
	require.NoError(t, err)
	assert.Equal(t, "hostname", n.File.Name())
}

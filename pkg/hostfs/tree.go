package hostfs

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNodeNotFound is returned when a lookup against a Tree misses.
var ErrNodeNotFound = errors.New("node not found")

// WalkNodeFunc is called for every node of a Tree during WalkNode, in a
// pre-order traversal. The root node is reported with path "/".
type WalkNodeFunc func(path string, n *Node) error

// ErrSkip, returned from a WalkNodeFunc, skips the remainder of that
// node's subtree without aborting the walk.
var ErrSkip = errors.New("skip")

// Node is a single entry of a Tree: a file, directory, or synthetic
// device-table entry, together with its place in the hierarchy.
type Node struct {
	File     File
	Parent   *Node
	Children []*Node

	// TargetInum is assigned once the leaf emitter visits this node; it
	// is not touched by the tree itself.
	TargetInum int64
	// Nlink accumulates the hard-link count this node will carry on
	// flash: 1 plus, for directories, one per child directory plus one
	// for the directory's self-reference.
	Nlink int
}

func (n *Node) path() string {
	if n.Parent == nil {
		return "/"
	}
	if n.Parent.Parent == nil {
		return "/" + n.File.Name()
	}
	return n.Parent.path() + "/" + n.File.Name()
}

// Path returns the node's full path from the tree root, slash-separated.
func (n *Node) Path() string { return n.path() }

// RelPath returns the node's path with the leading slash stripped, the
// form device-table lookups and image paths are keyed by.
func (n *Node) RelPath() string {
	return strings.TrimPrefix(n.path(), "/")
}

// Tree organizes the files that will become a UBIFS image: the source
// directory tree, plus any synthetic entries injected by a device table.
type Tree struct {
	root *Node
}

// NewTree returns a Tree with a single, empty root directory.
func NewTree() *Tree {
	return &Tree{
		root: &Node{
			File: CustomFile(CustomFileArgs{
				Name:    "/",
				IsDir:   true,
				ModTime: time.Unix(0, 0).UTC(),
			}),
		},
	}
}

// Root returns the tree's root node.
func (t *Tree) Root() *Node { return t.root }

// Map inserts f at path, creating any missing parent directories. If a
// node already exists at path it is replaced (and its old contents
// discarded via Discard).
func (t *Tree) Map(path string, f File) error {
	path = cleanPath(path)
	if path == "" {
		return errors.New("cannot map the root node")
	}
	return t.root.mapIn(path, f)
}

// Lookup returns the node at path, or ErrNodeNotFound.
func (t *Tree) Lookup(path string) (*Node, error) {
	path = cleanPath(path)
	if path == "" {
		return t.root, nil
	}
	return t.root.lookup(path)
}

// WalkNode traverses the tree in pre-order.
func (t *Tree) WalkNode(fn WalkNodeFunc) error {
	return t.root.walkNode(fn)
}

// NodeCount returns the number of nodes in the tree, the root included.
func (t *Tree) NodeCount() int {
	count := 0
	_ = t.WalkNode(func(string, *Node) error {
		count++
		return nil
	})
	return count
}

func cleanPath(path string) string {
	path = filepath.ToSlash(path)
	path = filepath.Clean(path)
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimPrefix(path, "./")
	if path == "." {
		return ""
	}
	return path
}

func (n *Node) mapIn(path string, f File) error {
	strs := strings.SplitN(path, "/", 2)
	next, rest := strs[0], ""
	if len(strs) == 2 {
		rest = strs[1]
	}

	l := len(n.Children)
	k := sort.Search(l, func(i int) bool {
		return next <= n.Children[i].File.Name()
	})

	if k < l && n.Children[k].File.Name() == next {
		child := n.Children[k]
		if rest != "" {
			if !child.File.IsDir() {
				return errors.New("path component is not a directory: " + next)
			}
			return child.mapIn(rest, f)
		}
		if err := Discard(child.File); err != nil {
			return err
		}
		child.File = f
		return nil
	}

	newNode := &Node{Parent: n}
	if rest == "" {
		newNode.File = f
	} else {
		newNode.File = CustomFile(CustomFileArgs{
			Name:    next,
			IsDir:   true,
			ModTime: f.ModTime(),
		})
		if err := newNode.mapIn(rest, f); err != nil {
			return err
		}
	}

	n.Children = append(n.Children, nil)
	copy(n.Children[k+1:], n.Children[k:])
	n.Children[k] = newNode
	return nil
}

func (n *Node) lookup(path string) (*Node, error) {
	strs := strings.SplitN(path, "/", 2)
	next, rest := strs[0], ""
	if len(strs) == 2 {
		rest = strs[1]
	}

	l := len(n.Children)
	k := sort.Search(l, func(i int) bool {
		return next <= n.Children[i].File.Name()
	})
	if k == l || n.Children[k].File.Name() != next {
		return nil, ErrNodeNotFound
	}
	if rest == "" {
		return n.Children[k], nil
	}
	return n.Children[k].lookup(rest)
}

func (n *Node) walkNode(fn WalkNodeFunc) error {
	err := fn(n.path(), n)
	if err == ErrSkip {
		return nil
	}
	if err != nil {
		return err
	}
	for _, child := range n.Children {
		if err := child.walkNode(fn); err != nil {
			return err
		}
	}
	return nil
}

// TreeFromDirectory walks a host directory recursively and builds a Tree
// from its contents, using LazyOpen for every entry so file content isn't
// read into memory until the leaf emitter streams it.
func TreeFromDirectory(dir string) (*Tree, error) {
	t := NewTree()
	err := filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(filepath.ToSlash(path), filepath.ToSlash(dir))
		rel = strings.TrimPrefix(rel, "/")
		if rel == "" {
			return nil
		}
		f, err := LazyOpen(path)
		if err != nil {
			return err
		}
		return t.Map(rel, f)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

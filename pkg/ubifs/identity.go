package ubifs

import "github.com/vorteil/ubifs/pkg/hostfs"

// identityKey is the (device, source-inum) pair the Inode Identity
// Table is keyed by, per spec.md §3.
type identityKey struct {
	dev  uint64
	inum uint64
}

// identityEntry parks a multi-linked host file between its first
// occurrence during the tree walk and the deferred emission pass that
// runs after the walk completes (spec.md §4.4: "after the walk,
// multi-linked files parked in the identity table are emitted in
// table-order with their final nlink counts"). The host's reported
// nlink is already authoritative at first sight (it comes straight from
// lstat), so nothing here needs to accumulate a count to discover it;
// "final nlink" is simply file.Nlink().
type identityEntry struct {
	targetInum   uint32
	file         hostfs.File
	uid, gid     uint32
	firstPath    string
	observedLink int
}

// IdentityTable maps host (dev, inum) pairs with nlink>1 to a single
// target inode, so hardlinked files are written once and referenced by
// multiple dentries (spec.md §3/§4.4). Any map with stable iteration at
// drain time works per spec.md §9; a Go map plus a side slice of keys in
// first-seen order gives that.
type IdentityTable struct {
	entries map[identityKey]*identityEntry
	order   []identityKey
}

// NewIdentityTable constructs an empty table.
func NewIdentityTable() *IdentityTable {
	return &IdentityTable{entries: make(map[identityKey]*identityEntry)}
}

// Lookup returns the existing entry for (dev, inum) and true if this
// file has been seen before (so its inode was already allocated).
func (t *IdentityTable) Lookup(dev, inum uint64) (*identityEntry, bool) {
	e, ok := t.entries[identityKey{dev: dev, inum: inum}]
	return e, ok
}

// Insert records the first occurrence of a multi-linked host file,
// consuming targetInum.
func (t *IdentityTable) Insert(dev, inum uint64, targetInum uint32, f hostfs.File, uid, gid uint32, path string) *identityEntry {
	k := identityKey{dev: dev, inum: inum}
	e := &identityEntry{targetInum: targetInum, file: f, uid: uid, gid: gid, firstPath: path, observedLink: 1}
	t.entries[k] = e
	t.order = append(t.order, k)
	return e
}

// Bump increments the observed link count for an already-known entry;
// called on every subsequent occurrence of the same host file.
func (e *identityEntry) Bump() {
	e.observedLink++
}

// Entries returns every recorded entry in first-seen order, for the
// multi-link deferred-emission pass.
func (t *IdentityTable) Entries() []*identityEntry {
	out := make([]*identityEntry, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.entries[k])
	}
	return out
}

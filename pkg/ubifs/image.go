package ubifs

import (
	"github.com/vorteil/ubifs/pkg/elog"
)

// IndexLeaf is one entry of the Index Leaf List of spec.md §3: an
// append-only sequence built during leaf emission, sorted and consumed
// by the Index Builder, then discarded before finalization.
type IndexLeaf struct {
	Key  Key
	Name []byte // kept only for tiebreak sorting; freed after the index is written
	Lnum uint32
	Offs uint32
	Len  uint32
	Hash []byte // content-hash, only populated when authentication is enabled
}

// Image is the single owned state threaded through every pipeline
// component, replacing the source's process-wide ubifs_info global
// (spec.md §9: "model as a builder value owned by the top-level driver,
// threaded explicitly into every component; no singletons").
type Image struct {
	cfg  *Config
	geom *Geometry
	log  elog.Logger

	maxSqnum     uint64
	highestInum  uint32

	head   *WriteHead
	ledger *Ledger
	sink   Sink

	identity *IdentityTable
	leaves   []IndexLeaf

	compressor Compressor
	cryptor    Cryptor
	signer     *Signer
	auth       *authState

	devtable      *DeviceTable
	selinuxLabels *SelinuxLabels

	fmtVersion int
	flags      uint32
}

// nextInum allocates a fresh target inode number.
func (img *Image) nextInum() uint32 {
	img.highestInum++
	return img.highestInum
}

// pushLeaf appends an entry to the Index Leaf List.
func (img *Image) pushLeaf(l IndexLeaf) {
	img.leaves = append(img.leaves, l)
}

package ubifs

import "github.com/pkg/errors"

// WriteHead is the single append-only cursor over the main area
// described by spec.md §4.3: {lnum, offs}. It reserves space, pads to
// alignment, flushes full LEBs to the sink, and tells the Ledger about
// every flush.
type WriteHead struct {
	lnum uint32
	offs uint32

	leb []byte // scratch buffer for the LEB under construction

	// indexMode marks every LEB the head flushes from here on as an
	// index LEB (flags=INDEX) instead of an ordinary main-area LEB, per
	// spec.md §3/§4.5. The Finalizer toggles it around its BuildIndex
	// call.
	indexMode bool

	geom   *Geometry
	ledger *Ledger
	sink   Sink
}

// NewWriteHead creates a WriteHead starting at the given first main-area
// LEB, offset 0.
func NewWriteHead(geom *Geometry, ledger *Ledger, sink Sink, firstLnum uint32) *WriteHead {
	return &WriteHead{
		lnum:   firstLnum,
		leb:    make([]byte, geom.LEBSize),
		geom:   geom,
		ledger: ledger,
		sink:   sink,
	}
}

// SetIndexMode marks (or unmarks) every subsequent Flush as carrying
// index-node content, so the Ledger records it with flags=INDEX instead
// of as an ordinary main-area LEB. The Finalizer sets this around its
// BuildIndex call.
func (w *WriteHead) SetIndexMode(v bool) { w.indexMode = v }

// Lnum returns the LEB the head is currently positioned in.
func (w *WriteHead) Lnum() uint32 { return w.lnum }

// Offs returns the head's current byte offset within Lnum().
func (w *WriteHead) Offs() uint32 { return w.offs }

// Reserve implements spec.md §4.3's reserve(n): if n bytes won't fit in
// the remainder of the current LEB, flush first; then return the
// position the caller should write at and advance the head by
// align(n, 8).
func (w *WriteHead) Reserve(n int) (lnum, offs uint32, err error) {
	if uint32(n) > w.geom.LEBSize-w.offs {
		if err := w.Flush(); err != nil {
			return 0, 0, err
		}
	}
	if uint32(n) > w.geom.LEBSize {
		return 0, 0, errors.Wrap(&IndexTooBig{Size: n, Max: int(w.geom.LEBSize)}, "reserving write-head space")
	}
	lnum, offs = w.lnum, w.offs
	w.offs += uint32(align(n, 8))
	return lnum, offs, nil
}

// Write copies buf into the LEB scratch buffer at the head's current
// position (the caller must have already called Reserve for len(buf)).
func (w *WriteHead) Write(at uint32, buf []byte) {
	copy(w.leb[at:], buf)
}

// WriteAt reserves space for buf and writes it in one step, returning the
// position it landed at.
func (w *WriteHead) WriteAt(buf []byte) (lnum, offs uint32, err error) {
	lnum, offs, err = w.Reserve(len(buf))
	if err != nil {
		return 0, 0, err
	}
	w.Write(offs, buf)
	return lnum, offs, nil
}

// Flush pads the tail of the current LEB, hands it to the sink, records
// LEB properties via the Ledger, and advances to (lnum+1, 0). Per
// spec.md §4.3: the tail from offs up to align(offs, min_io) gets a pad
// node if room permits, else raw 0xFF; the remainder to leb_size is
// always 0xFF.
func (w *WriteHead) Flush() error {
	if w.offs == 0 {
		// Nothing was written into this LEB; still must be handed to
		// the sink as an empty (all 0xFF) LEB if the caller explicitly
		// asked for it via FlushEmpty. A zero-offset flush mid-build
		// means the previous flush already advanced past any content,
		// so treat this as a no-op to avoid emitting a duplicate LEB.
		return nil
	}

	padTo := alignU32(w.offs, w.geom.MinIOSize)
	if padTo > w.offs {
		padLen := padTo - w.offs
		if padLen >= PadNodeSz {
			node := w.buildPadNode(padLen)
			w.Write(w.offs, node)
		} else {
			fillFF(w.leb[w.offs:padTo])
		}
		w.offs = padTo
	}
	fillFF(w.leb[w.offs:])

	if err := w.sink.WriteLEB(w.lnum, w.leb); err != nil {
		return errors.Wrap(&SinkIO{Lnum: int(w.lnum), Cause: err}, "flushing write head")
	}

	free := w.geom.LEBSize - padTo
	if w.indexMode {
		w.ledger.RecordIndex(w.lnum, free, 0)
	} else {
		w.ledger.RecordMain(w.lnum, free, 0)
	}

	w.lnum++
	w.offs = 0
	fillFF(w.leb)
	return nil
}

// buildPadNode constructs a raw pad node (type=PAD) of exactly padLen
// bytes: a common header is prepended by the caller's image, but the pad
// node's own body is just its pad_len field; here we build the whole
// node inline since prepare_node's sqnum bump is not needed for pad
// nodes in the reference implementation (they aren't indexed or
// replayed). We still stamp a magic+crc so fsck-style validators that
// scan LEB contents linearly can skip over it.
func (w *WriteHead) buildPadNode(padLen uint32) []byte {
	bodyLen := int(padLen) - CommonHdrSize
	if bodyLen < 4 {
		bodyLen = 4
	}
	body := make([]byte, bodyLen)
	copy(body, writeLE(uint32(bodyLen-4)))

	hdr := CommonHeader{
		Magic:    Magic,
		Len:      uint32(CommonHdrSize + len(body)),
		NodeType: NodeTypePad,
	}
	buf := writeLE(&hdr)
	buf = append(buf, body...)
	crc := nodeCRC(buf[8:])
	putU32(buf[4:8], crc)
	return buf
}

// FlushEmpty writes a fully-0xFF LEB with no content, used for the
// empty LEBs at the tail of the LPT region (the Finalizer writes the
// log and orphan-area empties itself with writeEmptyLEB).
func (w *WriteHead) FlushEmpty() error {
	fillFF(w.leb)
	if err := w.sink.WriteLEB(w.lnum, w.leb); err != nil {
		return errors.Wrap(&SinkIO{Lnum: int(w.lnum), Cause: err}, "flushing empty LEB")
	}
	w.ledger.RecordEmpty(w.lnum)
	w.lnum++
	w.offs = 0
	return nil
}

// Advance forces the head to the next LEB without flushing (used by the
// Finalizer when reserving the GC LEB: it's conceptually empty and will
// be recorded as such, but nothing is written into the current LEB's
// scratch buffer first).
func (w *WriteHead) Advance() {
	w.lnum++
	w.offs = 0
}

func fillFF(b []byte) {
	for i := range b {
		b[i] = 0xFF
	}
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

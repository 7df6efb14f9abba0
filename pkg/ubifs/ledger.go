package ubifs

// LebProps is a single LEB's property triple, per spec.md §3.
type LebProps struct {
	Free  uint32
	Dirty uint32
	Flags uint8
}

const (
	LPFlagIndex = 1 << 0
)

// Ledger accumulates the per-LEB properties array and its aggregate
// stats, used later by the LPT Writer and the master node (spec.md §3,
// §4.4 "LEB Properties Ledger").
type Ledger struct {
	geom  *Geometry
	props map[uint32]LebProps

	EmptyLebs uint32
	IdxLebs   uint32
	TotalFree uint32
	TotalDirty uint32
	TotalUsed uint32
	TotalDead uint32
	TotalDark uint32
}

// NewLedger creates an empty Ledger bound to geom for dead/dark
// watermark classification.
func NewLedger(geom *Geometry) *Ledger {
	return &Ledger{geom: geom, props: make(map[uint32]LebProps)}
}

// RecordMain records the properties of a just-flushed main-area LEB:
// free bytes computed from the head's final offset, and whether it
// carries index nodes (classified by the caller via RecordIndex instead
// when true).
func (l *Ledger) RecordMain(lnum uint32, free, dirty uint32) {
	l.record(lnum, free, dirty, 0)
}

// RecordIndex records the properties of a LEB that holds index nodes
// (flags=INDEX).
func (l *Ledger) RecordIndex(lnum uint32, free, dirty uint32) {
	l.record(lnum, free, dirty, LPFlagIndex)
}

func (l *Ledger) record(lnum uint32, free, dirty uint32, flags uint8) {
	l.props[lnum] = LebProps{Free: free, Dirty: dirty, Flags: flags}

	spc := free
	used := l.geom.LEBSize - spc

	l.TotalFree += free
	l.TotalDirty += dirty
	l.TotalUsed += used
	if l.geom.DeadSpace(spc) {
		l.TotalDead += spc
	}
	l.TotalDark += l.geom.CalcDark(spc)
	if flags&LPFlagIndex != 0 {
		l.IdxLebs++
	}
}

// RecordEmpty records a fully-free LEB (spec.md §4.3's dedicated empty
// path): it bumps EmptyLebs but doesn't contribute to the per-LEB
// property map, matching the "skips property recording except to bump
// empty_lebs" rule.
func (l *Ledger) RecordEmpty(lnum uint32) {
	l.EmptyLebs++
}

// Props returns the full per-LEB property map, keyed by LEB number, for
// the LPT Writer to serialize.
func (l *Ledger) Props() map[uint32]LebProps {
	return l.props
}

// LebCount returns the highest LEB number recorded plus one: the LEB
// count of an image ending at that LEB, counting the LEBs below it
// (non-main areas, unrecorded LEBs) as well.
func (l *Ledger) LebCount() uint32 {
	var max uint32
	for lnum := range l.props {
		if lnum+1 > max {
			max = lnum + 1
		}
	}
	return max
}

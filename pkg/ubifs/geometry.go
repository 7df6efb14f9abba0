package ubifs

import "github.com/pkg/errors"

// Geometry holds the derived constants of spec.md §4.1, computed once
// from Config and then treated as read-only for the rest of the build.
type Geometry struct {
	MinIOSize  uint32
	LEBSize    uint32
	MaxLEBCnt  uint32
	Fanout     int
	JheadCnt   int

	MinLogLebs   uint32
	LogLebs      uint32
	OrphLebs     uint32
	RPSize       uint64

	MaxIdxNodeSz int
	DeadWM       uint32
	DarkWM       uint32

	FmtVersion int
	Compression CompressionType

	LptLebs   uint32
	LptIsBig  bool
	MainFirst uint32 // first main-area LEB, fixed once the LPT region size is known
}

// align rounds n up to the next multiple of to (to must be a power of two
// for the bitwise form; we accept any positive integer).
func align(n, to int) int {
	if to <= 0 {
		return n
	}
	r := n % to
	if r == 0 {
		return n
	}
	return n + (to - r)
}

func alignU32(n, to uint32) uint32 {
	if to == 0 {
		return n
	}
	r := n % to
	if r == 0 {
		return n
	}
	return n + (to - r)
}

func isPowerOfTwo(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}

// NewGeometry derives Geometry from cfg, applying the rounding and
// clamping rules of spec.md §4.1/§9 (min_io_size<8 silently rounds to 8).
func NewGeometry(cfg *Config) (*Geometry, error) {
	g := &Geometry{
		MinIOSize: cfg.MinIOSize,
		LEBSize:   cfg.LEBSize,
		MaxLEBCnt: cfg.MaxLEBCnt,
		Fanout:    cfg.Fanout,
		JheadCnt:  1,
		OrphLebs:  cfg.OrphLebs,
		RPSize:    cfg.RPSize,
		Compression: cfg.Compression,
	}

	if g.MinIOSize < 8 {
		// spec.md §9 open question: replicate the source's silent
		// rounding rather than hard-erroring.
		g.MinIOSize = 8
	}
	if !isPowerOfTwo(g.MinIOSize) {
		return nil, &InvalidGeometry{Reason: "min_io_size must be a power of two"}
	}

	if g.LEBSize < MinLEBSz || g.LEBSize > MaxLEBSz {
		return nil, &InvalidGeometry{Reason: "leb_size out of range"}
	}
	if g.LEBSize%g.MinIOSize != 0 {
		return nil, &InvalidGeometry{Reason: "leb_size must be a multiple of min_io_size"}
	}
	if g.LEBSize%8 != 0 {
		return nil, &InvalidGeometry{Reason: "leb_size must be a multiple of 8"}
	}

	maxFanout := int((g.LEBSize - IdxNodeHdrSz) / (BranchSz + MaxKeyLen))
	if g.Fanout < MinFanout || g.Fanout > maxFanout {
		return nil, &InvalidGeometry{Reason: "fanout out of range"}
	}

	budBytes := int(cfg.MaxBudBytes)
	if budBytes == 0 {
		budBytes = int(g.LEBSize) * 4
	}
	buds := align(budBytes, int(g.LEBSize)) / int(g.LEBSize)
	refPerLeb := align(RefNodeSz, int(g.MinIOSize))
	tailSz := align(CSNodeSz+RefNodeSz*(g.JheadCnt+2), int(g.MinIOSize))
	g.MinLogLebs = uint32(divCeil(buds*refPerLeb+tailSz, int(g.LEBSize))) + 1

	g.LogLebs = cfg.LogLebs
	if g.LogLebs == 0 {
		g.LogLebs = g.MinLogLebs + DefaultLogLebsExtra
	}
	if g.LogLebs < g.MinLogLebs {
		return nil, &InvalidGeometry{Reason: "log_lebs too small for journal geometry"}
	}

	if g.OrphLebs < 1 {
		return nil, &InvalidGeometry{Reason: "orph_lebs must be at least 1"}
	}

	g.MaxIdxNodeSz = IdxNodeHdrSz + g.Fanout*(BranchSz+MaxKeyLen)
	if g.MaxIdxNodeSz > int(g.LEBSize) {
		return nil, &IndexTooBig{Size: g.MaxIdxNodeSz, Max: int(g.LEBSize)}
	}

	g.DeadWM = alignU32(MinWriteSz, g.MinIOSize)
	g.DarkWM = alignU32(MaxNodeSz, g.MinIOSize)

	g.RPSize = addSpaceOverhead(cfg.RPSize, g.MaxIdxNodeSz, g.Fanout)

	g.LptLebs, g.LptIsBig = lptGeometry(g.MaxLEBCnt, g.LEBSize)
	reservedLebs := SBLebs + MstLebs + int(g.LogLebs) + int(g.LptLebs) + int(g.OrphLebs) + 4
	if int(g.MaxLEBCnt) < reservedLebs {
		return nil, &InvalidGeometry{Reason: "max_leb_cnt insufficient to hold superblock, master, log, lpt, orphan and main areas"}
	}

	if uint64(g.LEBSize)*uint64(g.MaxLEBCnt)/2 <= g.RPSize {
		return nil, &InvalidGeometry{Reason: "rp_size too large relative to image size"}
	}

	if cfg.EncryptionEnabled() {
		g.FmtVersion = FmtVersion5
	} else {
		g.FmtVersion = FmtVersion4
	}

	g.Compression = cfg.Compression
	if cfg.EncryptionEnabled() {
		g.Compression = ComprNone
	}

	g.MainFirst = uint32(SBLebs+MstLebs) + g.LogLebs + g.LptLebs + g.OrphLebs

	return g, nil
}

// addSpaceOverhead implements spec.md §4.1's rp_size bump: multiplies by
// (MAX_DATA_NODE_SZ + 3*max_idx_node_sz/max(fanout>>1,2) - 1) then
// divides by BLOCK_SIZE.
func addSpaceOverhead(rp uint64, maxIdxNodeSz, fanout int) uint64 {
	if rp == 0 {
		return 0
	}
	divisor := fanout >> 1
	if divisor < 2 {
		divisor = 2
	}
	overhead := MaxDataNodeSz + 3*maxIdxNodeSz/divisor - 1
	return rp * uint64(overhead) / BlockSize
}

func divCeil(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// DeadSpace reports whether spc free bytes in a LEB are below the dead
// watermark (permanently unusable, spec.md §3).
func (g *Geometry) DeadSpace(spc uint32) bool {
	return spc < g.DeadWM
}

// CalcDark implements the dark-space classification of spec.md §3: free
// bytes that cannot be relied upon because the node mix isn't decided:
// all of spc below the dark watermark, otherwise the watermark's worth.
func (g *Geometry) CalcDark(spc uint32) uint32 {
	if spc < g.DarkWM {
		return spc
	}
	return g.DarkWM
}

// ValidateFull re-checks the configuration against Geometry-derived
// values once both are available; returns a wrapped InvalidGeometry or
// InvalidOption on violation.
func ValidateFull(cfg *Config, g *Geometry) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if g.Fanout < MinFanout {
		return errors.Wrap(&InvalidGeometry{Reason: "fanout below minimum"}, "validating geometry")
	}
	return nil
}

package ubifs

// LPT layout parameters. The LPT nodes themselves carry the common
// header like every other node, typed with the NodeTypeLPT* constants.
const (
	lptPnodeEntries = 4 // LEB-properties entries a pnode carries
	lptNnodeFanout  = 4 // child pointers an nnode carries
	lsaveCnt        = 4 // number of LEBs recorded in the lsave table
)

// LPTResult carries the positions the master node needs once the LPT
// has been written, per spec.md §4.6.
type LPTResult struct {
	NheadLnum, NheadOffs   uint32
	LtabLnum, LtabOffs     uint32
	LsaveLnum, LsaveOffs   uint32
	LscanLnum              uint32
	Hash                   []byte
	BigLPT                 bool
}

// pnode mirrors mkfs.ubifs's ubifs_pnode: a leaf of the LPT holding a
// fixed number of per-LEB (free, dirty, flags) triples.
type pnode struct {
	Props [lptPnodeEntries]LebProps
}

func encodePnode(p *pnode) []byte {
	buf := make([]byte, 0, lptPnodeEntries*9)
	for _, pr := range p.Props {
		buf = append(buf, writeLE(pr.Free, pr.Dirty, uint8(pr.Flags))...)
	}
	return buf
}

// nnode mirrors ubifs_nnode: an internal LPT node pointing at pnodes or
// further nnodes by LEB/offset.
type nnode struct {
	Children [lptNnodeFanout]struct {
		Lnum, Offs uint32
	}
}

func encodeNnode(n *nnode) []byte {
	var parts []interface{}
	for _, c := range n.Children {
		parts = append(parts, c.Lnum, c.Offs)
	}
	return writeLE(parts...)
}

// ltab mirrors ubifs_lpt_lprops/ubifs_lp_tab: one (free, dirty) pair per
// LPT-area LEB, used by fsck/mount to locate the LPT's own footprint.
type ltabEntry struct {
	Free, Dirty uint32
}

func encodeLtab(entries []ltabEntry) []byte {
	buf := make([]byte, 0, len(entries)*8)
	for _, e := range entries {
		buf = append(buf, writeLE(e.Free, e.Dirty)...)
	}
	return buf
}

// encodeLsave serializes the lsave table: the LEB numbers mount should
// cache lprops for first, chosen as the first lsaveCnt main-area LEBs
// (padded with the first main-area LEB when the image has fewer).
func encodeLsave(lnums []uint32) []byte {
	buf := make([]byte, 0, len(lnums)*4)
	for _, l := range lnums {
		buf = append(buf, writeLE(l)...)
	}
	return buf
}

// lptGeometry sizes the LPT region ahead of any leaf emission, the way
// mkfs.ubifs does: the region must be able to describe every LEB up to
// max_leb_cnt regardless of how many the finished image actually uses,
// plus one LEB each for the ltab and lsave tables.
func lptGeometry(maxLebCnt uint32, lebSize uint32) (lebs uint32, big bool) {
	pnodeCnt := divCeil(int(maxLebCnt), lptPnodeEntries)
	pnodeBytes := lptPnodeEntries * 9

	if pnodeCnt*pnodeBytes+CommonHdrSize <= int(lebSize) {
		return 3, false // one LEB each for the flat pnode list, ltab, lsave
	}

	nnodeLebs := divCeil(pnodeCnt, lptNnodeFanout)
	return uint32(pnodeCnt+nnodeLebs) + 2, true
}

// WriteLPT serializes the Ledger's per-LEB property array into the
// pre-reserved LPT region starting at lptFirst, choosing compact vs. big
// form per spec.md §4.6 (big form packs pnodes under an nnode layer;
// compact form lays pnodes out flat when they all fit in one LEB).
func (img *Image) WriteLPT(lptFirst uint32, lptLebs uint32) (LPTResult, error) {
	props := img.ledger.Props()
	lebCnt := img.ledger.LebCount()

	// LPT nodes go through their own write head positioned at lptFirst,
	// with a private ledger so the LPT LEBs stay out of the main-area
	// accounting; the main head is restored on return.
	mainHead := img.head
	img.head = NewWriteHead(img.geom, NewLedger(img.geom), img.sink, lptFirst)
	defer func() { img.head = mainHead }()

	pnodes := packPnodes(props, lebCnt)

	compactBody := make([]byte, 0)
	for _, p := range pnodes {
		compactBody = append(compactBody, encodePnode(&p)...)
	}

	big := CommonHdrSize+len(compactBody) > int(img.geom.LEBSize)

	var nheadLnum, nheadOffs uint32

	if !big {
		node := img.prepareNode(uint8(NodeTypeLPTPnode), GroupNone, compactBody)
		lnum, offs, err := img.head.WriteAt(node)
		if err != nil {
			return LPTResult{}, err
		}
		nheadLnum, nheadOffs = lnum, offs
		if err := img.head.Flush(); err != nil {
			return LPTResult{}, err
		}
	} else {
		var childPositions []struct{ Lnum, Offs uint32 }
		for _, p := range pnodes {
			body := encodePnode(&p)
			node := img.prepareNode(uint8(NodeTypeLPTPnode), GroupNone, body)
			lnum, offs, err := img.head.WriteAt(node)
			if err != nil {
				return LPTResult{}, err
			}
			childPositions = append(childPositions, struct{ Lnum, Offs uint32 }{lnum, offs})
		}
		if err := img.head.Flush(); err != nil {
			return LPTResult{}, err
		}

		n := nnode{}
		for i := 0; i < lptNnodeFanout && i < len(childPositions); i++ {
			n.Children[i] = childPositions[i]
		}
		nbody := encodeNnode(&n)
		nnodeBuf := img.prepareNode(uint8(NodeTypeLPTNnode), GroupNone, nbody)
		lnum, offs, err := img.head.WriteAt(nnodeBuf)
		if err != nil {
			return LPTResult{}, err
		}
		nheadLnum, nheadOffs = lnum, offs
		if err := img.head.Flush(); err != nil {
			return LPTResult{}, err
		}
	}

	ltabEntries := make([]ltabEntry, 0, lptLebs)
	for l := lptFirst; l < lptFirst+lptLebs; l++ {
		ltabEntries = append(ltabEntries, ltabEntry{Free: img.geom.LEBSize, Dirty: 0})
	}
	ltabBody := encodeLtab(ltabEntries)
	ltabNode := img.prepareNode(uint8(NodeTypeLPTLtab), GroupNone, ltabBody)
	ltabLnum, ltabOffs, err := img.head.WriteAt(ltabNode)
	if err != nil {
		return LPTResult{}, err
	}
	if err := img.head.Flush(); err != nil {
		return LPTResult{}, err
	}

	var mainCnt uint32
	if lebCnt > img.geom.MainFirst {
		mainCnt = lebCnt - img.geom.MainFirst
	}
	lsave := firstNLebs(mainCnt, lsaveCnt)
	for i := range lsave {
		lsave[i] += img.geom.MainFirst
	}
	lsaveBody := encodeLsave(lsave)
	lsaveNode := img.prepareNode(uint8(NodeTypeLPTLsave), GroupNone, lsaveBody)
	lsaveLnum, lsaveOffs, err := img.head.WriteAt(lsaveNode)
	if err != nil {
		return LPTResult{}, err
	}
	if err := img.head.Flush(); err != nil {
		return LPTResult{}, err
	}

	for cur := img.head.Lnum(); cur < lptFirst+lptLebs; cur++ {
		if err := img.head.FlushEmpty(); err != nil {
			return LPTResult{}, err
		}
	}

	var hash []byte
	if img.auth != nil {
		hash = img.auth.digest()
	}

	return LPTResult{
		NheadLnum: nheadLnum, NheadOffs: nheadOffs,
		LtabLnum: ltabLnum, LtabOffs: ltabOffs,
		LsaveLnum: lsaveLnum, LsaveOffs: lsaveOffs,
		LscanLnum: img.geom.MainFirst,
		Hash:      hash,
		BigLPT:    big,
	}, nil
}

func packPnodes(props map[uint32]LebProps, lebCnt uint32) []pnode {
	var out []pnode
	var cur pnode
	n := 0
	for lnum := uint32(0); lnum < lebCnt; lnum++ {
		p := props[lnum]
		cur.Props[n] = p
		n++
		if n == lptPnodeEntries {
			out = append(out, cur)
			cur = pnode{}
			n = 0
		}
	}
	if n > 0 {
		out = append(out, cur)
	}
	return out
}

func firstNLebs(lebCnt uint32, n int) []uint32 {
	out := make([]uint32, 0, n)
	for i := 0; i < n && uint32(i) < lebCnt; i++ {
		out = append(out, uint32(i))
	}
	for len(out) < n {
		out = append(out, 0)
	}
	return out
}

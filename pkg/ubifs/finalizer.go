package ubifs

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Finalize drives the Finalizer of spec.md §4.7, in strict order: each
// step's outputs feed the next, so nothing here may be reordered.
func (img *Image) Finalize() error {
	if err := img.head.Flush(); err != nil {
		return err
	}

	gcLnum := img.head.Lnum()
	img.head.Advance()
	img.ledger.RecordEmpty(gcLnum)

	img.head.SetIndexMode(true)
	root, err := img.BuildIndex()
	if err != nil {
		return err
	}
	if err := img.head.Flush(); err != nil {
		return err
	}
	img.head.SetIndexMode(false)

	lebCnt := img.head.Lnum()
	if lebCnt > img.geom.MaxLEBCnt {
		return &TooManyLEBs{Need: int(lebCnt), Max: int(img.geom.MaxLEBCnt)}
	}

	lptFirst := img.geom.MainFirst - img.geom.OrphLebs - img.geom.LptLebs
	lpt, err := img.WriteLPT(lptFirst, img.geom.LptLebs)
	if err != nil {
		return err
	}

	img.flags = img.superblockFlags()

	// The master node's own Flags field tracks mount-time state (dirty
	// commit, no-orphans); an image built offline and never mounted
	// carries neither, so it is left zero.
	m := &masterNode{
		HighestInum: uint64(img.highestInum),
		LogLnum:     LogLnum,
		RootLnum:    root.Lnum,
		RootOffs:    root.Offs,
		RootLen:     root.Len,
		GCLnum:      gcLnum,
		IheadLnum:   img.head.Lnum(),
		IheadOffs:   img.head.Offs(),
		IndexSize:   uint64(root.Len),
		TotalFree:   uint64(img.ledger.TotalFree),
		TotalDirty:  uint64(img.ledger.TotalDirty),
		TotalUsed:   uint64(img.ledger.TotalUsed),
		TotalDead:   uint64(img.ledger.TotalDead),
		TotalDark:   uint64(img.ledger.TotalDark),
		LebCnt:      lebCnt,
		EmptyLebs:   img.ledger.EmptyLebs,
		IdxLebs:     img.ledger.IdxLebs,
		LptLnum:     lptFirst,
		LptOffs:     0,
		NheadLnum:   lpt.NheadLnum,
		NheadOffs:   lpt.NheadOffs,
		LtabLnum:    lpt.LtabLnum,
		LtabOffs:    lpt.LtabOffs,
		LsaveLnum:   lpt.LsaveLnum,
		LsaveOffs:   lpt.LsaveOffs,
		LscanLnum:   lpt.LscanLnum,
	}
	if lpt.Hash != nil {
		copy(m.HashLpt[:], lpt.Hash)
	}
	if img.auth != nil {
		copy(m.HashRootIdx[:], img.auth.digest())
	}

	mstBody := encodeMaster(m)
	mstNode := img.prepareNode(uint8(NodeTypeMST), GroupNone, mstBody)
	if err := img.writeWholeLEB(MstLnum, mstNode); err != nil {
		return err
	}
	if err := img.writeWholeLEB(MstLnum+1, mstNode); err != nil {
		return err
	}

	var mstHash []byte
	if img.signer != nil {
		mstHash = img.signer.ComputeNodeHash(mstNode)
	}
	if err := img.writeSuperblock(mstHash); err != nil {
		return err
	}

	csBody := encodeCommitStart(0)
	csNode := img.prepareNode(uint8(NodeTypeCS), GroupNone, csBody)
	if err := img.writeWholeLEB(LogLnum, csNode); err != nil {
		return err
	}
	for l := LogLnum + 1; l < LogLnum+img.geom.LogLebs; l++ {
		if err := img.writeEmptyLEB(l); err != nil {
			return err
		}
	}

	orphFirst := img.geom.MainFirst - img.geom.OrphLebs
	for l := orphFirst; l < img.geom.MainFirst; l++ {
		if err := img.writeEmptyLEB(l); err != nil {
			return err
		}
	}

	return img.sink.Finalize(lebCnt, img.geom.LEBSize)
}

// superblockFlags computes the superblock's feature-flag word per
// spec.md §4.7 step 6.
func (img *Image) superblockFlags() uint32 {
	var flags uint32
	if img.geom.LptIsBig {
		flags |= FlagBigLPT
	}
	if img.cfg.SpaceFixup {
		flags |= FlagSpaceFixup
	}
	if img.cfg.KeyHash == KeyHashTest {
		flags |= FlagDoubleHash
	}
	if img.cryptor != nil {
		flags |= FlagEncryption
	}
	if img.auth != nil {
		flags |= FlagAuthentication
	}
	return flags
}

// writeSuperblock assembles and writes the single superblock node, plus
// a trailing signature node when authentication is enabled, per
// spec.md §4.7 step 6.
func (img *Image) writeSuperblock(mstHash []byte) error {
	id, err := uuid.NewRandom()
	if err != nil {
		return errors.Wrap(err, "generating superblock uuid")
	}

	sb := &superblockNode{
		KeyHash:         uint8(img.cfg.KeyHash),
		KeyFmt:          0,
		Flags:           img.flags,
		MinIOSize:       img.geom.MinIOSize,
		LEBSize:         img.geom.LEBSize,
		LEBCnt:          img.head.Lnum(),
		MaxLEBCnt:       img.geom.MaxLEBCnt,
		MaxBudBytes:     uint64(img.cfg.MaxBudBytes),
		LogLebs:         img.geom.LogLebs,
		LPTLebs:         img.geom.LptLebs,
		OrphLebs:        img.geom.OrphLebs,
		JheadCnt:        uint32(img.geom.JheadCnt),
		Fanout:          uint32(img.geom.Fanout),
		LSaveCnt:        lsaveCnt,
		FmtVersion:      uint32(img.geom.FmtVersion),
		DefaultCompr:    uint16(img.geom.Compression),
		RPUID:           img.cfg.SquashUID,
		RPGID:           img.cfg.SquashGID,
		RPSize:          img.geom.RPSize,
		TimeGran:        1,
		RoCompatVersion: 0,
		HashAlgo:        uint16(img.cfg.HashAlgo),
	}
	copy(sb.UUID[:], id[:])
	if mstHash != nil {
		copy(sb.HashMst[:], mstHash)
	}

	sbBody := encodeSuperblock(sb)
	sbNode := img.prepareNode(uint8(NodeTypeSB), GroupNone, sbBody)

	leb := sbNode
	if img.signer != nil {
		digest := img.signer.ComputeNodeHash(sbNode)
		sig, err := img.signer.SignSuperblock(digest)
		if err != nil {
			return err
		}
		sigNode := img.prepareNode(uint8(NodeTypeSig), GroupNone, sig)
		leb = append(append([]byte(nil), sbNode...), sigNode...)
	}

	return img.writeWholeLEB(SBLnum, leb)
}

// writeWholeLEB writes node as the entirety of LEB lnum, 0xFF-padded.
func (img *Image) writeWholeLEB(lnum uint32, node []byte) error {
	leb := make([]byte, img.geom.LEBSize)
	fillFF(leb)
	copy(leb, node)
	if err := img.sink.WriteLEB(lnum, leb); err != nil {
		return errors.Wrap(&SinkIO{Lnum: int(lnum), Cause: err}, "writing finalization LEB")
	}
	return nil
}

// writeEmptyLEB writes an all-0xFF LEB and records it via the Ledger.
func (img *Image) writeEmptyLEB(lnum uint32) error {
	leb := make([]byte, img.geom.LEBSize)
	fillFF(leb)
	if err := img.sink.WriteLEB(lnum, leb); err != nil {
		return errors.Wrap(&SinkIO{Lnum: int(lnum), Cause: err}, "writing empty LEB")
	}
	img.ledger.RecordEmpty(lnum)
	return nil
}

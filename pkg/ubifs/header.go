package ubifs

import (
	"bytes"
	"encoding/binary"
)

// CommonHeader is the 24-byte header prefixed to every UBIFS node, per
// spec.md §3/§6. All multi-byte fields are little-endian on flash
// regardless of host byte order (spec.md §9); binary.LittleEndian is
// used uniformly by every node encoder in this package.
type CommonHeader struct {
	Magic     uint32
	CRC       uint32
	Sqnum     uint64
	Len       uint32
	NodeType  uint8
	GroupType uint8
	_         [2]byte
}

// prepareNode assembles a complete node: it allocates a CommonHeader,
// assigns the next sqnum, appends body, fixes up Len, computes the CRC
// over everything after the magic and CRC fields, and returns the finished
// byte slice ready for the Write Head. This is spec.md §4.2's
// prepare_node.
func (img *Image) prepareNode(nodeType, groupType uint8, body []byte) []byte {
	total := CommonHdrSize + len(body)
	hdr := CommonHeader{
		Magic:     Magic,
		Sqnum:     img.nextSqnum(),
		Len:       uint32(total),
		NodeType:  nodeType,
		GroupType: groupType,
	}

	buf := new(bytes.Buffer)
	buf.Grow(total)
	_ = binary.Write(buf, binary.LittleEndian, &hdr)
	buf.Write(body)

	out := buf.Bytes()
	crc := nodeCRC(out[8:]) // everything after magic+crc32
	binary.LittleEndian.PutUint32(out[4:8], crc)

	if img.auth != nil {
		img.auth.recordNodeHash(out)
	}

	return out
}

// nextSqnum assigns the next strictly increasing sequence number, per
// spec.md §5's ordering guarantee.
func (img *Image) nextSqnum() uint64 {
	img.maxSqnum++
	return img.maxSqnum
}

func writeLE(vals ...interface{}) []byte {
	buf := new(bytes.Buffer)
	for _, v := range vals {
		_ = binary.Write(buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

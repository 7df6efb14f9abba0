package ubifs

import "sort"

// BuildIndex sorts the Index Leaf List and packs it bottom-up into a
// fanout-bounded B+-tree of index nodes, per spec.md §4.4/§6. It returns
// the root branch (lnum/offs/len/key) to be recorded in the master node.
func (img *Image) BuildIndex() (branch, error) {
	sort.Slice(img.leaves, func(i, j int) bool {
		if img.leaves[i].Key != img.leaves[j].Key {
			return img.leaves[i].Key < img.leaves[j].Key
		}
		return lessName(img.leaves[i].Name, img.leaves[j].Name)
	})

	if len(img.leaves) == 0 {
		return branch{}, &InvalidGeometry{Reason: "cannot build index over an empty leaf list"}
	}

	level := make([]branch, len(img.leaves))
	for i, leaf := range img.leaves {
		level[i] = branch{Key: packKeyBytes(leaf.Key), Lnum: leaf.Lnum, Offs: leaf.Offs, Len: leaf.Len}
	}

	// Leaves themselves sit at level 0 (they are not index nodes, so
	// nothing is written for them here); each packed level above that is
	// one level higher, up to the root. At least one level is always
	// packed, so even a single leaf gets an index node as the root.
	levelNum := 1
	for levelNum == 1 || len(level) > 1 {
		next, err := img.packLevel(level, levelNum)
		if err != nil {
			return branch{}, err
		}
		level = next
		levelNum++
	}

	return level[0], nil
}

// packLevel packs one level of branches into fanout-sized index nodes,
// writes each, and returns the branches pointing at them for the next
// level up.
func (img *Image) packLevel(level []branch, levelNum int) ([]branch, error) {
	fanout := int(img.geom.Fanout)
	var out []branch

	for start := 0; start < len(level); start += fanout {
		end := start + fanout
		if end > len(level) {
			end = len(level)
		}
		group := level[start:end]

		body := encodeIndex(levelNum, group)
		if CommonHdrSize+len(body) > int(img.geom.LEBSize) {
			return nil, &IndexTooBig{Size: CommonHdrSize + len(body), Max: int(img.geom.LEBSize)}
		}
		node := img.prepareNode(uint8(NodeTypeIdx), GroupNone, body)
		lnum, offs, err := img.head.WriteAt(node)
		if err != nil {
			return nil, err
		}
		out = append(out, branch{Key: group[0].Key, Lnum: lnum, Offs: offs, Len: uint32(len(node))})
	}

	return out, nil
}

func lessName(a, b []byte) bool {
	la, lb := len(a), len(b)
	for i := 0; i < la && i < lb; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return la < lb
}

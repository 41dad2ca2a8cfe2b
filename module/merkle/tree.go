package merkle

import (
	"fmt"

	"github.com/onflow/flow-go/crypto/hash"
)

// domain separation tags for leaf and interior node hashes, so a proof for
// an interior node can never be passed off as a proof for a leaf
const (
	leafDomain byte = 0x00
	nodeDomain byte = 0x01
)

// Tree is a balanced binary merkle tree over an ordered list of leaves.
// The leaf count is padded to the next power of two with empty leaves, so
// proofs have a fixed depth for a given leaf count. The tree is immutable
// once built.
type Tree struct {
	leafCount int
	// levels[0] holds the leaf hashes, levels[len-1] holds the root
	levels [][][]byte
}

// NewTree builds a merkle tree over the given leaves. The leaf index inside
// the tree commits to the position of each leaf, so two trees over the same
// leaves in different order have different roots.
func NewTree(leaves [][]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("merkle tree requires at least one leaf")
	}

	width := 1
	for width < len(leaves) {
		width *= 2
	}

	hashes := make([][]byte, width)
	for i := 0; i < width; i++ {
		if i < len(leaves) {
			hashes[i] = leafHash(uint32(i), leaves[i])
			continue
		}
		// pad with empty leaves to keep the tree balanced
		hashes[i] = leafHash(uint32(i), nil)
	}

	levels := [][][]byte{hashes}
	for len(hashes) > 1 {
		next := make([][]byte, len(hashes)/2)
		for i := range next {
			next[i] = nodeHash(hashes[2*i], hashes[2*i+1])
		}
		levels = append(levels, next)
		hashes = next
	}

	return &Tree{
		leafCount: len(leaves),
		levels:    levels,
	}, nil
}

// Root returns the root hash committing to all leaves.
func (t *Tree) Root() []byte {
	root := t.levels[len(t.levels)-1][0]
	out := make([]byte, len(root))
	copy(out, root)
	return out
}

// Prove generates the inclusion proof for the leaf at the given index.
func (t *Tree) Prove(index int) (*Proof, error) {
	if index < 0 || index >= t.leafCount {
		return nil, fmt.Errorf("leaf index %d out of range [0, %d)", index, t.leafCount)
	}

	// one sibling hash per level, leaf level first, root level excluded
	siblings := make([][]byte, 0, len(t.levels)-1)
	pos := index
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := level[pos^1]
		cp := make([]byte, len(sibling))
		copy(cp, sibling)
		siblings = append(siblings, cp)
		pos /= 2
	}

	return &Proof{
		Index:    uint32(index),
		Siblings: siblings,
	}, nil
}

func leafHash(index uint32, data []byte) []byte {
	hasher := hash.NewSHA3_256()
	_, _ = hasher.Write([]byte{leafDomain})
	_, _ = hasher.Write([]byte{byte(index >> 24), byte(index >> 16), byte(index >> 8), byte(index)})
	_, _ = hasher.Write(data)
	return hasher.SumHash()
}

func nodeHash(left []byte, right []byte) []byte {
	hasher := hash.NewSHA3_256()
	_, _ = hasher.Write([]byte{nodeDomain})
	_, _ = hasher.Write(left)
	_, _ = hasher.Write(right)
	return hasher.SumHash()
}

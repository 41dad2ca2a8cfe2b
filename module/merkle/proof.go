package merkle

import (
	"bytes"
	"fmt"
)

// Proof captures the data needed to prove that a leaf with a given index and
// content is included under a merkle root. Proofs are carried alongside
// erasure-coded parts so any holder can verify a part without the full tree.
type Proof struct {
	// Index is the position of the leaf inside the tree.
	Index uint32
	// Siblings holds one sibling hash per tree level, leaf level first.
	Siblings [][]byte
}

// Verify recomputes the root hash bottom up from the leaf data and the
// sibling hashes and compares it with the expected root. It returns an error
// describing the first inconsistency found, or nil for a valid proof.
func (p *Proof) Verify(expectedRoot []byte, data []byte) error {
	if len(p.Siblings) > 32 {
		return fmt.Errorf("malformed proof, depth %d exceeds index space", len(p.Siblings))
	}
	if len(p.Siblings) < 32 && p.Index >= uint32(1)<<uint(len(p.Siblings)) {
		return fmt.Errorf("malformed proof, index %d does not fit depth %d", p.Index, len(p.Siblings))
	}

	current := leafHash(p.Index, data)
	pos := p.Index
	for _, sibling := range p.Siblings {
		if pos%2 == 0 {
			current = nodeHash(current, sibling)
		} else {
			current = nodeHash(sibling, current)
		}
		pos /= 2
	}

	if !bytes.Equal(current, expectedRoot) {
		return fmt.Errorf("root hash mismatch")
	}

	return nil
}

package chunk

import (
	"github.com/shardlabs/shard-go/module/merkle"
)

// Part is one erasure-coded fragment of a chunk. Parts are immutable once
// produced by the erasure codec; any two copies of the same (chunk, index)
// pair in the network must be bit-identical.
type Part struct {
	// ChunkID identifies the chunk this part belongs to.
	ChunkID Identifier
	// Index is the position of the part in the encoding, in [0, TotalParts).
	Index uint16
	// Data is the erasure-coded payload fragment.
	Data []byte
	// Proof is the merkle inclusion proof binding (Index, Data) to the
	// chunk header's parts root.
	Proof *merkle.Proof
}

// Verify checks the part's inclusion proof against the committed parts
// root. It returns an InvalidProofError if the proof does not reproduce the
// root for this part's index and data.
func (p *Part) Verify(root Identifier) error {
	if p.Proof == nil {
		return NewInvalidProofErrorf(p.ChunkID, p.Index, "part carries no proof")
	}
	if uint32(p.Index) != p.Proof.Index {
		return NewInvalidProofErrorf(p.ChunkID, p.Index, "proof is for index %d", p.Proof.Index)
	}
	err := p.Proof.Verify(root[:], p.Data)
	if err != nil {
		return NewInvalidProofErrorf(p.ChunkID, p.Index, "proof verification failed: %s", err)
	}
	return nil
}

// PartList is a slice of parts.
type PartList []*Part

// Indices returns the part indices in list order.
func (pl PartList) Indices() []uint16 {
	indices := make([]uint16, 0, len(pl))
	for _, part := range pl {
		indices = append(indices, part.Index)
	}
	return indices
}

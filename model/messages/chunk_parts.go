package messages

import (
	"github.com/shardlabs/shard-go/model/chunk"
)

// ChunkPartRequest asks a peer for a set of erasure-coded parts of one
// chunk. The network layer attaches the requester's identity as the origin
// of the message, which the responder uses as the route-back address; no
// addressing information travels inside the message itself.
type ChunkPartRequest struct {
	// ChunkID identifies the requested chunk.
	ChunkID chunk.Identifier
	// Indices are the part indices the requester is missing.
	Indices []uint16
	// Nonce distinguishes retries of the same request so the receiving
	// side does not deduplicate them.
	Nonce uint64
}

// ChunkPartResponse returns the parts a peer holds for a request. Indices
// the responder does not hold are either listed in MissingIndices, when the
// responder is the assigned owner and should have had them, or silently
// omitted otherwise.
type ChunkPartResponse struct {
	// ChunkID identifies the chunk the parts belong to.
	ChunkID chunk.Identifier
	// Parts are the requested parts held by the responder, each with its
	// inclusion proof.
	Parts chunk.PartList
	// MissingIndices are requested indices this responder owns but does
	// not hold. Listing them explicitly spares the requester a full
	// timeout before trying an alternate owner.
	MissingIndices []uint16
	// Nonce echoes the request nonce when the response answers a request,
	// and carries a fresh value when the response is unsolicited.
	Nonce uint64
}

// ChunkPartPush seeds a part owner with its parts right after a chunk has
// been produced, without waiting for a request. It carries the chunk header
// so the receiver can validate the parts before accepting them.
type ChunkPartPush struct {
	// Header is the chunk header committing to all parts.
	Header *chunk.Header
	// Parts are the parts assigned to the receiving participant.
	Parts chunk.PartList
	// Nonce distinguishes re-pushes of the same parts.
	Nonce uint64
}

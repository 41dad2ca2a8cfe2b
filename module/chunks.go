package module

import (
	"github.com/shardlabs/shard-go/model/chunk"
)

// ChunkConsumer receives the chunk-availability outcomes the chain layer
// cares about. Implementations must be non-blocking or quick, as callbacks
// are invoked inline by the requester engine.
type ChunkConsumer interface {
	// OnChunkComplete is called exactly once per chunk when enough valid
	// parts have been collected and the payload has been reconstructed.
	OnChunkComplete(chunkID chunk.Identifier, payload []byte)

	// OnChunkUnavailable is called when the retry ceiling for a chunk's
	// outstanding part requests has been exceeded and the request has been
	// abandoned. A later RequestParts call for the same chunk starts over.
	OnChunkUnavailable(chunkID chunk.Identifier)
}

// ParticipantsProvider returns the currently known active participant set.
// Different nodes may briefly observe different sets during membership
// changes; the assignment function stays deterministic for any given set
// and higher layers tolerate a wrong owner guess by retrying.
type ParticipantsProvider interface {
	Participants() (chunk.ParticipantList, error)
}

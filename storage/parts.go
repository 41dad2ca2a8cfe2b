package storage

import (
	"github.com/shardlabs/shard-go/model/chunk"
)

// Parts provides durable storage of erasure-coded chunk parts. All writes
// are durable before they return: a crash immediately after Store returns
// still preserves the write, and a restarted process reads back identical
// bytes with no re-validation needed.
type Parts interface {
	// Store persists the given part. Storing a part identical to one
	// already held is a no-op; storing different bytes for an already held
	// (chunk, index) key fails with ErrDataMismatch. The check-and-set is
	// atomic, so two concurrent writes for the same key cannot race past
	// it.
	Store(part *chunk.Part) error

	// ByChunkPart returns the part stored for the given chunk and index,
	// or ErrNotFound.
	ByChunkPart(chunkID chunk.Identifier, index uint16) (*chunk.Part, error)

	// IndicesByChunk returns the part indices held for the given chunk, in
	// ascending order. A chunk with no parts yields an empty slice, not an
	// error.
	IndicesByChunk(chunkID chunk.Identifier) ([]uint16, error)

	// HasChunk reports whether enough parts are held to reconstruct the
	// chunk, given its data part count.
	HasChunk(chunkID chunk.Identifier, dataParts uint16) (bool, error)
}

// Headers provides durable storage of chunk headers. Headers must be
// persisted alongside parts because part validation after a restart needs
// the committed parts root.
type Headers interface {
	// Store persists the given header, with the same conflict semantics as
	// Parts.Store: identical re-stores are no-ops, conflicting ones fail
	// with ErrDataMismatch.
	Store(header *chunk.Header) error

	// ByChunkID returns the header for the given chunk, or ErrNotFound.
	ByChunkID(chunkID chunk.Identifier) (*chunk.Header, error)
}

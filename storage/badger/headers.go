package badger

import (
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/shardlabs/shard-go/model/chunk"
	"github.com/shardlabs/shard-go/storage"
	"github.com/shardlabs/shard-go/storage/badger/operation"
)

// Headers implements durable chunk header storage on top of badger.
type Headers struct {
	db *badger.DB
}

var _ storage.Headers = (*Headers)(nil)

func NewHeaders(db *badger.DB) *Headers {
	return &Headers{
		db: db,
	}
}

func (h *Headers) Store(header *chunk.Header) error {
	err := operation.RetryOnConflict(h.db.Update, operation.InsertChunkHeader(header))
	if err != nil {
		return fmt.Errorf("could not store header of chunk %s: %w", header.ID(), err)
	}
	return nil
}

func (h *Headers) ByChunkID(chunkID chunk.Identifier) (*chunk.Header, error) {
	var header chunk.Header
	err := h.db.View(operation.RetrieveChunkHeader(chunkID, &header))
	if err != nil {
		return nil, fmt.Errorf("could not retrieve header of chunk %s: %w", chunkID, err)
	}
	return &header, nil
}

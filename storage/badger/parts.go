package badger

import (
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/shardlabs/shard-go/model/chunk"
	"github.com/shardlabs/shard-go/storage"
	"github.com/shardlabs/shard-go/storage/badger/operation"
)

// Parts implements durable chunk part storage on top of badger. The badger
// instance must be opened with synchronous writes so a Store that has
// returned survives a crash.
type Parts struct {
	db *badger.DB
}

var _ storage.Parts = (*Parts)(nil)

func NewParts(db *badger.DB) *Parts {
	return &Parts{
		db: db,
	}
}

func (p *Parts) Store(part *chunk.Part) error {
	err := operation.RetryOnConflict(p.db.Update, operation.InsertChunkPart(part))
	if err != nil {
		return fmt.Errorf("could not store part %d of chunk %s: %w", part.Index, part.ChunkID, err)
	}
	return nil
}

func (p *Parts) ByChunkPart(chunkID chunk.Identifier, index uint16) (*chunk.Part, error) {
	var part chunk.Part
	err := p.db.View(operation.RetrieveChunkPart(chunkID, index, &part))
	if err != nil {
		return nil, fmt.Errorf("could not retrieve part %d of chunk %s: %w", index, chunkID, err)
	}
	return &part, nil
}

func (p *Parts) IndicesByChunk(chunkID chunk.Identifier) ([]uint16, error) {
	var indices []uint16
	err := p.db.View(operation.ScanChunkPartIndices(chunkID, &indices))
	if err != nil {
		return nil, fmt.Errorf("could not scan part indices of chunk %s: %w", chunkID, err)
	}
	return indices, nil
}

func (p *Parts) HasChunk(chunkID chunk.Identifier, dataParts uint16) (bool, error) {
	indices, err := p.IndicesByChunk(chunkID)
	if err != nil {
		return false, err
	}
	return len(indices) >= int(dataParts), nil
}

package operation

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/shardlabs/shard-go/model/chunk"
)

func InsertChunkPart(part *chunk.Part) func(*badger.Txn) error {
	return insertDedup(makePrefix(codeChunkPart, part.ChunkID, part.Index), part)
}

func RetrieveChunkPart(chunkID chunk.Identifier, index uint16, part *chunk.Part) func(*badger.Txn) error {
	return retrieve(makePrefix(codeChunkPart, chunkID, index), part)
}

func ScanChunkPartIndices(chunkID chunk.Identifier, indices *[]uint16) func(*badger.Txn) error {
	return scanIndexSuffixes(makePrefix(codeChunkPart, chunkID), indices)
}

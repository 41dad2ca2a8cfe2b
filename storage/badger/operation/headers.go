package operation

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/shardlabs/shard-go/model/chunk"
)

func InsertChunkHeader(header *chunk.Header) func(*badger.Txn) error {
	return insertDedup(makePrefix(codeChunkHeader, header.ID()), header)
}

func RetrieveChunkHeader(chunkID chunk.Identifier, header *chunk.Header) func(*badger.Txn) error {
	return retrieve(makePrefix(codeChunkHeader, chunkID), header)
}

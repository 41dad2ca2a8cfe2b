package logging

import (
	"encoding/hex"

	"github.com/shardlabs/shard-go/model/chunk"
)

// ID returns the raw bytes of an identifier, for use with zerolog's Hex
// field helper.
func ID(id chunk.Identifier) []byte {
	return id[:]
}

// IDs returns the hex representation of a list of identifiers.
func IDs(ids []chunk.Identifier) []string {
	ss := make([]string, 0, len(ids))
	for _, id := range ids {
		ss = append(ss, hex.EncodeToString(id[:]))
	}
	return ss
}

package operation

import (
	"encoding/binary"
	"fmt"

	"github.com/shardlabs/shard-go/model/chunk"
)

const (
	// keyspace prefixes, one per stored entity kind
	codeChunkPart   = 10
	codeChunkHeader = 11
)

// makePrefix builds a composite key from a keyspace code and a sequence of
// fixed-width key parts. Fixed widths keep the lexicographic key order
// aligned with the natural order of the key parts, which the index scans
// rely on.
func makePrefix(code byte, keys ...interface{}) []byte {
	prefix := make([]byte, 1)
	prefix[0] = code
	for _, key := range keys {
		prefix = append(prefix, b(key)...)
	}
	return prefix
}

func b(v interface{}) []byte {
	switch i := v.(type) {
	case chunk.Identifier:
		return i[:]
	case uint16:
		val := make([]byte, 2)
		binary.BigEndian.PutUint16(val, i)
		return val
	case uint64:
		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, i)
		return val
	default:
		panic(fmt.Sprintf("unsupported type to convert to key part (%T)", v))
	}
}

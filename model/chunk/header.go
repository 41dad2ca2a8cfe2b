package chunk

import (
	"fmt"
)

// Header is the metadata committing a chunk to its erasure-coded parts. It
// is produced once by the chunk producer and shared with every participant;
// all part validation happens against the merkle root it carries.
type Header struct {
	// Height is the block height the chunk belongs to.
	Height uint64
	// ShardIndex is the shard the chunk carries data for.
	ShardIndex uint64
	// DataParts is the minimum number of parts needed to reconstruct the
	// chunk payload.
	DataParts uint16
	// TotalParts is the total number of erasure-coded parts, including
	// parity parts.
	TotalParts uint16
	// PayloadSize is the byte length of the original payload, before the
	// erasure codec pads it to equal-size parts.
	PayloadSize uint64
	// PartsRoot is the merkle root committing to all TotalParts encoded
	// parts in index order.
	PartsRoot Identifier
}

// ID returns the chunk identifier, the content hash of the header.
func (h *Header) ID() Identifier {
	return MakeID(h)
}

// Valid checks the structural invariants of the header.
func (h *Header) Valid() error {
	if h.DataParts == 0 {
		return fmt.Errorf("chunk header requires at least one data part")
	}
	if h.DataParts > h.TotalParts {
		return fmt.Errorf("data parts (%d) exceed total parts (%d)", h.DataParts, h.TotalParts)
	}
	return nil
}

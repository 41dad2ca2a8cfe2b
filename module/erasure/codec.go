package erasure

import (
	"bytes"
	"fmt"

	"github.com/klauspost/reedsolomon"

	"github.com/shardlabs/shard-go/model/chunk"
)

// Codec performs Reed-Solomon erasure coding of chunk payloads. A codec is
// parameterized by the chunk's (data, total) part counts and is safe for
// concurrent use. Encoding is deterministic: the same payload and
// parameters always produce the same parts, so any node can re-encode a
// payload and arrive at bit-identical parts for independent verification.
type Codec struct {
	dataParts  int
	totalParts int
	enc        reedsolomon.Encoder
}

// NewCodec creates a codec producing totalParts parts of which any
// dataParts distinct parts suffice to reconstruct the payload.
func NewCodec(dataParts uint16, totalParts uint16) (*Codec, error) {
	if dataParts == 0 {
		return nil, fmt.Errorf("codec requires at least one data part")
	}
	if dataParts > totalParts {
		return nil, fmt.Errorf("data parts (%d) exceed total parts (%d)", dataParts, totalParts)
	}

	enc, err := reedsolomon.New(int(dataParts), int(totalParts-dataParts))
	if err != nil {
		return nil, fmt.Errorf("could not create reed-solomon encoder: %w", err)
	}

	return &Codec{
		dataParts:  int(dataParts),
		totalParts: int(totalParts),
		enc:        enc,
	}, nil
}

// Encode splits the payload into dataParts equal-size shards, zero-padding
// the tail, and extends them with parity shards. It returns all totalParts
// shards in index order.
func (c *Codec) Encode(payload []byte) ([][]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("cannot encode empty payload")
	}

	shards, err := c.enc.Split(payload)
	if err != nil {
		return nil, fmt.Errorf("could not split payload into shards: %w", err)
	}

	err = c.enc.Encode(shards)
	if err != nil {
		return nil, fmt.Errorf("could not compute parity shards: %w", err)
	}

	return shards, nil
}

// Decode reconstructs the original payload from a subset of shards. The
// input must have exactly totalParts entries, with nil entries for missing
// shards. Any dataParts present shards suffice, regardless of which subset
// is supplied; the reconstructed payload is identical for every sufficient
// subset. Decoding with fewer shards fails with InsufficientPartsError.
//
// The input slice is repaired in place, so a repeated call with the same
// (now complete) slice returns the same payload.
func (c *Codec) Decode(chunkID chunk.Identifier, shards [][]byte, payloadSize uint64) ([]byte, error) {
	if len(shards) != c.totalParts {
		return nil, fmt.Errorf("expected %d shard slots, got %d", c.totalParts, len(shards))
	}

	present := 0
	for _, shard := range shards {
		if shard != nil {
			present++
		}
	}
	if present < c.dataParts {
		return nil, chunk.NewInsufficientPartsError(chunkID, present, c.dataParts)
	}

	err := c.enc.Reconstruct(shards)
	if err != nil {
		return nil, fmt.Errorf("could not reconstruct shards: %w", err)
	}

	var payload bytes.Buffer
	err = c.enc.Join(&payload, shards, int(payloadSize))
	if err != nil {
		return nil, fmt.Errorf("could not join shards into payload: %w", err)
	}

	return payload.Bytes(), nil
}

// DataParts returns the minimum number of parts needed to reconstruct.
func (c *Codec) DataParts() uint16 {
	return uint16(c.dataParts)
}

// TotalParts returns the total number of parts produced by Encode.
func (c *Codec) TotalParts() uint16 {
	return uint16(c.totalParts)
}

package unittest

import (
	"crypto/rand"
	"fmt"

	"github.com/shardlabs/shard-go/model/chunk"
	"github.com/shardlabs/shard-go/module/erasure"
	"github.com/shardlabs/shard-go/module/merkle"
)

// IdentifierFixture returns a random identifier.
func IdentifierFixture() chunk.Identifier {
	var id chunk.Identifier
	_, err := rand.Read(id[:])
	if err != nil {
		panic(fmt.Sprintf("could not read random bytes: %v", err))
	}
	return id
}

// IdentifierListFixture returns a list of n random identifiers.
func IdentifierListFixture(n int) chunk.IdentifierList {
	ids := make(chunk.IdentifierList, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, IdentifierFixture())
	}
	return ids
}

// ParticipantFixture returns a participant with a random node ID and unit
// weight.
func ParticipantFixture(opts ...func(*chunk.Participant)) *chunk.Participant {
	participant := &chunk.Participant{
		NodeID: IdentifierFixture(),
		Weight: 1,
	}
	for _, opt := range opts {
		opt(participant)
	}
	return participant
}

func WithNodeID(nodeID chunk.Identifier) func(*chunk.Participant) {
	return func(p *chunk.Participant) {
		p.NodeID = nodeID
	}
}

func WithWeight(weight uint64) func(*chunk.Participant) {
	return func(p *chunk.Participant) {
		p.Weight = weight
	}
}

// ParticipantListFixture returns n participants with random node IDs.
func ParticipantListFixture(n int, opts ...func(*chunk.Participant)) chunk.ParticipantList {
	participants := make(chunk.ParticipantList, 0, n)
	for i := 0; i < n; i++ {
		participants = append(participants, ParticipantFixture(opts...))
	}
	return participants
}

// PayloadFixture returns size random bytes.
func PayloadFixture(size int) []byte {
	payload := make([]byte, size)
	_, err := rand.Read(payload)
	if err != nil {
		panic(fmt.Sprintf("could not read random bytes: %v", err))
	}
	return payload
}

// ChunkFixture erasure-codes a random payload into a full set of proven
// parts and returns the resulting header, parts and payload.
func ChunkFixture(height uint64, shardIndex uint64, dataParts uint16, totalParts uint16, payloadSize int) (*chunk.Header, chunk.PartList, []byte) {
	payload := PayloadFixture(payloadSize)

	codec, err := erasure.NewCodec(dataParts, totalParts)
	if err != nil {
		panic(fmt.Sprintf("could not create codec: %v", err))
	}
	shards, err := codec.Encode(payload)
	if err != nil {
		panic(fmt.Sprintf("could not encode payload: %v", err))
	}
	tree, err := merkle.NewTree(shards)
	if err != nil {
		panic(fmt.Sprintf("could not build proof tree: %v", err))
	}

	header := &chunk.Header{
		Height:      height,
		ShardIndex:  shardIndex,
		DataParts:   dataParts,
		TotalParts:  totalParts,
		PayloadSize: uint64(len(payload)),
		PartsRoot:   chunk.HashToID(tree.Root()),
	}
	chunkID := header.ID()

	parts := make(chunk.PartList, totalParts)
	for i := range shards {
		proof, err := tree.Prove(i)
		if err != nil {
			panic(fmt.Sprintf("could not prove part %d: %v", i, err))
		}
		parts[i] = &chunk.Part{
			ChunkID: chunkID,
			Index:   uint16(i),
			Data:    shards[i],
			Proof:   proof,
		}
	}

	return header, parts, payload
}

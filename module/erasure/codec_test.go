package erasure_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardlabs/shard-go/model/chunk"
	"github.com/shardlabs/shard-go/module/erasure"
	"github.com/shardlabs/shard-go/utils/unittest"
)

func TestNewCodec(t *testing.T) {
	t.Run("valid parameters", func(t *testing.T) {
		codec, err := erasure.NewCodec(4, 12)
		require.NoError(t, err)
		assert.Equal(t, uint16(4), codec.DataParts())
		assert.Equal(t, uint16(12), codec.TotalParts())
	})

	t.Run("zero data parts", func(t *testing.T) {
		_, err := erasure.NewCodec(0, 12)
		require.Error(t, err)
	})

	t.Run("data parts exceeding total", func(t *testing.T) {
		_, err := erasure.NewCodec(13, 12)
		require.Error(t, err)
	})
}

// TestRoundTrip encodes a payload and reconstructs it from the full part
// set.
func TestRoundTrip(t *testing.T) {
	codec, err := erasure.NewCodec(4, 12)
	require.NoError(t, err)

	payload := unittest.PayloadFixture(1024)
	shards, err := codec.Encode(payload)
	require.NoError(t, err)
	require.Len(t, shards, 12)

	decoded, err := codec.Decode(unittest.IdentifierFixture(), shards, uint64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

// TestSubsetInvariance checks that any subset of exactly data_parts shards
// reconstructs the identical payload, regardless of which indices survive.
func TestSubsetInvariance(t *testing.T) {
	const dataParts, totalParts = 3, 7

	codec, err := erasure.NewCodec(dataParts, totalParts)
	require.NoError(t, err)

	payload := unittest.PayloadFixture(500)
	shards, err := codec.Encode(payload)
	require.NoError(t, err)

	subsets := [][]int{
		{0, 1, 2},       // data shards only
		{4, 5, 6},       // parity shards only
		{0, 3, 6},       // mixed
		{1, 2, 5},       // mixed
		{0, 1, 2, 3, 4}, // more than enough
	}
	for _, subset := range subsets {
		available := make([][]byte, totalParts)
		for _, index := range subset {
			available[index] = shards[index]
		}
		decoded, err := codec.Decode(unittest.IdentifierFixture(), available, uint64(len(payload)))
		require.NoError(t, err)
		assert.Equal(t, payload, decoded)
	}
}

func TestDecodeInsufficientParts(t *testing.T) {
	codec, err := erasure.NewCodec(4, 12)
	require.NoError(t, err)

	payload := unittest.PayloadFixture(256)
	shards, err := codec.Encode(payload)
	require.NoError(t, err)

	chunkID := unittest.IdentifierFixture()
	available := make([][]byte, 12)
	available[0] = shards[0]
	available[5] = shards[5]
	available[9] = shards[9]

	_, err = codec.Decode(chunkID, available, uint64(len(payload)))
	require.Error(t, err)
	require.True(t, chunk.IsInsufficientPartsError(err))

	var insufficientErr chunk.InsufficientPartsError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, chunkID, insufficientErr.ChunkID)
	assert.Equal(t, 3, insufficientErr.Have)
	assert.Equal(t, 4, insufficientErr.Need)
}

// TestEncodeDeterminism checks that encoding is a pure function of the
// payload, so all producers of the same chunk derive identical parts.
func TestEncodeDeterminism(t *testing.T) {
	payload := unittest.PayloadFixture(2048)

	first, err := erasure.NewCodec(4, 10)
	require.NoError(t, err)
	second, err := erasure.NewCodec(4, 10)
	require.NoError(t, err)

	shardsA, err := first.Encode(payload)
	require.NoError(t, err)
	shardsB, err := second.Encode(payload)
	require.NoError(t, err)
	assert.Equal(t, shardsA, shardsB)
}

func TestEncodeEmptyPayload(t *testing.T) {
	codec, err := erasure.NewCodec(4, 12)
	require.NoError(t, err)
	_, err = codec.Encode(nil)
	require.Error(t, err)
}

func TestDecodeWrongShardCount(t *testing.T) {
	codec, err := erasure.NewCodec(4, 12)
	require.NoError(t, err)
	_, err = codec.Decode(unittest.IdentifierFixture(), make([][]byte, 5), 10)
	require.Error(t, err)
}

// TestDecodeIdempotent reconstructs the same chunk twice and expects
// identical results both times.
func TestDecodeIdempotent(t *testing.T) {
	codec, err := erasure.NewCodec(2, 5)
	require.NoError(t, err)

	payload := unittest.PayloadFixture(99)
	shards, err := codec.Encode(payload)
	require.NoError(t, err)

	available := make([][]byte, 5)
	available[1] = shards[1]
	available[4] = shards[4]

	chunkID := unittest.IdentifierFixture()
	first, err := codec.Decode(chunkID, available, uint64(len(payload)))
	require.NoError(t, err)
	second, err := codec.Decode(chunkID, available, uint64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, payload, first)
}

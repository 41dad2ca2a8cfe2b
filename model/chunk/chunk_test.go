package chunk_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardlabs/shard-go/model/chunk"
	"github.com/shardlabs/shard-go/utils/unittest"
)

func TestIdentifierHexRoundTrip(t *testing.T) {
	id := unittest.IdentifierFixture()
	decoded, err := chunk.HexStringToIdentifier(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, decoded)

	_, err = chunk.HexStringToIdentifier("zz")
	require.Error(t, err)
}

func TestMakeIDDeterministic(t *testing.T) {
	header, _, _ := unittest.ChunkFixture(7, 2, 2, 5, 100)

	assert.Equal(t, header.ID(), header.ID())

	other := *header
	other.Height = 8
	assert.NotEqual(t, header.ID(), other.ID())
}

func TestHeaderValid(t *testing.T) {
	header, _, _ := unittest.ChunkFixture(1, 0, 3, 9, 64)
	require.NoError(t, header.Valid())

	zeroData := *header
	zeroData.DataParts = 0
	require.Error(t, zeroData.Valid())

	tooMany := *header
	tooMany.DataParts = tooMany.TotalParts + 1
	require.Error(t, tooMany.Valid())
}

func TestPartVerify(t *testing.T) {
	header, parts, _ := unittest.ChunkFixture(3, 1, 4, 12, 512)

	t.Run("valid part", func(t *testing.T) {
		for _, part := range parts {
			require.NoError(t, part.Verify(header.PartsRoot))
		}
	})

	t.Run("tampered data", func(t *testing.T) {
		tampered := *parts[2]
		tampered.Data = append([]byte{}, parts[2].Data...)
		tampered.Data[0] ^= 0xff

		err := tampered.Verify(header.PartsRoot)
		require.Error(t, err)
		require.True(t, chunk.IsInvalidProofError(err))
	})

	t.Run("missing proof", func(t *testing.T) {
		bare := *parts[0]
		bare.Proof = nil
		err := bare.Verify(header.PartsRoot)
		require.Error(t, err)
		require.True(t, chunk.IsInvalidProofError(err))
	})

	t.Run("index mismatch", func(t *testing.T) {
		moved := *parts[1]
		moved.Index = 2
		err := moved.Verify(header.PartsRoot)
		require.Error(t, err)
		require.True(t, chunk.IsInvalidProofError(err))
	})

	t.Run("wrong root", func(t *testing.T) {
		err := parts[0].Verify(unittest.IdentifierFixture())
		require.Error(t, err)
		require.True(t, chunk.IsInvalidProofError(err))
	})
}

func TestErrorTypes(t *testing.T) {
	chunkID := unittest.IdentifierFixture()

	insufficient := chunk.NewInsufficientPartsError(chunkID, 2, 4)
	assert.True(t, chunk.IsInsufficientPartsError(insufficient))
	assert.False(t, chunk.IsInvalidProofError(insufficient))

	invalid := chunk.NewInvalidProofErrorf(chunkID, 3, "broken")
	assert.True(t, chunk.IsInvalidProofError(invalid))
	assert.False(t, chunk.IsInsufficientPartsError(invalid))

	assert.False(t, chunk.IsInsufficientPartsError(errors.New("other")))
}

func TestParticipantListSort(t *testing.T) {
	participants := unittest.ParticipantListFixture(10)
	sorted := participants.Sort()

	// the input list is left untouched
	assert.ElementsMatch(t, participants, sorted)
	nodeIDs := sorted.NodeIDs()
	for i := 1; i < nodeIDs.Len(); i++ {
		assert.True(t, nodeIDs.Less(i-1, i))
	}
}

func TestPartListIndices(t *testing.T) {
	_, parts, _ := unittest.ChunkFixture(1, 0, 2, 4, 32)
	assert.Equal(t, []uint16{0, 1, 2, 3}, parts.Indices())
}

package mempool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardlabs/shard-go/model/messages"
	"github.com/shardlabs/shard-go/module/mempool"
	"github.com/shardlabs/shard-go/utils/unittest"
)

func requestFixture(nonce uint64) *messages.ChunkPartRequest {
	return &messages.ChunkPartRequest{
		ChunkID: unittest.IdentifierFixture(),
		Indices: []uint16{0, 1},
		Nonce:   nonce,
	}
}

func TestRequestQueueFIFO(t *testing.T) {
	queue := mempool.NewRequestQueue(10)
	origin := unittest.IdentifierFixture()

	first := requestFixture(1)
	second := requestFixture(2)
	require.True(t, queue.Push(origin, first))
	require.True(t, queue.Push(origin, second))
	assert.Equal(t, uint(2), queue.Size())

	popped, ok := queue.Pop()
	require.True(t, ok)
	assert.Equal(t, first, popped.Request)
	assert.Equal(t, origin, popped.OriginID)

	popped, ok = queue.Pop()
	require.True(t, ok)
	assert.Equal(t, second, popped.Request)

	_, ok = queue.Pop()
	require.False(t, ok)
}

func TestRequestQueueDeduplicates(t *testing.T) {
	queue := mempool.NewRequestQueue(10)
	origin := unittest.IdentifierFixture()
	request := requestFixture(7)

	require.True(t, queue.Push(origin, request))
	// redelivery of the identical request is suppressed while queued
	require.False(t, queue.Push(origin, request))
	// the same request from a different origin is distinct
	require.True(t, queue.Push(unittest.IdentifierFixture(), request))

	_, ok := queue.Pop()
	require.True(t, ok)
	// once drained, the request may be queued again
	require.True(t, queue.Push(origin, request))
}

func TestRequestQueueLimit(t *testing.T) {
	queue := mempool.NewRequestQueue(2)
	origin := unittest.IdentifierFixture()

	require.True(t, queue.Push(origin, requestFixture(1)))
	require.True(t, queue.Push(origin, requestFixture(2)))
	require.False(t, queue.Push(origin, requestFixture(3)))

	_, ok := queue.Pop()
	require.True(t, ok)
	require.True(t, queue.Push(origin, requestFixture(4)))
}

package mempool

import (
	"sync"

	"github.com/shardlabs/shard-go/model/chunk"
	"github.com/shardlabs/shard-go/model/messages"
)

// InboundRequest pairs an inbound part request with the identity of the
// requester it came from. The origin doubles as the route-back address for
// the response.
type InboundRequest struct {
	OriginID chunk.Identifier
	Request  *messages.ChunkPartRequest
}

// RequestQueue is a bounded FIFO of inbound part requests, drained by the
// provider engine's workers. Duplicate deliveries of the same request (same
// origin, chunk and nonce) are suppressed while the original is still
// queued.
type RequestQueue struct {
	mu    sync.Mutex
	limit uint
	queue []*InboundRequest
	seen  map[chunk.Identifier]struct{}
}

func NewRequestQueue(limit uint) *RequestQueue {
	return &RequestQueue{
		limit: limit,
		seen:  make(map[chunk.Identifier]struct{}),
	}
}

// Push enqueues an inbound request. It returns false when the queue is full
// or an identical request is already queued.
func (q *RequestQueue) Push(originID chunk.Identifier, request *messages.ChunkPartRequest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if uint(len(q.queue)) >= q.limit {
		return false
	}

	id := requestID(originID, request)
	_, dup := q.seen[id]
	if dup {
		return false
	}

	q.seen[id] = struct{}{}
	q.queue = append(q.queue, &InboundRequest{
		OriginID: originID,
		Request:  request,
	})
	return true
}

// Pop dequeues the oldest request. The boolean return indicates whether the
// queue had any request to pop.
func (q *RequestQueue) Pop() (*InboundRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queue) == 0 {
		return nil, false
	}

	head := q.queue[0]
	q.queue = q.queue[1:]
	delete(q.seen, requestID(head.OriginID, head.Request))
	return head, true
}

// Size returns the number of queued requests.
func (q *RequestQueue) Size() uint {
	q.mu.Lock()
	defer q.mu.Unlock()
	return uint(len(q.queue))
}

func requestID(originID chunk.Identifier, request *messages.ChunkPartRequest) chunk.Identifier {
	return chunk.MakeID(struct {
		OriginID chunk.Identifier
		ChunkID  chunk.Identifier
		Nonce    uint64
	}{
		OriginID: originID,
		ChunkID:  request.ChunkID,
		Nonce:    request.Nonce,
	})
}

package requester_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgraph-io/badger/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardlabs/shard-go/engine/provider"
	"github.com/shardlabs/shard-go/engine/requester"
	"github.com/shardlabs/shard-go/model/chunk"
	"github.com/shardlabs/shard-go/model/messages"
	"github.com/shardlabs/shard-go/module"
	"github.com/shardlabs/shard-go/module/assignment"
	"github.com/shardlabs/shard-go/module/irrecoverable"
	"github.com/shardlabs/shard-go/module/local"
	"github.com/shardlabs/shard-go/module/mempool"
	"github.com/shardlabs/shard-go/module/util"
	"github.com/shardlabs/shard-go/network"
	"github.com/shardlabs/shard-go/network/stub"
	"github.com/shardlabs/shard-go/storage"
	badgerstorage "github.com/shardlabs/shard-go/storage/badger"
	"github.com/shardlabs/shard-go/utils/unittest"
)

// consumerMock records completion and unavailability callbacks.
type consumerMock struct {
	mu          sync.Mutex
	completed   map[chunk.Identifier][]byte
	unavailable map[chunk.Identifier]int
}

var _ module.ChunkConsumer = (*consumerMock)(nil)

func newConsumerMock() *consumerMock {
	return &consumerMock{
		completed:   make(map[chunk.Identifier][]byte),
		unavailable: make(map[chunk.Identifier]int),
	}
}

func (c *consumerMock) OnChunkComplete(chunkID chunk.Identifier, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed[chunkID] = payload
}

func (c *consumerMock) OnChunkUnavailable(chunkID chunk.Identifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unavailable[chunkID]++
}

func (c *consumerMock) completedPayload(chunkID chunk.Identifier) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, ok := c.completed[chunkID]
	return payload, ok
}

func (c *consumerMock) unavailableCount(chunkID chunk.Identifier) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unavailable[chunkID]
}

// participantsMock serves a fixed participant set.
type participantsMock struct {
	participants chunk.ParticipantList
}

var _ module.ParticipantsProvider = (*participantsMock)(nil)

func (p *participantsMock) Participants() (chunk.ParticipantList, error) {
	return p.participants, nil
}

// requesterNode bundles one requester-role node of the test network.
type requesterNode struct {
	me       module.Local
	clock    *clock.Mock
	net      *stub.Network
	parts    storage.Parts
	headers  storage.Headers
	pending  *mempool.PartRequests
	consumer *consumerMock
	engine   *requester.Engine
	cancel   context.CancelFunc
}

const testDispatchInterval = 100 * time.Millisecond

func newRequesterNode(t *testing.T, hub *stub.Hub, db *badger.DB, participants chunk.ParticipantList, opts ...requester.Option) *requesterNode {
	nodeID := unittest.IdentifierFixture()
	node := &requesterNode{
		me:       local.New(nodeID),
		clock:    clock.NewMock(),
		net:      stub.NewNetwork(hub, nodeID),
		parts:    badgerstorage.NewParts(db),
		headers:  badgerstorage.NewHeaders(db),
		pending:  mempool.NewPartRequests(),
		consumer: newConsumerMock(),
	}

	all := append(chunk.ParticipantList{{NodeID: nodeID, Weight: 1}}, participants...)
	options := append([]requester.Option{
		requester.WithClock(node.clock),
		requester.WithDispatchInterval(testDispatchInterval),
		requester.WithRetryInterval(time.Second, time.Minute, 2),
	}, opts...)

	eng, err := requester.New(
		zerolog.Nop(),
		node.net,
		node.me,
		&participantsMock{participants: all},
		node.parts,
		node.headers,
		node.pending,
		assignment.NewRoundRobinSelector(nodeID),
		node.consumer,
		options...,
	)
	require.NoError(t, err)
	node.engine = eng
	return node
}

func (n *requesterNode) start(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.engine.Start(irrecoverableCtx(t, ctx))
	unittest.RequireCloseBefore(t, util.AllReady(n.engine), time.Second, "requester engine ready")
}

func (n *requesterNode) stop(t *testing.T) {
	n.cancel()
	unittest.RequireCloseBefore(t, util.AllDone(n.engine), time.Second, "requester engine done")
}

// advance moves the mock clock forward one dispatch interval.
func (n *requesterNode) advance() {
	n.clock.Add(testDispatchInterval)
}

// providerNode bundles one provider-role node of the test network.
type providerNode struct {
	me      module.Local
	net     *stub.Network
	parts   storage.Parts
	headers storage.Headers
	engine  *provider.Engine
	cancel  context.CancelFunc
}

func newProviderNode(t *testing.T, hub *stub.Hub, db *badger.DB, participants func(selfID chunk.Identifier) chunk.ParticipantList) *providerNode {
	nodeID := unittest.IdentifierFixture()
	node := &providerNode{
		me:      local.New(nodeID),
		net:     stub.NewNetwork(hub, nodeID),
		parts:   badgerstorage.NewParts(db),
		headers: badgerstorage.NewHeaders(db),
	}

	eng, err := provider.New(
		zerolog.Nop(),
		node.net,
		node.me,
		&participantsMock{participants: participants(nodeID)},
		node.parts,
		node.headers,
		provider.WithWorkers(1),
		provider.WithProcessInterval(5*time.Millisecond),
	)
	require.NoError(t, err)
	node.engine = eng
	return node
}

func (n *providerNode) start(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.engine.Start(irrecoverableCtx(t, ctx))
	unittest.RequireCloseBefore(t, util.AllReady(n.engine), time.Second, "provider engine ready")
}

func (n *providerNode) stop(t *testing.T) {
	n.cancel()
	unittest.RequireCloseBefore(t, util.AllDone(n.engine), time.Second, "provider engine done")
}

func seedChunk(t *testing.T, parts storage.Parts, headers storage.Headers, header *chunk.Header, chunkParts chunk.PartList) {
	require.NoError(t, headers.Store(header))
	for _, part := range chunkParts {
		require.NoError(t, parts.Store(part))
	}
}

// TestRequestAndComplete runs the full request/response round trip: the
// requester dispatches part requests to a provider holding the chunk, stores
// the returned parts, reconstructs the payload and surfaces it exactly once.
func TestRequestAndComplete(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(reqDB *badger.DB) {
		unittest.RunWithBadgerDB(t, func(provDB *badger.DB) {
			hub := stub.NewHub()

			prov := newProviderNode(t, hub, provDB, func(selfID chunk.Identifier) chunk.ParticipantList {
				return chunk.ParticipantList{{NodeID: selfID, Weight: 1}}
			})
			req := newRequesterNode(t, hub, reqDB,
				chunk.ParticipantList{{NodeID: prov.me.NodeID(), Weight: 1}},
				requester.WithRetryAttempts(100),
			)

			header, parts, payload := unittest.ChunkFixture(10, 1, 2, 4, 777)
			seedChunk(t, prov.parts, prov.headers, header, parts)

			prov.start(t)
			defer prov.stop(t)
			req.start(t)
			defer req.stop(t)

			require.NoError(t, req.engine.RequestParts(header, []uint16{0, 1, 2, 3}))

			chunkID := header.ID()
			require.Eventually(t, func() bool {
				req.advance()
				_, done := req.consumer.completedPayload(chunkID)
				return done
			}, 5*time.Second, 10*time.Millisecond)

			got, _ := req.consumer.completedPayload(chunkID)
			assert.Equal(t, payload, got)
			assert.Equal(t, uint(0), req.pending.Size())
			assert.Equal(t, 0, req.consumer.unavailableCount(chunkID))

			// all parts ended up durable on the requester side
			indices, err := req.parts.IndicesByChunk(chunkID)
			require.NoError(t, err)
			assert.Len(t, indices, 4)
		})
	})
}

// TestAbandonAfterRetries blocks the only provider and expects the chunk to
// be reported unavailable exactly once after the attempt ceiling.
func TestAbandonAfterRetries(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(reqDB *badger.DB) {
		hub := stub.NewHub()

		silent := unittest.ParticipantFixture()
		hub.Block(silent.NodeID)

		req := newRequesterNode(t, hub, reqDB,
			chunk.ParticipantList{silent},
			requester.WithRetryAttempts(2),
			requester.WithRetryInterval(10*time.Millisecond, 50*time.Millisecond, 2),
		)
		req.start(t)
		defer req.stop(t)

		header, _, _ := unittest.ChunkFixture(3, 0, 2, 4, 100)
		require.NoError(t, req.engine.RequestParts(header, []uint16{0, 1}))

		chunkID := header.ID()
		require.Eventually(t, func() bool {
			req.advance()
			return req.consumer.unavailableCount(chunkID) > 0
		}, 5*time.Second, 10*time.Millisecond)

		// the notification fired once and the entry is gone
		assert.Equal(t, 1, req.consumer.unavailableCount(chunkID))
		assert.Equal(t, uint(0), req.pending.Size())

		// further dispatch rounds must not notify again
		for i := 0; i < 20; i++ {
			req.advance()
		}
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, 1, req.consumer.unavailableCount(chunkID))

		_, done := req.consumer.completedPayload(chunkID)
		assert.False(t, done)
	})
}

// TestCompleteFromLocalParts covers the restart path: when the part store
// already holds enough parts, registering the need reconstructs immediately
// without touching the network.
func TestCompleteFromLocalParts(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(reqDB *badger.DB) {
		hub := stub.NewHub()
		req := newRequesterNode(t, hub, reqDB, unittest.ParticipantListFixture(2))

		header, parts, payload := unittest.ChunkFixture(4, 0, 2, 4, 300)
		seedChunk(t, req.parts, req.headers, header, chunk.PartList{parts[1], parts[3]})

		require.NoError(t, req.engine.RequestParts(header, []uint16{1, 3}))

		got, done := req.consumer.completedPayload(header.ID())
		require.True(t, done)
		assert.Equal(t, payload, got)
		assert.Equal(t, uint(0), req.pending.Size())
	})
}

// TestRequestPartsMergesIndices registers additional missing indices of a
// chunk that is already being tracked and expects them to join the pending
// set rather than being dropped, so they are requested and can complete the
// chunk.
func TestRequestPartsMergesIndices(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(reqDB *badger.DB) {
		unittest.RunWithBadgerDB(t, func(provDB *badger.DB) {
			hub := stub.NewHub()

			prov := newProviderNode(t, hub, provDB, func(selfID chunk.Identifier) chunk.ParticipantList {
				return chunk.ParticipantList{{NodeID: selfID, Weight: 1}}
			})
			req := newRequesterNode(t, hub, reqDB,
				chunk.ParticipantList{{NodeID: prov.me.NodeID(), Weight: 1}},
				requester.WithRetryAttempts(100),
			)

			header, parts, payload := unittest.ChunkFixture(11, 0, 2, 4, 500)
			chunkID := header.ID()
			seedChunk(t, prov.parts, prov.headers, header, parts)

			require.NoError(t, req.engine.RequestParts(header, []uint16{0}))
			require.NoError(t, req.engine.RequestParts(header, []uint16{1}))

			// both registrations are tracked under a single pending entry
			status, ok := req.pending.Get(chunkID)
			require.True(t, ok)
			assert.ElementsMatch(t, []uint16{0, 1}, status.RemainingIndices())
			assert.Equal(t, uint(1), req.pending.Size())

			prov.start(t)
			defer prov.stop(t)
			req.start(t)
			defer req.stop(t)

			require.Eventually(t, func() bool {
				req.advance()
				_, done := req.consumer.completedPayload(chunkID)
				return done
			}, 5*time.Second, 10*time.Millisecond)

			got, _ := req.consumer.completedPayload(chunkID)
			assert.Equal(t, payload, got)

			// the late-registered index was requested and stored too
			indices, err := req.parts.IndicesByChunk(chunkID)
			require.NoError(t, err)
			assert.Equal(t, []uint16{0, 1}, indices)
		})
	})
}

// TestRejectsCorruptParts registers a malicious peer that serves tampered
// parts and checks that nothing is stored and the request keeps pending.
func TestRejectsCorruptParts(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(reqDB *badger.DB) {
		hub := stub.NewHub()

		header, parts, _ := unittest.ChunkFixture(5, 0, 2, 4, 200)
		chunkID := header.ID()

		// malicious node responding with corrupted part data
		evilID := unittest.IdentifierFixture()
		evilNet := stub.NewNetwork(hub, evilID)
		var evilCon network.Conduit
		con, err := evilNet.Register(network.ProvideChunkParts, processorFunc(func(channel network.Channel, originID chunk.Identifier, event interface{}) error {
			request, ok := event.(*messages.ChunkPartRequest)
			if !ok {
				return nil
			}
			tampered := *parts[request.Indices[0]]
			tampered.Data = append([]byte{}, tampered.Data...)
			tampered.Data[0] ^= 0xff
			return evilCon.Unicast(&messages.ChunkPartResponse{
				ChunkID: request.ChunkID,
				Parts:   chunk.PartList{&tampered},
				Nonce:   request.Nonce,
			}, originID)
		}))
		require.NoError(t, err)
		evilCon = con

		req := newRequesterNode(t, hub, reqDB,
			chunk.ParticipantList{{NodeID: evilID, Weight: 1}},
			requester.WithRetryAttempts(100),
		)
		req.start(t)
		defer req.stop(t)

		require.NoError(t, req.engine.RequestParts(header, []uint16{0, 1}))

		// let several dispatch and response rounds happen
		require.Eventually(t, func() bool {
			req.advance()
			status, ok := req.pending.Get(chunkID)
			return ok && status.Attempts >= 2
		}, 5*time.Second, 10*time.Millisecond)

		// corrupt parts never reached the store and the need is still open
		indices, err := req.parts.IndicesByChunk(chunkID)
		require.NoError(t, err)
		assert.Empty(t, indices)

		status, ok := req.pending.Get(chunkID)
		require.True(t, ok)
		assert.ElementsMatch(t, []uint16{0, 1}, status.RemainingIndices())
	})
}

// TestDuplicateResponsesAreNoOps delivers the same valid response several
// times and expects a single completion with no errors.
func TestDuplicateResponsesAreNoOps(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(reqDB *badger.DB) {
		hub := stub.NewHub()
		req := newRequesterNode(t, hub, reqDB, unittest.ParticipantListFixture(2))

		header, parts, payload := unittest.ChunkFixture(6, 0, 2, 4, 150)
		chunkID := header.ID()
		require.NoError(t, req.engine.RequestParts(header, []uint16{0, 1, 2, 3}))

		origin := unittest.IdentifierFixture()
		response := &messages.ChunkPartResponse{
			ChunkID: chunkID,
			Parts:   chunk.PartList{parts[0], parts[2]},
			Nonce:   42,
		}
		for i := 0; i < 3; i++ {
			require.NoError(t, req.engine.Process(network.RequestChunkParts, origin, response))
		}

		got, done := req.consumer.completedPayload(chunkID)
		require.True(t, done)
		assert.Equal(t, payload, got)
		assert.Equal(t, uint(0), req.pending.Size())

		indices, err := req.parts.IndicesByChunk(chunkID)
		require.NoError(t, err)
		assert.Equal(t, []uint16{0, 2}, indices)
	})
}

// TestDropsResponseForUnknownChunk checks that a response without a stored
// header is dropped without effect.
func TestDropsResponseForUnknownChunk(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(reqDB *badger.DB) {
		hub := stub.NewHub()
		req := newRequesterNode(t, hub, reqDB, unittest.ParticipantListFixture(2))

		_, parts, _ := unittest.ChunkFixture(7, 0, 2, 4, 100)
		response := &messages.ChunkPartResponse{
			ChunkID: parts[0].ChunkID,
			Parts:   chunk.PartList{parts[0]},
		}
		require.NoError(t, req.engine.Process(network.RequestChunkParts, unittest.IdentifierFixture(), response))

		indices, err := req.parts.IndicesByChunk(parts[0].ChunkID)
		require.NoError(t, err)
		assert.Empty(t, indices)
	})
}

// TestMissingIndicesRequalify checks that an explicit miss report clears
// the retry backoff, so the next dispatch round retries immediately.
func TestMissingIndicesRequalify(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(reqDB *badger.DB) {
		hub := stub.NewHub()
		req := newRequesterNode(t, hub, reqDB, unittest.ParticipantListFixture(2),
			requester.WithRetryInterval(time.Hour, time.Hour, 2),
		)

		header, _, _ := unittest.ChunkFixture(8, 0, 2, 4, 100)
		chunkID := header.ID()
		require.NoError(t, req.engine.RequestParts(header, []uint16{0, 1}))

		now := req.clock.Now()
		_, _, ok := req.pending.UpdateRequestHistory(chunkID, now, mempool.ExponentialUpdater(2, time.Hour, time.Hour))
		require.True(t, ok)

		status, ok := req.pending.Get(chunkID)
		require.True(t, ok)
		require.False(t, mempool.RetryAfterQualifier(now, status))

		response := &messages.ChunkPartResponse{
			ChunkID:        chunkID,
			MissingIndices: []uint16{0, 1},
		}
		require.NoError(t, req.engine.Process(network.RequestChunkParts, unittest.IdentifierFixture(), response))

		status, ok = req.pending.Get(chunkID)
		require.True(t, ok)
		assert.True(t, mempool.RetryAfterQualifier(now, status))
	})
}

func TestRequestPartsValidation(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(reqDB *badger.DB) {
		hub := stub.NewHub()
		req := newRequesterNode(t, hub, reqDB, unittest.ParticipantListFixture(2))

		header, _, _ := unittest.ChunkFixture(9, 0, 2, 4, 100)

		t.Run("index out of range", func(t *testing.T) {
			require.Error(t, req.engine.RequestParts(header, []uint16{4}))
		})

		t.Run("invalid header", func(t *testing.T) {
			broken := *header
			broken.DataParts = 0
			require.Error(t, req.engine.RequestParts(&broken, []uint16{0}))
		})

		t.Run("invalid event type", func(t *testing.T) {
			err := req.engine.Process(network.RequestChunkParts, unittest.IdentifierFixture(), "bogus")
			require.Error(t, err)
		})
	})
}

func irrecoverableCtx(t *testing.T, ctx context.Context) irrecoverable.SignalerContext {
	return irrecoverable.NewMockSignalerContext(t, ctx)
}

// processorFunc adapts a function to the message processor interface.
type processorFunc func(network.Channel, chunk.Identifier, interface{}) error

func (f processorFunc) Process(channel network.Channel, originID chunk.Identifier, event interface{}) error {
	return f(channel, originID, event)
}

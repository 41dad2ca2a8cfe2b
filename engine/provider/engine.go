package provider

import (
	"errors"
	"fmt"

	"github.com/gammazero/workerpool"
	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"

	"github.com/shardlabs/shard-go/model/chunk"
	"github.com/shardlabs/shard-go/model/messages"
	"github.com/shardlabs/shard-go/module"
	"github.com/shardlabs/shard-go/module/assignment"
	"github.com/shardlabs/shard-go/module/component"
	"github.com/shardlabs/shard-go/module/erasure"
	"github.com/shardlabs/shard-go/module/irrecoverable"
	"github.com/shardlabs/shard-go/module/mempool"
	"github.com/shardlabs/shard-go/module/merkle"
	"github.com/shardlabs/shard-go/network"
	"github.com/shardlabs/shard-go/storage"
	"github.com/shardlabs/shard-go/utils/logging"
)

// An Engine serves chunk parts to other participants: it answers inbound
// part requests from the durable part store, accepts pushed parts for which
// this node is the assigned owner, and, on the producer side, erasure-codes
// freshly produced chunk payloads and seeds each part to its owner.
//
// Inbound requests are deduplicated and queued, then drained by a fixed
// number of workers so a request burst cannot monopolize the node.
type Engine struct {
	component.Component

	log          zerolog.Logger
	cfg          Config
	me           module.Local
	participants module.ParticipantsProvider
	parts        storage.Parts
	headers      storage.Headers
	requests     *mempool.RequestQueue
	chunksCon    network.Conduit
	pushCon      network.Conduit
}

var _ network.MessageProcessor = (*Engine)(nil)

func New(
	log zerolog.Logger,
	net network.Network,
	me module.Local,
	participants module.ParticipantsProvider,
	parts storage.Parts,
	headers storage.Headers,
	options ...Option,
) (*Engine, error) {

	cfg := DefaultConfig()
	for _, option := range options {
		option(&cfg)
	}

	e := &Engine{
		log:          log.With().Str("engine", "part_provider").Logger(),
		cfg:          cfg,
		me:           me,
		participants: participants,
		parts:        parts,
		headers:      headers,
		requests:     mempool.NewRequestQueue(cfg.QueueLimit),
	}

	chunksCon, err := net.Register(network.ProvideChunkParts, e)
	if err != nil {
		return nil, fmt.Errorf("could not register part provider engine: %w", err)
	}
	e.chunksCon = chunksCon

	pushCon, err := net.Register(network.PushChunkParts, e)
	if err != nil {
		return nil, fmt.Errorf("could not register for part pushes: %w", err)
	}
	e.pushCon = pushCon

	builder := component.NewComponentManagerBuilder()
	for i := uint(0); i < cfg.Workers; i++ {
		builder.AddWorker(e.processQueuedRequests)
	}
	e.Component = builder.Build()

	return e, nil
}

// Process enqueues inbound part requests for the worker pool and handles
// part pushes inline.
func (e *Engine) Process(channel network.Channel, originID chunk.Identifier, event interface{}) error {
	switch ev := event.(type) {
	case *messages.ChunkPartRequest:
		pushed := e.requests.Push(originID, ev)
		if !pushed {
			e.log.Debug().
				Hex("chunk_id", logging.ID(ev.ChunkID)).
				Hex("origin_id", logging.ID(originID)).
				Msg("dropping duplicate or overflowing part request")
		}
		return nil
	case *messages.ChunkPartPush:
		return e.onChunkPartPush(originID, ev)
	default:
		return fmt.Errorf("invalid event type (%T)", event)
	}
}

// processQueuedRequests is a worker routine draining the inbound request
// queue.
func (e *Engine) processQueuedRequests(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()

	ticker := e.cfg.Clock.Ticker(e.cfg.ProcessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				request, ok := e.requests.Pop()
				if !ok {
					break
				}
				e.onChunkPartRequest(request)
			}
		}
	}
}

// onChunkPartRequest serves a single queued request from the part store.
// Held parts are returned with their proofs; requested parts this node is
// the assigned owner of but does not hold are reported back explicitly as
// missing, so the requester can move to an alternate owner without waiting
// out its timeout. Indices that are neither held nor owned are silently
// omitted.
func (e *Engine) onChunkPartRequest(request *mempool.InboundRequest) {
	chunkID := request.Request.ChunkID
	lg := e.log.With().
		Hex("chunk_id", logging.ID(chunkID)).
		Hex("origin_id", logging.ID(request.OriginID)).
		Logger()

	response := &messages.ChunkPartResponse{
		ChunkID: chunkID,
		Nonce:   request.Request.Nonce,
	}

	seen := make(map[uint16]struct{}, len(request.Request.Indices))
	for _, index := range request.Request.Indices {
		if _, dup := seen[index]; dup {
			continue
		}
		seen[index] = struct{}{}

		part, err := e.parts.ByChunkPart(chunkID, index)
		if err == nil {
			response.Parts = append(response.Parts, part)
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			lg.Error().Err(err).Uint16("part_index", index).Msg("could not look up part")
			continue
		}

		if e.isAssignedOwner(chunkID, index) {
			response.MissingIndices = append(response.MissingIndices, index)
		}
	}

	if len(response.Parts) == 0 && len(response.MissingIndices) == 0 {
		lg.Debug().Msg("nothing to serve for part request")
		return
	}

	err := e.chunksCon.Unicast(response, request.OriginID)
	if err != nil {
		lg.Warn().Err(err).Msg("could not send part response")
		return
	}

	lg.Debug().
		Int("parts", len(response.Parts)).
		Int("missing", len(response.MissingIndices)).
		Msg("part response sent")
}

func (e *Engine) isAssignedOwner(chunkID chunk.Identifier, index uint16) bool {
	participants, err := e.participants.Participants()
	if err != nil {
		e.log.Warn().Err(err).Msg("could not get participants for ownership check")
		return false
	}
	owner, err := assignment.OwnerOf(chunkID, index, participants)
	if err != nil {
		e.log.Warn().Err(err).Msg("could not derive part owner")
		return false
	}
	return owner.NodeID == e.me.NodeID()
}

// onChunkPartPush stores parts seeded by a chunk producer. The pushed
// header commits the root every part is validated against; parts failing
// validation are dropped individually.
func (e *Engine) onChunkPartPush(originID chunk.Identifier, push *messages.ChunkPartPush) error {
	if push.Header == nil {
		return fmt.Errorf("part push without chunk header")
	}
	err := push.Header.Valid()
	if err != nil {
		return fmt.Errorf("part push with invalid chunk header: %w", err)
	}

	chunkID := push.Header.ID()
	lg := e.log.With().
		Hex("chunk_id", logging.ID(chunkID)).
		Hex("origin_id", logging.ID(originID)).
		Logger()

	err = e.headers.Store(push.Header)
	if err != nil {
		return fmt.Errorf("could not store pushed chunk header: %w", err)
	}

	stored := 0
	for _, part := range push.Parts {
		if part.ChunkID != chunkID {
			lg.Warn().Uint16("part_index", part.Index).Msg("dropping pushed part of foreign chunk")
			continue
		}
		// the proof tree is padded to a power of two, so padding leaves
		// beyond TotalParts verify against the root and must be rejected
		// by index before the proof check
		if part.Index >= push.Header.TotalParts {
			lg.Warn().Uint16("part_index", part.Index).Msg("dropping pushed part with out-of-range index")
			continue
		}
		err = part.Verify(push.Header.PartsRoot)
		if err != nil {
			lg.Warn().Err(err).Uint16("part_index", part.Index).Msg("dropping pushed part with invalid proof")
			continue
		}
		err = e.parts.Store(part)
		if errors.Is(err, storage.ErrDataMismatch) {
			lg.Error().Err(err).Uint16("part_index", part.Index).Msg("conflicting pushed part rejected")
			continue
		}
		if err != nil {
			return fmt.Errorf("could not store pushed part %d: %w", part.Index, err)
		}
		stored++
	}

	lg.Debug().Int("parts_stored", stored).Msg("part push processed")
	return nil
}

// DistributeChunk erasure-codes a freshly produced chunk payload, commits
// to the parts with a proof tree, stores header and all parts locally, and
// pushes each remote part to its assigned owner. The producer keeps every
// part so it can serve any of them until owners have caught up.
//
// The returned header identifies the chunk and carries the committed parts
// root.
func (e *Engine) DistributeChunk(payload []byte, height uint64, shardIndex uint64, dataParts uint16, totalParts uint16, participants chunk.ParticipantList) (*chunk.Header, error) {
	codec, err := erasure.NewCodec(dataParts, totalParts)
	if err != nil {
		return nil, fmt.Errorf("could not create codec: %w", err)
	}

	shards, err := codec.Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("could not encode payload: %w", err)
	}

	tree, err := merkle.NewTree(shards)
	if err != nil {
		return nil, fmt.Errorf("could not build proof tree: %w", err)
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

	err = e.headers.Store(header)
	if err != nil {
		return nil, fmt.Errorf("could not store chunk header: %w", err)
	}

	parts := make(chunk.PartList, totalParts)
	for i := range shards {
		proof, err := tree.Prove(i)
		if err != nil {
			return nil, fmt.Errorf("could not prove part %d: %w", i, err)
		}
		parts[i] = &chunk.Part{
			ChunkID: chunkID,
			Index:   uint16(i),
			Data:    shards[i],
			Proof:   proof,
		}
	}
	for _, part := range parts {
		err = e.parts.Store(part)
		if err != nil {
			return nil, fmt.Errorf("could not store own part %d: %w", part.Index, err)
		}
	}

	byOwner := make(map[chunk.Identifier]chunk.PartList)
	for _, part := range parts {
		owner, err := assignment.OwnerOf(chunkID, part.Index, participants)
		if err != nil {
			return nil, fmt.Errorf("could not derive owner of part %d: %w", part.Index, err)
		}
		if owner.NodeID == e.me.NodeID() {
			continue
		}
		byOwner[owner.NodeID] = append(byOwner[owner.NodeID], part)
	}

	lg := e.log.With().
		Hex("chunk_id", logging.ID(chunkID)).
		Uint64("height", height).
		Uint64("shard_index", shardIndex).
		Logger()

	pool := workerpool.New(e.cfg.PushWorkers)
	for ownerID, ownerParts := range byOwner {
		ownerID, ownerParts := ownerID, ownerParts
		pool.Submit(func() {
			push := &messages.ChunkPartPush{
				Header: header,
				Parts:  ownerParts,
				Nonce:  rand.Uint64(),
			}
			err := e.pushCon.Unicast(push, ownerID)
			if err != nil {
				// owners that miss the push will be served on request
				lg.Warn().Err(err).Hex("target_id", logging.ID(ownerID)).Msg("could not push parts to owner")
			}
		})
	}
	pool.StopWait()

	lg.Info().Int("owners", len(byOwner)).Msg("chunk distributed")
	return header, nil
}

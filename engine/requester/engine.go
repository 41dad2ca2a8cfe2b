package requester

import (
	"errors"
	"fmt"
	"sort"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru"
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
	"github.com/shardlabs/shard-go/network"
	"github.com/shardlabs/shard-go/storage"
	"github.com/shardlabs/shard-go/utils/logging"
)

// Engine tracks the chunk parts this node is missing, requests them from
// their deterministically assigned owners, retries with backoff against
// alternate owners, and reconstructs chunk payloads once enough valid parts
// have been collected.
//
// The engine's request state lives purely in memory and is rebuilt from
// scratch after a restart; all durable guarantees derive from the part
// store. Inbound responses are reconciled idempotently against the store,
// so duplicated, reordered or late responses are harmless.
type Engine struct {
	component.Component

	log          zerolog.Logger
	cfg          Config
	me           module.Local
	clock        clock.Clock
	con          network.Conduit
	pending      *mempool.PartRequests
	parts        storage.Parts
	headers      storage.Headers
	participants module.ParticipantsProvider
	selector     assignment.TargetSelector
	consumer     module.ChunkConsumer
	completed    *lru.Cache // chunks already reconstructed and surfaced
}

var _ network.MessageProcessor = (*Engine)(nil)

func New(
	log zerolog.Logger,
	net network.Network,
	me module.Local,
	participants module.ParticipantsProvider,
	parts storage.Parts,
	headers storage.Headers,
	pending *mempool.PartRequests,
	selector assignment.TargetSelector,
	consumer module.ChunkConsumer,
	options ...Option,
) (*Engine, error) {

	cfg := DefaultConfig()
	for _, option := range options {
		option(&cfg)
	}

	completed, err := lru.New(cfg.CompletedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("could not create completed chunk cache: %w", err)
	}

	e := &Engine{
		log:          log.With().Str("engine", "part_requester").Logger(),
		cfg:          cfg,
		me:           me,
		clock:        cfg.Clock,
		pending:      pending,
		parts:        parts,
		headers:      headers,
		participants: participants,
		selector:     selector,
		consumer:     consumer,
		completed:    completed,
	}

	con, err := net.Register(network.RequestChunkParts, e)
	if err != nil {
		return nil, fmt.Errorf("could not register part requester engine: %w", err)
	}
	e.con = con

	e.Component = component.NewComponentManagerBuilder().
		AddWorker(e.dispatchWorker).
		Build()

	return e, nil
}

// RequestParts registers the given part indices of a chunk as needed and
// absent locally. Indices already held in the part store are skipped; if
// the store already holds enough parts, reconstruction is triggered right
// away and no request is tracked. Re-registering a chunk that is already
// tracked is a no-op, and re-registering an abandoned chunk starts it over
// from scratch.
func (e *Engine) RequestParts(header *chunk.Header, indices []uint16) error {
	err := header.Valid()
	if err != nil {
		return fmt.Errorf("invalid chunk header: %w", err)
	}

	chunkID := header.ID()
	for _, index := range indices {
		if index >= header.TotalParts {
			return fmt.Errorf("part index %d out of range [0, %d)", index, header.TotalParts)
		}
	}

	// the header carries the committed root every later response is
	// validated against, so it must hit durable storage before the first
	// request goes out
	err = e.headers.Store(header)
	if err != nil {
		return fmt.Errorf("could not store chunk header: %w", err)
	}

	if e.completed.Contains(chunkID) {
		return nil
	}

	held, err := e.parts.IndicesByChunk(chunkID)
	if err != nil {
		return fmt.Errorf("could not check held parts: %w", err)
	}
	heldLookup := make(map[uint16]struct{}, len(held))
	for _, index := range held {
		heldLookup[index] = struct{}{}
	}

	missing := make([]uint16, 0, len(indices))
	seen := make(map[uint16]struct{}, len(indices))
	for _, index := range indices {
		if _, dup := seen[index]; dup {
			continue
		}
		seen[index] = struct{}{}
		if _, ok := heldLookup[index]; ok {
			continue
		}
		missing = append(missing, index)
	}

	if len(missing) == 0 {
		// everything requested is already on disk; the chunk may even be
		// reconstructible without any network round trip
		e.tryComplete(header)
		return nil
	}

	// merge into any status already tracking this chunk, so indices that
	// become needed while others are in flight still get requested
	added := e.pending.AddIndices(header, missing)
	e.log.Debug().
		Hex("chunk_id", logging.ID(chunkID)).
		Uints16("missing", missing).
		Uint("added", added).
		Msg("part request registered")

	return nil
}

// dispatchWorker periodically walks all pending requests and dispatches
// those that qualify for a (re)try. Run as a single worker, so there are
// never two dispatch rounds in flight at once.
func (e *Engine) dispatchWorker(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()

	ticker := e.clock.Ticker(e.cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.dispatchRequests()
		}
	}
}

func (e *Engine) dispatchRequests() {
	now := e.clock.Now()

	participants, err := e.participants.Participants()
	if err != nil {
		e.log.Warn().Err(err).Msg("could not get participants, skipping dispatch round")
		return
	}

	for _, status := range e.pending.All() {
		if !mempool.RetryAfterQualifier(now, status) {
			continue
		}

		lg := e.log.With().
			Hex("chunk_id", logging.ID(status.ChunkID)).
			Uint64("attempts", status.Attempts).
			Logger()

		if status.Attempts >= e.cfg.RetryAttempts {
			// only the single goroutine that removes the entry notifies,
			// so the chain layer hears about each abandonment exactly once
			if e.pending.Remove(status.ChunkID) {
				lg.Warn().Msg("retry ceiling exceeded, abandoning part request")
				e.consumer.OnChunkUnavailable(status.ChunkID)
			}
			continue
		}

		attempts, retryAfter, ok := e.pending.UpdateRequestHistory(status.ChunkID, now,
			mempool.ExponentialUpdater(e.cfg.RetryMultiplier, e.cfg.RetryMaximum, e.cfg.RetryMinimum))
		if !ok {
			// raced with completion or abandonment
			continue
		}

		e.dispatchChunkRequest(lg, status, participants, attempts)

		lg.Debug().
			Uint64("next_attempt", attempts).
			Dur("retry_after", retryAfter).
			Msg("part request dispatched")
	}
}

// dispatchChunkRequest sends one request per distinct target owner for the
// chunk's still-missing indices. The target for each index moves along the
// deterministic candidate ring as attempts increase, so timeouts and
// invalid replies steer the request towards alternate owners.
func (e *Engine) dispatchChunkRequest(lg zerolog.Logger, status *mempool.PartRequestStatus, participants chunk.ParticipantList, attempts uint64) {
	targets := make(map[chunk.Identifier][]uint16)
	for _, index := range status.RemainingIndices() {
		target, err := e.selector.Target(status.ChunkID, index, participants, attempts-1)
		if err != nil {
			lg.Warn().Err(err).Uint16("part_index", index).Msg("could not select target for part")
			continue
		}
		targets[target.NodeID] = append(targets[target.NodeID], index)
	}

	for targetID, indices := range targets {
		sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

		req := &messages.ChunkPartRequest{
			ChunkID: status.ChunkID,
			Indices: indices,
			Nonce:   rand.Uint64(),
		}
		err := e.con.Unicast(req, targetID)
		if err != nil {
			// the network is unreliable anyway, the next round retries
			lg.Warn().Err(err).Hex("target_id", logging.ID(targetID)).Msg("could not send part request")
		}
	}
}

// Process handles inbound events from the network. It must be safe to call
// at any time, including immediately after a restart before any request has
// been issued.
func (e *Engine) Process(channel network.Channel, originID chunk.Identifier, event interface{}) error {
	switch ev := event.(type) {
	case *messages.ChunkPartResponse:
		return e.onChunkPartResponse(originID, ev)
	default:
		return fmt.Errorf("invalid event type (%T)", event)
	}
}

// onChunkPartResponse reconciles a response against durable state: every
// carried part is proof-checked against the stored chunk header and written
// to the part store, whether or not a matching pending request still
// exists. Responses for already-satisfied indices are no-ops.
func (e *Engine) onChunkPartResponse(originID chunk.Identifier, response *messages.ChunkPartResponse) error {
	lg := e.log.With().
		Hex("chunk_id", logging.ID(response.ChunkID)).
		Hex("origin_id", logging.ID(originID)).
		Logger()

	header, err := e.headers.ByChunkID(response.ChunkID)
	if errors.Is(err, storage.ErrNotFound) {
		// without a committed root the parts cannot be validated
		lg.Debug().Msg("response for unknown chunk dropped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not look up chunk header: %w", err)
	}

	var result *multierror.Error
	accepted := 0
	for _, part := range response.Parts {
		if part.ChunkID != response.ChunkID {
			result = multierror.Append(result, fmt.Errorf("response carries part of foreign chunk %s", part.ChunkID))
			continue
		}
		if part.Index >= header.TotalParts {
			result = multierror.Append(result, fmt.Errorf("part index %d out of range [0, %d)", part.Index, header.TotalParts))
			continue
		}

		err = part.Verify(header.PartsRoot)
		if err != nil {
			// corrupt part: drop it without advancing the tracker, so a
			// retry against an alternate owner is eventually issued
			lg.Warn().Err(err).Uint16("part_index", part.Index).Msg("dropping part with invalid proof")
			result = multierror.Append(result, err)
			continue
		}

		err = e.parts.Store(part)
		if errors.Is(err, storage.ErrDataMismatch) {
			// either a bug or a malicious equivocation; it must never be
			// silently accepted, but it must not bring the node down either
			lg.Error().Err(err).Uint16("part_index", part.Index).Msg("conflicting part rejected")
			result = multierror.Append(result, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("could not store part %d: %w", part.Index, err)
		}

		accepted++
		_ = e.pending.MarkSatisfied(response.ChunkID, part.Index)
	}

	if len(response.MissingIndices) > 0 {
		// the owner told us outright it lacks these parts; requalify the
		// request so the next dispatch round tries an alternate owner
		// without waiting out the timeout
		requalified := e.pending.RequalifyNow(response.ChunkID)
		lg.Debug().
			Uints16("missing", response.MissingIndices).
			Bool("requalified", requalified).
			Msg("owner reported parts as unavailable")
	}

	if accepted > 0 {
		e.tryComplete(header)
	}

	return result.ErrorOrNil()
}

// tryComplete reconstructs the chunk payload and surfaces it to the chain
// layer if the part store holds enough parts. The completion callback fires
// exactly once per chunk, no matter how many responses race here, and an
// in-flight reconstruction is never cancelled by a concurrent abandonment.
func (e *Engine) tryComplete(header *chunk.Header) {
	chunkID := header.ID()
	if e.completed.Contains(chunkID) {
		return
	}

	lg := e.log.With().Hex("chunk_id", logging.ID(chunkID)).Logger()

	indices, err := e.parts.IndicesByChunk(chunkID)
	if err != nil {
		lg.Error().Err(err).Msg("could not check held parts for completion")
		return
	}
	if len(indices) < int(header.DataParts) {
		// insufficient parts is the normal case, simply wait for more
		return
	}

	codec, err := erasure.NewCodec(header.DataParts, header.TotalParts)
	if err != nil {
		lg.Error().Err(err).Msg("could not create codec for reconstruction")
		return
	}

	shards := make([][]byte, header.TotalParts)
	for _, index := range indices {
		if index >= header.TotalParts {
			lg.Warn().Uint16("part_index", index).Msg("ignoring stored part with out-of-range index")
			continue
		}
		part, err := e.parts.ByChunkPart(chunkID, index)
		if err != nil {
			lg.Error().Err(err).Uint16("part_index", index).Msg("could not load held part")
			return
		}
		shards[index] = part.Data
	}

	payload, err := codec.Decode(chunkID, shards, header.PayloadSize)
	if err != nil {
		if chunk.IsInsufficientPartsError(err) {
			return
		}
		lg.Error().Err(err).Msg("could not reconstruct chunk payload")
		return
	}

	already, _ := e.completed.ContainsOrAdd(chunkID, struct{}{})
	if already {
		return
	}

	e.pending.Remove(chunkID)

	lg.Info().Int("parts_used", len(indices)).Msg("chunk reconstructed")
	e.consumer.OnChunkComplete(chunkID, payload)
}

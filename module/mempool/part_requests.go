package mempool

import (
	"sync"
	"time"

	"github.com/shardlabs/shard-go/model/chunk"
)

// PartRequestStatus tracks one chunk's outstanding part requests. It wraps
// the set of still-missing indices with the auxiliary retry bookkeeping the
// requester engine needs.
type PartRequestStatus struct {
	// ChunkID identifies the chunk.
	ChunkID chunk.Identifier
	// Header is the chunk header the parts will be validated against.
	Header *chunk.Header
	// Remaining holds the part indices not yet satisfied.
	Remaining map[uint16]struct{}
	// Attempts counts how many times requests for this chunk have been
	// dispatched to the network.
	Attempts uint64
	// LastAttempt is the timestamp of the last dispatched request.
	LastAttempt time.Time
	// RetryAfter is the interval to wait after LastAttempt before the
	// request qualifies for dispatch again.
	RetryAfter time.Duration
}

// NewPartRequestStatus creates a status for the given missing indices.
func NewPartRequestStatus(header *chunk.Header, indices []uint16) *PartRequestStatus {
	remaining := make(map[uint16]struct{}, len(indices))
	for _, index := range indices {
		remaining[index] = struct{}{}
	}
	return &PartRequestStatus{
		ChunkID:   header.ID(),
		Header:    header,
		Remaining: remaining,
	}
}

// RemainingIndices returns the still-missing indices in ascending order of
// map iteration (callers must not rely on ordering).
func (s *PartRequestStatus) RemainingIndices() []uint16 {
	indices := make([]uint16, 0, len(s.Remaining))
	for index := range s.Remaining {
		indices = append(indices, index)
	}
	return indices
}

// HistoryUpdaterFunc computes the next (attempts, retryAfter) pair from the
// current one. The boolean return indicates whether the update should be
// committed.
type HistoryUpdaterFunc func(attempts uint64, retryAfter time.Duration) (uint64, time.Duration, bool)

// ExponentialUpdater increments the attempt count and backs the retry
// interval off geometrically by the given multiplier, capped at maximum.
func ExponentialUpdater(multiplier float64, maximum time.Duration, minimum time.Duration) HistoryUpdaterFunc {
	return func(attempts uint64, retryAfter time.Duration) (uint64, time.Duration, bool) {
		if attempts == 0 {
			return 1, minimum, true
		}

		retryAfter = time.Duration(float64(retryAfter) * multiplier)
		if retryAfter > maximum {
			retryAfter = maximum
		}
		if retryAfter < minimum {
			retryAfter = minimum
		}

		return attempts + 1, retryAfter, true
	}
}

// RetryAfterQualifier qualifies a status for dispatch once its retry-after
// interval has elapsed since its last attempt. A status that has never been
// attempted always qualifies.
func RetryAfterQualifier(now time.Time, s *PartRequestStatus) bool {
	if s.Attempts == 0 {
		return true
	}
	return s.LastAttempt.Add(s.RetryAfter).Before(now) || s.LastAttempt.Add(s.RetryAfter).Equal(now)
}

// PartRequests is an in-memory pool of pending part requests, keyed by
// chunk identifier. It is the requester engine's private state and is
// deliberately never persisted: after a restart the pool starts empty and
// still-needed parts are requested again from scratch, which is safe
// because the part store is authoritative and idempotent.
//
// All operations are atomic, thread-safe, and done in isolation.
type PartRequests struct {
	mu       sync.Mutex
	requests map[chunk.Identifier]*PartRequestStatus
}

func NewPartRequests() *PartRequests {
	return &PartRequests{
		requests: make(map[chunk.Identifier]*PartRequestStatus),
	}
}

// Add inserts a status into the pool. The insertion is only successful if
// no status for the same chunk exists yet.
func (r *PartRequests) Add(status *PartRequestStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.requests[status.ChunkID]
	if exists {
		return false
	}
	r.requests[status.ChunkID] = status
	return true
}

// AddIndices registers the given indices as missing for the header's
// chunk. If the chunk is not tracked yet a fresh status is created;
// otherwise the indices are merged into the existing status, leaving its
// retry bookkeeping untouched so in-flight requests keep their backoff.
// It returns the number of indices that were not already tracked.
func (r *PartRequests) AddIndices(header *chunk.Header, indices []uint16) uint {
	r.mu.Lock()
	defer r.mu.Unlock()

	chunkID := header.ID()
	status, exists := r.requests[chunkID]
	if !exists {
		status = &PartRequestStatus{
			ChunkID:   chunkID,
			Header:    header,
			Remaining: make(map[uint16]struct{}, len(indices)),
		}
		r.requests[chunkID] = status
	}

	var added uint
	for _, index := range indices {
		if _, tracked := status.Remaining[index]; tracked {
			continue
		}
		status.Remaining[index] = struct{}{}
		added++
	}
	return added
}

// All returns a snapshot of all statuses in the pool. The snapshot copies
// the retry bookkeeping and the remaining index set, so the caller can
// iterate without holding the pool lock.
func (r *PartRequests) All() []*PartRequestStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*PartRequestStatus, 0, len(r.requests))
	for _, status := range r.requests {
		all = append(all, copyStatus(status))
	}
	return all
}

// Get returns a snapshot of the status for the given chunk.
func (r *PartRequests) Get(chunkID chunk.Identifier) (*PartRequestStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, exists := r.requests[chunkID]
	if !exists {
		return nil, false
	}
	return copyStatus(status), true
}

// MarkSatisfied removes the given index from the chunk's remaining set. It
// returns false when there is no entry for the chunk or the index was
// already satisfied, which lets the caller treat duplicate responses as
// no-ops.
func (r *PartRequests) MarkSatisfied(chunkID chunk.Identifier, index uint16) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, exists := r.requests[chunkID]
	if !exists {
		return false
	}
	_, missing := status.Remaining[index]
	if !missing {
		return false
	}
	delete(status.Remaining, index)
	return true
}

// RequalifyNow clears the chunk's retry-after interval so its next dispatch
// qualification succeeds immediately. Used when an owner explicitly reports
// parts as unavailable, so the requester can move to an alternate owner
// without waiting out a timeout.
func (r *PartRequests) RequalifyNow(chunkID chunk.Identifier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, exists := r.requests[chunkID]
	if !exists {
		return false
	}
	status.RetryAfter = 0
	return true
}

// UpdateRequestHistory updates the chunk's retry bookkeeping through the
// given updater and stamps the last attempt time. If the updater declines
// or no entry exists, nothing is committed and ok is false.
func (r *PartRequests) UpdateRequestHistory(chunkID chunk.Identifier, now time.Time, updater HistoryUpdaterFunc) (uint64, time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, exists := r.requests[chunkID]
	if !exists {
		return 0, 0, false
	}

	attempts, retryAfter, ok := updater(status.Attempts, status.RetryAfter)
	if !ok {
		return 0, 0, false
	}

	status.Attempts = attempts
	status.RetryAfter = retryAfter
	status.LastAttempt = now

	return attempts, retryAfter, true
}

// Remove deletes the entry for the given chunk. It returns true if an
// entry existed. The single-deleter guarantee is what makes abandonment
// and completion callbacks fire exactly once.
func (r *PartRequests) Remove(chunkID chunk.Identifier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.requests[chunkID]
	if !exists {
		return false
	}
	delete(r.requests, chunkID)
	return true
}

// Size returns the total number of tracked chunks.
func (r *PartRequests) Size() uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint(len(r.requests))
}

func copyStatus(status *PartRequestStatus) *PartRequestStatus {
	remaining := make(map[uint16]struct{}, len(status.Remaining))
	for index := range status.Remaining {
		remaining[index] = struct{}{}
	}
	return &PartRequestStatus{
		ChunkID:     status.ChunkID,
		Header:      status.Header,
		Remaining:   remaining,
		Attempts:    status.Attempts,
		LastAttempt: status.LastAttempt,
		RetryAfter:  status.RetryAfter,
	}
}

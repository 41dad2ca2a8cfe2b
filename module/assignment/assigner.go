package assignment

import (
	"fmt"

	"github.com/onflow/flow-go/crypto/random"

	"github.com/shardlabs/shard-go/model/chunk"
)

// customizer keeps the part-ownership PRG domain-separated from any other
// use of the same seed
var customizer = []byte("part_owners")

// Candidates returns the deterministic owner preference ring for one part
// of a chunk. It is a pure function of its inputs: the participant set is
// brought into canonical order, shuffled with a PRG seeded by the chunk
// identifier, and rotated so the ring starts at the part's primary owner.
// Every caller with the same inputs derives the same ring, regardless of
// node or restart, so peers agree on whom to ask without negotiation.
//
// Zero-weight participants are excluded. The participant set must be
// non-empty after that filter.
func Candidates(chunkID chunk.Identifier, index uint16, participants chunk.ParticipantList) (chunk.ParticipantList, error) {
	eligible := participants.Filter(func(p *chunk.Participant) bool {
		return p.Weight > 0
	})
	if len(eligible) == 0 {
		return nil, fmt.Errorf("no eligible participants for ownership assignment")
	}

	shuffled := eligible.Sort()

	rng, err := random.NewChacha20PRG(chunkID[:], customizer)
	if err != nil {
		return nil, fmt.Errorf("could not instantiate ownership prg: %w", err)
	}
	err = rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if err != nil {
		return nil, fmt.Errorf("could not shuffle participants: %w", err)
	}

	// rotate the shuffled list so that consecutive part indices start at
	// consecutive primary owners, spreading parts across the set
	n := len(shuffled)
	start := int(index) % n
	ring := make(chunk.ParticipantList, 0, n)
	ring = append(ring, shuffled[start:]...)
	ring = append(ring, shuffled[:start]...)

	return ring, nil
}

// OwnerOf returns the participant assigned to hold the given part. The
// assignment is pure and total over any non-empty participant set.
func OwnerOf(chunkID chunk.Identifier, index uint16, participants chunk.ParticipantList) (*chunk.Participant, error) {
	ring, err := Candidates(chunkID, index, participants)
	if err != nil {
		return nil, err
	}
	return ring[0], nil
}

// TargetSelector picks which candidate owner to ask for a part on a given
// attempt. The policy for walking alternates after a timeout or an invalid
// reply is pluggable; the requester engine only depends on this interface.
type TargetSelector interface {
	// Target returns the participant to ask for the given part on the
	// given attempt (0-based).
	Target(chunkID chunk.Identifier, index uint16, participants chunk.ParticipantList, attempt uint64) (*chunk.Participant, error)
}

// RoundRobinSelector walks the deterministic candidate ring one candidate
// per attempt, so repeated failures against one owner move the request to
// the next owner in the ring.
type RoundRobinSelector struct {
	// Skip is an optional node to never select, normally the local node.
	Skip chunk.Identifier
}

var _ TargetSelector = (*RoundRobinSelector)(nil)

func NewRoundRobinSelector(skip chunk.Identifier) *RoundRobinSelector {
	return &RoundRobinSelector{Skip: skip}
}

func (s *RoundRobinSelector) Target(chunkID chunk.Identifier, index uint16, participants chunk.ParticipantList, attempt uint64) (*chunk.Participant, error) {
	ring, err := Candidates(chunkID, index, participants)
	if err != nil {
		return nil, err
	}

	if s.Skip != chunk.ZeroID {
		ring = ring.Filter(func(p *chunk.Participant) bool {
			return p.NodeID != s.Skip
		})
		if len(ring) == 0 {
			return nil, fmt.Errorf("no selectable participants besides the local node")
		}
	}

	return ring[attempt%uint64(len(ring))], nil
}

package chunk

import (
	"bytes"
	"sort"
)

// Participant is one member of the active participant set holding and
// serving chunk parts.
type Participant struct {
	// NodeID is the network identity of the participant.
	NodeID Identifier
	// Weight is the participant's stake weight. Zero-weight participants
	// are not assigned part ownership.
	Weight uint64
}

// ParticipantList is a list of participants.
type ParticipantList []*Participant

// NodeIDs returns the node identifiers in list order.
func (pl ParticipantList) NodeIDs() IdentifierList {
	ids := make(IdentifierList, 0, len(pl))
	for _, participant := range pl {
		ids = append(ids, participant.NodeID)
	}
	return ids
}

// ByNodeID returns the participant with the given node ID.
func (pl ParticipantList) ByNodeID(nodeID Identifier) (*Participant, bool) {
	for _, participant := range pl {
		if participant.NodeID == nodeID {
			return participant, true
		}
	}
	return nil, false
}

// Sort returns a copy of the list in canonical order (ascending node ID).
// Canonical ordering is what makes ownership assignment independent of the
// order in which callers learned about the participants.
func (pl ParticipantList) Sort() ParticipantList {
	dup := make(ParticipantList, len(pl))
	copy(dup, pl)
	sort.Slice(dup, func(i, j int) bool {
		return bytes.Compare(dup[i].NodeID[:], dup[j].NodeID[:]) < 0
	})
	return dup
}

// Filter returns the participants satisfying the given predicate.
func (pl ParticipantList) Filter(keep func(*Participant) bool) ParticipantList {
	var out ParticipantList
	for _, participant := range pl {
		if keep(participant) {
			out = append(out, participant)
		}
	}
	return out
}

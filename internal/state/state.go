package state

import (
	"encoding/json"
	"fmt"
	"sort"
)

// GameState is the canonical shared state for one match: a record of
// match-wide fields plus one record per participant, keyed by stable
// opaque participant ids.
//
// INVARIANTS:
//   - Participant keys are immutable for the match's lifetime.
//   - The state is a strict tree of owned values; shared and participant
//     substates never hold references into each other.
//   - GameState is created at match init and mutated only through
//     mutation-op application, never directly.
type GameState struct {
	Shared       Record            `json:"shared"`
	Participants map[string]Record `json:"participants"`
}

// New creates an empty GameState with initialized containers.
func New() *GameState {
	return &GameState{
		Shared:       Record{},
		Participants: map[string]Record{},
	}
}

// Clone returns a deep copy of the state. Mutation application clones
// first and writes into the copy, so callers' states are never mutated.
func (s *GameState) Clone() *GameState {
	out := &GameState{
		Shared:       CloneValue(s.Shared).(Record),
		Participants: make(map[string]Record, len(s.Participants)),
	}
	for id, rec := range s.Participants {
		out.Participants[id] = CloneValue(rec).(Record)
	}
	return out
}

// ParticipantIDs returns participant keys in ascending order.
// Deterministic iteration order matters wherever an op expands over the
// participant set.
func (s *GameState) ParticipantIDs() []string {
	ids := make([]string, 0, len(s.Participants))
	for id := range s.Participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Equal reports structural equality of two states.
func (s *GameState) Equal(other *GameState) bool {
	if s == nil || other == nil {
		return s == other
	}
	if !Equal(s.Shared, other.Shared) {
		return false
	}
	if len(s.Participants) != len(other.Participants) {
		return false
	}
	for id, rec := range s.Participants {
		otherRec, ok := other.Participants[id]
		if !ok || !Equal(rec, otherRec) {
			return false
		}
	}
	return true
}

// MarshalJSON implements json.Marshaler. Participant records serialize
// in sorted key order so two equal states produce identical bytes.
func (s *GameState) MarshalJSON() ([]byte, error) {
	participants := make(Record, len(s.Participants))
	for id, rec := range s.Participants {
		participants[id] = rec
	}
	shared := s.Shared
	if shared == nil {
		shared = Record{}
	}

	sharedJSON, err := shared.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal shared: %w", err)
	}
	participantsJSON, err := participants.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal participants: %w", err)
	}

	return []byte(`{"shared":` + string(sharedJSON) + `,"participants":` + string(participantsJSON) + `}`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *GameState) UnmarshalJSON(data []byte) error {
	var raw struct {
		Shared       Record            `json:"shared"`
		Participants map[string]Record `json:"participants"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Shared = raw.Shared
	if s.Shared == nil {
		s.Shared = Record{}
	}
	s.Participants = raw.Participants
	if s.Participants == nil {
		s.Participants = map[string]Record{}
	}
	return nil
}

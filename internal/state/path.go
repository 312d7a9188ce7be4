package state

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Wildcard is the path segment meaning "every current participant".
// It is only valid in the participant-id position and is expanded to
// concrete ids before execution (see the alias package).
const Wildcard = "[*]"

// Path root segments.
const (
	RootShared       = "shared"
	RootParticipants = "participants"
)

// Path is a parsed dotted state path, e.g. "shared.round" or
// "participants.uuid-a.coins". The first segment names the subtree; for
// participant paths the second segment is the participant id, a wildcard,
// or a spec-relative alias awaiting virtualization.
type Path struct {
	segs []string
}

// ParsePath parses a dotted path string.
// Rules:
//   - at least two segments, none empty
//   - the root segment is "shared" or "participants"
//   - "participants" paths carry an id segment plus at least one field segment
//   - the wildcard appears only in the participant-id position
func ParsePath(raw string) (Path, error) {
	segs := strings.Split(raw, ".")
	if len(segs) < 2 {
		return Path{}, fmt.Errorf("path %q: need at least two segments", raw)
	}
	for i, seg := range segs {
		if seg == "" {
			return Path{}, fmt.Errorf("path %q: empty segment at position %d", raw, i)
		}
		if seg == Wildcard && i != 1 {
			return Path{}, fmt.Errorf("path %q: wildcard only allowed in the participant-id position", raw)
		}
	}

	switch segs[0] {
	case RootShared:
		if segs[1] == Wildcard {
			return Path{}, fmt.Errorf("path %q: wildcard not allowed under shared", raw)
		}
	case RootParticipants:
		if len(segs) < 3 {
			return Path{}, fmt.Errorf("path %q: participant paths need an id and a field", raw)
		}
	default:
		return Path{}, fmt.Errorf("path %q: unknown root %q", raw, segs[0])
	}

	return Path{segs: segs}, nil
}

// MustParsePath parses a path and panics on error. For tests and
// compiled-in fixtures only.
func MustParsePath(raw string) Path {
	p, err := ParsePath(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the dotted form.
func (p Path) String() string {
	return strings.Join(p.segs, ".")
}

// Root returns the first segment ("shared" or "participants").
func (p Path) Root() string {
	if len(p.segs) == 0 {
		return ""
	}
	return p.segs[0]
}

// ParticipantKey returns the participant-id segment and true for
// participant paths.
func (p Path) ParticipantKey() (string, bool) {
	if p.Root() != RootParticipants || len(p.segs) < 2 {
		return "", false
	}
	return p.segs[1], true
}

// HasWildcard reports whether the participant-id segment is the wildcard.
func (p Path) HasWildcard() bool {
	key, ok := p.ParticipantKey()
	return ok && key == Wildcard
}

// WithParticipant returns a copy of the path with the participant-id
// segment replaced by id. The receiver is unchanged.
func (p Path) WithParticipant(id string) Path {
	segs := make([]string, len(p.segs))
	copy(segs, p.segs)
	if len(segs) >= 2 && segs[0] == RootParticipants {
		segs[1] = id
	}
	return Path{segs: segs}
}

// IsZero reports whether the path is unset.
func (p Path) IsZero() bool {
	return len(p.segs) == 0
}

// MarshalJSON serializes the path as its dotted string form.
func (p Path) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON parses the dotted string form.
func (p *Path) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParsePath(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// FirstField returns the first record field segment: the top-level field
// under shared, or the field directly under a participant record. Schema
// declarations are keyed by this segment.
func (p Path) FirstField() string {
	segs := p.fieldSegments()
	if len(segs) == 0 {
		return ""
	}
	return segs[0]
}

// fieldSegments returns the record-navigation segments after the root
// (and after the participant id for participant paths).
func (p Path) fieldSegments() []string {
	if p.Root() == RootParticipants {
		return p.segs[2:]
	}
	return p.segs[1:]
}

// rootRecord resolves the record the field segments navigate from.
// create=true materializes a missing participant record; participant
// ids themselves are validated upstream by the alias layer.
func (s *GameState) rootRecord(p Path, create bool) (Record, bool) {
	switch p.Root() {
	case RootShared:
		if s.Shared == nil {
			if !create {
				return nil, false
			}
			s.Shared = Record{}
		}
		return s.Shared, true
	case RootParticipants:
		key, _ := p.ParticipantKey()
		rec, ok := s.Participants[key]
		if !ok {
			if !create {
				return nil, false
			}
			rec = Record{}
			if s.Participants == nil {
				s.Participants = map[string]Record{}
			}
			s.Participants[key] = rec
		}
		return rec, true
	default:
		return nil, false
	}
}

// Get resolves the value at the path. The second return is false when any
// segment is absent or an intermediate is not a record.
func (s *GameState) Get(p Path) (Value, bool) {
	rec, ok := s.rootRecord(p, false)
	if !ok {
		return nil, false
	}

	segs := p.fieldSegments()
	var cur Value = rec
	for _, seg := range segs {
		r, isRec := cur.(Record)
		if !isRec {
			return nil, false
		}
		next, present := r[seg]
		if !present {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Set writes a value at the path, creating intermediate records as
// needed. A non-record intermediate is replaced: set never fails.
// The write is in place; clone the state first to preserve the original.
func (s *GameState) Set(p Path, v Value) {
	rec, _ := s.rootRecord(p, true)

	segs := p.fieldSegments()
	for _, seg := range segs[:len(segs)-1] {
		next, present := rec[seg]
		nextRec, isRec := next.(Record)
		if !present || !isRec {
			nextRec = Record{}
			rec[seg] = nextRec
		}
		rec = nextRec
	}
	rec[segs[len(segs)-1]] = v
}

// Delete removes the value at the path. Deleting an absent path is a
// no-op success; deleting it twice leaves the state unchanged both times.
func (s *GameState) Delete(p Path) {
	rec, ok := s.rootRecord(p, false)
	if !ok {
		return
	}

	segs := p.fieldSegments()
	for _, seg := range segs[:len(segs)-1] {
		next, present := rec[seg]
		nextRec, isRec := next.(Record)
		if !present || !isRec {
			return
		}
		rec = nextRec
	}
	delete(rec, segs[len(segs)-1])
}

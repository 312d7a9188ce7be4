// Package artifact defines the structured outputs of the extraction
// pipeline: the state schema, the phase transition graph, and the
// mutation template library. The runtime consumes only committed
// artifacts; an escalated envelope is persisted for operator review but
// never activated.
package artifact

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wrightlabs/gamewright/internal/cond"
	"github.com/wrightlabs/gamewright/internal/mutate"
)

// Kind identifies an artifact variant.
type Kind string

const (
	KindStateSchema       Kind = "stateSchema"
	KindTransitionGraph   Kind = "transitionGraph"
	KindMutationTemplates Kind = "mutationTemplates"
)

// Kinds lists every artifact kind in pipeline order: the schema anchors
// the graph and templates, so it is extracted first.
func Kinds() []Kind {
	return []Kind{KindStateSchema, KindTransitionGraph, KindMutationTemplates}
}

// FieldType is a declared state field type. Mechanical fields declare
// "int"; validation flags non-integral numbers written to them.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int"
	TypeNumber FieldType = "number"
	TypeBool   FieldType = "bool"
	TypeList   FieldType = "list"
	TypeRecord FieldType = "record"
)

// Valid reports whether t is a member of the declared type set.
func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeInt, TypeNumber, TypeBool, TypeList, TypeRecord:
		return true
	default:
		return false
	}
}

// StateSchema declares the field types of the shared record and of each
// participant's record. Paths written by templates must land on declared
// fields with conforming types.
type StateSchema struct {
	Shared      map[string]FieldType `json:"shared"`
	Participant map[string]FieldType `json:"participant"`
}

// SharedField returns the declared type of a top-level shared field.
func (s StateSchema) SharedField(name string) (FieldType, bool) {
	t, ok := s.Shared[name]
	return t, ok
}

// ParticipantField returns the declared type of a top-level participant
// field.
func (s StateSchema) ParticipantField(name string) (FieldType, bool) {
	t, ok := s.Participant[name]
	return t, ok
}

// TransitionRule gates one phase edge. All preconditions must hold for
// the edge to fire.
type TransitionRule struct {
	ID            string       `json:"id"`
	FromPhase     string       `json:"fromPhase"`
	ToPhase       string       `json:"toPhase"`
	Preconditions []*cond.Node `json:"preconditions"`
	CheckedFields []string     `json:"checkedFields,omitempty"`
}

// TransitionGraph is the phase machine for a game. Rules are evaluated
// in declaration order; the first edge whose preconditions all hold
// fires.
type TransitionGraph struct {
	Phases  []string         `json:"phases"`
	Initial string           `json:"initial"`
	Rules   []TransitionRule `json:"rules"`
}

// RulesFrom returns the rules leaving a phase, in declaration order.
func (g TransitionGraph) RulesFrom(phase string) []TransitionRule {
	var out []TransitionRule
	for _, r := range g.Rules {
		if r.FromPhase == phase {
			out = append(out, r)
		}
	}
	return out
}

// HasPhase reports whether the graph declares a phase.
func (g TransitionGraph) HasPhase(phase string) bool {
	for _, p := range g.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

// MutationTemplate binds an event name to the op batch it triggers.
// Template paths are alias-addressed; the identity layer makes them
// concrete at execution time.
type MutationTemplate struct {
	ID    string
	Event string
	Ops   []mutate.Op
}

type rawTemplate struct {
	ID    string          `json:"id"`
	Event string          `json:"event"`
	Ops   json.RawMessage `json:"ops"`
}

// MarshalJSON implements json.Marshaler, delegating op encoding to the
// mutation envelope codec.
func (t MutationTemplate) MarshalJSON() ([]byte, error) {
	ops, err := mutate.MarshalOps(t.Ops)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", t.ID, err)
	}
	return json.Marshal(rawTemplate{ID: t.ID, Event: t.Event, Ops: ops})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *MutationTemplate) UnmarshalJSON(data []byte) error {
	var raw rawTemplate
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ops, err := mutate.UnmarshalOps(raw.Ops)
	if err != nil {
		return fmt.Errorf("template %q: %w", raw.ID, err)
	}
	t.ID = raw.ID
	t.Event = raw.Event
	t.Ops = ops
	return nil
}

// TemplateLibrary is the full set of extracted mutation templates.
type TemplateLibrary struct {
	Templates []MutationTemplate `json:"templates"`
}

// ByEvent returns the template bound to an event name.
func (l TemplateLibrary) ByEvent(event string) (MutationTemplate, bool) {
	for _, t := range l.Templates {
		if t.Event == event {
			return t, true
		}
	}
	return MutationTemplate{}, false
}

// Envelope wraps one extracted artifact with its pipeline provenance.
// Escalated envelopes carry their full error history; they are stored
// but never consulted by the runtime.
type Envelope struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Version    int             `json:"version"`
	RetryCount int             `json:"retryCount"`
	Escalated  bool            `json:"escalated"`
	Errors     []string        `json:"errors,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// DecodeStateSchema decodes the payload of a stateSchema envelope.
func (e Envelope) DecodeStateSchema() (StateSchema, error) {
	var s StateSchema
	if e.Kind != KindStateSchema {
		return s, fmt.Errorf("envelope %s holds %q, not a state schema", e.ID, e.Kind)
	}
	err := json.Unmarshal(e.Payload, &s)
	return s, err
}

// DecodeTransitionGraph decodes the payload of a transitionGraph envelope.
func (e Envelope) DecodeTransitionGraph() (TransitionGraph, error) {
	var g TransitionGraph
	if e.Kind != KindTransitionGraph {
		return g, fmt.Errorf("envelope %s holds %q, not a transition graph", e.ID, e.Kind)
	}
	err := json.Unmarshal(e.Payload, &g)
	return g, err
}

// DecodeTemplates decodes the payload of a mutationTemplates envelope.
func (e Envelope) DecodeTemplates() (TemplateLibrary, error) {
	var l TemplateLibrary
	if e.Kind != KindMutationTemplates {
		return l, fmt.Errorf("envelope %s holds %q, not a template library", e.ID, e.Kind)
	}
	err := json.Unmarshal(e.Payload, &l)
	return l, err
}

// Package mutate implements the closed mutation-operation language applied
// to shared match state. Ops are a sealed sum type (one Go type per kind)
// so handling is exhaustive at compile time instead of dictionary-dispatched.
package mutate

import (
	"encoding/json"
	"fmt"

	"github.com/wrightlabs/gamewright/internal/state"
)

// Kind identifies a mutation-operation variant.
type Kind string

// The closed op set. The executor rejects nothing else because nothing
// else can be constructed; shape validation happens at artifact compile
// time, before ops reach execution.
const (
	KindSet          Kind = "set"
	KindIncrement    Kind = "increment"
	KindAppend       Kind = "append"
	KindDelete       Kind = "delete"
	KindTransfer     Kind = "transfer"
	KindMerge        Kind = "merge"
	KindRandomChoice Kind = "randomChoice"
	KindSetAll       Kind = "setForAllParticipants"
)

// Op is the sealed interface over mutation operations.
type Op interface {
	Kind() Kind
	op() // Sealed - only this package's types implement it
}

// Set writes a value at a path, creating intermediate containers.
// Never fails.
type Set struct {
	Path  state.Path
	Value state.Value
}

func (Set) Kind() Kind { return KindSet }
func (Set) op()        {}

// Increment adds a numeric amount to the value at a path. An absent
// target starts at zero. Fails with TypeMismatch when the current value
// is non-numeric.
type Increment struct {
	Path   state.Path
	Amount state.Value
}

func (Increment) Kind() Kind { return KindIncrement }
func (Increment) op()        {}

// Append pushes a value onto the list at a path. An absent target becomes
// a one-element list. Fails with TypeMismatch when the target exists and
// is not a list.
type Append struct {
	Path  state.Path
	Value state.Value
}

func (Append) Kind() Kind { return KindAppend }
func (Append) op()        {}

// Delete removes a path. Deleting an absent path is a success.
type Delete struct {
	Path state.Path
}

func (Delete) Kind() Kind { return KindDelete }
func (Delete) op()        {}

// Transfer moves a numeric amount from one path to another. A nil Amount
// moves the entire source value. An absent destination is initialized to
// zero first. Fails with TypeMismatch when the source is non-numeric and
// InsufficientValue when the source holds less than the amount.
type Transfer struct {
	From   state.Path
	To     state.Path
	Amount state.Value // nil means the whole source value
}

func (Transfer) Kind() Kind { return KindTransfer }
func (Transfer) op()        {}

// Merge shallow-merges a record into the record at a path. An absent
// target is created. Fails with TypeMismatch when the existing target is
// not a record.
type Merge struct {
	Path  state.Path
	Value state.Record
}

func (Merge) Kind() Kind { return KindMerge }
func (Merge) op()        {}

// Choice is one weighted alternative of a RandomChoice.
type Choice struct {
	Value  state.Value
	Weight int64
}

// RandomChoice draws once from a weighted choice set and writes the
// concrete drawn value at the path. Entropy is drawn exactly once per op;
// the mutation layer never retries, so a committed draw is final.
type RandomChoice struct {
	Path    state.Path
	Choices []Choice
}

func (RandomChoice) Kind() Kind { return KindRandomChoice }
func (RandomChoice) op()        {}

// SetAll writes a value into the given field of every current
// participant's record, in sorted participant-id order. The identity
// virtualization layer expands it against the alias map before execution
// when one is in play; the executor expands against live state otherwise.
type SetAll struct {
	Field string
	Value state.Value
}

func (SetAll) Kind() Kind { return KindSetAll }
func (SetAll) op()        {}

// envelope is the JSON wire shape for all op kinds, keyed on "kind".
type envelope struct {
	Kind    Kind            `json:"kind"`
	Path    string          `json:"path,omitempty"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Field   string          `json:"field,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Amount  json.RawMessage `json:"amount,omitempty"`
	Choices []rawChoice     `json:"choices,omitempty"`
}

type rawChoice struct {
	Value  json.RawMessage `json:"value"`
	Weight int64           `json:"weight"`
}

// MarshalOp encodes an op into its JSON envelope.
func MarshalOp(op Op) ([]byte, error) {
	env := envelope{Kind: op.Kind()}

	var err error
	switch o := op.(type) {
	case Set:
		env.Path = o.Path.String()
		env.Value, err = state.MarshalValue(o.Value)
	case Increment:
		env.Path = o.Path.String()
		env.Amount, err = state.MarshalValue(o.Amount)
	case Append:
		env.Path = o.Path.String()
		env.Value, err = state.MarshalValue(o.Value)
	case Delete:
		env.Path = o.Path.String()
	case Transfer:
		env.From = o.From.String()
		env.To = o.To.String()
		if o.Amount != nil {
			env.Amount, err = state.MarshalValue(o.Amount)
		}
	case Merge:
		env.Path = o.Path.String()
		env.Value, err = state.MarshalValue(o.Value)
	case RandomChoice:
		env.Path = o.Path.String()
		env.Choices = make([]rawChoice, len(o.Choices))
		for i, c := range o.Choices {
			data, merr := state.MarshalValue(c.Value)
			if merr != nil {
				return nil, fmt.Errorf("choice %d: %w", i, merr)
			}
			env.Choices[i] = rawChoice{Value: data, Weight: c.Weight}
		}
	case SetAll:
		env.Field = o.Field
		env.Value, err = state.MarshalValue(o.Value)
	default:
		return nil, fmt.Errorf("unknown op type %T", op)
	}
	if err != nil {
		return nil, err
	}

	return json.Marshal(env)
}

// UnmarshalOp decodes an op from its JSON envelope. Shape errors here are
// SchemaViolations caught during artifact validation; they never reach
// the executor.
func UnmarshalOp(data []byte) (Op, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	switch env.Kind {
	case KindSet:
		path, value, err := pathAndValue(env.Path, env.Value)
		if err != nil {
			return nil, fmt.Errorf("set: %w", err)
		}
		return Set{Path: path, Value: value}, nil

	case KindIncrement:
		path, err := state.ParsePath(env.Path)
		if err != nil {
			return nil, fmt.Errorf("increment: %w", err)
		}
		if len(env.Amount) == 0 {
			return nil, fmt.Errorf("increment: missing amount")
		}
		amount, err := state.UnmarshalValue(env.Amount)
		if err != nil {
			return nil, fmt.Errorf("increment amount: %w", err)
		}
		return Increment{Path: path, Amount: amount}, nil

	case KindAppend:
		path, value, err := pathAndValue(env.Path, env.Value)
		if err != nil {
			return nil, fmt.Errorf("append: %w", err)
		}
		return Append{Path: path, Value: value}, nil

	case KindDelete:
		path, err := state.ParsePath(env.Path)
		if err != nil {
			return nil, fmt.Errorf("delete: %w", err)
		}
		return Delete{Path: path}, nil

	case KindTransfer:
		from, err := state.ParsePath(env.From)
		if err != nil {
			return nil, fmt.Errorf("transfer from: %w", err)
		}
		to, err := state.ParsePath(env.To)
		if err != nil {
			return nil, fmt.Errorf("transfer to: %w", err)
		}
		op := Transfer{From: from, To: to}
		if len(env.Amount) > 0 {
			amount, err := state.UnmarshalValue(env.Amount)
			if err != nil {
				return nil, fmt.Errorf("transfer amount: %w", err)
			}
			op.Amount = amount
		}
		return op, nil

	case KindMerge:
		path, value, err := pathAndValue(env.Path, env.Value)
		if err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		rec, ok := value.(state.Record)
		if !ok {
			return nil, fmt.Errorf("merge: value must be a record, got %T", value)
		}
		return Merge{Path: path, Value: rec}, nil

	case KindRandomChoice:
		path, err := state.ParsePath(env.Path)
		if err != nil {
			return nil, fmt.Errorf("randomChoice: %w", err)
		}
		if len(env.Choices) == 0 {
			return nil, fmt.Errorf("randomChoice: needs at least one choice")
		}
		choices := make([]Choice, len(env.Choices))
		for i, rc := range env.Choices {
			v, err := state.UnmarshalValue(rc.Value)
			if err != nil {
				return nil, fmt.Errorf("randomChoice choice %d: %w", i, err)
			}
			if rc.Weight <= 0 {
				return nil, fmt.Errorf("randomChoice choice %d: weight must be positive", i)
			}
			choices[i] = Choice{Value: v, Weight: rc.Weight}
		}
		return RandomChoice{Path: path, Choices: choices}, nil

	case KindSetAll:
		if env.Field == "" {
			return nil, fmt.Errorf("setForAllParticipants: missing field")
		}
		if len(env.Value) == 0 {
			return nil, fmt.Errorf("setForAllParticipants: missing value")
		}
		value, err := state.UnmarshalValue(env.Value)
		if err != nil {
			return nil, fmt.Errorf("setForAllParticipants value: %w", err)
		}
		return SetAll{Field: env.Field, Value: value}, nil

	default:
		return nil, fmt.Errorf("unknown op kind %q", env.Kind)
	}
}

func pathAndValue(rawPath string, rawValue json.RawMessage) (state.Path, state.Value, error) {
	path, err := state.ParsePath(rawPath)
	if err != nil {
		return state.Path{}, nil, err
	}
	if len(rawValue) == 0 {
		return state.Path{}, nil, fmt.Errorf("missing value")
	}
	value, err := state.UnmarshalValue(rawValue)
	if err != nil {
		return state.Path{}, nil, err
	}
	return path, value, nil
}

// MarshalOps encodes a batch as a JSON array of envelopes.
func MarshalOps(ops []Op) ([]byte, error) {
	parts := make([]json.RawMessage, len(ops))
	for i, op := range ops {
		data, err := MarshalOp(op)
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		parts[i] = data
	}
	return json.Marshal(parts)
}

// UnmarshalOps decodes a batch from a JSON array of envelopes.
func UnmarshalOps(data []byte) ([]Op, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, err
	}
	ops := make([]Op, len(parts))
	for i, part := range parts {
		op, err := UnmarshalOp(part)
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		ops[i] = op
	}
	return ops, nil
}

// TargetPaths returns the concrete state paths an op writes, given the
// current participant ids. Transfers report their destination; that is
// the path reconciliation backfills. SetAll reports one path per
// participant.
func TargetPaths(op Op, participantIDs []string) []state.Path {
	switch o := op.(type) {
	case Set:
		return []state.Path{o.Path}
	case Increment:
		return []state.Path{o.Path}
	case Append:
		return []state.Path{o.Path}
	case Delete:
		return []state.Path{o.Path}
	case Transfer:
		return []state.Path{o.To}
	case Merge:
		return []state.Path{o.Path}
	case RandomChoice:
		return []state.Path{o.Path}
	case SetAll:
		paths := make([]state.Path, 0, len(participantIDs))
		for _, id := range participantIDs {
			p, err := state.ParsePath(state.RootParticipants + "." + id + "." + o.Field)
			if err != nil {
				continue
			}
			paths = append(paths, p)
		}
		return paths
	default:
		return nil
	}
}

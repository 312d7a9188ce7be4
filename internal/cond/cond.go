// Package cond implements the guard-condition language that gates phase
// transitions. Expressions are trees over a small boolean/arithmetic core
// extended with participant quantifiers and a lookup operator.
//
// Expressions arrive pre-validated from the artifact pipeline; Evaluate is
// deterministic, side-effect free, and never panics on a well-formed tree.
package cond

import (
	"encoding/json"
	"fmt"

	"github.com/wrightlabs/gamewright/internal/state"
)

// OpKind identifies an expression operator.
type OpKind string

// The closed operator set. Anything else fails structural validation.
const (
	OpConst OpKind = "const"
	OpRef   OpKind = "ref"

	OpNot OpKind = "not"
	OpAnd OpKind = "and"
	OpOr  OpKind = "or"

	OpEq OpKind = "eq"
	OpNe OpKind = "ne"
	OpLt OpKind = "lt"
	OpLe OpKind = "le"
	OpGt OpKind = "gt"
	OpGe OpKind = "ge"

	OpAdd OpKind = "add"
	OpSub OpKind = "sub"
	OpMul OpKind = "mul"

	OpIn OpKind = "in"

	// OpEvery is true iff every participant's record satisfies
	// field <cmp> value. Vacuously TRUE over zero participants.
	// OpSome is the existential counterpart, vacuously FALSE when empty.
	// Both are policy decisions mirroring standard quantifier
	// conventions, pinned by tests rather than re-derived.
	OpEvery OpKind = "every"
	OpSome  OpKind = "some"

	// OpLookup resolves Args[0] (collection) by Args[1] (index). A missing
	// key or out-of-range index yields an absent value that compares falsy
	// instead of raising.
	OpLookup OpKind = "lookup"
)

// Node is one expression-tree node. Field usage depends on Op:
//   - const: Value
//   - ref: Path (a shared.* state path; participant paths are forbidden
//     outside quantifiers and rejected at validation time)
//   - every/some: Field (participant record field), Cmp (comparator),
//     Args[0] (value expression, evaluated once)
//   - lookup: Args[0] collection, Args[1] index
//   - everything else: Args (operands)
type Node struct {
	Op    OpKind      `json:"op"`
	Value state.Value `json:"value,omitempty"`
	Path  string      `json:"path,omitempty"`
	Field string      `json:"field,omitempty"`
	Cmp   OpKind      `json:"cmp,omitempty"`
	Args  []*Node     `json:"args,omitempty"`
}

// Const builds a literal node.
func Const(v state.Value) *Node {
	return &Node{Op: OpConst, Value: v}
}

// Ref builds a shared-state reference node.
func Ref(path string) *Node {
	return &Node{Op: OpRef, Path: path}
}

// Binary builds a two-operand node.
func Binary(op OpKind, left, right *Node) *Node {
	return &Node{Op: op, Args: []*Node{left, right}}
}

// Every builds an all-participants quantifier node.
func Every(field string, cmp OpKind, value *Node) *Node {
	return &Node{Op: OpEvery, Field: field, Cmp: cmp, Args: []*Node{value}}
}

// Some builds an any-participant quantifier node.
func Some(field string, cmp OpKind, value *Node) *Node {
	return &Node{Op: OpSome, Field: field, Cmp: cmp, Args: []*Node{value}}
}

// rawNode mirrors Node with a deferred value payload so the sealed
// state.Value interface can be decoded.
type rawNode struct {
	Op    OpKind          `json:"op"`
	Value json.RawMessage `json:"value,omitempty"`
	Path  string          `json:"path,omitempty"`
	Field string          `json:"field,omitempty"`
	Cmp   OpKind          `json:"cmp,omitempty"`
	Args  []*Node         `json:"args,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (n *Node) MarshalJSON() ([]byte, error) {
	raw := rawNode{
		Op:    n.Op,
		Path:  n.Path,
		Field: n.Field,
		Cmp:   n.Cmp,
		Args:  n.Args,
	}
	if n.Value != nil {
		data, err := state.MarshalValue(n.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal const value: %w", err)
		}
		raw.Value = data
	}
	return json.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	n.Op = raw.Op
	n.Path = raw.Path
	n.Field = raw.Field
	n.Cmp = raw.Cmp
	n.Args = raw.Args
	n.Value = nil

	if len(raw.Value) > 0 {
		v, err := state.UnmarshalValue(raw.Value)
		if err != nil {
			return fmt.Errorf("const value: %w", err)
		}
		n.Value = v
	}
	return nil
}

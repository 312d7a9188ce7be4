package cond

import (
	"fmt"
	"strings"

	"github.com/wrightlabs/gamewright/internal/state"
)

// Context carries the live state an expression evaluates against.
type Context struct {
	State *state.GameState
}

// EvaluationError reports a malformed expression node. It surfaces during
// artifact validation; runtime evaluation receives pre-validated trees and
// treats this error as a defect upstream, not a recoverable condition.
type EvaluationError struct {
	Op      OpKind
	Message string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation error at %q: %s", e.Op, e.Message)
}

func evalErr(op OpKind, format string, args ...any) error {
	return &EvaluationError{Op: op, Message: fmt.Sprintf(format, args...)}
}

// Evaluate interprets an expression tree against the context and returns
// its boolean truth value. Deterministic, no side effects. Errors occur
// only on malformed trees (unknown operator, bad arity).
func Evaluate(n *Node, ctx Context) (bool, error) {
	v, err := eval(n, ctx)
	if err != nil {
		return false, err
	}
	return state.Truthy(v), nil
}

// eval resolves a node to a value. An absent operand (missing state path,
// failed lookup, non-numeric arithmetic) yields nil, which propagates as
// falsy through comparisons rather than erroring.
func eval(n *Node, ctx Context) (state.Value, error) {
	if n == nil {
		return nil, evalErr("", "nil expression node")
	}

	switch n.Op {
	case OpConst:
		if n.Value == nil {
			return nil, evalErr(n.Op, "const node without value")
		}
		return n.Value, nil

	case OpRef:
		path, err := state.ParsePath(n.Path)
		if err != nil {
			return nil, evalErr(n.Op, "bad path: %v", err)
		}
		v, ok := ctx.State.Get(path)
		if !ok {
			return nil, nil // absent propagates as falsy
		}
		return v, nil

	case OpNot:
		if len(n.Args) != 1 {
			return nil, evalErr(n.Op, "want 1 operand, got %d", len(n.Args))
		}
		v, err := eval(n.Args[0], ctx)
		if err != nil {
			return nil, err
		}
		return state.Bool(!state.Truthy(v)), nil

	case OpAnd:
		if len(n.Args) == 0 {
			return nil, evalErr(n.Op, "want at least 1 operand")
		}
		for _, arg := range n.Args {
			v, err := eval(arg, ctx)
			if err != nil {
				return nil, err
			}
			if !state.Truthy(v) {
				return state.Bool(false), nil
			}
		}
		return state.Bool(true), nil

	case OpOr:
		if len(n.Args) == 0 {
			return nil, evalErr(n.Op, "want at least 1 operand")
		}
		for _, arg := range n.Args {
			v, err := eval(arg, ctx)
			if err != nil {
				return nil, err
			}
			if state.Truthy(v) {
				return state.Bool(true), nil
			}
		}
		return state.Bool(false), nil

	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpIn:
		if len(n.Args) != 2 {
			return nil, evalErr(n.Op, "want 2 operands, got %d", len(n.Args))
		}
		left, err := eval(n.Args[0], ctx)
		if err != nil {
			return nil, err
		}
		right, err := eval(n.Args[1], ctx)
		if err != nil {
			return nil, err
		}
		return state.Bool(compare(n.Op, left, right)), nil

	case OpAdd, OpSub, OpMul:
		if len(n.Args) != 2 {
			return nil, evalErr(n.Op, "want 2 operands, got %d", len(n.Args))
		}
		left, err := eval(n.Args[0], ctx)
		if err != nil {
			return nil, err
		}
		right, err := eval(n.Args[1], ctx)
		if err != nil {
			return nil, err
		}
		return arith(n.Op, left, right), nil

	case OpEvery, OpSome:
		return evalQuantifier(n, ctx)

	case OpLookup:
		if len(n.Args) != 2 {
			return nil, evalErr(n.Op, "want collection and index, got %d operands", len(n.Args))
		}
		collection, err := eval(n.Args[0], ctx)
		if err != nil {
			return nil, err
		}
		index, err := eval(n.Args[1], ctx)
		if err != nil {
			return nil, err
		}
		return lookup(collection, index), nil

	default:
		return nil, evalErr(n.Op, "unknown operator")
	}
}

// evalQuantifier iterates the current participant set.
// The comparison value expression is evaluated exactly once.
func evalQuantifier(n *Node, ctx Context) (state.Value, error) {
	if n.Field == "" {
		return nil, evalErr(n.Op, "quantifier without field")
	}
	if !isComparator(n.Cmp) {
		return nil, evalErr(n.Op, "invalid comparator %q", n.Cmp)
	}
	if len(n.Args) != 1 {
		return nil, evalErr(n.Op, "want 1 value operand, got %d", len(n.Args))
	}

	want, err := eval(n.Args[0], ctx)
	if err != nil {
		return nil, err
	}

	for _, id := range ctx.State.ParticipantIDs() {
		got := fieldValue(ctx.State.Participants[id], n.Field)
		holds := compare(n.Cmp, got, want)

		if n.Op == OpEvery && !holds {
			return state.Bool(false), nil
		}
		if n.Op == OpSome && holds {
			return state.Bool(true), nil
		}
	}

	// Empty set (or no early exit): every is vacuously true, some false.
	return state.Bool(n.Op == OpEvery), nil
}

// fieldValue resolves a dotted field inside one participant record.
// Absent segments yield nil.
func fieldValue(rec state.Record, field string) state.Value {
	var cur state.Value = rec
	for _, seg := range strings.Split(field, ".") {
		r, ok := cur.(state.Record)
		if !ok {
			return nil
		}
		next, present := r[seg]
		if !present {
			return nil
		}
		cur = next
	}
	return cur
}

// isComparator reports whether op is usable as a quantifier comparator.
func isComparator(op OpKind) bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpIn:
		return true
	default:
		return false
	}
}

// compare applies a comparison operator. Absent operands make ordering
// comparisons false (ne is the exception: absent != present).
func compare(op OpKind, left, right state.Value) bool {
	switch op {
	case OpEq:
		return state.Equal(left, right)
	case OpNe:
		return !state.Equal(left, right)
	case OpLt, OpLe, OpGt, OpGe:
		cmp, ok := state.Compare(left, right)
		if !ok {
			return false
		}
		switch op {
		case OpLt:
			return cmp < 0
		case OpLe:
			return cmp <= 0
		case OpGt:
			return cmp > 0
		default:
			return cmp >= 0
		}
	case OpIn:
		return contains(right, left)
	default:
		return false
	}
}

// contains reports membership of needle in container: substring for
// strings, element equality for lists.
func contains(container, needle state.Value) bool {
	switch c := container.(type) {
	case state.String:
		n, ok := needle.(state.String)
		return ok && strings.Contains(string(c), string(n))
	case state.List:
		for _, elem := range c {
			if state.Equal(elem, needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// arith applies a numeric operator. Two Ints stay Int; any Float operand
// promotes the result. Non-numeric operands yield absent.
func arith(op OpKind, left, right state.Value) state.Value {
	li, lInt := left.(state.Int)
	ri, rInt := right.(state.Int)
	if lInt && rInt {
		switch op {
		case OpAdd:
			return li + ri
		case OpSub:
			return li - ri
		default:
			return li * ri
		}
	}

	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		return nil
	}
	switch op {
	case OpAdd:
		return state.Float(lf + rf)
	case OpSub:
		return state.Float(lf - rf)
	default:
		return state.Float(lf * rf)
	}
}

func asFloat(v state.Value) (float64, bool) {
	switch n := v.(type) {
	case state.Int:
		return float64(n), true
	case state.Float:
		return float64(n), true
	default:
		return 0, false
	}
}

// lookup indexes a collection: lists by Int, records by String.
// Out-of-range or missing keys yield absent, never an error.
func lookup(collection, index state.Value) state.Value {
	switch c := collection.(type) {
	case state.List:
		i, ok := index.(state.Int)
		if !ok || i < 0 || int(i) >= len(c) {
			return nil
		}
		return c[i]
	case state.Record:
		k, ok := index.(state.String)
		if !ok {
			return nil
		}
		v, present := c[string(k)]
		if !present {
			return nil
		}
		return v
	default:
		return nil
	}
}

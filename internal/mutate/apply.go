package mutate

import (
	"fmt"

	"github.com/wrightlabs/gamewright/internal/state"
)

// Entropy is the seeded randomness source for randomChoice draws.
// *math/rand.Rand satisfies it; tests substitute a fixed sequence.
type Entropy interface {
	Int63n(n int64) int64
}

// Result is the outcome of applying a batch.
type Result struct {
	// NewState is the post-batch state. The input state is never mutated.
	NewState *state.GameState

	// Errors holds one entry per failed op, indexed into the batch.
	// A failed op contributes nothing to NewState; every other op in the
	// batch still applies.
	Errors []*OpError
}

// OK reports whether every op in the batch applied.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// Apply executes a batch of ops against a state snapshot. Ops apply in
// order but independently: op i+1 runs whether or not op i failed, and a
// failure never rolls back earlier ops. Entropy is consulted exactly once
// per randomChoice op and may be nil for batches without one.
func Apply(st *state.GameState, ops []Op, entropy Entropy) Result {
	next := st.Clone()
	var errs []*OpError

	for i, op := range ops {
		if err := applyOne(next, op, entropy); err != nil {
			err.Index = i
			errs = append(errs, err)
		}
	}

	return Result{NewState: next, Errors: errs}
}

func applyOne(st *state.GameState, op Op, entropy Entropy) *OpError {
	switch o := op.(type) {
	case Set:
		st.Set(o.Path, state.CloneValue(o.Value))
		return nil

	case Increment:
		return applyIncrement(st, o)

	case Append:
		return applyAppend(st, o)

	case Delete:
		st.Delete(o.Path)
		return nil

	case Transfer:
		return applyTransfer(st, o)

	case Merge:
		return applyMerge(st, o)

	case RandomChoice:
		return applyRandomChoice(st, o, entropy)

	case SetAll:
		return applySetAll(st, o)

	default:
		return &OpError{Kind: ErrTypeMismatch, Message: fmt.Sprintf("unknown op type %T", op)}
	}
}

func applyIncrement(st *state.GameState, o Increment) *OpError {
	if !isNumericValue(o.Amount) {
		return &OpError{
			Kind: ErrTypeMismatch, Path: o.Path.String(),
			Message: fmt.Sprintf("increment amount is %s, want a number", typeName(o.Amount)),
		}
	}

	cur, ok := st.Get(o.Path)
	if !ok {
		cur = state.Int(0)
	}
	sum, numeric := addValues(cur, o.Amount)
	if !numeric {
		return &OpError{
			Kind: ErrTypeMismatch, Path: o.Path.String(),
			Message: fmt.Sprintf("cannot increment %s", typeName(cur)),
		}
	}
	st.Set(o.Path, sum)
	return nil
}

func applyAppend(st *state.GameState, o Append) *OpError {
	cur, ok := st.Get(o.Path)
	if !ok {
		st.Set(o.Path, state.List{state.CloneValue(o.Value)})
		return nil
	}
	list, isList := cur.(state.List)
	if !isList {
		return &OpError{
			Kind: ErrTypeMismatch, Path: o.Path.String(),
			Message: fmt.Sprintf("cannot append to %s", typeName(cur)),
		}
	}
	st.Set(o.Path, append(list, state.CloneValue(o.Value)))
	return nil
}

// applyTransfer moves value conservatively: the source decreases by
// exactly what the destination gains, within a single atomic op. A
// transfer onto its own source path is rejected; applying it would
// write the destination gain over the source decrease and mint value.
func applyTransfer(st *state.GameState, o Transfer) *OpError {
	if o.From.String() == o.To.String() {
		return &OpError{
			Kind: ErrTypeMismatch, Path: o.From.String(),
			Message: "transfer source and destination are the same path",
		}
	}

	src, ok := st.Get(o.From)
	if !ok {
		return &OpError{
			Kind: ErrInsufficientValue, Path: o.From.String(),
			Message: "transfer source is absent",
		}
	}
	if !isNumericValue(src) {
		return &OpError{
			Kind: ErrTypeMismatch, Path: o.From.String(),
			Message: fmt.Sprintf("transfer source is %s, want a number", typeName(src)),
		}
	}

	amount := o.Amount
	if amount == nil {
		amount = src // default: move the whole source value
	}
	if !isNumericValue(amount) {
		return &OpError{
			Kind: ErrTypeMismatch, Path: o.From.String(),
			Message: fmt.Sprintf("transfer amount is %s, want a number", typeName(amount)),
		}
	}
	if cmp, _ := state.Compare(amount, state.Int(0)); cmp < 0 {
		return &OpError{
			Kind: ErrTypeMismatch, Path: o.From.String(),
			Message: "transfer amount is negative",
		}
	}
	if cmp, _ := state.Compare(src, amount); cmp < 0 {
		return &OpError{
			Kind: ErrInsufficientValue, Path: o.From.String(),
			Message: fmt.Sprintf("source holds %s, need %s", renderNumber(src), renderNumber(amount)),
		}
	}

	dst, ok := st.Get(o.To)
	if !ok {
		dst = state.Int(0)
	}
	if !isNumericValue(dst) {
		return &OpError{
			Kind: ErrTypeMismatch, Path: o.To.String(),
			Message: fmt.Sprintf("transfer destination is %s, want a number", typeName(dst)),
		}
	}

	newSrc, _ := subValues(src, amount)
	newDst, _ := addValues(dst, amount)
	st.Set(o.From, newSrc)
	st.Set(o.To, newDst)
	return nil
}

func applyMerge(st *state.GameState, o Merge) *OpError {
	cur, ok := st.Get(o.Path)
	if !ok {
		st.Set(o.Path, state.CloneValue(o.Value))
		return nil
	}
	rec, isRec := cur.(state.Record)
	if !isRec {
		return &OpError{
			Kind: ErrTypeMismatch, Path: o.Path.String(),
			Message: fmt.Sprintf("cannot merge into %s", typeName(cur)),
		}
	}
	merged := state.CloneValue(rec).(state.Record)
	for _, k := range o.Value.SortedKeys() {
		merged[k] = state.CloneValue(o.Value[k])
	}
	st.Set(o.Path, merged)
	return nil
}

func applyRandomChoice(st *state.GameState, o RandomChoice, entropy Entropy) *OpError {
	if entropy == nil {
		return &OpError{
			Kind: ErrTypeMismatch, Path: o.Path.String(),
			Message: "randomChoice without an entropy source",
		}
	}
	var total int64
	for _, c := range o.Choices {
		if c.Weight <= 0 {
			return &OpError{
				Kind: ErrTypeMismatch, Path: o.Path.String(),
				Message: fmt.Sprintf("choice weight %d is not positive", c.Weight),
			}
		}
		total += c.Weight
	}
	if total == 0 {
		return &OpError{
			Kind: ErrTypeMismatch, Path: o.Path.String(),
			Message: "randomChoice with no choices",
		}
	}

	// Exactly one draw per op; the drawn concrete value is what gets
	// journaled, so replay re-applies it without consulting entropy again.
	draw := entropy.Int63n(total)
	for _, c := range o.Choices {
		draw -= c.Weight
		if draw < 0 {
			st.Set(o.Path, state.CloneValue(c.Value))
			return nil
		}
	}
	return nil // unreachable: draw < total by construction
}

func applySetAll(st *state.GameState, o SetAll) *OpError {
	for _, id := range st.ParticipantIDs() {
		path, err := state.ParsePath(state.RootParticipants + "." + id + "." + o.Field)
		if err != nil {
			return &OpError{
				Kind: ErrTypeMismatch, Path: o.Field,
				Message: fmt.Sprintf("bad field %q: %v", o.Field, err),
			}
		}
		st.Set(path, state.CloneValue(o.Value))
	}
	return nil
}

func isNumericValue(v state.Value) bool {
	switch v.(type) {
	case state.Int, state.Float:
		return true
	default:
		return false
	}
}

func typeName(v state.Value) string {
	switch v.(type) {
	case nil, state.Null:
		return "null"
	case state.String:
		return "a string"
	case state.Int, state.Float:
		return "a number"
	case state.Bool:
		return "a bool"
	case state.List:
		return "a list"
	case state.Record:
		return "a record"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func renderNumber(v state.Value) string {
	switch n := v.(type) {
	case state.Int:
		return fmt.Sprintf("%d", int64(n))
	case state.Float:
		return fmt.Sprintf("%g", float64(n))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// addValues adds two numbers, keeping Int when both operands are Int.
func addValues(a, b state.Value) (state.Value, bool) {
	if ai, ok := a.(state.Int); ok {
		if bi, ok := b.(state.Int); ok {
			return ai + bi, true
		}
	}
	af, aok := numericFloat(a)
	bf, bok := numericFloat(b)
	if !aok || !bok {
		return nil, false
	}
	return state.Float(af + bf), true
}

func subValues(a, b state.Value) (state.Value, bool) {
	if ai, ok := a.(state.Int); ok {
		if bi, ok := b.(state.Int); ok {
			return ai - bi, true
		}
	}
	af, aok := numericFloat(a)
	bf, bok := numericFloat(b)
	if !aok || !bok {
		return nil, false
	}
	return state.Float(af - bf), true
}

func numericFloat(v state.Value) (float64, bool) {
	switch n := v.(type) {
	case state.Int:
		return float64(n), true
	case state.Float:
		return float64(n), true
	default:
		return 0, false
	}
}

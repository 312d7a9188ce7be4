package cond

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/wrightlabs/gamewright/internal/state"
)

// IssueKind categorizes a structural validation finding.
type IssueKind string

const (
	// IssueMalformed marks an expression the evaluator cannot interpret:
	// unknown operator, wrong arity, missing const value.
	IssueMalformed IssueKind = "EvaluationError"

	// IssueForbiddenReference marks a direct reference into the
	// participant collection. Literal indexes and alias-keyed paths break
	// at arbitrary participant counts; participant access must go through
	// the every/some quantifiers.
	IssueForbiddenReference IssueKind = "ForbiddenReference"
)

// Issue is one validation finding with its position in the tree.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Where   string    `json:"where"`
	Message string    `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s at %s: %s", i.Kind, i.Where, i.Message)
}

// Check validates an expression tree structurally and returns every issue
// found (no fail-fast). A tree with zero issues is safe for runtime
// evaluation: Evaluate will not error on it.
func Check(n *Node) []Issue {
	return check(n, "$")
}

func check(n *Node, where string) []Issue {
	if n == nil {
		return []Issue{{Kind: IssueMalformed, Where: where, Message: "nil expression node"}}
	}

	var issues []Issue

	switch n.Op {
	case OpConst:
		if n.Value == nil {
			issues = append(issues, Issue{Kind: IssueMalformed, Where: where, Message: "const node without value"})
		}
		issues = append(issues, checkArity(n, where, 0)...)

	case OpRef:
		issues = append(issues, checkRefPath(n.Path, where)...)
		issues = append(issues, checkArity(n, where, 0)...)

	case OpNot:
		issues = append(issues, checkArity(n, where, 1)...)

	case OpAnd, OpOr:
		if len(n.Args) == 0 {
			issues = append(issues, Issue{
				Kind:    IssueMalformed,
				Where:   where,
				Message: fmt.Sprintf("%q wants at least 1 operand", n.Op),
			})
		}

	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpIn, OpAdd, OpSub, OpMul, OpLookup:
		issues = append(issues, checkArity(n, where, 2)...)

	case OpEvery, OpSome:
		if n.Field == "" {
			issues = append(issues, Issue{Kind: IssueMalformed, Where: where, Message: "quantifier without field"})
		}
		if !isComparator(n.Cmp) {
			issues = append(issues, Issue{
				Kind:    IssueMalformed,
				Where:   where,
				Message: fmt.Sprintf("invalid quantifier comparator %q", n.Cmp),
			})
		}
		issues = append(issues, checkArity(n, where, 1)...)

	default:
		issues = append(issues, Issue{
			Kind:    IssueMalformed,
			Where:   where,
			Message: fmt.Sprintf("unknown operator %q", n.Op),
		})
	}

	for i, arg := range n.Args {
		issues = append(issues, check(arg, fmt.Sprintf("%s.args[%d]", where, i))...)
	}

	return issues
}

func checkArity(n *Node, where string, want int) []Issue {
	if len(n.Args) == want {
		return nil
	}
	return []Issue{{
		Kind:    IssueMalformed,
		Where:   where,
		Message: fmt.Sprintf("%q wants %d operand(s), got %d", n.Op, want, len(n.Args)),
	}}
}

// checkRefPath validates a ref path. Conditions may reference shared
// state only: the participant collection is reachable exclusively through
// the implicit iteration of every/some.
func checkRefPath(raw, where string) []Issue {
	p, err := state.ParsePath(raw)
	if err != nil {
		return []Issue{{Kind: IssueMalformed, Where: where, Message: err.Error()}}
	}

	if p.Root() != state.RootParticipants {
		return nil
	}

	key, _ := p.ParticipantKey()
	msg := fmt.Sprintf("alias-keyed participant access %q outside a quantifier", raw)
	if isNumeric(key) {
		msg = fmt.Sprintf("literal participant index %q", raw)
	}
	return []Issue{{Kind: IssueForbiddenReference, Where: where, Message: msg}}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// HasForbiddenReference reports whether any issue is a forbidden
// participant reference. Such an artifact must not be committed.
func HasForbiddenReference(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Kind == IssueForbiddenReference {
			return true
		}
	}
	return false
}

// FormatIssues renders issues one per line for error reports.
func FormatIssues(issues []Issue) string {
	lines := make([]string, len(issues))
	for i, issue := range issues {
		lines[i] = issue.String()
	}
	return strings.Join(lines, "\n")
}

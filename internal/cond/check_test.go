package cond

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrightlabs/gamewright/internal/state"
)

func TestCheck_ValidTree(t *testing.T) {
	expr := &Node{Op: OpAnd, Args: []*Node{
		Binary(OpGe, Ref("shared.round"), Const(state.Int(1))),
		Every("ready", OpEq, Const(state.Bool(true))),
	}}

	assert.Empty(t, Check(expr))
}

// TestCheck_ForbiddenReferences verifies literal participant indexing and
// alias-keyed access are both rejected; these break at arbitrary
// participant counts.
func TestCheck_ForbiddenReferences(t *testing.T) {
	byIndex := Binary(OpEq, Ref("participants.0.score"), Const(state.Int(1)))
	issues := Check(byIndex)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueForbiddenReference, issues[0].Kind)
	assert.Contains(t, issues[0].Message, "literal participant index")
	assert.True(t, HasForbiddenReference(issues))

	byAlias := Binary(OpEq, Ref("participants.player1.score"), Const(state.Int(1)))
	issues = Check(byAlias)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueForbiddenReference, issues[0].Kind)
	assert.Contains(t, issues[0].Message, "alias-keyed")
}

// TestCheck_QuantifierAccessAllowed: participant access through the
// quantifiers is the sanctioned form and raises no issue.
func TestCheck_QuantifierAccessAllowed(t *testing.T) {
	assert.Empty(t, Check(Every("score", OpGe, Const(state.Int(10)))))
	assert.Empty(t, Check(Some("ready", OpEq, Const(state.Bool(true)))))
}

// TestCheck_AccumulatesAllIssues verifies validation reports every issue
// in one pass rather than stopping at the first.
func TestCheck_AccumulatesAllIssues(t *testing.T) {
	expr := &Node{Op: OpAnd, Args: []*Node{
		{Op: "bogus"},
		{Op: OpEq, Args: []*Node{Const(state.Int(1))}},  // wrong arity
		{Op: OpConst},                                   // missing value
		{Op: OpEvery, Field: "", Cmp: "nope"},           // bad quantifier
		Binary(OpEq, Ref("participants.2.hp"), Const(state.Int(0))),
	}}

	issues := Check(expr)
	assert.GreaterOrEqual(t, len(issues), 5)
	assert.True(t, HasForbiddenReference(issues))
}

func TestCheck_UnknownOperator(t *testing.T) {
	issues := Check(&Node{Op: "xor"})
	require.Len(t, issues, 1)
	assert.Equal(t, IssueMalformed, issues[0].Kind)
}

func TestNode_JSONRoundTrip(t *testing.T) {
	expr := &Node{Op: OpOr, Args: []*Node{
		Binary(OpEq, Ref("shared.phase"), Const(state.String("scoring"))),
		Every("score", OpGe, Const(state.Int(10))),
		{Op: OpLookup, Args: []*Node{Ref("shared.deck"), Const(state.Int(0))}},
	}}

	data, err := json.Marshal(expr)
	require.NoError(t, err)

	var decoded Node
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, OpOr, decoded.Op)
	require.Len(t, decoded.Args, 3)
	assert.Equal(t, OpEvery, decoded.Args[1].Op)
	assert.Equal(t, "score", decoded.Args[1].Field)
	assert.True(t, state.Equal(state.Int(10), decoded.Args[1].Args[0].Value))
	assert.Empty(t, Check(&decoded))
}

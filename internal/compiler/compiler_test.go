package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrightlabs/gamewright/internal/artifact"
)

func newCompiler(t *testing.T) *Compiler {
	t.Helper()
	c, err := New()
	require.NoError(t, err)
	return c
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestCompileStateSchema_Valid(t *testing.T) {
	c := newCompiler(t)

	schema, errs := c.CompileStateSchema([]byte(`{
		"shared": {"round": "int", "phase": "string", "deck": "list"},
		"participant": {"gold": "int", "ready": "bool", "hand": "record"}
	}`))

	assert.Empty(t, errs)
	ft, ok := schema.SharedField("round")
	require.True(t, ok)
	assert.Equal(t, artifact.TypeInt, ft)
}

func TestCompileStateSchema_RejectsBadFieldType(t *testing.T) {
	c := newCompiler(t)

	_, errs := c.CompileStateSchema([]byte(`{
		"shared": {"round": "float"},
		"participant": {}
	}`))

	require.NotEmpty(t, errs)
	for _, e := range errs {
		assert.Equal(t, KindSchemaViolation, e.Kind)
	}
}

func TestCompileStateSchema_RejectsMissingSection(t *testing.T) {
	c := newCompiler(t)

	_, errs := c.CompileStateSchema([]byte(`{"shared": {}}`))
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrShapeViolation, errs[0].Code)
}

func TestCompileTransitionGraph_Valid(t *testing.T) {
	c := newCompiler(t)

	graph, errs := c.CompileTransitionGraph([]byte(`{
		"phases": ["setup", "play", "scoring"],
		"initial": "setup",
		"rules": [{
			"id": "start",
			"fromPhase": "setup",
			"toPhase": "play",
			"preconditions": [
				{"op": "every", "field": "ready", "cmp": "eq", "args": [{"op": "const", "value": true}]}
			]
		}]
	}`))

	assert.Empty(t, errs)
	assert.Equal(t, "setup", graph.Initial)
	require.Len(t, graph.Rules, 1)
	require.Len(t, graph.Rules[0].Preconditions, 1)
}

// TestCompileTransitionGraph_AccumulatesAllErrors feeds one payload with
// several independent defects and expects every one reported.
func TestCompileTransitionGraph_AccumulatesAllErrors(t *testing.T) {
	c := newCompiler(t)

	_, errs := c.CompileTransitionGraph([]byte(`{
		"phases": ["setup", "setup", "play"],
		"initial": "lobby",
		"rules": [
			{"id": "r1", "fromPhase": "setup", "toPhase": "nowhere", "preconditions": []},
			{"id": "r1", "fromPhase": "play", "toPhase": "play", "preconditions": []}
		]
	}`))

	got := codes(errs)
	assert.Contains(t, got, ErrDuplicatePhase)
	assert.Contains(t, got, ErrUnknownInitialPhase)
	assert.Contains(t, got, ErrUnknownPhase)
	assert.Contains(t, got, ErrDuplicateRuleID)
	assert.Contains(t, got, ErrSelfLoop)
}

// TestCompileTransitionGraph_ForbiddenReference: conditions addressing
// participants directly are rejected with the ForbiddenReference kind.
func TestCompileTransitionGraph_ForbiddenReference(t *testing.T) {
	c := newCompiler(t)

	_, errs := c.CompileTransitionGraph([]byte(`{
		"phases": ["setup", "play"],
		"initial": "setup",
		"rules": [{
			"id": "start",
			"fromPhase": "setup",
			"toPhase": "play",
			"preconditions": [
				{"op": "eq", "args": [
					{"op": "ref", "path": "participants.0.ready"},
					{"op": "const", "value": true}
				]}
			]
		}]
	}`))

	require.NotEmpty(t, errs)
	assert.Equal(t, ErrForbiddenReference, errs[0].Code)
	assert.Equal(t, KindForbiddenReference, errs[0].Kind)
}

func TestCompileTransitionGraph_MalformedCondition(t *testing.T) {
	c := newCompiler(t)

	_, errs := c.CompileTransitionGraph([]byte(`{
		"phases": ["setup", "play"],
		"initial": "setup",
		"rules": [{
			"id": "start",
			"fromPhase": "setup",
			"toPhase": "play",
			"preconditions": [{"op": "frobnicate"}]
		}]
	}`))

	require.NotEmpty(t, errs)
	assert.Equal(t, ErrMalformedCondition, errs[0].Code)
	assert.Equal(t, KindEvaluationError, errs[0].Kind)
}

func intSchema() *artifact.StateSchema {
	return &artifact.StateSchema{
		Shared: map[string]artifact.FieldType{
			"round": artifact.TypeInt,
			"pot":   artifact.TypeInt,
			"phase": artifact.TypeString,
		},
		Participant: map[string]artifact.FieldType{
			"gold":  artifact.TypeInt,
			"ready": artifact.TypeBool,
		},
	}
}

func TestCompileTemplates_Valid(t *testing.T) {
	c := newCompiler(t)

	lib, errs := c.CompileTemplates([]byte(`{
		"templates": [{
			"id": "t-end-turn",
			"event": "endTurn",
			"ops": [
				{"kind": "increment", "path": "shared.round", "amount": 1},
				{"kind": "setForAllParticipants", "field": "ready", "value": false},
				{"kind": "transfer", "from": "participants.player1.gold", "to": "shared.pot", "amount": 5}
			]
		}]
	}`), intSchema())

	assert.Empty(t, errs)
	require.Len(t, lib.Templates, 1)
	assert.Len(t, lib.Templates[0].Ops, 3)
}

func TestCompileTemplates_ShapeViolations(t *testing.T) {
	c := newCompiler(t)

	_, errs := c.CompileTemplates([]byte(`{
		"templates": [{
			"id": "t1",
			"event": "deal",
			"ops": [{"kind": "teleport", "path": "shared.round"}]
		}]
	}`), nil)

	require.NotEmpty(t, errs)
	assert.Equal(t, KindSchemaViolation, errs[0].Kind)
}

// TestCompileTemplates_FloatOnIntField: a non-integral number aimed at a
// declared int field is a TypeMismatch, not a shape error.
func TestCompileTemplates_FloatOnIntField(t *testing.T) {
	c := newCompiler(t)

	_, errs := c.CompileTemplates([]byte(`{
		"templates": [{
			"id": "t1",
			"event": "bonus",
			"ops": [{"kind": "increment", "path": "shared.round", "amount": 1.5}]
		}]
	}`), intSchema())

	require.NotEmpty(t, errs)
	assert.Equal(t, ErrNonIntegralMechanical, errs[0].Code)
	assert.Equal(t, KindTypeMismatch, errs[0].Kind)
}

func TestCompileTemplates_UndeclaredField(t *testing.T) {
	c := newCompiler(t)

	_, errs := c.CompileTemplates([]byte(`{
		"templates": [{
			"id": "t1",
			"event": "deal",
			"ops": [{"kind": "set", "path": "shared.secretStash", "value": 1}]
		}]
	}`), intSchema())

	require.NotEmpty(t, errs)
	assert.Equal(t, ErrUndeclaredField, errs[0].Code)
}

// TestCompileTemplates_SelfTransfer: a transfer whose source and
// destination are the same path is flagged with or without a schema
// anchor.
func TestCompileTemplates_SelfTransfer(t *testing.T) {
	c := newCompiler(t)

	payload := []byte(`{
		"templates": [{
			"id": "t1",
			"event": "churn",
			"ops": [{"kind": "transfer", "from": "shared.pot", "to": "shared.pot", "amount": 3}]
		}]
	}`)

	_, errs := c.CompileTemplates(payload, nil)
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrSelfTransfer, errs[0].Code)

	_, errs = c.CompileTemplates(payload, intSchema())
	assert.Contains(t, codes(errs), ErrSelfTransfer)
}

func TestCompileTemplates_DuplicateBindings(t *testing.T) {
	c := newCompiler(t)

	_, errs := c.CompileTemplates([]byte(`{
		"templates": [
			{"id": "t1", "event": "deal", "ops": []},
			{"id": "t1", "event": "deal", "ops": []}
		]
	}`), nil)

	got := codes(errs)
	assert.Contains(t, got, ErrDuplicateTemplateID)
	assert.Contains(t, got, ErrDuplicateTemplateEvent)
}

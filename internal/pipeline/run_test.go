package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrightlabs/gamewright/internal/artifact"
)

// scriptedCollab replays canned outputs and records every request.
type scriptedCollab struct {
	outputs [][]byte
	reqs    []Request
}

func (c *scriptedCollab) Generate(_ context.Context, req Request) ([]byte, error) {
	c.reqs = append(c.reqs, req)
	i := len(c.reqs) - 1
	if i >= len(c.outputs) {
		i = len(c.outputs) - 1
	}
	return c.outputs[i], nil
}

// blockingCollab waits out the context: every attempt times out.
type blockingCollab struct{ calls int }

func (c *blockingCollab) Generate(ctx context.Context, _ Request) ([]byte, error) {
	c.calls++
	<-ctx.Done()
	return nil, ctx.Err()
}

type seqIDs struct{ n int }

func (g *seqIDs) NewID() string {
	g.n++
	return fmt.Sprintf("env-%03d", g.n)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testOpts = []Option{
	WithIDGenerator(&seqIDs{}),
	WithClock(fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}),
}

const validSchema = `{
	"shared": {"round": "int", "phase": "string"},
	"participant": {"gold": "int", "ready": "bool"}
}`

func TestExtract_CommitsOnFirstValidAttempt(t *testing.T) {
	collab := &scriptedCollab{outputs: [][]byte{[]byte(validSchema)}}
	p, err := New(collab, testOpts...)
	require.NoError(t, err)

	env, err := p.Extract(context.Background(), artifact.KindStateSchema, "spec text", nil)
	require.NoError(t, err)

	assert.False(t, env.Escalated)
	assert.Equal(t, 0, env.RetryCount)
	assert.Empty(t, env.Errors)
	assert.Len(t, collab.reqs, 1)

	schema, err := env.DecodeStateSchema()
	require.NoError(t, err)
	assert.Contains(t, schema.Shared, "round")
}

// TestExtract_RetryTermination: with maxAttempts=N and output that never
// validates, the collaborator runs exactly N times and the artifact
// escalates with every attempt's errors retained.
func TestExtract_RetryTermination(t *testing.T) {
	collab := &scriptedCollab{outputs: [][]byte{[]byte(`{"shared": {}}`)}}
	p, err := New(collab, append(testOpts, WithMaxAttempts(3))...)
	require.NoError(t, err)

	env, err := p.Extract(context.Background(), artifact.KindStateSchema, "spec", nil)

	require.Error(t, err)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)

	assert.Len(t, collab.reqs, 3)
	assert.True(t, env.Escalated)
	assert.Equal(t, 3, env.RetryCount)
	assert.NotEmpty(t, env.Errors)

	// History spans all attempts.
	joined := fmt.Sprint(env.Errors)
	assert.Contains(t, joined, "attempt 1:")
	assert.Contains(t, joined, "attempt 3:")
}

// TestExtract_RepairUsesErrorContext: the second attempt sees the first
// attempt's output and errors, and a repaired payload commits.
func TestExtract_RepairUsesErrorContext(t *testing.T) {
	bad := []byte(`{"shared": {"round": "float"}, "participant": {}}`)
	collab := &scriptedCollab{outputs: [][]byte{bad, []byte(validSchema)}}
	p, err := New(collab, testOpts...)
	require.NoError(t, err)

	env, err := p.Extract(context.Background(), artifact.KindStateSchema, "spec", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, env.RetryCount)
	require.Len(t, collab.reqs, 2)

	first, second := collab.reqs[0], collab.reqs[1]
	assert.Equal(t, 1, first.Attempt)
	assert.Empty(t, first.Errors)
	assert.Equal(t, 2, second.Attempt)
	assert.Equal(t, bad, second.PriorOutput)
	assert.NotEmpty(t, second.Errors)
}

// TestExtract_StageTimeoutCountsAsFailure: a collaborator that never
// returns within the stage budget burns attempts instead of hanging or
// killing the run.
func TestExtract_StageTimeoutCountsAsFailure(t *testing.T) {
	collab := &blockingCollab{}
	p, err := New(collab, append(testOpts,
		WithMaxAttempts(2),
		WithStageTimeout(10*time.Millisecond))...)
	require.NoError(t, err)

	env, err := p.Extract(context.Background(), artifact.KindStateSchema, "spec", nil)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, collab.calls)
	assert.True(t, env.Escalated)
}

func TestExtract_ParentCancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	collab := &scriptedCollab{outputs: [][]byte{[]byte(validSchema)}}
	p, err := New(collab, testOpts...)
	require.NoError(t, err)

	_, err = p.Extract(ctx, artifact.KindStateSchema, "spec", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, collab.reqs)
}

// TestExtract_NonJSONOutputIsShapeViolation: free-text output from the
// collaborator is caught by the raw gate and retried.
func TestExtract_NonJSONOutputIsShapeViolation(t *testing.T) {
	collab := &scriptedCollab{outputs: [][]byte{
		[]byte("Sure! Here is the schema you asked for."),
		[]byte(validSchema),
	}}
	p, err := New(collab, testOpts...)
	require.NoError(t, err)

	env, err := p.Extract(context.Background(), artifact.KindStateSchema, "spec", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, env.RetryCount)
}

// kindRouter serves different payloads per artifact kind.
type kindRouter struct {
	byKind map[artifact.Kind][][]byte
	calls  map[artifact.Kind]int
}

func (r *kindRouter) Generate(_ context.Context, req Request) ([]byte, error) {
	if r.calls == nil {
		r.calls = map[artifact.Kind]int{}
	}
	outs := r.byKind[req.Kind]
	i := r.calls[req.Kind]
	if i >= len(outs) {
		i = len(outs) - 1
	}
	r.calls[req.Kind]++
	return outs[i], nil
}

func TestExtractAll_ThreadsCommittedSchemaIntoTemplates(t *testing.T) {
	graph := `{
		"phases": ["setup", "play"],
		"initial": "setup",
		"rules": [{"id": "start", "fromPhase": "setup", "toPhase": "play", "preconditions": []}]
	}`
	// First template output writes a float to an int field; the retry
	// fixes it. This only fails if the committed schema reached template
	// validation.
	badTemplates := `{"templates": [{"id": "t1", "event": "endTurn",
		"ops": [{"kind": "increment", "path": "shared.round", "amount": 0.5}]}]}`
	goodTemplates := `{"templates": [{"id": "t1", "event": "endTurn",
		"ops": [{"kind": "increment", "path": "shared.round", "amount": 1}]}]}`

	collab := &kindRouter{byKind: map[artifact.Kind][][]byte{
		artifact.KindStateSchema:       {[]byte(validSchema)},
		artifact.KindTransitionGraph:   {[]byte(graph)},
		artifact.KindMutationTemplates: {[]byte(badTemplates), []byte(goodTemplates)},
	}}

	p, err := New(collab, testOpts...)
	require.NoError(t, err)

	arts, err := p.ExtractAll(context.Background(), "spec")
	require.NoError(t, err)

	assert.Equal(t, 2, collab.calls[artifact.KindMutationTemplates])
	require.Len(t, arts.Envelopes, 3)
	assert.Equal(t, "setup", arts.Graph.Initial)

	tmpl, ok := arts.Templates.ByEvent("endTurn")
	require.True(t, ok)
	assert.Equal(t, "t1", tmpl.ID)
}

func TestExtractAll_EscalationAbortsRun(t *testing.T) {
	collab := &kindRouter{byKind: map[artifact.Kind][][]byte{
		artifact.KindStateSchema:       {[]byte(`{"shared": {}}`)}, // never valid
		artifact.KindTransitionGraph:   {[]byte(`{}`)},
		artifact.KindMutationTemplates: {[]byte(`{}`)},
	}}

	p, err := New(collab, append(testOpts, WithMaxAttempts(2))...)
	require.NoError(t, err)

	arts, err := p.ExtractAll(context.Background(), "spec")

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, artifact.KindStateSchema, exhausted.Kind)

	// Later kinds never ran; the escalated envelope is still surfaced for
	// persistence.
	assert.Zero(t, collab.calls[artifact.KindTransitionGraph])
	require.Len(t, arts.Envelopes, 1)
	assert.True(t, arts.Envelopes[0].Escalated)
}

func TestNew_RejectsZeroAttempts(t *testing.T) {
	_, err := New(&scriptedCollab{outputs: [][]byte{nil}}, WithMaxAttempts(0))
	assert.Error(t, err)
}

package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrightlabs/gamewright/internal/state"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	sc, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return sc
}

func TestScenario_TwoPlayerRounds(t *testing.T) {
	sc := loadTestScenario(t, "two-player-rounds")
	res := Run(t, sc)
	Golden(t, res)
}

func TestScenario_InsufficientAnte(t *testing.T) {
	sc := loadTestScenario(t, "insufficient-ante")
	res := Run(t, sc)

	require.Len(t, res.Trace, 1)
	for _, failure := range res.Trace[0].Errors {
		// Both expanded transfers trace back to the single authored op.
		assert.Equal(t, 0, failure.OpIndex)
	}
	_, ok := res.Final.Get(state.MustParsePath("shared.pot"))
	assert.False(t, ok, "failed transfer must not initialize the destination")
}

// TestScenario_RunsAreDeterministic: the same scenario produces
// digest-identical journals run to run.
func TestScenario_RunsAreDeterministic(t *testing.T) {
	sc := loadTestScenario(t, "two-player-rounds")

	first := Run(t, sc)
	second := Run(t, sc)

	require.Equal(t, len(first.Trace), len(second.Trace))
	for i := range first.Trace {
		assert.Equal(t, first.Trace[i].Digest, second.Trace[i].Digest, "step %d", i)
	}
	assert.True(t, first.Final.Equal(second.Final))
}

func TestExecute_ReportsAssertionFailures(t *testing.T) {
	sc := loadTestScenario(t, "two-player-rounds")
	sc.Expect["shared.pot"] = 99

	res, err := Execute(sc, nil)
	require.NoError(t, err)
	assert.False(t, res.Passed())
	assert.Contains(t, res.Failures[len(res.Failures)-1], `expect "shared.pot"`)
}

func TestExecute_UnknownEventAborts(t *testing.T) {
	sc := loadTestScenario(t, "two-player-rounds")
	sc.Steps = append(sc.Steps, Step{Event: "unbound"})

	_, err := Execute(sc, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no template for event "unbound"`)
}

func TestLoadScenario_RejectsUnknownKeys(t *testing.T) {
	path := writeScenarioFile(t, `
name: typo
aliases: [a]
graph: {phases: [p], initial: p, rules: []}
templates:
  - {id: t, event: e, ops: []}
steps:
  - event: e
expectt:
  shared.x: 1
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expectt")
}

func TestLoadScenario_AccumulatesValidationErrors(t *testing.T) {
	path := writeScenarioFile(t, `
description: missing almost everything
participants:
  ghost: {gold: 1}
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "at least one alias is required")
	assert.Contains(t, err.Error(), `participant "ghost" is not a declared alias`)
	assert.Contains(t, err.Error(), "at least one step is required")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func writeScenarioFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

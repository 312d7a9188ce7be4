package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: round-advance
aliases: [solo]
shared:
  round: 0
participants:
  solo:
    gold: 1
graph:
  phases: [play]
  initial: play
  rules: []
templates:
  - id: advance
    event: endTurn
    ops:
      - kind: increment
        path: shared.round
        amount: 1
steps:
  - event: endTurn
expect:
  shared.round: 1
`

const failingScenario = `name: wrong-expectation
aliases: [solo]
shared:
  round: 0
participants:
  solo:
    gold: 1
graph:
  phases: [play]
  initial: play
  rules: []
templates:
  - id: advance
    event: endTurn
    ops:
      - kind: increment
        path: shared.round
        amount: 1
steps:
  - event: endTurn
expect:
  shared.round: 5
`

func TestTestCommand_PassingScenario(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "round-advance.yaml", passingScenario)

	out, err := execCLI(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ round-advance")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "wrong-expectation.yaml", failingScenario)

	out, err := execCLI(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong-expectation")
	assert.Contains(t, out, `expect "shared.round"`)
}

func TestTestCommand_Filter(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "round-advance.yaml", passingScenario)
	writeTestFile(t, dir, "wrong-expectation.yaml", failingScenario)

	out, err := execCLI(t, "test", dir, "--filter", "round-*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_GoldenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	golden := filepath.Join(dir, "golden")
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.Mkdir(scenarios, 0o755))
	writeTestFile(t, scenarios, "round-advance.yaml", passingScenario)

	// First pass records the snapshot, second compares against it.
	_, err := execCLI(t, "test", scenarios, "--golden", golden, "--update")
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(golden, "round-advance.golden"))

	_, err = execCLI(t, "test", scenarios, "--golden", golden)
	require.NoError(t, err)

	// A tampered golden file is a failure.
	require.NoError(t, os.WriteFile(filepath.Join(golden, "round-advance.golden"), []byte("{}"), 0o644))
	out, err := execCLI(t, "test", scenarios, "--golden", golden)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "snapshot differs")
}

func TestTestCommand_NoScenarios(t *testing.T) {
	out, err := execCLI(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommand_MissingDirectory(t *testing.T) {
	_, err := execCLI(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

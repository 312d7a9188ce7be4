package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrightlabs/gamewright/internal/artifact"
	"github.com/wrightlabs/gamewright/internal/store"
)

func setupCandidates(t *testing.T, graphPayload string) (dbPath, specPath, candidatesDir string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "gamewright.db")
	specPath = writeTestFile(t, dir, "rules.txt", "Players ante into a pot each round.")

	candidatesDir = filepath.Join(dir, "candidates")
	require.NoError(t, os.Mkdir(candidatesDir, 0o755))
	writeTestFile(t, candidatesDir, "stateSchema.json", validSchemaPayload)
	writeTestFile(t, candidatesDir, "transitionGraph.json", graphPayload)
	writeTestFile(t, candidatesDir, "mutationTemplates.json", validTemplatesPayload)
	return dbPath, specPath, candidatesDir
}

func TestExtractCommand_CommitsAllKinds(t *testing.T) {
	dbPath, spec, candidates := setupCandidates(t, validGraphPayload)

	out, err := execCLI(t, "extract", spec, "--db", dbPath, "--candidates", candidates)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ committed stateSchema")
	assert.Contains(t, out, "✓ committed transitionGraph")
	assert.Contains(t, out, "✓ committed mutationTemplates")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	for _, kind := range artifact.Kinds() {
		env, err := st.LatestCommitted(context.Background(), kind)
		require.NoError(t, err, "kind %s", kind)
		assert.Equal(t, 0, env.RetryCount)
	}
}

// TestExtractCommand_EscalationPersists: a kind that never validates
// exhausts its budget, exits 1, and leaves the escalated envelope (and
// the committed ones before it) in the store.
func TestExtractCommand_EscalationPersists(t *testing.T) {
	badGraph := `{"phases": ["setup"], "initial": "lobby", "rules": []}`
	dbPath, spec, candidates := setupCandidates(t, badGraph)

	_, err := execCLI(t, "extract", spec, "--db", dbPath, "--candidates", candidates, "--max-attempts", "2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	_, err = st.LatestCommitted(ctx, artifact.KindStateSchema)
	require.NoError(t, err, "schema committed before the graph escalated")

	_, err = st.LatestCommitted(ctx, artifact.KindTransitionGraph)
	assert.ErrorIs(t, err, store.ErrNotFound)

	escalated, err := st.ListEscalated(ctx)
	require.NoError(t, err)
	require.Len(t, escalated, 1)
	assert.Equal(t, artifact.KindTransitionGraph, escalated[0].Kind)
	assert.Len(t, escalated[0].Errors, 2) // one finding per attempt
}

// TestExtractCommand_StagedRepairCommits: an attempt-specific candidate
// repairs the first attempt's failure.
func TestExtractCommand_StagedRepairCommits(t *testing.T) {
	badGraph := `{"phases": ["setup"], "initial": "lobby", "rules": []}`
	dbPath, spec, candidates := setupCandidates(t, badGraph)
	writeTestFile(t, candidates, "transitionGraph.attempt2.json", validGraphPayload)

	out, err := execCLI(t, "extract", spec, "--db", dbPath, "--candidates", candidates)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ committed transitionGraph")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	env, err := st.LatestCommitted(context.Background(), artifact.KindTransitionGraph)
	require.NoError(t, err)
	assert.Equal(t, 1, env.RetryCount)
}

func TestExtractCommand_MissingSpec(t *testing.T) {
	dir := t.TempDir()
	_, err := execCLI(t, "extract", filepath.Join(dir, "missing.txt"),
		"--db", filepath.Join(dir, "db"), "--candidates", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEscalationsCommand(t *testing.T) {
	badGraph := `{"phases": ["setup"], "initial": "lobby", "rules": []}`
	dbPath, spec, candidates := setupCandidates(t, badGraph)

	out, err := execCLI(t, "escalations", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No escalations.")

	_, err = execCLI(t, "extract", spec, "--db", dbPath, "--candidates", candidates, "--max-attempts", "1")
	require.Error(t, err)

	out, err = execCLI(t, "escalations", "--db", dbPath, "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "1 escalation(s)")
	assert.Contains(t, out, "transitionGraph")
	assert.Contains(t, out, "attempt 1:")
}

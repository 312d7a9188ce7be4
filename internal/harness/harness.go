package harness

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wrightlabs/gamewright/internal/alias"
	"github.com/wrightlabs/gamewright/internal/match"
	"github.com/wrightlabs/gamewright/internal/state"
)

// Result is the outcome of one scenario run. Failures holds assertion
// mismatches (wrong phase, wrong failure count, unmet expect entries);
// hard errors (unloadable artifacts, unknown events) abort the run
// instead.
type Result struct {
	Scenario *Scenario
	Aliases  alias.Map
	Final    *state.GameState
	Trace    []match.StepRecord
	Failures []string
}

// Passed reports whether every scripted assertion held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// sequentialIDs mints "prefix-001", "prefix-002", ... so scenario
// fixtures can address concrete participant ids and reruns reproduce
// the same seating.
type sequentialIDs struct {
	prefix string
	n      int
}

func (g *sequentialIDs) NewID() string {
	g.n++
	return fmt.Sprintf("%s-%03d", g.prefix, g.n)
}

// Execute runs a scenario from its opening state through every scripted
// step. Concrete participant ids are minted sequentially ("p-001",
// "p-002", ...) in sorted alias order. A nil logger discards runtime
// logs.
func Execute(sc *Scenario, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	m, aliases, err := seat(sc, logger)
	if err != nil {
		return nil, err
	}
	res := &Result{Scenario: sc, Aliases: aliases}

	for i, step := range sc.Steps {
		rec, err := m.Step(step.Event)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Event, err)
		}
		if step.ExpectPhase != "" && rec.Phase != step.ExpectPhase {
			res.Failures = append(res.Failures,
				fmt.Sprintf("step %d (%s): phase %q, want %q", i, step.Event, rec.Phase, step.ExpectPhase))
		}
		if len(rec.Errors) != step.ExpectErrors {
			res.Failures = append(res.Failures,
				fmt.Sprintf("step %d (%s): %d op failure(s), want %d", i, step.Event, len(rec.Errors), step.ExpectErrors))
		}
		res.Trace = append(res.Trace, rec)
	}

	res.Final = m.State()
	res.Failures = append(res.Failures, checkExpectations(sc, res.Final)...)
	return res, nil
}

// Run executes a scenario inside a test, reporting every assertion
// failure through t.
func Run(t *testing.T, sc *Scenario) *Result {
	t.Helper()

	res, err := Execute(sc, nil)
	require.NoError(t, err, "scenario %s", sc.Name)
	for _, f := range res.Failures {
		t.Errorf("scenario %s: %s", sc.Name, f)
	}
	return res
}

func seat(sc *Scenario, logger *slog.Logger) (*match.Match, alias.Map, error) {
	aliases, err := alias.Assign(sc.Aliases, &sequentialIDs{prefix: "p"})
	if err != nil {
		return nil, alias.Map{}, fmt.Errorf("assign aliases: %w", err)
	}

	graph, err := sc.graph()
	if err != nil {
		return nil, alias.Map{}, err
	}
	templates, err := sc.templates()
	if err != nil {
		return nil, alias.Map{}, err
	}

	initial := state.New()
	shared, err := state.FromGo(sc.Shared)
	if err != nil {
		return nil, alias.Map{}, fmt.Errorf("shared state: %w", err)
	}
	initial.Shared = shared.(state.Record)

	// Every declared alias gets a record, even if the fixture leaves it
	// empty, so wildcard expansion covers the full seating.
	for _, a := range aliases.Aliases() {
		id, _ := aliases.Resolve(a)
		rec, err := state.FromGo(sc.Participants[a])
		if err != nil {
			return nil, alias.Map{}, fmt.Errorf("participant %q state: %w", a, err)
		}
		initial.Participants[id] = rec.(state.Record)
	}

	m, err := match.New(match.Config{
		ID:        sc.Name,
		Graph:     graph,
		Templates: templates,
		Aliases:   aliases,
		Initial:   initial,
		Seed:      sc.Seed,
		Logger:    logger,
	})
	if err != nil {
		return nil, alias.Map{}, fmt.Errorf("seat match: %w", err)
	}
	return m, aliases, nil
}

// checkExpectations compares the final state against the scenario's
// expect block, keyed by concrete dotted paths.
func checkExpectations(sc *Scenario, final *state.GameState) []string {
	keys := make([]string, 0, len(sc.Expect))
	for k := range sc.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var failures []string
	for _, raw := range keys {
		p, err := state.ParsePath(raw)
		if err != nil {
			failures = append(failures, fmt.Sprintf("expect path %q: %v", raw, err))
			continue
		}
		want, err := state.FromGo(sc.Expect[raw])
		if err != nil {
			failures = append(failures, fmt.Sprintf("expect value for %q: %v", raw, err))
			continue
		}

		got, ok := final.Get(p)
		if !ok {
			failures = append(failures, fmt.Sprintf("expect %q: path absent", raw))
			continue
		}
		if !state.Equal(want, got) {
			failures = append(failures, fmt.Sprintf("expect %q: want %v, got %v", raw, want, got))
		}
	}
	return failures
}

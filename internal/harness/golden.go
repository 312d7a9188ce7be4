package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/wrightlabs/gamewright/internal/state"
)

// Golden asserts a run's snapshot against the scenario's golden file
// under testdata/golden. The snapshot is canonical JSON of the final
// state plus the observable trace; digests are excluded so fixtures
// stay reviewable by hand.
func Golden(t *testing.T, res *Result) {
	t.Helper()

	snap, err := Snapshot(res)
	require.NoError(t, err, "build snapshot")

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, res.Scenario.Name, snap)
}

// Snapshot renders a run as canonical JSON for golden comparison.
func Snapshot(res *Result) ([]byte, error) {
	trace := make(state.List, 0, len(res.Trace))
	for _, rec := range res.Trace {
		entry := state.Record{
			"event": state.String(rec.Event),
			"phase": state.String(rec.Phase),
			"seq":   state.Int(rec.Seq),
		}
		if rec.Rule != "" {
			entry["rule"] = state.String(rec.Rule)
		}
		if len(rec.Errors) > 0 {
			entry["failures"] = state.Int(int64(len(rec.Errors)))
		}
		trace = append(trace, entry)
	}

	participants := make(state.Record, len(res.Final.Participants))
	for id, rec := range res.Final.Participants {
		participants[id] = rec
	}

	return state.MarshalCanonical(state.Record{
		"scenario": state.String(res.Scenario.Name),
		"finalState": state.Record{
			"shared":       res.Final.Shared,
			"participants": participants,
		},
		"trace": trace,
	})
}

// Package reconcile combines a generatively-produced state snapshot with
// the deterministically-computed one for the same event. Generative
// expansions may intentionally diverge per participant; mechanical fields
// (scores, counters, transfers) must never silently vanish when the
// generative step forgets them.
package reconcile

import (
	"sort"

	"github.com/wrightlabs/gamewright/internal/mutate"
	"github.com/wrightlabs/gamewright/internal/state"
)

// TouchedPaths is the set of state paths the generative step is known to
// have explicitly written. Membership is exact-path, not prefix.
type TouchedPaths map[string]struct{}

// NewTouchedPaths builds the set from dotted path strings.
func NewTouchedPaths(paths ...string) TouchedPaths {
	t := make(TouchedPaths, len(paths))
	for _, p := range paths {
		t[p] = struct{}{}
	}
	return t
}

// Contains reports exact-path membership.
func (t TouchedPaths) Contains(p state.Path) bool {
	_, ok := t[p.String()]
	return ok
}

// Sorted returns the member paths in ascending order, for logs and tests.
func (t TouchedPaths) Sorted() []string {
	out := make([]string, 0, len(t))
	for p := range t {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Merge starts from the generated snapshot and walks every path a
// deterministic op targeted (a transfer's destination path). A path the
// generative step explicitly touched keeps its generative value; every
// other targeted path is backfilled from the deterministic state.
// Path-level precedence preserves intentional per-participant divergence
// while guaranteeing mechanical fields survive. Neither input is mutated.
func Merge(generated, deterministic *state.GameState, ops []mutate.Op, touched TouchedPaths) *state.GameState {
	final := generated.Clone()
	participantIDs := deterministic.ParticipantIDs()

	for _, op := range ops {
		for _, path := range mutate.TargetPaths(op, participantIDs) {
			if touched.Contains(path) {
				continue
			}
			v, ok := deterministic.Get(path)
			if !ok {
				// Deterministic delete: mirror the removal.
				final.Delete(path)
				continue
			}
			final.Set(path, state.CloneValue(v))
		}
	}

	return final
}

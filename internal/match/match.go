// Package match is the deterministic single-writer runtime for one game
// instance. It binds committed artifacts to a seated participant set,
// applies event batches through the identity and mutation layers, gates
// phase transitions on the committed graph, and journals every step.
package match

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/wrightlabs/gamewright/internal/alias"
	"github.com/wrightlabs/gamewright/internal/artifact"
	"github.com/wrightlabs/gamewright/internal/cond"
	"github.com/wrightlabs/gamewright/internal/mutate"
	"github.com/wrightlabs/gamewright/internal/reconcile"
	"github.com/wrightlabs/gamewright/internal/state"
)

// Config assembles a match from committed artifacts and a seating.
type Config struct {
	ID        string
	Graph     artifact.TransitionGraph
	Templates artifact.TemplateLibrary
	Aliases   alias.Map

	// Initial is the opening state. Participant keys must already be
	// concrete ids from the alias map; they are immutable for the match's
	// lifetime.
	Initial *state.GameState

	// Seed drives the entropy source. The same seed, artifacts, and event
	// sequence reproduce the same journal.
	Seed int64

	Logger *slog.Logger
}

// OpFailure is one failed op, indexed into the template's batch as
// authored (pre-expansion).
type OpFailure struct {
	OpIndex int             `json:"opIndex"`
	Err     *mutate.OpError `json:"error"`
}

// StepRecord is one journal entry: the concrete expanded batch that was
// applied and the resulting state digest.
type StepRecord struct {
	Seq    int64       `json:"seq"`
	Event  string      `json:"event"`
	Rule   string      `json:"rule,omitempty"`
	Phase  string      `json:"phase"`
	Ops    []mutate.Op `json:"-"`
	Errors []OpFailure `json:"errors,omitempty"`
	Digest string      `json:"digest"`
}

// Match is the single-writer runtime. One batch is in flight at a time;
// all mutation happens under the writer lock.
type Match struct {
	mu sync.Mutex

	id        string
	graph     artifact.TransitionGraph
	templates artifact.TemplateLibrary
	aliases   alias.Map
	clock     *Clock
	entropy   mutate.Entropy
	logger    *slog.Logger

	state   *state.GameState
	phase   string
	journal []StepRecord
}

// New seats a match. The initial phase is the graph's declared initial.
func New(cfg Config) (*Match, error) {
	if cfg.Initial == nil {
		return nil, fmt.Errorf("match %s: initial state required", cfg.ID)
	}
	if !cfg.Graph.HasPhase(cfg.Graph.Initial) {
		return nil, fmt.Errorf("match %s: initial phase %q not in graph", cfg.ID, cfg.Graph.Initial)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Match{
		id:        cfg.ID,
		graph:     cfg.Graph,
		templates: cfg.Templates,
		aliases:   cfg.Aliases,
		clock:     NewClock(),
		entropy:   rand.New(rand.NewSource(cfg.Seed)),
		logger:    logger.With("match", cfg.ID),
		state:     cfg.Initial.Clone(),
		phase:     cfg.Graph.Initial,
	}, nil
}

// Phase returns the current phase.
func (m *Match) Phase() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// State returns a snapshot of the current state.
func (m *Match) State() *state.GameState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Journal returns the step journal so far.
func (m *Match) Journal() []StepRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StepRecord, len(m.journal))
	copy(out, m.journal)
	return out
}

// Seq returns the logical clock position.
func (m *Match) Seq() int64 {
	return m.clock.Current()
}

// Step applies the template bound to an event: alias expansion, batch
// execution, transition evaluation, journaling. Failed ops are reported
// per authored op index; the rest of the batch still applies.
func (m *Match) Step(event string) (StepRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step(event, nil, nil)
}

// StepWithGenerated applies an event batch and then reconciles the
// deterministic result with a generatively-produced snapshot for the same
// event. Touched paths keep their generative values; every other path a
// deterministic op targeted is backfilled.
func (m *Match) StepWithGenerated(event string, generated *state.GameState, touched reconcile.TouchedPaths) (StepRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step(event, generated, touched)
}

func (m *Match) step(event string, generated *state.GameState, touched reconcile.TouchedPaths) (StepRecord, error) {
	tmpl, ok := m.templates.ByEvent(event)
	if !ok {
		return StepRecord{}, fmt.Errorf("match %s: no template for event %q", m.id, event)
	}

	exp := alias.Expand(tmpl.Ops, m.aliases, m.logger)
	res := mutate.Apply(m.state, exp.Ops, m.entropy)

	var failures []OpFailure
	for _, opErr := range res.Errors {
		failures = append(failures, OpFailure{OpIndex: exp.Origin[opErr.Index], Err: opErr})
	}

	next := res.NewState
	if generated != nil {
		next = reconcile.Merge(generated, next, exp.Ops, touched)
	}
	m.state = next

	rec := StepRecord{
		Seq:    m.clock.Next(),
		Event:  event,
		Phase:  m.phase,
		Ops:    exp.Ops,
		Errors: failures,
	}

	if rule, fired, err := m.evaluateTransitions(); err != nil {
		return StepRecord{}, fmt.Errorf("match %s: transition evaluation: %w", m.id, err)
	} else if fired {
		m.phase = rule.ToPhase
		rec.Rule = rule.ID
		rec.Phase = rule.ToPhase
		m.logger.Info("phase transition",
			"rule", rule.ID, "from", rule.FromPhase, "to", rule.ToPhase, "seq", rec.Seq)
	}

	digest, err := state.Digest(m.state)
	if err != nil {
		return StepRecord{}, fmt.Errorf("match %s: digest: %w", m.id, err)
	}
	rec.Digest = digest

	m.journal = append(m.journal, rec)
	m.logger.Debug("step applied",
		"event", event, "seq", rec.Seq, "phase", rec.Phase, "failures", len(failures))
	return rec, nil
}

// evaluateTransitions checks the current phase's outgoing rules in
// declaration order and returns the first whose preconditions all hold.
func (m *Match) evaluateTransitions() (artifact.TransitionRule, bool, error) {
	ctx := cond.Context{State: m.state}

	for _, rule := range m.graph.RulesFrom(m.phase) {
		holds := true
		for _, pre := range rule.Preconditions {
			ok, err := cond.Evaluate(pre, ctx)
			if err != nil {
				return artifact.TransitionRule{}, false, fmt.Errorf("rule %q: %w", rule.ID, err)
			}
			if !ok {
				holds = false
				break
			}
		}
		if holds {
			return rule, true, nil
		}
	}
	return artifact.TransitionRule{}, false, nil
}

// Replay reconstructs a match by re-running an event sequence against the
// same config. Determinism of the layers below makes the resulting
// journal digest-identical to the original.
func Replay(cfg Config, events []string) (*Match, error) {
	m, err := New(cfg)
	if err != nil {
		return nil, err
	}
	for i, event := range events {
		if _, err := m.Step(event); err != nil {
			return nil, fmt.Errorf("replay step %d: %w", i, err)
		}
	}
	return m, nil
}

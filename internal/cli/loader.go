package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/wrightlabs/gamewright/internal/alias"
	"github.com/wrightlabs/gamewright/internal/artifact"
	"github.com/wrightlabs/gamewright/internal/match"
	"github.com/wrightlabs/gamewright/internal/state"
	"github.com/wrightlabs/gamewright/internal/store"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeReadFailed   = "E002" // File read error
	ErrCodeDecodeFailed = "E003" // Payload decode error
	ErrCodeStoreFailed  = "E004" // Database error
	ErrCodeNotFound     = "E005" // Path or row not found
	ErrCodeEscalated    = "E006" // Extraction escalated
)

// Seating declares the participant set and opening state for a match:
// each alias maps to its initial record, plus the shared record.
type Seating struct {
	Aliases map[string]map[string]any `json:"aliases"`
	Shared  map[string]any            `json:"shared"`
}

func loadSeating(path string) (*Seating, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seating: %w", err)
	}
	var seating Seating
	if err := json.Unmarshal(data, &seating); err != nil {
		return nil, fmt.Errorf("decode seating %s: %w", path, err)
	}
	if len(seating.Aliases) == 0 {
		return nil, fmt.Errorf("seating %s: at least one alias is required", path)
	}
	return &seating, nil
}

// seqIDs mints "p-001", "p-002", ... Deterministic minting means a
// replay against the same seating file reseats identical participant
// ids, so journal digests stay comparable.
type seqIDs struct{ n int }

func (g *seqIDs) NewID() string {
	g.n++
	return fmt.Sprintf("p-%03d", g.n)
}

// loadMatchConfig assembles a match config from the store's committed
// artifacts plus a seating file. Escalated envelopes are invisible
// here; only committed artifacts can seat a match.
func loadMatchConfig(ctx context.Context, st *store.Store, matchID string, seed int64, seatingPath string, logger *slog.Logger) (match.Config, error) {
	var cfg match.Config

	graphEnv, err := st.LatestCommitted(ctx, artifact.KindTransitionGraph)
	if err != nil {
		return cfg, fmt.Errorf("load transition graph: %w", err)
	}
	graph, err := graphEnv.DecodeTransitionGraph()
	if err != nil {
		return cfg, fmt.Errorf("decode transition graph: %w", err)
	}

	tmplEnv, err := st.LatestCommitted(ctx, artifact.KindMutationTemplates)
	if err != nil {
		return cfg, fmt.Errorf("load mutation templates: %w", err)
	}
	templates, err := tmplEnv.DecodeTemplates()
	if err != nil {
		return cfg, fmt.Errorf("decode mutation templates: %w", err)
	}

	seating, err := loadSeating(seatingPath)
	if err != nil {
		return cfg, err
	}

	names := make([]string, 0, len(seating.Aliases))
	for a := range seating.Aliases {
		names = append(names, a)
	}
	sort.Strings(names)

	aliases, err := alias.Assign(names, &seqIDs{})
	if err != nil {
		return cfg, fmt.Errorf("assign aliases: %w", err)
	}

	initial := state.New()
	shared, err := state.FromGo(seating.Shared)
	if err != nil {
		return cfg, fmt.Errorf("seating shared state: %w", err)
	}
	initial.Shared = shared.(state.Record)
	for _, a := range names {
		id, _ := aliases.Resolve(a)
		rec, err := state.FromGo(seating.Aliases[a])
		if err != nil {
			return cfg, fmt.Errorf("seating participant %q: %w", a, err)
		}
		initial.Participants[id] = rec.(state.Record)
	}

	return match.Config{
		ID:        matchID,
		Graph:     graph,
		Templates: templates,
		Aliases:   aliases,
		Initial:   initial,
		Seed:      seed,
		Logger:    logger,
	}, nil
}

// loadEvents reads an event script: one event name per line, blank
// lines and #-comments skipped.
func loadEvents(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer f.Close()

	var events []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		events = append(events, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read events %s: %w", path, err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("events %s: no events found", path)
	}
	return events, nil
}

// newLogger builds the slog logger commands hand to the runtime.
// Diagnostics go to stderr so JSON output stays clean.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wrightlabs/gamewright/internal/match"
	"github.com/wrightlabs/gamewright/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Seating  string
	Events   string
	MatchID  string
	Seed     int64
}

// StepSummary is the per-step row of a run report.
type StepSummary struct {
	Seq      int64  `json:"seq"`
	Event    string `json:"event"`
	Rule     string `json:"rule,omitempty"`
	Phase    string `json:"phase"`
	Failures int    `json:"failures,omitempty"`
	Digest   string `json:"digest"`
}

// RunResult holds the overall run result.
type RunResult struct {
	MatchID    string        `json:"match_id"`
	Seed       int64         `json:"seed"`
	Steps      []StepSummary `json:"steps"`
	FinalPhase string        `json:"final_phase"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a match from committed artifacts",
		Long: `Seat a match against the latest committed artifacts, apply an event
script, and journal every step.

The seating file declares the participant aliases, their initial
records, and the shared record. Concrete ids are minted
deterministically in sorted alias order, so a later replay against the
same seating reproduces the journal byte for byte.

Exit codes:
  0 - Run completed
  2 - Command error (missing artifacts, bad seating, unknown event)

Examples:
  gamewright run --db ./gamewright.db --match m-1 --seating seating.json --events events.txt
  gamewright run --db ./gamewright.db --match m-1 --seating seating.json --events events.txt --seed 42`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Seating, "seating", "", "path to seating JSON (required)")
	_ = cmd.MarkFlagRequired("seating")
	cmd.Flags().StringVar(&opts.Events, "events", "", "path to event script (required)")
	_ = cmd.MarkFlagRequired("events")
	cmd.Flags().StringVar(&opts.MatchID, "match", "", "match id (required)")
	_ = cmd.MarkFlagRequired("match")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "entropy seed")

	return cmd
}

func runMatch(opts *RunOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStoreFailed, fmt.Sprintf("open database: %v", err), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	cfg, err := loadMatchConfig(ctx, st, opts.MatchID, opts.Seed, opts.Seating, newLogger(opts.Verbose))
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to assemble match", err)
	}

	events, err := loadEvents(opts.Events)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	m, err := match.New(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to seat match", err)
	}
	if err := st.CreateMatch(ctx, opts.MatchID, opts.Seed); err != nil {
		return WrapExitError(ExitCommandError, "failed to register match", err)
	}

	result := RunResult{MatchID: opts.MatchID, Seed: opts.Seed}
	for i, event := range events {
		rec, err := m.Step(event)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("step %d failed", i), err)
		}
		if err := st.WriteStep(ctx, opts.MatchID, rec); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("journal step %d", rec.Seq), err)
		}
		result.Steps = append(result.Steps, stepSummary(rec))
	}
	result.FinalPhase = m.Phase()

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputRunText(formatter, result)
}

func stepSummary(rec match.StepRecord) StepSummary {
	return StepSummary{
		Seq:      rec.Seq,
		Event:    rec.Event,
		Rule:     rec.Rule,
		Phase:    rec.Phase,
		Failures: len(rec.Errors),
		Digest:   rec.Digest,
	}
}

func outputRunText(formatter *OutputFormatter, result RunResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Match %s (seed %d): %d step(s)\n", result.MatchID, result.Seed, len(result.Steps))
	for _, s := range result.Steps {
		fmt.Fprintf(w, "  #%d %s -> %s", s.Seq, s.Event, s.Phase)
		if s.Rule != "" {
			fmt.Fprintf(w, " (rule %s)", s.Rule)
		}
		if s.Failures > 0 {
			fmt.Fprintf(w, " [%d op failure(s)]", s.Failures)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Final phase: %s\n", result.FinalPhase)
	return nil
}

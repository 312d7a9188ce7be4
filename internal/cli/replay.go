package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wrightlabs/gamewright/internal/match"
	"github.com/wrightlabs/gamewright/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Seating  string
	MatchID  string
}

// ReplayStepResult compares one journaled step against its re-run.
type ReplayStepResult struct {
	Seq            int64  `json:"seq"`
	Event          string `json:"event"`
	JournalDigest  string `json:"journal_digest"`
	ReplayedDigest string `json:"replayed_digest"`
	Match          bool   `json:"match"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	MatchID       string             `json:"match_id"`
	Seed          int64              `json:"seed"`
	Steps         []ReplayStepResult `json:"steps"`
	Deterministic bool               `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a journaled match and verify determinism",
		Long: `Re-run a match's journaled event sequence against the same committed
artifacts, seed, and seating, and compare the replayed state digests
with the journaled ones step by step.

The seating file must be the one the match was run with: deterministic
id minting makes the reseated participant set identical, so any digest
divergence points at the runtime, not the input.

Exit codes:
  0 - Replay is digest-identical to the journal
  1 - Digest mismatch detected
  2 - Command error (unknown match, missing artifacts)

Examples:
  gamewright replay --db ./gamewright.db --match m-1 --seating seating.json
  gamewright replay --db ./gamewright.db --match m-1 --seating seating.json --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Seating, "seating", "", "path to seating JSON (required)")
	_ = cmd.MarkFlagRequired("seating")
	cmd.Flags().StringVar(&opts.MatchID, "match", "", "match id (required)")
	_ = cmd.MarkFlagRequired("match")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
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

	seed, err := st.MatchSeed(ctx, opts.MatchID)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("match %s: %v", opts.MatchID, err), nil)
		return WrapExitError(ExitCommandError, "unknown match", err)
	}
	journal, err := st.Steps(ctx, opts.MatchID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load journal", err)
	}
	if len(journal) == 0 {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("match %s has no journaled steps", opts.MatchID), nil)
		return NewExitError(ExitCommandError, "empty journal")
	}

	cfg, err := loadMatchConfig(ctx, st, opts.MatchID, seed, opts.Seating, newLogger(opts.Verbose))
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to assemble match", err)
	}

	events := make([]string, len(journal))
	for i, rec := range journal {
		events[i] = rec.Event
	}

	replayed, err := match.Replay(cfg, events)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	result := ReplayResult{MatchID: opts.MatchID, Seed: seed, Deterministic: true}
	replayedJournal := replayed.Journal()
	for i, rec := range journal {
		step := ReplayStepResult{
			Seq:            rec.Seq,
			Event:          rec.Event,
			JournalDigest:  rec.Digest,
			ReplayedDigest: replayedJournal[i].Digest,
		}
		step.Match = step.JournalDigest == step.ReplayedDigest
		if !step.Match {
			result.Deterministic = false
		}
		result.Steps = append(result.Steps, step)
	}

	if opts.Format == "json" {
		if !result.Deterministic {
			_ = formatter.Error("E_DETERMINISM", "digest mismatch during replay", result)
			return NewExitError(ExitFailure, "digest mismatch during replay")
		}
		return formatter.Success(result)
	}
	return outputReplayText(formatter, result)
}

func outputReplayText(formatter *OutputFormatter, result ReplayResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Replay %s (seed %d): %d step(s)\n", result.MatchID, result.Seed, len(result.Steps))
	for _, s := range result.Steps {
		status := "✓"
		if !s.Match {
			status = "✗"
		}
		fmt.Fprintf(w, "  %s #%d %s\n", status, s.Seq, s.Event)
		if !s.Match && formatter.Verbose {
			fmt.Fprintf(w, "    journal:  %s\n", s.JournalDigest)
			fmt.Fprintf(w, "    replayed: %s\n", s.ReplayedDigest)
		}
	}

	if result.Deterministic {
		fmt.Fprintln(w, "✓ Replay digest-identical to journal")
		return nil
	}
	fmt.Fprintln(w, "✗ Digest mismatch during replay")
	return NewExitError(ExitFailure, "digest mismatch during replay")
}

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wrightlabs/gamewright/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	MatchID  string
	Event    string // optional - filter to one event name
}

// TraceResult holds a match's journal for display.
type TraceResult struct {
	MatchID string        `json:"match_id"`
	Steps   []StepSummary `json:"steps"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show a match's step journal",
		Long: `Print a match's journal in seq order: event, phase, fired rule, op
failures, and the post-step state digest.

Examples:
  gamewright trace --db ./gamewright.db --match m-1
  gamewright trace --db ./gamewright.db --match m-1 --event ante
  gamewright trace --db ./gamewright.db --match m-1 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.MatchID, "match", "", "match id (required)")
	_ = cmd.MarkFlagRequired("match")
	cmd.Flags().StringVar(&opts.Event, "event", "", "show only steps for this event")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
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

	journal, err := st.Steps(ctx, opts.MatchID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load journal", err)
	}

	result := TraceResult{MatchID: opts.MatchID}
	for _, rec := range journal {
		if opts.Event != "" && rec.Event != opts.Event {
			continue
		}
		result.Steps = append(result.Steps, stepSummary(rec))
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if len(result.Steps) == 0 {
		fmt.Fprintf(w, "No steps found for match %s.\n", opts.MatchID)
		return nil
	}
	fmt.Fprintf(w, "Journal for %s: %d step(s)\n", result.MatchID, len(result.Steps))
	for _, s := range result.Steps {
		fmt.Fprintf(w, "  #%d %s -> %s", s.Seq, s.Event, s.Phase)
		if s.Rule != "" {
			fmt.Fprintf(w, " (rule %s)", s.Rule)
		}
		if s.Failures > 0 {
			fmt.Fprintf(w, " [%d op failure(s)]", s.Failures)
		}
		if formatter.Verbose {
			fmt.Fprintf(w, " digest=%s", s.Digest)
		}
		fmt.Fprintln(w)
	}
	return nil
}

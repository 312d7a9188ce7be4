package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wrightlabs/gamewright/internal/store"
)

// EscalationsOptions holds flags for the escalations command.
type EscalationsOptions struct {
	*RootOptions
	Database string
}

// EscalationSummary is one escalated envelope for operator review.
type EscalationSummary struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	Attempts  int      `json:"attempts"`
	CreatedAt string   `json:"created_at"`
	Errors    []string `json:"errors,omitempty"`
}

// EscalationsResult holds the review listing.
type EscalationsResult struct {
	Escalations []EscalationSummary `json:"escalations"`
	Total       int                 `json:"total"`
}

// NewEscalationsCommand creates the escalations command.
func NewEscalationsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EscalationsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "escalations",
		Short: "List escalated extraction envelopes",
		Long: `List every escalated envelope with its full attempt error history.

Escalated envelopes are persisted for review but never activated: the
runtime only ever loads committed artifacts.

Examples:
  gamewright escalations --db ./gamewright.db
  gamewright escalations --db ./gamewright.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEscalations(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runEscalations(opts *EscalationsOptions, cmd *cobra.Command) error {
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

	envelopes, err := st.ListEscalated(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list escalations", err)
	}

	result := EscalationsResult{Total: len(envelopes)}
	for _, env := range envelopes {
		result.Escalations = append(result.Escalations, EscalationSummary{
			ID:        env.ID,
			Kind:      string(env.Kind),
			Attempts:  env.RetryCount,
			CreatedAt: env.CreatedAt.UTC().Format(time.RFC3339),
			Errors:    env.Errors,
		})
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if result.Total == 0 {
		fmt.Fprintln(w, "No escalations.")
		return nil
	}
	fmt.Fprintf(w, "%d escalation(s)\n", result.Total)
	for _, e := range result.Escalations {
		fmt.Fprintf(w, "  %s %s (attempts %d, %s)\n", e.ID, e.Kind, e.Attempts, e.CreatedAt)
		if formatter.Verbose {
			for _, msg := range e.Errors {
				fmt.Fprintf(w, "    %s\n", msg)
			}
		}
	}
	return nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wrightlabs/gamewright/internal/pipeline"
	"github.com/wrightlabs/gamewright/internal/store"
)

// ExtractOptions holds flags for the extract command.
type ExtractOptions struct {
	*RootOptions
	Database    string
	Candidates  string
	MaxAttempts int
}

// ArtifactSummary is the per-artifact row of an extraction report.
type ArtifactSummary struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	RetryCount int    `json:"retry_count"`
	Escalated  bool   `json:"escalated"`
}

// ExtractResult holds the overall extraction result.
type ExtractResult struct {
	Artifacts []ArtifactSummary `json:"artifacts"`
	Escalated bool              `json:"escalated"`
}

// NewExtractCommand creates the extract command.
func NewExtractCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExtractOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "extract <spec-file>",
		Short: "Extract and validate game artifacts",
		Long: `Run the extraction pipeline over a rule-text file and persist the
resulting artifact envelopes.

Candidate outputs are read from the candidates directory: <kind>.json,
or <kind>.attempt<N>.json when a per-attempt repair is staged. Each
candidate passes the raw-shape gate and the artifact compiler before it
commits; a kind that exhausts its attempt budget is persisted as an
escalated envelope and aborts the run.

Exit codes:
  0 - All artifacts committed
  1 - An artifact escalated
  2 - Command error (unreadable spec, database error, etc.)

Examples:
  gamewright extract rules.txt --candidates ./candidates --db ./gamewright.db
  gamewright extract rules.txt --candidates ./candidates --db ./gamewright.db --max-attempts 5`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Candidates, "candidates", "", "directory of candidate artifact payloads (required)")
	_ = cmd.MarkFlagRequired("candidates")
	cmd.Flags().IntVar(&opts.MaxAttempts, "max-attempts", 3, "attempt budget per artifact kind")

	return cmd
}

// fileCollaborator serves candidate payloads from disk. Attempt-specific
// files let a staged repair differ from the first candidate, mirroring
// the repair loop's request/response shape.
type fileCollaborator struct {
	dir string
}

func (c *fileCollaborator) Generate(_ context.Context, req pipeline.Request) ([]byte, error) {
	staged := filepath.Join(c.dir, fmt.Sprintf("%s.attempt%d.json", req.Kind, req.Attempt))
	if data, err := os.ReadFile(staged); err == nil {
		return data, nil
	}
	data, err := os.ReadFile(filepath.Join(c.dir, string(req.Kind)+".json"))
	if err != nil {
		return nil, fmt.Errorf("no candidate for %s: %w", req.Kind, err)
	}
	return data, nil
}

func runExtract(opts *ExtractOptions, specPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	specText, err := os.ReadFile(specPath)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, fmt.Sprintf("read spec: %v", err), nil)
		return WrapExitError(ExitCommandError, "failed to read spec", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStoreFailed, fmt.Sprintf("open database: %v", err), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	p, err := pipeline.New(&fileCollaborator{dir: opts.Candidates},
		pipeline.WithMaxAttempts(opts.MaxAttempts),
		pipeline.WithLogger(newLogger(opts.Verbose)),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build pipeline", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	arts, runErr := p.ExtractAll(ctx, string(specText))

	// Every envelope persists, escalated ones included: the failure
	// history is the operator's review surface.
	result := ExtractResult{}
	for _, env := range arts.Envelopes {
		if err := st.WriteEnvelope(ctx, env); err != nil {
			return WrapExitError(ExitCommandError, "failed to persist envelope", err)
		}
		result.Artifacts = append(result.Artifacts, ArtifactSummary{
			ID:         env.ID,
			Kind:       string(env.Kind),
			RetryCount: env.RetryCount,
			Escalated:  env.Escalated,
		})
		if env.Escalated {
			result.Escalated = true
		}
	}

	if runErr != nil {
		var exhausted *pipeline.ExhaustedError
		if errors.As(runErr, &exhausted) {
			return outputExtractEscalated(formatter, result, exhausted)
		}
		return WrapExitError(ExitCommandError, "extraction failed", runErr)
	}

	return outputExtractSuccess(formatter, result)
}

func outputExtractSuccess(formatter *OutputFormatter, result ExtractResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	for _, a := range result.Artifacts {
		fmt.Fprintf(formatter.Writer, "✓ committed %s (id %s, retries %d)\n", a.Kind, a.ID, a.RetryCount)
	}
	return nil
}

func outputExtractEscalated(formatter *OutputFormatter, result ExtractResult, exhausted *pipeline.ExhaustedError) error {
	if formatter.Format == "json" {
		_ = formatter.Error(ErrCodeEscalated, exhausted.Error(), result)
		return NewExitError(ExitFailure, exhausted.Error())
	}

	for _, a := range result.Artifacts {
		if a.Escalated {
			fmt.Fprintf(formatter.Writer, "✗ escalated %s (id %s, attempts %d)\n", a.Kind, a.ID, a.RetryCount)
		} else {
			fmt.Fprintf(formatter.Writer, "✓ committed %s (id %s, retries %d)\n", a.Kind, a.ID, a.RetryCount)
		}
	}
	for _, msg := range exhausted.Errors {
		fmt.Fprintf(formatter.Writer, "  %s\n", msg)
	}
	return NewExitError(ExitFailure, exhausted.Error())
}

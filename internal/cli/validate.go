package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wrightlabs/gamewright/internal/artifact"
	"github.com/wrightlabs/gamewright/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Schema string // stateSchema payload anchoring template validation
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <kind> <payload-file>",
		Short: "Validate an artifact payload without committing it",
		Long: `Validate a candidate artifact payload against the shape and semantic
rules the pipeline enforces, without touching a database.

Kind is one of: stateSchema, transitionGraph, mutationTemplates.
Template validation checks written paths against a state schema when
one is supplied with --schema.

Exit codes:
  0 - Payload valid
  1 - Validation errors found
  2 - Command error (unknown kind, unreadable file)

Examples:
  gamewright validate stateSchema ./candidates/stateSchema.json
  gamewright validate mutationTemplates ./templates.json --schema ./candidates/stateSchema.json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "state schema payload for template validation")

	return cmd
}

func runValidate(opts *ValidateOptions, kindArg, payloadPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	kind := artifact.Kind(kindArg)
	if !knownKind(kind) {
		msg := fmt.Sprintf("unknown artifact kind %q: must be one of %v", kindArg, artifact.Kinds())
		_ = formatter.Error(ErrCodeGeneric, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	raw, err := os.ReadFile(payloadPath)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, fmt.Sprintf("read payload: %v", err), nil)
		return WrapExitError(ExitCommandError, "failed to read payload", err)
	}

	comp, err := compiler.New()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build compiler", err)
	}

	var errs []compiler.ValidationError
	switch kind {
	case artifact.KindStateSchema:
		_, errs = comp.CompileStateSchema(raw)
	case artifact.KindTransitionGraph:
		_, errs = comp.CompileTransitionGraph(raw)
	case artifact.KindMutationTemplates:
		schema, schemaErr := loadSchemaAnchor(comp, opts.Schema)
		if schemaErr != nil {
			_ = formatter.Error(ErrCodeDecodeFailed, schemaErr.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to load schema", schemaErr)
		}
		_, errs = comp.CompileTemplates(raw, schema)
	}

	formatter.VerboseLog("validated %s payload (%d bytes)", kind, len(raw))

	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}
	return outputValidateSuccess(formatter)
}

func knownKind(kind artifact.Kind) bool {
	for _, k := range artifact.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// loadSchemaAnchor compiles the --schema payload. An invalid anchor is a
// command error: validating templates against a broken schema would
// report nonsense.
func loadSchemaAnchor(comp *compiler.Compiler, path string) (*artifact.StateSchema, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	schema, errs := comp.CompileStateSchema(raw)
	if len(errs) > 0 {
		return nil, fmt.Errorf("schema %s is invalid: %s", path, errs[0].Error())
	}
	return &schema, nil
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true})
	}
	fmt.Fprintln(formatter.Writer, "✓ Payload valid")
	return nil
}

// outputValidationErrors outputs validation errors and maps them to
// exit code 1.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		fmt.Fprintf(formatter.Writer, "  %s\n", e.Error())
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

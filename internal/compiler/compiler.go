// Package compiler turns raw collaborator output into validated
// artifacts. Shape checking is delegated to embedded CUE definitions;
// semantic rules that CUE cannot express (cross-references, forbidden
// participant access, integral-field conformance) run afterwards in Go.
// All validators accumulate: one pass reports every error found.
package compiler

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/wrightlabs/gamewright/internal/artifact"
)

//go:embed schemas/state_schema.cue
var stateSchemaCUE []byte

//go:embed schemas/transition_graph.cue
var transitionGraphCUE []byte

//go:embed schemas/mutation_templates.cue
var mutationTemplatesCUE []byte

// Validation error codes (E200-E239)
const (
	// General (E200-E209)
	ErrUnsupportedKind = "E200" // unknown artifact kind
	ErrShapeViolation  = "E201" // payload does not satisfy the CUE schema
	ErrDecodeFailure   = "E202" // payload does not decode into the Go type

	// StateSchema (E210-E219)
	ErrInvalidFieldType = "E210" // field type outside the declared set

	// TransitionGraph (E220-E229)
	ErrDuplicateRuleID      = "E220" // rule id declared twice
	ErrUnknownPhase         = "E221" // rule references an undeclared phase
	ErrUnknownInitialPhase  = "E222" // initial phase not in the phase list
	ErrDuplicatePhase       = "E223" // phase declared twice
	ErrMalformedCondition   = "E224" // precondition tree the evaluator cannot run
	ErrForbiddenReference   = "E225" // direct participant reference in a condition
	ErrSelfLoop             = "E226" // rule transitions a phase to itself

	// MutationTemplates (E230-E239)
	ErrDuplicateTemplateID    = "E230" // template id declared twice
	ErrDuplicateTemplateEvent = "E231" // event bound to two templates
	ErrUndeclaredField        = "E232" // op targets a field the schema does not declare
	ErrNonIntegralMechanical  = "E233" // non-integral number written to an int field
	ErrBadOpShape             = "E234" // op envelope does not decode
	ErrSelfTransfer           = "E235" // transfer source and destination are the same path
)

// ValidationError is one validation finding. Kind carries the error
// taxonomy the pipeline reports to the collaborator on retry.
type ValidationError struct {
	Code    string `json:"code"`
	Kind    string `json:"kind"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error kind taxonomy.
const (
	KindSchemaViolation    = "SchemaViolation"
	KindTypeMismatch       = "TypeMismatch"
	KindForbiddenReference = "ForbiddenReference"
	KindEvaluationError    = "EvaluationError"
)

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.Kind, e.Field, e.Message)
}

// Messages renders errors one per line for retry context.
func Messages(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}

// Compiler validates and decodes raw artifact payloads. Safe for
// concurrent use once constructed.
type Compiler struct {
	ctx     *cue.Context
	schemas map[artifact.Kind]cue.Value
}

// New builds a compiler with the embedded CUE schemas. An error here
// means a broken build, not bad input.
func New() (*Compiler, error) {
	ctx := cuecontext.New()
	c := &Compiler{ctx: ctx, schemas: make(map[artifact.Kind]cue.Value, 3)}

	for _, s := range []struct {
		kind artifact.Kind
		src  []byte
		def  string
	}{
		{artifact.KindStateSchema, stateSchemaCUE, "#StateSchema"},
		{artifact.KindTransitionGraph, transitionGraphCUE, "#TransitionGraph"},
		{artifact.KindMutationTemplates, mutationTemplatesCUE, "#TemplateLibrary"},
	} {
		v := ctx.CompileBytes(s.src, cue.Filename(string(s.kind)+".cue"))
		if err := v.Err(); err != nil {
			return nil, fmt.Errorf("schema for %s: %w", s.kind, err)
		}
		def := v.LookupPath(cue.ParsePath(s.def))
		if err := def.Err(); err != nil {
			return nil, fmt.Errorf("definition %s: %w", s.def, err)
		}
		c.schemas[s.kind] = def
	}

	return c, nil
}

// checkShape unifies a raw JSON payload with the kind's CUE definition
// and returns every shape violation.
func (c *Compiler) checkShape(kind artifact.Kind, raw []byte) []ValidationError {
	def, ok := c.schemas[kind]
	if !ok {
		return []ValidationError{{
			Code: ErrUnsupportedKind, Kind: KindSchemaViolation,
			Field:   "kind",
			Message: fmt.Sprintf("unsupported artifact kind %q", kind),
		}}
	}

	data := c.ctx.CompileBytes(raw, cue.Filename("payload.json"))
	if err := data.Err(); err != nil {
		return cueViolations(err)
	}

	unified := def.Unify(data)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return cueViolations(err)
	}
	return nil
}

// cueViolations flattens a CUE error list into shape violations, one per
// underlying error so nothing is masked by the first failure.
func cueViolations(err error) []ValidationError {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return []ValidationError{{
			Code: ErrShapeViolation, Kind: KindSchemaViolation,
			Field: "payload", Message: err.Error(),
		}}
	}

	out := make([]ValidationError, len(list))
	for i, e := range list {
		field := "payload"
		if p := e.Path(); len(p) > 0 {
			field = joinPath(p)
		}
		out[i] = ValidationError{
			Code: ErrShapeViolation, Kind: KindSchemaViolation,
			Field: field, Message: e.Error(),
		}
	}
	return out
}

func joinPath(segs []string) string {
	out := ""
	for i, s := range segs {
		if i > 0 {
			out += "."
		}
		out += s
	}
	return out
}

// CompileStateSchema validates and decodes a state schema payload.
func (c *Compiler) CompileStateSchema(raw []byte) (artifact.StateSchema, []ValidationError) {
	var schema artifact.StateSchema
	if errs := c.checkShape(artifact.KindStateSchema, raw); len(errs) > 0 {
		return schema, errs
	}
	if err := decodeJSON(raw, &schema); err != nil {
		return schema, []ValidationError{*err}
	}
	return schema, validateStateSchema(schema)
}

// CompileTransitionGraph validates and decodes a transition graph payload.
func (c *Compiler) CompileTransitionGraph(raw []byte) (artifact.TransitionGraph, []ValidationError) {
	var graph artifact.TransitionGraph
	if errs := c.checkShape(artifact.KindTransitionGraph, raw); len(errs) > 0 {
		return graph, errs
	}
	if err := decodeJSON(raw, &graph); err != nil {
		return graph, []ValidationError{*err}
	}
	return graph, validateTransitionGraph(graph)
}

// CompileTemplates validates and decodes a mutation template payload.
// The committed state schema, when available, anchors field-conformance
// checks; a nil schema skips them.
func (c *Compiler) CompileTemplates(raw []byte, schema *artifact.StateSchema) (artifact.TemplateLibrary, []ValidationError) {
	var lib artifact.TemplateLibrary
	if errs := c.checkShape(artifact.KindMutationTemplates, raw); len(errs) > 0 {
		return lib, errs
	}
	if err := decodeJSON(raw, &lib); err != nil {
		return lib, []ValidationError{*err}
	}
	return lib, validateTemplates(lib, schema)
}

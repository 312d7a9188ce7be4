package pipeline

import (
	"context"
	"fmt"

	"github.com/wrightlabs/gamewright/internal/artifact"
	"github.com/wrightlabs/gamewright/internal/compiler"
)

// Extract runs the state machine for one artifact kind. The returned
// envelope is always populated: committed on success, escalated (with the
// full error history) alongside an ExhaustedError when the attempt budget
// runs out. Escalated envelopes are persisted for review, never activated.
// Envelopes carry no version; the store assigns the next per-kind version
// when one is persisted.
func (p *Pipeline) Extract(ctx context.Context, kind artifact.Kind, specText string, committed map[artifact.Kind][]byte) (artifact.Envelope, error) {
	var (
		priorOutput []byte
		allErrors   []string
		lastRaw     []byte
	)

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return artifact.Envelope{}, err
		}

		// Plan: assemble the request from spec text, committed artifacts,
		// and the accumulated error history.
		req := Request{
			Kind:        kind,
			SpecText:    specText,
			Committed:   committed,
			Attempt:     attempt,
			PriorOutput: priorOutput,
			Errors:      allErrors,
		}

		// Execute, bounded by the stage budget. A timeout or collaborator
		// error is a validation failure for this attempt, not a fatal one.
		raw, execErr := p.execute(ctx, req)
		if execErr != nil {
			p.logger.Warn("execute stage failed",
				"kind", kind, "attempt", attempt, "error", execErr)
			allErrors = append(allErrors,
				fmt.Sprintf("attempt %d: execute: %v", attempt, execErr))
			continue
		}
		lastRaw = raw
		priorOutput = raw

		// Validate: the raw-shape gate and the compiler both run to
		// completion so one attempt yields every finding at once.
		errs := p.raw.check(kind, raw)
		errs = append(errs, p.compile(kind, raw, committed)...)

		if len(errs) == 0 {
			p.logger.Info("artifact committed",
				"kind", kind, "attempt", attempt, "retries", attempt-1)
			return artifact.Envelope{
				ID:         p.ids.NewID(),
				Kind:       kind,
				RetryCount: attempt - 1,
				Payload:    raw,
				CreatedAt:  p.clock.Now(),
			}, nil
		}

		for _, msg := range compiler.Messages(errs) {
			allErrors = append(allErrors, fmt.Sprintf("attempt %d: %s", attempt, msg))
		}
		p.logger.Warn("validation failed",
			"kind", kind, "attempt", attempt, "errors", len(errs))
	}

	env := artifact.Envelope{
		ID:         p.ids.NewID(),
		Kind:       kind,
		RetryCount: p.maxAttempts,
		Escalated:  true,
		Errors:     allErrors,
		Payload:    lastRaw,
		CreatedAt:  p.clock.Now(),
	}
	p.logger.Error("artifact escalated",
		"kind", kind, "attempts", p.maxAttempts, "errors", len(allErrors))
	return env, &ExhaustedError{Kind: kind, Attempts: p.maxAttempts, Errors: allErrors}
}

func (p *Pipeline) execute(ctx context.Context, req Request) ([]byte, error) {
	execCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()
	return p.collab.Generate(execCtx, req)
}

// compile dispatches to the kind's compiler entry point. Template
// validation is anchored on the committed schema when one exists.
func (p *Pipeline) compile(kind artifact.Kind, raw []byte, committed map[artifact.Kind][]byte) []compiler.ValidationError {
	switch kind {
	case artifact.KindStateSchema:
		_, errs := p.comp.CompileStateSchema(raw)
		return errs
	case artifact.KindTransitionGraph:
		_, errs := p.comp.CompileTransitionGraph(raw)
		return errs
	case artifact.KindMutationTemplates:
		var schema *artifact.StateSchema
		if rawSchema, ok := committed[artifact.KindStateSchema]; ok {
			if s, errs := p.comp.CompileStateSchema(rawSchema); len(errs) == 0 {
				schema = &s
			}
		}
		_, errs := p.comp.CompileTemplates(raw, schema)
		return errs
	default:
		return []compiler.ValidationError{{
			Code: compiler.ErrUnsupportedKind, Kind: compiler.KindSchemaViolation,
			Field: "kind", Message: fmt.Sprintf("unsupported artifact kind %q", kind),
		}}
	}
}

// Artifacts is a full committed extraction: the three artifacts the
// runtime needs plus their envelopes in extraction order.
type Artifacts struct {
	Schema    artifact.StateSchema
	Graph     artifact.TransitionGraph
	Templates artifact.TemplateLibrary
	Envelopes []artifact.Envelope
}

// ExtractAll runs the three artifact kinds in dependency order, feeding
// each committed payload into the later kinds' planning context. The
// first escalation aborts the run; the escalated envelope is still
// returned in Envelopes for persistence.
func (p *Pipeline) ExtractAll(ctx context.Context, specText string) (*Artifacts, error) {
	out := &Artifacts{}
	committed := make(map[artifact.Kind][]byte, 3)

	for _, kind := range artifact.Kinds() {
		env, err := p.Extract(ctx, kind, specText, committed)
		if env.ID != "" {
			out.Envelopes = append(out.Envelopes, env)
		}
		if err != nil {
			return out, err
		}

		committed[kind] = env.Payload
		switch kind {
		case artifact.KindStateSchema:
			out.Schema, err = env.DecodeStateSchema()
		case artifact.KindTransitionGraph:
			out.Graph, err = env.DecodeTransitionGraph()
		case artifact.KindMutationTemplates:
			out.Templates, err = env.DecodeTemplates()
		}
		if err != nil {
			return out, fmt.Errorf("decode committed %s: %w", kind, err)
		}
	}

	return out, nil
}

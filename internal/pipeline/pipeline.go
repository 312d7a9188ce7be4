// Package pipeline implements bounded-retry artifact extraction: a
// Plan→Execute→Validate state machine that turns game spec text into the
// committed artifacts the runtime consumes. Validation failures feed the
// next attempt as context; an artifact that cannot be repaired within the
// attempt budget escalates and is never silently committed.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wrightlabs/gamewright/internal/alias"
	"github.com/wrightlabs/gamewright/internal/artifact"
	"github.com/wrightlabs/gamewright/internal/compiler"
)

// Collaborator produces raw artifact payloads from a request. In
// production this fronts a generative model; tests substitute scripted
// outputs.
type Collaborator interface {
	Generate(ctx context.Context, req Request) ([]byte, error)
}

// Request is the planning context for one Execute invocation.
type Request struct {
	// Kind names the artifact being extracted.
	Kind artifact.Kind

	// SpecText is the natural-language rules text.
	SpecText string

	// Committed holds the payloads of artifacts committed earlier in the
	// run, in extraction order. The transition graph and templates are
	// extracted against the committed schema.
	Committed map[artifact.Kind][]byte

	// Attempt counts from 1.
	Attempt int

	// PriorOutput is the previous attempt's raw payload, empty on the
	// first attempt.
	PriorOutput []byte

	// Errors lists every validation error accumulated so far, formatted
	// for the collaborator.
	Errors []string
}

// Clock abstracts time for envelope stamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// ExhaustedError reports an artifact that failed validation on every
// attempt. Error kind: PipelineExhausted.
type ExhaustedError struct {
	Kind     artifact.Kind
	Attempts int
	Errors   []string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("PipelineExhausted: %s not committed after %d attempts (%d errors)",
		e.Kind, e.Attempts, len(e.Errors))
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxAttempts bounds Execute invocations per artifact.
func WithMaxAttempts(n int) Option {
	return func(p *Pipeline) { p.maxAttempts = n }
}

// WithStageTimeout bounds one Execute invocation. A timed-out attempt
// counts as a validation failure, not a fatal error.
func WithStageTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.stageTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock sets the envelope timestamp source.
func WithClock(c Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithIDGenerator sets the envelope id source.
func WithIDGenerator(g alias.IDGenerator) Option {
	return func(p *Pipeline) { p.ids = g }
}

// Pipeline drives extraction for one or more artifact kinds against a
// single collaborator.
type Pipeline struct {
	collab       Collaborator
	comp         *compiler.Compiler
	raw          *rawValidator
	maxAttempts  int
	stageTimeout time.Duration
	logger       *slog.Logger
	clock        Clock
	ids          alias.IDGenerator
}

// New builds a pipeline with defaults of three attempts and a
// 60-second stage budget.
func New(collab Collaborator, opts ...Option) (*Pipeline, error) {
	comp, err := compiler.New()
	if err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}
	raw, err := newRawValidator()
	if err != nil {
		return nil, fmt.Errorf("raw schemas: %w", err)
	}

	p := &Pipeline{
		collab:       collab,
		comp:         comp,
		raw:          raw,
		maxAttempts:  3,
		stageTimeout: 60 * time.Second,
		logger:       slog.Default(),
		clock:        systemClock{},
		ids:          alias.UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxAttempts < 1 {
		return nil, fmt.Errorf("maxAttempts must be at least 1, got %d", p.maxAttempts)
	}
	return p, nil
}

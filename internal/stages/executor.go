// Package stages implements the pipeline stage executors. Each stage is a
// function of a typed context: check the context, render the stage's
// template through the generation port, decode, enforce the stage's
// invariants, and return a typed output or a typed error.
//
//	context → required fields → Port.Generate(template, vars, shape) → re-validate → invariants → output
//
// Stages never retry. Retry is a policy of the port the caller injects.
package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TNAHOM/project-x-ai-service/internal/capability"
	"github.com/TNAHOM/project-x-ai-service/internal/generation"
	"github.com/TNAHOM/project-x-ai-service/internal/logging"
	"github.com/TNAHOM/project-x-ai-service/internal/metrics"
	"github.com/TNAHOM/project-x-ai-service/internal/prompt"
	"github.com/TNAHOM/project-x-ai-service/internal/schema"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxSources caps the sources an expansion returns.
const DefaultMaxSources = 8

// DefaultExecTimeout bounds one tool execution.
const DefaultExecTimeout = 400 * time.Second

// ToolRunner runs an instruction through the tool-backed agent.
type ToolRunner interface {
	Ready() bool
	Run(ctx context.Context, instruction string) (string, error)
}

// Executor runs every stage. It holds no per-request state and is safe for
// concurrent use.
type Executor struct {
	port        generation.Port
	completer   generation.Completer
	contracts   *schema.Registry
	caps        *capability.Registry
	templates   *prompt.Library
	tools       ToolRunner
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	allowed     []string
	maxSources  int
	execTimeout time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithCapabilities sets the capability registry. Default: capability.Default().
func WithCapabilities(r *capability.Registry) Option {
	return func(e *Executor) { e.caps = r }
}

// WithCompleter enables plain-completion execution (basic_llm mode).
func WithCompleter(c generation.Completer) Option {
	return func(e *Executor) { e.completer = c }
}

// WithTools enables tool execution. templates renders the execute instruction.
func WithTools(runner ToolRunner, templates *prompt.Library) Option {
	return func(e *Executor) {
		e.tools = runner
		e.templates = templates
	}
}

// WithMetrics records stage outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithAllowedDomains sets the classify default when a request names none.
func WithAllowedDomains(domains []string) Option {
	return func(e *Executor) { e.allowed = domains }
}

// WithMaxSources caps expansion sources.
func WithMaxSources(n int) Option {
	return func(e *Executor) { e.maxSources = n }
}

// WithExecTimeout bounds one tool execution.
func WithExecTimeout(d time.Duration) Option {
	return func(e *Executor) { e.execTimeout = d }
}

// New creates an Executor over port and the contract registry.
func New(port generation.Port, contracts *schema.Registry, opts ...Option) *Executor {
	e := &Executor{
		port:        port,
		contracts:   contracts,
		tracer:      otel.Tracer("github.com/TNAHOM/project-x-ai-service/internal/stages"),
		allowed:     schema.DefaultDomains,
		maxSources:  DefaultMaxSources,
		execTimeout: DefaultExecTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.caps == nil {
		e.caps = capability.Default()
	}
	if e.maxSources <= 0 {
		e.maxSources = DefaultMaxSources
	}
	return e
}

// Capabilities returns the capability registry in use.
func (e *Executor) Capabilities() *capability.Registry { return e.caps }

// begin opens the span and timer for one stage run. The returned func
// must be called with the stage's final error.
func (e *Executor) begin(ctx context.Context, agent schema.AgentID, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	attrs = append(attrs, attribute.String("stage.agent", string(agent)))
	ctx, span := e.tracer.Start(ctx, "stage."+string(agent), trace.WithAttributes(attrs...))
	log := logging.Get(logging.CategoryStages).With("agent", string(agent))
	start := time.Now()
	log.Debug("%s started", agent)

	return ctx, func(err error) {
		elapsed := time.Since(start)
		outcome := Outcome(err)
		e.metrics.ObserveStage(string(agent), outcome, elapsed)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			log.Error("%s failed after %v (%s): %v", agent, elapsed, outcome, err)
		} else {
			log.Info("%s completed in %v", agent, elapsed)
		}
		span.End()
	}
}

// generate renders and calls the port, re-validates the raw value against
// shape and decodes it into out. templateID and shape default to the
// agent's contract.
func (e *Executor) generate(ctx context.Context, agent schema.AgentID, templateID string, shape *schema.Shape, vars map[string]any, out any) error {
	contract, err := e.contracts.Lookup(agent)
	if err != nil {
		return err
	}
	if templateID == "" {
		templateID = contract.TemplateID
	}
	if shape == nil {
		shape = contract.Output
	}

	raw, err := e.port.Generate(ctx, templateID, vars, shape)
	if err != nil {
		var missing *prompt.MissingVariablesError
		switch {
		case generation.IsShapeMismatch(err):
			return &StageOutputInvalid{Agent: agent, Reason: "output does not match declared shape", Cause: err}
		case errors.As(err, &missing):
			return &ContextIncomplete{Agent: agent, Missing: missing.Missing}
		}
		return fmt.Errorf("%s: %w", agent, err)
	}

	if err := shape.Validate(raw); err != nil {
		return &StageOutputInvalid{Agent: agent, Reason: "output does not match declared shape", Cause: err}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &StageOutputInvalid{Agent: agent, Reason: "failed to decode output", Cause: err}
	}
	logging.StagesDebug("%s output: %s", agent, truncate(string(raw), 800))
	return nil
}

// Outcome names an error for metrics and journal records.
func Outcome(err error) string {
	var (
		incomplete  *ContextIncomplete
		invalidOut  *StageOutputInvalid
		unsupported *UnsupportedDomainType
		timeout     *ExecutionTimeout
		limited     *generation.RateLimited
		unavailable *generation.BackendUnavailable
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &incomplete), errors.As(err, &unsupported):
		return "incomplete"
	case errors.As(err, &invalidOut):
		return "invalid"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.Is(err, ErrSessionUnavailable):
		return "session_unavailable"
	case errors.As(err, &limited):
		return "rate_limited"
	case errors.As(err, &unavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package generation is the structured-output port every stage calls:
// render a template, ask a model for a value of a declared shape, and
// return it validated or fail with a typed error.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/TNAHOM/project-x-ai-service/internal/logging"
	"github.com/TNAHOM/project-x-ai-service/internal/metrics"
	"github.com/TNAHOM/project-x-ai-service/internal/prompt"
	"github.com/TNAHOM/project-x-ai-service/internal/schema"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Port produces a value conforming to shape from a rendered template.
// Errors are *ShapeMismatch, *BackendUnavailable, *RateLimited, or a
// template error raised before any backend call.
type Port interface {
	Generate(ctx context.Context, templateID string, vars map[string]any, shape *schema.Shape) (json.RawMessage, error)
}

// Completer produces free text from a rendered template.
type Completer interface {
	Complete(ctx context.Context, templateID string, vars map[string]any) (string, error)
}

// Model is both structured and free-text generation.
type Model interface {
	Port
	Completer
}

// Request is what a backend receives.
type Request struct {
	TemplateID string
	System     string
	User       string

	// Shape is nil for free-text completions.
	Shape *schema.Shape
}

// Backend talks to one model provider.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Generator implements Port and Completer over a template library and a backend.
type Generator struct {
	templates *prompt.Library
	backend   Backend
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// Option configures a Generator.
type Option func(*Generator)

// WithMetrics records generation outcomes and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// New creates a Generator.
func New(templates *prompt.Library, backend Backend, opts ...Option) *Generator {
	g := &Generator{
		templates: templates,
		backend:   backend,
		tracer:    otel.Tracer("github.com/TNAHOM/project-x-ai-service/internal/generation"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Backend returns the backend name.
func (g *Generator) Backend() string { return g.backend.Name() }

// Generate implements Port.
func (g *Generator) Generate(ctx context.Context, templateID string, vars map[string]any, shape *schema.Shape) (json.RawMessage, error) {
	if shape == nil {
		return nil, fmt.Errorf("generate %s: output shape is required", templateID)
	}

	rendered, err := g.templates.Render(templateID, vars)
	if err != nil {
		return nil, err
	}

	ctx, span := g.tracer.Start(ctx, "generation.generate", trace.WithAttributes(
		attribute.String("generation.template", templateID),
		attribute.String("generation.backend", g.backend.Name()),
	))
	defer span.End()

	start := time.Now()
	text, err := g.backend.Complete(ctx, Request{
		TemplateID: templateID,
		System:     rendered.System,
		User:       rendered.User,
		Shape:      shape,
	})
	elapsed := time.Since(start)
	if err != nil {
		g.observe(templateID, outcomeOf(err), elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend error")
		logging.GenerationWarn("%s via %s failed after %v: %v", templateID, g.backend.Name(), elapsed, err)
		return nil, err
	}

	raw := ExtractJSON(text)
	if raw == "" {
		err := &ShapeMismatch{TemplateID: templateID, Raw: truncate(text, 500), Cause: fmt.Errorf("no JSON object in response")}
		g.observe(templateID, "shape_mismatch", elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "shape mismatch")
		return nil, err
	}
	if err := shape.Validate([]byte(raw)); err != nil {
		mismatch := &ShapeMismatch{TemplateID: templateID, Raw: truncate(raw, 500), Cause: err}
		g.observe(templateID, "shape_mismatch", elapsed)
		span.RecordError(mismatch)
		span.SetStatus(codes.Error, "shape mismatch")
		logging.GenerationDebug("%s shape mismatch: %v", templateID, err)
		return nil, mismatch
	}

	g.observe(templateID, "ok", elapsed)
	logging.GenerationDebug("%s via %s ok in %v (%d bytes)", templateID, g.backend.Name(), elapsed, len(raw))
	return json.RawMessage(raw), nil
}

// Complete implements Completer.
func (g *Generator) Complete(ctx context.Context, templateID string, vars map[string]any) (string, error) {
	rendered, err := g.templates.Render(templateID, vars)
	if err != nil {
		return "", err
	}

	ctx, span := g.tracer.Start(ctx, "generation.complete", trace.WithAttributes(
		attribute.String("generation.template", templateID),
		attribute.String("generation.backend", g.backend.Name()),
	))
	defer span.End()

	start := time.Now()
	text, err := g.backend.Complete(ctx, Request{
		TemplateID: templateID,
		System:     rendered.System,
		User:       rendered.User,
	})
	g.observe(templateID, outcomeOf(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend error")
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (g *Generator) observe(templateID, outcome string, d time.Duration) {
	g.metrics.ObserveGeneration(g.backend.Name(), templateID, outcome, d)
}

func outcomeOf(err error) string {
	switch err.(type) {
	case nil:
		return "ok"
	case *RateLimited:
		return "rate_limited"
	case *BackendUnavailable:
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

package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TNAHOM/project-x-ai-service/internal/schema"

	"go.opentelemetry.io/otel/attribute"
)

// Execution modes.
const (
	ModeMCPAgent = "mcp_agent"
	ModeBasicLLM = "basic_llm"
)

// Request limits.
const (
	MaxTitleLength    = 200
	MaxContentsLength = 2000
)

// Intent is a resolved tool action: which capability and with what.
type Intent struct {
	Capability string         `json:"capability"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// ChatRequest is a titled execution request; Type names the tool family
// or "none" for tasks no tool handles.
type ChatRequest struct {
	Title       string `json:"title"`
	Contents    string `json:"contents"`
	Type        string `json:"type"`
	EnableTools *bool  `json:"enable_tools,omitempty"`
}

// TypeNone marks a request no tool can handle.
const TypeNone = "none"

// Normalize trims title and contents and checks their lengths.
func (r *ChatRequest) Normalize() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Contents = strings.TrimSpace(r.Contents)
	r.Type = strings.TrimSpace(r.Type)
	if n := utf8.RuneCountInString(r.Title); n < 1 || n > MaxTitleLength {
		return fmt.Errorf("%w: title must be 1-%d characters", ErrInvalidRequest, MaxTitleLength)
	}
	if n := utf8.RuneCountInString(r.Contents); n < 1 || n > MaxContentsLength {
		return fmt.Errorf("%w: contents must be 1-%d characters", ErrInvalidRequest, MaxContentsLength)
	}
	return nil
}

// ExecuteContext is the input of the execute stage. At least one of
// Intent, Request and Instruction is required.
type ExecuteContext struct {
	Intent      *Intent      `json:"intent,omitempty"`
	Request     *ChatRequest `json:"request,omitempty"`
	Instruction string       `json:"instruction,omitempty"`

	// EnableTools selects the tool agent (default) or plain completion.
	EnableTools *bool `json:"enable_tools,omitempty"`
}

// ExecuteOutput is the final answer of the agent.
type ExecuteOutput struct {
	Message   string `json:"message"`
	Mode      string `json:"mode"`
	LatencyMS int64  `json:"latency_ms"`
}

func (c ExecuteContext) toolsEnabled() bool {
	switch {
	case c.EnableTools != nil:
		return *c.EnableTools
	case c.Request != nil && c.Request.EnableTools != nil:
		return *c.Request.EnableTools
	default:
		return true
	}
}

// Execute hands the action to the tool-backed agent, or to plain
// completion when tools are disabled, and returns its final answer. The
// wait is bounded by the executor's timeout.
func (e *Executor) Execute(ctx context.Context, c ExecuteContext) (_ *ExecuteOutput, err error) {
	mode := ModeBasicLLM
	if c.toolsEnabled() {
		mode = ModeMCPAgent
	}
	ctx, done := e.begin(ctx, schema.AgentExecute, attribute.String("stage.mode", mode))
	defer func() { done(err) }()

	vars, err := e.executeVars(c)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, e.execTimeout)
	defer cancel()

	var answer string
	if mode == ModeMCPAgent {
		answer, err = e.runTools(tctx, vars)
	} else {
		answer, err = e.runPlain(tctx, vars)
	}
	elapsed := time.Since(start)

	if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = &ExecutionTimeout{After: e.execTimeout}
	}
	e.metrics.ObserveExecution(mode, Outcome(err), elapsed)
	if err != nil {
		return nil, err
	}

	return &ExecuteOutput{
		Message:   strings.TrimSpace(answer),
		Mode:      mode,
		LatencyMS: elapsed.Milliseconds(),
	}, nil
}

func (e *Executor) executeVars(c ExecuteContext) (map[string]any, error) {
	if c.Intent == nil && c.Request == nil && strings.TrimSpace(c.Instruction) == "" {
		return nil, &ContextIncomplete{Agent: schema.AgentExecute, Missing: []string{"instruction"}}
	}

	vars := map[string]any{
		"title":       nil,
		"contents":    nil,
		"capability":  nil,
		"payload":     nil,
		"instruction": strings.TrimSpace(c.Instruction),
	}
	if c.Request != nil {
		req := *c.Request
		if err := req.Normalize(); err != nil {
			return nil, err
		}
		vars["title"], vars["contents"] = req.Title, req.Contents
		if req.Type != "" && req.Type != TypeNone {
			if name, ok := e.caps.Resolve(req.Type); ok {
				vars["capability"] = name
			} else {
				vars["capability"] = req.Type
			}
		}
	}
	if c.Intent != nil {
		name, ok := e.caps.Resolve(c.Intent.Capability)
		if !ok {
			return nil, fmt.Errorf("%w: unknown capability %q", ErrInvalidRequest, c.Intent.Capability)
		}
		vars["capability"] = name
		vars["payload"] = c.Intent.Payload
	}
	return vars, nil
}

func (e *Executor) runTools(ctx context.Context, vars map[string]any) (string, error) {
	if e.tools == nil || e.templates == nil || !e.tools.Ready() {
		return "", ErrSessionUnavailable
	}
	rendered, err := e.templates.Render("execute", vars)
	if err != nil {
		return "", err
	}
	return e.tools.Run(ctx, rendered.User)
}

func (e *Executor) runPlain(ctx context.Context, vars map[string]any) (string, error) {
	if e.completer == nil {
		return "", fmt.Errorf("%s: plain completion is not configured", schema.AgentExecute)
	}
	return e.completer.Complete(ctx, "execute", vars)
}

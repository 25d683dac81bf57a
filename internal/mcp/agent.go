package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/TNAHOM/project-x-ai-service/internal/generation"
	"github.com/TNAHOM/project-x-ai-service/internal/logging"

	"google.golang.org/genai"
)

// DefaultMaxSteps bounds model turns in one agent run.
const DefaultMaxSteps = 30

// ErrStepBudgetExceeded is returned when the model keeps calling tools past the budget.
var ErrStepBudgetExceeded = errors.New("tool agent step budget exceeded")

// Agent answers an instruction using tools.
type Agent interface {
	Run(ctx context.Context, instruction string) (string, error)
}

// AgentConfig configures a ToolAgent.
type AgentConfig struct {
	Model       string
	Temperature float32
	MaxSteps    int
	System      string
}

// ToolAgent drives a Gemini function-calling loop over a toolbox. It is
// immutable after construction and safe for concurrent runs.
type ToolAgent struct {
	models   generation.ContentGenerator
	toolbox  Toolbox
	model    string
	maxSteps int
	config   *genai.GenerateContentConfig
	tools    int
}

// NewToolAgent discovers the toolbox's tools once and binds them to the model.
func NewToolAgent(ctx context.Context, models generation.ContentGenerator, toolbox Toolbox, cfg AgentConfig) (*ToolAgent, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}

	tools, err := toolbox.Tools(ctx)
	if err != nil {
		return nil, err
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		decls = append(decls, declaration(tool))
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(cfg.Temperature),
	}
	if len(decls) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if cfg.System != "" {
		config.SystemInstruction = genai.NewContentFromText(cfg.System, genai.RoleUser)
	}

	logging.Tools("tool agent ready: %d tools, model %s, %d steps", len(decls), cfg.Model, cfg.MaxSteps)
	return &ToolAgent{
		models:   models,
		toolbox:  toolbox,
		model:    cfg.Model,
		maxSteps: cfg.MaxSteps,
		config:   config,
		tools:    len(decls),
	}, nil
}

// ToolCount returns the number of tools bound to the model.
func (a *ToolAgent) ToolCount() int { return a.tools }

// Run implements Agent.
func (a *ToolAgent) Run(ctx context.Context, instruction string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(instruction, genai.RoleUser)}

	for step := 1; step <= a.maxSteps; step++ {
		resp, err := a.models.GenerateContent(ctx, a.model, contents, a.config)
		if err != nil {
			return "", fmt.Errorf("tool agent step %d: %w", step, generation.GeminiError(ctx, err))
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", &generation.BackendUnavailable{Backend: "gemini", Cause: errors.New("empty response")}
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			return strings.TrimSpace(resp.Text()), nil
		}

		contents = append(contents, resp.Candidates[0].Content)
		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			parts = append(parts, a.invoke(ctx, call))
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))

		if err := ctx.Err(); err != nil {
			return "", err
		}
	}

	logging.ToolsWarn("tool agent gave up after %d steps", a.maxSteps)
	return "", ErrStepBudgetExceeded
}

// invoke runs one function call. Tool failures go back to the model as the
// function response so it can recover.
func (a *ToolAgent) invoke(ctx context.Context, call *genai.FunctionCall) *genai.Part {
	result, err := a.toolbox.CallTool(ctx, call.Name, call.Args)
	var response map[string]any
	switch {
	case err != nil:
		logging.ToolsWarn("tool %s failed: %v", call.Name, err)
		response = map[string]any{"error": err.Error()}
	case !result.Success:
		logging.ToolsDebug("tool %s returned error: %s", call.Name, truncate(result.Error, 200))
		response = map[string]any{"error": result.Error}
	default:
		response = map[string]any{"output": result.Text()}
	}

	part := genai.NewPartFromFunctionResponse(call.Name, response)
	if call.ID != "" {
		part.FunctionResponse.ID = call.ID
	}
	return part
}

func declaration(tool Tool) *genai.FunctionDeclaration {
	decl := &genai.FunctionDeclaration{
		Name:        tool.ID,
		Description: tool.Schema.Description,
	}
	if len(tool.Schema.InputSchema) > 0 {
		var params any
		if err := json.Unmarshal(tool.Schema.InputSchema, &params); err == nil {
			decl.ParametersJsonSchema = params
		}
	}
	return decl
}

var _ Agent = (*ToolAgent)(nil)

// Package orchestrator decodes agent requests, dispatches them to the stage
// executors and chains stages into the multi-stage flows.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/TNAHOM/project-x-ai-service/internal/journal"
	"github.com/TNAHOM/project-x-ai-service/internal/logging"
	"github.com/TNAHOM/project-x-ai-service/internal/schema"
	"github.com/TNAHOM/project-x-ai-service/internal/stages"

	"github.com/google/uuid"
)

// DefaultParallelism bounds concurrent tasks in a batch.
const DefaultParallelism = 4

// ErrMalformedRequest marks a request body or context that cannot be decoded.
var ErrMalformedRequest = errors.New("malformed request")

// AgentRequest addresses one stage. AgentName selects the only valid shape
// of Context.
type AgentRequest struct {
	AgentName  string          `json:"agent_name"`
	UserPrompt string          `json:"user_prompt,omitempty"`
	Context    json.RawMessage `json:"context"`
}

// DecodeRequest parses a request body.
func DecodeRequest(data []byte) (AgentRequest, error) {
	var req AgentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return req, nil
}

// Result is the output of one dispatched stage.
type Result struct {
	RunID  string         `json:"run_id"`
	Agent  schema.AgentID `json:"agent_name"`
	Output any            `json:"output"`
}

// Orchestrator routes requests to stages. It holds no per-request state.
type Orchestrator struct {
	stages      *stages.Executor
	contracts   *schema.Registry
	journal     journal.Sink
	parallelism int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithJournal records every stage run to sink.
func WithJournal(sink journal.Sink) Option {
	return func(o *Orchestrator) { o.journal = sink }
}

// WithParallelism bounds concurrent tasks in ExpandAndExecute.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) { o.parallelism = n }
}

// New creates an Orchestrator.
func New(exec *stages.Executor, contracts *schema.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		stages:      exec,
		contracts:   contracts,
		journal:     journal.Nop{},
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.journal == nil {
		o.journal = journal.Nop{}
	}
	if o.parallelism <= 0 {
		o.parallelism = DefaultParallelism
	}
	return o
}

// Dispatch validates req against the agent's contract and runs the stage.
// Required context keys are checked on the raw object before decoding; a
// top-level user_prompt fills the context's user_prompt when it has none.
func (o *Orchestrator) Dispatch(ctx context.Context, req AgentRequest) (*Result, error) {
	agent, err := schema.ParseAgentID(req.AgentName)
	if err != nil {
		return nil, err
	}
	contract, err := o.contracts.Lookup(agent)
	if err != nil {
		return nil, err
	}

	fields, err := contextFields(req.Context)
	if err != nil {
		return nil, fmt.Errorf("%w: %s context: %v", ErrMalformedRequest, agent, err)
	}
	if req.UserPrompt != "" && slices.Contains(contract.Fields(), "user_prompt") {
		if _, ok := fields["user_prompt"]; !ok {
			prompt, _ := json.Marshal(req.UserPrompt)
			fields["user_prompt"] = prompt
		}
	}
	if missing := contract.MissingFields(fields); len(missing) > 0 {
		return nil, &stages.ContextIncomplete{Agent: agent, Missing: missing}
	}
	contract.FillOptional(fields)
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	runID := uuid.NewString()
	log := logging.WithRequestID(logging.CategoryOrchestrator, runID).WithField("agent", string(agent))
	log.Info("dispatching %s (contract v%d)", agent, contract.Version)

	out, err := step(ctx, o, runID, agent, func() (any, error) {
		return o.invoke(ctx, agent, raw)
	})
	if err != nil {
		log.Error("%s failed: %v", agent, err)
		return nil, err
	}
	return &Result{RunID: runID, Agent: agent, Output: out}, nil
}

// Execute runs one titled request through the execute stage.
func (o *Orchestrator) Execute(ctx context.Context, req stages.ChatRequest) (*stages.ExecuteOutput, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	logging.WithRequestID(logging.CategoryOrchestrator, runID).WithField("type", req.Type).Info("executing %q", req.Title)
	return step(ctx, o, runID, schema.AgentExecute, func() (*stages.ExecuteOutput, error) {
		return o.stages.Execute(ctx, stages.ExecuteContext{Request: &req})
	})
}

func (o *Orchestrator) invoke(ctx context.Context, agent schema.AgentID, raw []byte) (any, error) {
	switch agent {
	case schema.AgentClarifying:
		return decodeAndRun(ctx, agent, raw, o.stages.Clarify)
	case schema.AgentClassifying:
		return decodeAndRun(ctx, agent, raw, o.stages.Classify)
	case schema.AgentDomain:
		return decodeAndRun(ctx, agent, raw, o.stages.Domain)
	case schema.AgentTasks:
		return decodeAndRun(ctx, agent, raw, o.stages.Plan)
	case schema.AgentAutomate:
		return decodeAndRun(ctx, agent, raw, o.stages.Automate)
	case schema.AgentClarifyAutomation:
		return decodeAndRun(ctx, agent, raw, o.stages.ClarifyParams)
	case schema.AgentExpander:
		return decodeAndRun(ctx, agent, raw, o.stages.Expand)
	case schema.AgentExecute:
		return decodeAndRun(ctx, agent, raw, o.stages.Execute)
	case schema.AgentVenting:
		return decodeAndRun(ctx, agent, raw, o.stages.Venting)
	default:
		return nil, fmt.Errorf("%w: %q", schema.ErrUnknownAgent, agent)
	}
}

// decodeAndRun decodes raw into the stage's context type and runs it.
func decodeAndRun[C, O any](ctx context.Context, agent schema.AgentID, raw []byte, run func(context.Context, C) (O, error)) (any, error) {
	var c C
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %s context: %v", ErrMalformedRequest, agent, err)
	}
	out, err := run(ctx, c)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func contextFields(raw json.RawMessage) (map[string]json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fields, nil
	}
	if trimmed[0] != '{' {
		return nil, errors.New("context must be a JSON object")
	}
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// step runs one stage and journals it under runID.
func step[O any](ctx context.Context, o *Orchestrator, runID string, agent schema.AgentID, run func() (O, error)) (O, error) {
	start := time.Now()
	out, err := run()
	o.record(ctx, runID, agent, time.Since(start), out, err)
	return out, err
}

func (o *Orchestrator) record(ctx context.Context, runID string, agent schema.AgentID, elapsed time.Duration, out any, err error) {
	entry := journal.Entry{
		RunID:      runID,
		Agent:      string(agent),
		Outcome:    stages.Outcome(err),
		DurationMs: elapsed.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	if err != nil {
		entry.Error = err.Error()
	} else if data, merr := json.Marshal(out); merr == nil {
		entry.Output = data
	}
	if rerr := o.journal.Record(context.WithoutCancel(ctx), entry); rerr != nil {
		logging.JournalWarn("failed to journal %s run %s: %v", agent, runID, rerr)
	}
}

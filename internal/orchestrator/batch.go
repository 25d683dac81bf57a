package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/TNAHOM/project-x-ai-service/internal/logging"
	"github.com/TNAHOM/project-x-ai-service/internal/schema"
	"github.com/TNAHOM/project-x-ai-service/internal/stages"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ExecutionItem is the outcome of one task of a batch. Tasks no capability
// handles come back as {title, contents, type: "none"} with the reason in
// contents.
type ExecutionItem struct {
	Title      string `json:"title"`
	Contents   string `json:"contents"`
	Type       string `json:"type"`
	Answer     string `json:"answer,omitempty"`
	Mode       string `json:"mode,omitempty"`
	LatencyMS  int64  `json:"latency_ms,omitempty"`
	Error      string `json:"error,omitempty"`
	FailedStep string `json:"failed_step,omitempty"`
}

// ExpandAndExecute classifies each task; automatable tasks are expanded
// and then executed through the tool agent. Tasks run concurrently up to
// the orchestrator's parallelism and results keep the input order. A task
// that fails records its error in its item; the batch itself only fails
// when there is nothing to do or ctx ends.
func (o *Orchestrator) ExpandAndExecute(ctx context.Context, tasks []string) ([]ExecutionItem, error) {
	var cleaned []string
	for _, t := range tasks {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%w: tasks must not be empty", ErrMalformedRequest)
	}

	runID := uuid.NewString()
	logging.WithRequestID(logging.CategoryOrchestrator, runID).Info("expanding %d tasks", len(cleaned))

	items := make([]ExecutionItem, len(cleaned))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i, task := range cleaned {
		g.Go(func() error {
			items[i] = o.expandAndExecute(gctx, runID, task)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return items, err
	}
	return items, nil
}

func (o *Orchestrator) expandAndExecute(ctx context.Context, runID, task string) ExecutionItem {
	title := clip(task, stages.MaxTitleLength)
	verdict := o.stages.Capabilities().Classify(task)
	if !verdict.Automated {
		return ExecutionItem{Title: title, Contents: verdict.Reason, Type: stages.TypeNone}
	}
	item := ExecutionItem{Title: title, Type: verdict.Capability}

	chosen := stages.Task{Name: task, Automated: true, Status: stages.TaskStatusPending}
	exp, err := step(ctx, o, runID, schema.AgentExpander, func() (*stages.ExpandOutput, error) {
		return o.stages.Expand(ctx, stages.ExpandContext{ChosenTask: &chosen, UserPrompt: task})
	})
	if err != nil {
		item.Error, item.FailedStep = err.Error(), string(schema.AgentExpander)
		return item
	}
	item.Contents = clip(executionContents(task, exp), stages.MaxContentsLength)

	out, err := step(ctx, o, runID, schema.AgentExecute, func() (*stages.ExecuteOutput, error) {
		return o.stages.Execute(ctx, stages.ExecuteContext{
			Intent:  &stages.Intent{Capability: verdict.Capability, Payload: suggestionPayload(exp)},
			Request: &stages.ChatRequest{Title: item.Title, Contents: item.Contents, Type: verdict.Capability},
		})
	})
	if err != nil {
		item.Error, item.FailedStep = err.Error(), string(schema.AgentExecute)
		return item
	}
	item.Answer, item.Mode, item.LatencyMS = out.Message, out.Mode, out.LatencyMS
	return item
}

// executionContents turns an expansion into the body handed to the agent.
func executionContents(task string, exp *stages.ExpandOutput) string {
	var b strings.Builder
	b.WriteString(task)
	if s := strings.TrimSpace(exp.ResearchSummary); s != "" {
		b.WriteString("\n\n")
		b.WriteString(s)
	}
	if len(exp.ExecutionSuggestions) > 0 {
		b.WriteString("\n")
		for _, s := range exp.ExecutionSuggestions {
			fmt.Fprintf(&b, "\n- %s: %v", s.Key, s.Value)
		}
	}
	if len(exp.RiskFlags) > 0 {
		b.WriteString("\n\nRisks: ")
		b.WriteString(strings.Join(exp.RiskFlags, "; "))
	}
	return b.String()
}

func suggestionPayload(exp *stages.ExpandOutput) map[string]any {
	if len(exp.ExecutionSuggestions) == 0 {
		return nil
	}
	payload := make(map[string]any, len(exp.ExecutionSuggestions))
	for _, s := range exp.ExecutionSuggestions {
		if s.Key != "" {
			payload[s.Key] = s.Value
		}
	}
	return payload
}

// clip truncates s to at most n runes.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// Capabilities lists the registry's capability names, sorted.
func (o *Orchestrator) Capabilities() []string {
	names := o.stages.Capabilities().Names()
	sort.Strings(names)
	return names
}

package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TNAHOM/project-x-ai-service/internal/capability"
	"github.com/TNAHOM/project-x-ai-service/internal/schema"
)

// AutomateContext is the input of the automation stage.
type AutomateContext struct {
	Tasks []Task `json:"tasks"`

	// Capabilities restricts the registry by name or alias. Empty means all.
	Capabilities []string `json:"capabilities,omitempty"`

	Data          any     `json:"data,omitempty"`
	History       History `json:"history,omitempty"`
	UserPrompt    string  `json:"user_prompt,omitempty"`
	KnowledgeBase any     `json:"knowledge_base,omitempty"`
}

// AutomateResult is either NeedMoreContext or AutomationPlan.
type AutomateResult interface {
	NeedsMoreContext() bool
	automateResult()
}

// NeedMoreContext asks the user for what is missing before automation.
type NeedMoreContext struct {
	Question string
}

// AutomationPlan is the automation decision for every task.
type AutomationPlan struct {
	Summary    string
	Tasks      []AutomatedTask
	TaskResult any
}

// AutomatedTask is a task with its capability verdict.
type AutomatedTask struct {
	Task
	Capability string `json:"capability,omitempty"`
	Reason     string `json:"reason"`
}

func (NeedMoreContext) NeedsMoreContext() bool { return true }
func (NeedMoreContext) automateResult()        {}
func (AutomationPlan) NeedsMoreContext() bool  { return false }
func (AutomationPlan) automateResult()         {}

// MarshalJSON renders the need-more-context arm.
func (n NeedMoreContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		NeedMoreContext    bool   `json:"need_more_context"`
		ClarifyingQuestion string `json:"clarifying_question"`
	}{true, n.Question})
}

// MarshalJSON renders the plan arm.
func (p AutomationPlan) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		NeedMoreContext  bool            `json:"need_more_context"`
		AutomationResult string          `json:"automation_result"`
		Tasks            []AutomatedTask `json:"tasks"`
		TaskResult       any             `json:"task_result"`
	}{false, p.Summary, p.Tasks, p.TaskResult})
}

type wireAutomate struct {
	NeedMoreContext    bool    `json:"need_more_context"`
	ClarifyingQuestion *string `json:"clarifying_question"`
	AutomationResult   *string `json:"automation_result"`
	TaskResult         any     `json:"task_result"`
}

// Automate decides whether the tasks can be automated now. The model
// decides only whether more context is needed; each task's verdict comes
// from the capability rule over its wording.
func (e *Executor) Automate(ctx context.Context, c AutomateContext) (_ AutomateResult, err error) {
	ctx, done := e.begin(ctx, schema.AgentAutomate)
	defer func() { done(err) }()

	if len(c.Tasks) == 0 {
		return nil, &ContextIncomplete{Agent: schema.AgentAutomate, Missing: []string{"tasks"}}
	}
	caps, err := e.caps.Subset(c.Capabilities...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", schema.AgentAutomate, err)
	}

	var wire wireAutomate
	vars := map[string]any{
		"tasks":          c.Tasks,
		"capabilities":   caps.Names(),
		"data":           c.Data,
		"history":        c.History,
		"user_prompt":    c.UserPrompt,
		"knowledge_base": c.KnowledgeBase,
	}
	if err := e.generate(ctx, schema.AgentAutomate, "", nil, vars, &wire); err != nil {
		return nil, err
	}

	if wire.NeedMoreContext {
		if wire.ClarifyingQuestion == nil || strings.TrimSpace(*wire.ClarifyingQuestion) == "" {
			return nil, invalid(schema.AgentAutomate, "more context needed but no clarifying question")
		}
		return NeedMoreContext{Question: strings.TrimSpace(*wire.ClarifyingQuestion)}, nil
	}

	plan := AutomationPlan{
		Tasks:      ClassifyTasks(caps, c.Tasks),
		TaskResult: wire.TaskResult,
	}
	if wire.AutomationResult != nil {
		plan.Summary = strings.TrimSpace(*wire.AutomationResult)
	}
	return plan, nil
}

// ClassifyTasks applies the capability rule to each task.
func ClassifyTasks(caps *capability.Registry, tasks []Task) []AutomatedTask {
	out := make([]AutomatedTask, len(tasks))
	for i, t := range tasks {
		v := caps.ClassifyTask(t.Name, t.Description)
		t.Automated = v.Automated
		out[i] = AutomatedTask{Task: t, Capability: v.Capability, Reason: v.Reason}
	}
	return out
}

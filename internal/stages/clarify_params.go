package stages

import (
	"context"
	"strings"

	"github.com/TNAHOM/project-x-ai-service/internal/capability"
	"github.com/TNAHOM/project-x-ai-service/internal/schema"
)

// ClarifyParamsContext is the input of the clarify-automation stage.
type ClarifyParamsContext struct {
	Task                 *Task    `json:"task"`
	Capabilities         []string `json:"capabilities,omitempty"`
	History              History  `json:"history,omitempty"`
	UserPrompt           string   `json:"user_prompt,omitempty"`
	KnowledgeBaseSummary any      `json:"knowledge_base_summary,omitempty"`
}

// ClarifyParamsOutput lists the questions for parameters still missing.
// When nothing is missing the list is empty and NeedMoreContext is false.
type ClarifyParamsOutput struct {
	NeedMoreContext      bool     `json:"need_more_context"`
	ClarificationSummary string   `json:"clarification_summary"`
	ClarifyingQuestions  []string `json:"clarifying_questions"`

	// Capability is the capability the task maps to, if any.
	Capability string `json:"capability,omitempty"`

	// Missing names the parameters the questions ask for.
	Missing []string `json:"missing_parameters"`
}

type missingParam struct {
	Name     string `json:"name"`
	Question string `json:"question"`
}

// ClarifyParams asks only for the parameters of the task's capability that
// are not present in the task wording, the history or the user's note.
// Which parameters are missing is decided here; the model phrases the
// questions and the summary.
func (e *Executor) ClarifyParams(ctx context.Context, c ClarifyParamsContext) (_ *ClarifyParamsOutput, err error) {
	ctx, done := e.begin(ctx, schema.AgentClarifyAutomation)
	defer func() { done(err) }()

	if c.Task == nil || strings.TrimSpace(c.Task.Name) == "" {
		return nil, &ContextIncomplete{Agent: schema.AgentClarifyAutomation, Missing: []string{"task"}}
	}
	caps, err := e.caps.Subset(c.Capabilities...)
	if err != nil {
		return nil, err
	}

	verdict := caps.ClassifyTask(c.Task.Name, c.Task.Description)
	var missing []capability.Param
	if verdict.Automated {
		texts := append([]string{c.Task.Name, c.Task.Description, c.UserPrompt}, c.History.Texts()...)
		missing = capability.MissingParams(caps.Get(verdict.Capability), texts...)
	}

	params := make([]missingParam, len(missing))
	names := make([]string, len(missing))
	for i, p := range missing {
		params[i] = missingParam{Name: p.Name, Question: p.Question}
		names[i] = p.Name
	}

	var out ClarifyParamsOutput
	vars := map[string]any{
		"task":                   c.Task,
		"capabilities":           caps.Names(),
		"history":                c.History,
		"user_prompt":            c.UserPrompt,
		"knowledge_base_summary": c.KnowledgeBaseSummary,
		"missing_parameters":     params,
	}
	if err := e.generate(ctx, schema.AgentClarifyAutomation, "", nil, vars, &out); err != nil {
		return nil, err
	}

	out.Capability = verdict.Capability
	out.Missing = names
	out.ClarifyingQuestions = reconcileQuestions(out.ClarifyingQuestions, missing)
	out.NeedMoreContext = len(missing) > 0
	return &out, nil
}

// reconcileQuestions keeps the model's phrasing when it asked one question
// per missing parameter and falls back to the registry's questions
// otherwise.
func reconcileQuestions(asked []string, missing []capability.Param) []string {
	if len(missing) == 0 {
		return []string{}
	}
	var cleaned []string
	for _, q := range asked {
		if q = strings.TrimSpace(q); q != "" {
			cleaned = append(cleaned, q)
		}
	}
	if len(cleaned) == len(missing) {
		return cleaned
	}
	out := make([]string, len(missing))
	for i, p := range missing {
		out[i] = p.Question
	}
	return out
}

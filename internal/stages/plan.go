package stages

import (
	"context"
	"strings"

	"github.com/TNAHOM/project-x-ai-service/internal/schema"
)

// Plan statuses.
const (
	PlanCompleted = "completed"
	PlanFailed    = "failed"
)

// PlanContext is the input of the tasks stage.
type PlanContext struct {
	ProblemSpace  *ProblemSpace  `json:"problem_space"`
	DomainProfile *DomainProfile `json:"domain_profile"`

	// Strategies are the chosen strategic objectives.
	Strategies []string `json:"strategies"`

	PriorTasks           []Task `json:"prior_tasks,omitempty"`
	KnowledgeBaseSummary any    `json:"knowledge_base_summary,omitempty"`
}

// PlanOutput is an ordered plan. A failed status is a valid terminal
// result the caller must branch on.
type PlanOutput struct {
	OverallStatus   string `json:"overall_status"`
	ResearchSummary string `json:"research_summary"`
	Tasks           []Task `json:"task"`
}

// Failed reports whether planning ended in the failed state.
func (p *PlanOutput) Failed() bool { return p.OverallStatus == PlanFailed }

type wireTask struct {
	Order       *int   `json:"order"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

type wirePlan struct {
	OverallStatus   string     `json:"overall_status"`
	ResearchSummary string     `json:"research_summary"`
	Tasks           []wireTask `json:"task"`
}

func (c PlanContext) missing() []string {
	var m []string
	if c.ProblemSpace == nil || strings.TrimSpace(c.ProblemSpace.Name) == "" {
		m = append(m, "problem_space")
	}
	if c.DomainProfile == nil {
		m = append(m, "domain_profile")
	}
	if len(c.Strategies) == 0 {
		m = append(m, "strategies")
	}
	return m
}

// Plan turns strategic objectives into ordered tasks. Orders are 0-based,
// dense and strictly increasing; each task's automatability comes from the
// capability rules, not from the model.
func (e *Executor) Plan(ctx context.Context, c PlanContext) (_ *PlanOutput, err error) {
	ctx, done := e.begin(ctx, schema.AgentTasks)
	defer func() { done(err) }()

	if m := c.missing(); len(m) > 0 {
		return nil, &ContextIncomplete{Agent: schema.AgentTasks, Missing: m}
	}

	var wire wirePlan
	vars := map[string]any{
		"problem_space":          c.ProblemSpace,
		"domain_profile":         c.DomainProfile,
		"strategies":             c.Strategies,
		"prior_tasks":            c.PriorTasks,
		"knowledge_base_summary": c.KnowledgeBaseSummary,
	}
	if err := e.generate(ctx, schema.AgentTasks, "", nil, vars, &wire); err != nil {
		return nil, err
	}

	tasks, err := orderTasks(wire.Tasks)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].Automated = e.caps.ClassifyTask(tasks[i].Name, tasks[i].Description).Automated
	}

	if wire.OverallStatus == PlanCompleted && len(tasks) == 0 {
		return nil, invalid(schema.AgentTasks, "completed plan has no tasks")
	}
	return &PlanOutput{
		OverallStatus:   wire.OverallStatus,
		ResearchSummary: wire.ResearchSummary,
		Tasks:           tasks,
	}, nil
}

// orderTasks assigns 0-based orders. Tasks without orders take their
// position; tasks that all carry strictly increasing orders keep that
// sequence, renumbered from 0. Anything else is invalid.
func orderTasks(in []wireTask) ([]Task, error) {
	withOrder := 0
	for _, t := range in {
		if t.Order != nil {
			withOrder++
		}
	}
	if withOrder != 0 && withOrder != len(in) {
		return nil, invalid(schema.AgentTasks, "%d of %d tasks carry an order", withOrder, len(in))
	}

	out := make([]Task, len(in))
	for i, t := range in {
		if withOrder > 0 && i > 0 && *t.Order <= *in[i-1].Order {
			return nil, invalid(schema.AgentTasks, "task orders not strictly increasing at position %d (%d after %d)", i, *t.Order, *in[i-1].Order)
		}
		status := t.Status
		if status == "" {
			status = TaskStatusPending
		}
		out[i] = Task{
			Order:       i,
			Name:        strings.TrimSpace(t.Name),
			Description: strings.TrimSpace(t.Description),
			Status:      status,
		}
	}
	return out, nil
}

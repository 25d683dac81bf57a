package stages

import (
	"context"
	"strings"

	"github.com/TNAHOM/project-x-ai-service/internal/schema"

	"go.opentelemetry.io/otel/attribute"
)

// DomainContext is the input of the strategize stage.
type DomainContext struct {
	ProblemSpace         *ProblemSpace  `json:"problem_space"`
	DomainProfile        *DomainProfile `json:"domain_profile"`
	UserMemory           any            `json:"user_memory,omitempty"`
	KnowledgeBaseSummary any            `json:"knowledge_base_summary,omitempty"`

	// PriorObjectives are objectives produced by earlier calls; the model
	// is asked not to repeat them.
	PriorObjectives []string `json:"prior_objectives,omitempty"`
}

// DomainOutput is 1-10 strategies, each with 7-10 objectives.
type DomainOutput struct {
	Strategies []Strategy `json:"strategies"`
}

func (c DomainContext) missing() []string {
	var m []string
	if c.ProblemSpace == nil || strings.TrimSpace(c.ProblemSpace.Name) == "" {
		m = append(m, "problem_space")
	}
	if c.DomainProfile == nil || c.DomainProfile.DomainType == "" {
		m = append(m, "domain_profile")
	}
	return m
}

// Domain produces strategies for the problem with the template of the
// profile's domain type.
func (e *Executor) Domain(ctx context.Context, c DomainContext) (_ *DomainOutput, err error) {
	var domain string
	if c.DomainProfile != nil {
		domain = string(c.DomainProfile.DomainType)
	}
	ctx, done := e.begin(ctx, schema.AgentDomain, attribute.String("stage.domain", domain))
	defer func() { done(err) }()

	if m := c.missing(); len(m) > 0 {
		return nil, &ContextIncomplete{Agent: schema.AgentDomain, Missing: m}
	}

	contract, err := e.contracts.Lookup(schema.AgentDomain)
	if err != nil {
		return nil, err
	}
	templateID, err := c.DomainProfile.DomainType.templateID(contract.TemplateID)
	if err != nil {
		return nil, err
	}

	var out DomainOutput
	vars := map[string]any{
		"problem_space":          c.ProblemSpace,
		"domain_profile":         c.DomainProfile,
		"user_memory":            c.UserMemory,
		"knowledge_base_summary": c.KnowledgeBaseSummary,
		"prior_objectives":       c.PriorObjectives,
	}
	if err := e.generate(ctx, schema.AgentDomain, templateID, nil, vars, &out); err != nil {
		return nil, err
	}
	if err := checkStrategies(out.Strategies); err != nil {
		return nil, err
	}
	return &out, nil
}

func checkStrategies(strategies []Strategy) error {
	if n := len(strategies); n < schema.MinStrategies || n > schema.MaxStrategies {
		return invalid(schema.AgentDomain, "expected %d-%d strategies, got %d", schema.MinStrategies, schema.MaxStrategies, n)
	}
	for i, s := range strategies {
		if strings.TrimSpace(s.Name) == "" {
			return invalid(schema.AgentDomain, "strategy %d has no name", i)
		}
		if n := len(s.KeyObjectives); n < schema.MinObjectives || n > schema.MaxObjectives {
			return invalid(schema.AgentDomain, "strategy %q has %d objectives, want %d-%d", s.Name, n, schema.MinObjectives, schema.MaxObjectives)
		}
	}
	return nil
}

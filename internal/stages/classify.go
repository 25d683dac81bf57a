package stages

import (
	"context"
	"strings"

	"github.com/TNAHOM/project-x-ai-service/internal/schema"
)

// ClassifyContext is the input of the classifying stage.
type ClassifyContext struct {
	History        History  `json:"history"`
	AllowedDomains []string `json:"allowed_domains,omitempty"`
}

// ClassifyOutput names the domain and the structured problem.
type ClassifyOutput struct {
	Domain        string       `json:"domain"`
	Justification string       `json:"justification"`
	ProblemSpace  ProblemSpace `json:"problem_space"`
}

// Classify picks the domain of the problem from the allowed set and
// creates the problem space. Generation is constrained to the allowed
// set and membership is checked again on the result.
func (e *Executor) Classify(ctx context.Context, c ClassifyContext) (_ *ClassifyOutput, err error) {
	ctx, done := e.begin(ctx, schema.AgentClassifying)
	defer func() { done(err) }()

	if len(c.History) == 0 {
		return nil, &ContextIncomplete{Agent: schema.AgentClassifying, Missing: []string{"history"}}
	}
	allowed := normalizeDomains(c.AllowedDomains)
	if len(allowed) == 0 {
		allowed = normalizeDomains(e.allowed)
	}

	var out ClassifyOutput
	vars := map[string]any{"history": c.History, "allowed_domains": allowed}
	if err := e.generate(ctx, schema.AgentClassifying, "", schema.ClassifyShape(allowed), vars, &out); err != nil {
		return nil, err
	}

	out.Domain = strings.ToLower(strings.TrimSpace(out.Domain))
	if !contains(allowed, out.Domain) {
		return nil, invalid(schema.AgentClassifying, "domain %q is not one of %v", out.Domain, allowed)
	}
	if strings.TrimSpace(out.ProblemSpace.Name) == "" {
		return nil, invalid(schema.AgentClassifying, "problem space has no name")
	}
	out.ProblemSpace.Status = ProblemStatusActive
	return &out, nil
}

func normalizeDomains(in []string) []string {
	var out []string
	for _, d := range in {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" && !contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

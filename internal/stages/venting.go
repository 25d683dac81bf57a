package stages

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/TNAHOM/project-x-ai-service/internal/schema"
)

// VentingContext is the input of the problem-space detector.
type VentingContext struct {
	History    History `json:"history"`
	UserPrompt string  `json:"user_prompt,omitempty"`
	UserMemory any     `json:"user_memory,omitempty"`
}

// VentingResult is either ProblemSpaceReady or NeedsClarification.
type VentingResult interface {
	IsProblemSpace() bool
	ventingResult()
}

// ProblemSpaceReady carries a complete problem space found in the vent.
type ProblemSpaceReady struct {
	ProblemSpace ProblemSpace
}

// NeedsClarification carries 1-3 questions that would complete it.
type NeedsClarification struct {
	Questions []string
}

func (ProblemSpaceReady) IsProblemSpace() bool  { return true }
func (ProblemSpaceReady) ventingResult()        {}
func (NeedsClarification) IsProblemSpace() bool { return false }
func (NeedsClarification) ventingResult()       {}

// MarshalJSON renders the problem-space arm.
func (p ProblemSpaceReady) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		IsProblemSpace      bool         `json:"is_problem_space"`
		ClarifyingQuestions []string     `json:"clarifying_questions"`
		ProblemSpace        ProblemSpace `json:"problem_space"`
	}{true, []string{}, p.ProblemSpace})
}

// MarshalJSON renders the clarification arm.
func (n NeedsClarification) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		IsProblemSpace      bool     `json:"is_problem_space"`
		ClarifyingQuestions []string `json:"clarifying_questions"`
		ProblemSpace        any      `json:"problem_space"`
	}{false, n.Questions, nil})
}

type wireVenting struct {
	IsProblemSpace      bool          `json:"is_problem_space"`
	ClarifyingQuestions []string      `json:"clarifying_questions"`
	ProblemSpace        *ProblemSpace `json:"problem_space"`
}

// Venting decides whether a vent already contains a complete problem space.
func (e *Executor) Venting(ctx context.Context, c VentingContext) (_ VentingResult, err error) {
	ctx, done := e.begin(ctx, schema.AgentVenting)
	defer func() { done(err) }()

	if len(c.History) == 0 && strings.TrimSpace(c.UserPrompt) == "" {
		return nil, &ContextIncomplete{Agent: schema.AgentVenting, Missing: []string{"history"}}
	}
	if c.History == nil {
		c.History = History{}
	}

	var wire wireVenting
	vars := map[string]any{
		"history":     c.History,
		"user_prompt": c.UserPrompt,
		"user_memory": c.UserMemory,
	}
	if err := e.generate(ctx, schema.AgentVenting, "", nil, vars, &wire); err != nil {
		return nil, err
	}

	if wire.IsProblemSpace {
		if wire.ProblemSpace == nil || strings.TrimSpace(wire.ProblemSpace.Name) == "" {
			return nil, invalid(schema.AgentVenting, "problem space flagged but not provided")
		}
		ps := *wire.ProblemSpace
		ps.Status = ProblemStatusActive
		return ProblemSpaceReady{ProblemSpace: ps}, nil
	}

	var questions []string
	for _, q := range wire.ClarifyingQuestions {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}
	if len(questions) == 0 || len(questions) > schema.MaxVentingQuestions {
		return nil, invalid(schema.AgentVenting, "expected 1-%d clarifying questions, got %d", schema.MaxVentingQuestions, len(questions))
	}
	return NeedsClarification{Questions: questions}, nil
}

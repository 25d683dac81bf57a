package stages

import (
	"context"
	"regexp"
	"strings"

	"github.com/TNAHOM/project-x-ai-service/internal/schema"
)

// CatchAllAnswer is appended when the model omits an "other" option.
const CatchAllAnswer = "Other/None of the above."

// ClarifyContext is the input of the clarifying stage.
type ClarifyContext struct {
	History    History `json:"history"`
	UserPrompt string  `json:"user_prompt"`
}

// ClarifyOutput is the clarifying decision. When the problem is clear the
// question is nil and the answers are empty; otherwise the question is set
// and at least four answers, the last a catch-all, are offered.
type ClarifyOutput struct {
	IsProblemClear     bool     `json:"is_problem_clear"`
	ClarifyingQuestion *string  `json:"clarifying_question"`
	SuggestedAnswers   []string `json:"suggested_answers"`
}

func (c ClarifyContext) missing() []string {
	if strings.TrimSpace(c.UserPrompt) == "" {
		return []string{"user_prompt"}
	}
	return nil
}

// Clarify decides whether the problem is understood well enough to
// classify. It is called once per user turn; looping is up to the caller.
func (e *Executor) Clarify(ctx context.Context, c ClarifyContext) (_ *ClarifyOutput, err error) {
	ctx, done := e.begin(ctx, schema.AgentClarifying)
	defer func() { done(err) }()

	if m := c.missing(); len(m) > 0 {
		return nil, &ContextIncomplete{Agent: schema.AgentClarifying, Missing: m}
	}
	if c.History == nil {
		c.History = History{}
	}

	var out ClarifyOutput
	vars := map[string]any{"history": c.History, "user_prompt": c.UserPrompt}
	if err := e.generate(ctx, schema.AgentClarifying, "", nil, vars, &out); err != nil {
		return nil, err
	}
	if err := normalizeClarify(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func normalizeClarify(out *ClarifyOutput) error {
	if out.IsProblemClear {
		out.ClarifyingQuestion = nil
		out.SuggestedAnswers = []string{}
		return nil
	}

	if out.ClarifyingQuestion == nil || strings.TrimSpace(*out.ClarifyingQuestion) == "" {
		return invalid(schema.AgentClarifying, "problem not clear but no clarifying question")
	}
	q := strings.TrimSpace(*out.ClarifyingQuestion)
	out.ClarifyingQuestion = &q

	answers := make([]string, 0, len(out.SuggestedAnswers)+1)
	catchAll := CatchAllAnswer
	for _, a := range out.SuggestedAnswers {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
		case isCatchAll(a):
			catchAll = a
		default:
			answers = append(answers, a)
		}
	}
	// the catch-all is always last
	answers = append(answers, catchAll)

	if len(answers) < schema.MinSuggestedAnswers {
		return invalid(schema.AgentClarifying, "expected at least %d suggested answers, got %d", schema.MinSuggestedAnswers, len(answers))
	}
	out.SuggestedAnswers = answers
	return nil
}

// catchAllPattern matches whole catch-all answers such as "Other",
// "Something else", "Other/None of the above" or "Other (please specify)".
// "Other people's expectations" is a real answer and does not match.
var catchAllPattern = regexp.MustCompile(
	`^(others?|something else|none of (the above|these)|not listed)` +
		`(\s*(/|,|-|or)\s*(none of (the above|these)|something else|not listed))?` +
		`(\s*\(.*\)|\s*:.*)?$`)

func isCatchAll(answer string) bool {
	a := strings.TrimRight(strings.ToLower(strings.TrimSpace(answer)), ".!")
	return catchAllPattern.MatchString(a)
}

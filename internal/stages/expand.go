package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/TNAHOM/project-x-ai-service/internal/logging"
	"github.com/TNAHOM/project-x-ai-service/internal/schema"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// Snippet is one pre-fetched research result. Content may be HTML.
type Snippet struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Content string `json:"content"`
}

// ExpandContext is the input of the expander stage. Research is fetched by
// the caller; the stage never goes to the network itself.
type ExpandContext struct {
	ChosenTask           *Task     `json:"chosen_task"`
	ClarificationAnswers any       `json:"clarification_answers,omitempty"`
	UserPrompt           string    `json:"user_prompt,omitempty"`
	UserMemory           any       `json:"user_memory,omitempty"`
	SearchSnippets       []Snippet `json:"search_snippets,omitempty"`
}

// Suggestion is one concrete execution parameter.
type Suggestion struct {
	Key       string `json:"key"`
	Value     any    `json:"value"`
	Rationale string `json:"rationale"`
}

// ExpandOutput is a task enriched for execution.
type ExpandOutput struct {
	ResearchSummary      string       `json:"research_summary"`
	Sources              []string     `json:"sources"`
	RiskFlags            []string     `json:"risk_flags"`
	RecommendedTools     []string     `json:"recommended_tools"`
	EnrichedContext      any          `json:"enriched_context"`
	ExecutionSuggestions []Suggestion `json:"execution_suggestions"`
}

// Expand enriches a chosen task with the supplied research. Sources are
// deduplicated by exact string and truncated to the configured maximum;
// recommended tools are limited to registered capabilities.
func (e *Executor) Expand(ctx context.Context, c ExpandContext) (_ *ExpandOutput, err error) {
	ctx, done := e.begin(ctx, schema.AgentExpander)
	defer func() { done(err) }()

	if c.ChosenTask == nil || strings.TrimSpace(c.ChosenTask.Name) == "" {
		return nil, &ContextIncomplete{Agent: schema.AgentExpander, Missing: []string{"chosen_task"}}
	}

	var out ExpandOutput
	vars := map[string]any{
		"chosen_task":           c.ChosenTask,
		"clarification_answers": c.ClarificationAnswers,
		"user_prompt":           c.UserPrompt,
		"user_memory":           c.UserMemory,
		"search_snippets":       renderSnippets(c.SearchSnippets),
		"capabilities":          e.caps.Names(),
		"max_sources":           e.maxSources,
	}
	if err := e.generate(ctx, schema.AgentExpander, "", nil, vars, &out); err != nil {
		return nil, err
	}

	out.Sources = dedupeSources(out.Sources, e.maxSources)
	out.RecommendedTools = e.caps.Filter(out.RecommendedTools)
	if out.RecommendedTools == nil {
		out.RecommendedTools = []string{}
	}
	if out.RiskFlags == nil {
		out.RiskFlags = []string{}
	}
	if out.ExecutionSuggestions == nil {
		out.ExecutionSuggestions = []Suggestion{}
	}
	return &out, nil
}

// dedupeSources keeps the first occurrence of each source, up to limit.
func dedupeSources(sources []string, limit int) []string {
	seen := make(map[string]bool, len(sources))
	out := make([]string, 0, min(len(sources), limit))
	for _, s := range sources {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}

// renderSnippets turns snippets into markdown blocks for the prompt.
func renderSnippets(snippets []Snippet) []string {
	if len(snippets) == 0 {
		return nil
	}
	conv := md.NewConverter("", true, nil)
	out := make([]string, 0, len(snippets))
	for _, s := range snippets {
		body := s.Content
		if strings.Contains(body, "<") {
			converted, err := conv.ConvertString(body)
			if err != nil {
				logging.StagesDebug("snippet %q kept as text: %v", s.URL, err)
			} else {
				body = converted
			}
		}
		header := strings.TrimSpace(s.Title)
		if s.URL != "" {
			header = strings.TrimSpace(fmt.Sprintf("%s (%s)", header, s.URL))
		}
		if header != "" {
			body = header + "\n" + body
		}
		out = append(out, strings.TrimSpace(body))
	}
	return out
}

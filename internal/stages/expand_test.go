package stages

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandDedupesCapsAndFilters(t *testing.T) {
	port := newStubPort().on("expand", `{
		"research_summary": "Track expenses weekly.",
		"sources": ["a", "b", "a", "c", "d", "e", "b", "f", "g", "h", "i", "j"],
		"risk_flags": ["shared spreadsheet exposes salary"],
		"recommended_tools": ["google sheet", "fax", "spreadsheet-edit", "Slack"],
		"enriched_context": {"currency": "EUR"},
		"execution_suggestions": [{"key": "spreadsheet_title", "value": "Budget 2026", "rationale": "year scoped"}]
	}`)
	e := newTestExecutor(port)

	out, err := e.Expand(context.Background(), ExpandContext{ChosenTask: &Task{Name: "Create a budget spreadsheet"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h"}, out.Sources)
	assert.Equal(t, []string{"spreadsheet-edit", "message-send"}, out.RecommendedTools)
	assert.Equal(t, map[string]any{"currency": "EUR"}, out.EnrichedContext)
	require.Len(t, out.ExecutionSuggestions, 1)
	assert.Equal(t, "Budget 2026", out.ExecutionSuggestions[0].Value)
}

func TestExpandMaxSourcesOption(t *testing.T) {
	port := newStubPort().on("expand", `{
		"research_summary": "", "sources": ["x", "y", "z"], "risk_flags": [],
		"recommended_tools": [], "execution_suggestions": []
	}`)
	out, err := newTestExecutor(port, WithMaxSources(2)).Expand(context.Background(), ExpandContext{ChosenTask: &Task{Name: "t"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, out.Sources)
	assert.Equal(t, 2, port.lastCall(t).Vars["max_sources"])
}

func TestExpandConvertsHTMLSnippets(t *testing.T) {
	port := newStubPort().on("expand", `{
		"research_summary": "", "sources": [], "risk_flags": [],
		"recommended_tools": [], "execution_suggestions": []
	}`)
	_, err := newTestExecutor(port).Expand(context.Background(), ExpandContext{
		ChosenTask: &Task{Name: "Draft an email"},
		SearchSnippets: []Snippet{
			{Title: "Budgeting 101", URL: "https://example.com/b", Content: "<h2>Zero-based</h2><p>Give every euro a <strong>job</strong>.</p>"},
			{Content: "plain text"},
		},
	})
	require.NoError(t, err)

	snippets := port.lastCall(t).Vars["search_snippets"].([]string)
	require.Len(t, snippets, 2)
	assert.Contains(t, snippets[0], "Budgeting 101 (https://example.com/b)")
	assert.Contains(t, snippets[0], "## Zero-based")
	assert.Contains(t, snippets[0], "**job**")
	assert.NotContains(t, snippets[0], "<p>")
	assert.Equal(t, "plain text", snippets[1])
}

func TestExpandRequiresTask(t *testing.T) {
	_, err := newTestExecutor(newStubPort()).Expand(context.Background(), ExpandContext{})

	var incomplete *ContextIncomplete
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, []string{"chosen_task"}, incomplete.Missing)
}

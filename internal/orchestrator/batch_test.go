package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/TNAHOM/project-x-ai-service/internal/stages"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const expandCalendar = `{
	"research_summary": "Weekly finance reviews work best early in the week.",
	"sources": ["https://example.com/reviews"],
	"risk_flags": ["attendees may be on leave"],
	"recommended_tools": ["calendar"],
	"enriched_context": null,
	"execution_suggestions": [
		{"key": "start_time", "value": "Friday 10:00", "rationale": "stated by the user"},
		{"key": "duration", "value": "30m", "rationale": "default review length"}
	]
}`

func TestExpandAndExecute(t *testing.T) {
	runner := &fakeRunner{ready: true}
	sink := &memorySink{}
	port := newStubPort().on("expand", expandCalendar)
	o := newTestOrchestrator(t, port, runner, sink)

	items, err := o.ExpandAndExecute(context.Background(), []string{
		"Schedule a meeting Friday at 10am with the finance team",
		"  ",
		"Decide whether to change careers",
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	booked := items[0]
	assert.Equal(t, "Schedule a meeting Friday at 10am with the finance team", booked.Title)
	assert.Equal(t, "calendar-create", booked.Type)
	assert.Equal(t, "Event created for Friday 10:00.", booked.Answer)
	assert.Equal(t, stages.ModeMCPAgent, booked.Mode)
	assert.Contains(t, booked.Contents, "Weekly finance reviews work best early in the week.")
	assert.Contains(t, booked.Contents, "- start_time: Friday 10:00")
	assert.Contains(t, booked.Contents, "Risks: attendees may be on leave")
	assert.Empty(t, booked.Error)

	skipped := items[1]
	assert.Equal(t, "Decide whether to change careers", skipped.Title)
	assert.Equal(t, stages.TypeNone, skipped.Type)
	assert.Contains(t, skipped.Contents, "human judgment")
	assert.Empty(t, skipped.Answer)

	require.Len(t, runner.instructions, 1)
	assert.Contains(t, runner.instructions[0], "calendar-create")

	var agents []string
	for _, e := range sink.all() {
		agents = append(agents, e.Agent)
	}
	assert.Equal(t, []string{"expander", "execute"}, agents)
}

func TestExpandAndExecuteRecordsItemErrors(t *testing.T) {
	port := newStubPort().on("expand", expandCalendar)
	o := newTestOrchestrator(t, port, &fakeRunner{ready: false}, nil)

	items, err := o.ExpandAndExecute(context.Background(), []string{"Send an email to the landlord about the repair"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "mail-send", items[0].Type)
	assert.Equal(t, "execute", items[0].FailedStep)
	assert.Contains(t, items[0].Error, stages.ErrSessionUnavailable.Error())
}

func TestExpandAndExecuteKeepsInputOrder(t *testing.T) {
	port := newStubPort().on("expand", expandCalendar)
	o := newTestOrchestrator(t, port, &fakeRunner{ready: true}, nil)

	tasks := []string{
		"Decide on a savings goal",
		"Schedule a call with the bank on Monday",
		"Reflect on spending habits",
		"Post an update to the team channel on Slack",
		"Think about a side job",
	}
	items, err := o.ExpandAndExecute(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, items, len(tasks))
	for i, item := range items {
		assert.Equal(t, tasks[i], item.Title)
	}
	assert.Equal(t, "calendar-create", items[1].Type)
	assert.Equal(t, "message-send", items[3].Type)
}

func TestExpandAndExecuteRejectsEmptyBatch(t *testing.T) {
	o := newTestOrchestrator(t, newStubPort(), nil, nil)
	_, err := o.ExpandAndExecute(context.Background(), []string{"", " "})
	assert.True(t, errors.Is(err, ErrMalformedRequest))
}

func TestClipCountsRunes(t *testing.T) {
	s := strings.Repeat("é", 5)
	assert.Equal(t, strings.Repeat("é", 3), clip(s, 3))
	assert.Equal(t, "abc", clip("abc", 10))
}

package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClarifyParamsAsksOnlyForMissing(t *testing.T) {
	port := newStubPort().on("clarify_automation", `{
		"need_more_context": true,
		"clarification_summary": "Email to the landlord about the repair.",
		"clarifying_questions": ["What should the email say about the repair?"]
	}`)
	e := newTestExecutor(port)

	out, err := e.ClarifyParams(context.Background(), ClarifyParamsContext{
		Task: &Task{Name: "Send an email to the landlord about the repair"},
	})
	require.NoError(t, err)
	assert.True(t, out.NeedMoreContext)
	assert.Equal(t, "mail-send", out.Capability)
	assert.Equal(t, []string{"body"}, out.Missing)
	assert.Equal(t, []string{"What should the email say about the repair?"}, out.ClarifyingQuestions)

	params := port.lastCall(t).Vars["missing_parameters"].([]missingParam)
	require.Len(t, params, 1)
	assert.Equal(t, "body", params[0].Name)
}

func TestClarifyParamsNothingMissingMeansNoQuestions(t *testing.T) {
	// the model over-asks; nothing is actually missing
	port := newStubPort().on("clarify_automation", `{
		"need_more_context": true,
		"clarification_summary": "All set.",
		"clarifying_questions": ["Are you sure?"]
	}`)
	out, err := newTestExecutor(port).ClarifyParams(context.Background(), ClarifyParamsContext{
		Task: &Task{Name: "Send an email to the landlord about the repair"},
		History: History{
			{"role": "user", "content": "Tell them saying the heater has been broken since Monday."},
		},
	})
	require.NoError(t, err)
	assert.False(t, out.NeedMoreContext)
	assert.NotNil(t, out.ClarifyingQuestions)
	assert.Empty(t, out.ClarifyingQuestions)
	assert.Empty(t, out.Missing)
}

func TestClarifyParamsFallsBackToRegistryQuestions(t *testing.T) {
	port := newStubPort().on("clarify_automation", `{
		"need_more_context": true,
		"clarification_summary": "Meeting needs details.",
		"clarifying_questions": []
	}`)
	out, err := newTestExecutor(port).ClarifyParams(context.Background(), ClarifyParamsContext{
		Task: &Task{Name: "Schedule a meeting", Description: "Friday at 10am"},
	})
	require.NoError(t, err)
	assert.Equal(t, "calendar-create", out.Capability)
	assert.Equal(t, []string{"title", "duration", "attendees"}, out.Missing)
	assert.Equal(t, []string{
		"What should the event be called?",
		"How long should it last?",
		"Who should be invited?",
	}, out.ClarifyingQuestions)
}

func TestClarifyParamsNonAutomatableTask(t *testing.T) {
	port := newStubPort().on("clarify_automation", `{
		"need_more_context": false,
		"clarification_summary": "This is a personal decision.",
		"clarifying_questions": []
	}`)
	out, err := newTestExecutor(port).ClarifyParams(context.Background(), ClarifyParamsContext{
		Task: &Task{Name: "Decide whether to move cities"},
	})
	require.NoError(t, err)
	assert.False(t, out.NeedMoreContext)
	assert.Empty(t, out.Capability)
	assert.Empty(t, out.ClarifyingQuestions)
}

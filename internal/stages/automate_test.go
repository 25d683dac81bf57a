package stages

import (
	"context"
	"errors"
	"testing"

	"github.com/TNAHOM/project-x-ai-service/internal/capability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const automatePlanRaw = `{
	"need_more_context": false,
	"clarifying_question": null,
	"automation_result": "Book the meeting; the career decision stays with the user.",
	"task_result": {"calendar": "Friday 10:00"}
}`

func TestAutomateCalendarOnlyRegistry(t *testing.T) {
	calendarOnly, err := capability.Default().Subset("calendar")
	require.NoError(t, err)

	port := newStubPort().on("automate", automatePlanRaw)
	e := newTestExecutor(port, WithCapabilities(calendarOnly))

	res, err := e.Automate(context.Background(), AutomateContext{Tasks: []Task{
		{Order: 0, Name: "Schedule a meeting Friday at 10am"},
		{Order: 1, Name: "Decide whether to change careers"},
	}})
	require.NoError(t, err)
	require.False(t, res.NeedsMoreContext())

	plan, ok := res.(AutomationPlan)
	require.True(t, ok)
	require.Len(t, plan.Tasks, 2)
	assert.True(t, plan.Tasks[0].Automated)
	assert.Equal(t, "calendar-create", plan.Tasks[0].Capability)
	assert.False(t, plan.Tasks[1].Automated)
	assert.Equal(t, "Book the meeting; the career decision stays with the user.", plan.Summary)
	assert.Equal(t, map[string]any{"calendar": "Friday 10:00"}, plan.TaskResult)

	assert.Equal(t, []string{"calendar-create"}, port.lastCall(t).Vars["capabilities"])
}

func TestAutomateVerdictIgnoresDataAvailability(t *testing.T) {
	task := Task{Name: "Send an email to the landlord about the repair"}

	for _, data := range []any{nil, map[string]any{"recipient": "landlord@example.com"}} {
		port := newStubPort().on("automate", automatePlanRaw)
		res, err := newTestExecutor(port).Automate(context.Background(), AutomateContext{Tasks: []Task{task}, Data: data})
		require.NoError(t, err)
		plan := res.(AutomationPlan)
		assert.True(t, plan.Tasks[0].Automated)
		assert.Equal(t, "mail-send", plan.Tasks[0].Capability)
	}
}

func TestAutomateNeedMoreContextArm(t *testing.T) {
	port := newStubPort().on("automate", `{
		"need_more_context": true,
		"clarifying_question": "Which calendar should the meeting go on?",
		"automation_result": null,
		"task_result": null
	}`)
	res, err := newTestExecutor(port).Automate(context.Background(), AutomateContext{Tasks: []Task{{Name: "Book a call"}}})
	require.NoError(t, err)

	need, ok := res.(NeedMoreContext)
	require.True(t, ok)
	assert.Equal(t, "Which calendar should the meeting go on?", need.Question)
	assert.JSONEq(t, `{"need_more_context": true, "clarifying_question": "Which calendar should the meeting go on?"}`, mustJSON(t, res))
}

func TestAutomateNeedMoreContextWithoutQuestionIsInvalid(t *testing.T) {
	port := newStubPort().on("automate", `{"need_more_context": true, "clarifying_question": null}`)
	_, err := newTestExecutor(port).Automate(context.Background(), AutomateContext{Tasks: []Task{{Name: "Book a call"}}})

	var invalidOut *StageOutputInvalid
	assert.True(t, errors.As(err, &invalidOut))
}

func TestAutomatePlanEnvelope(t *testing.T) {
	port := newStubPort().on("automate", automatePlanRaw)
	res, err := newTestExecutor(port).Automate(context.Background(), AutomateContext{Tasks: []Task{{Name: "Schedule a meeting"}}})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"need_more_context": false,
		"automation_result": "Book the meeting; the career decision stays with the user.",
		"tasks": [{"order": 0, "name": "Schedule a meeting", "description": "", "is_automated": true, "status": "",
			"capability": "calendar-create", "reason": "digital action for calendar-create"}],
		"task_result": {"calendar": "Friday 10:00"}
	}`, mustJSON(t, res))
}

func TestAutomateUnknownCapability(t *testing.T) {
	port := newStubPort()
	_, err := newTestExecutor(port).Automate(context.Background(), AutomateContext{
		Tasks:        []Task{{Name: "Book a call"}},
		Capabilities: []string{"fax"},
	})
	require.ErrorIs(t, err, capability.ErrCapabilityNotFound)
	assert.Zero(t, port.callCount())
}

// A task planned by Plan and re-classified by Automate keeps its verdict.
func TestPlanAndAutomateAgreeOnVerdicts(t *testing.T) {
	port := newStubPort().
		on("tasks", `{"overall_status": "completed", "research_summary": "s", "task": [
			{"name": "Create a budget spreadsheet", "description": "monthly categories"},
			{"name": "Email the bank about overdraft fees", "description": ""},
			{"name": "Reflect on impulse purchases", "description": ""}
		]}`).
		on("automate", automatePlanRaw)
	e := newTestExecutor(port)

	planned, err := e.Plan(context.Background(), planContext())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := e.Automate(context.Background(), AutomateContext{Tasks: planned.Tasks})
		require.NoError(t, err)
		for j, at := range res.(AutomationPlan).Tasks {
			assert.Equal(t, planned.Tasks[j].Automated, at.Automated, at.Name)
		}
	}
}

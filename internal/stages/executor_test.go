package stages

import (
	"context"
	"errors"
	"testing"

	"github.com/TNAHOM/project-x-ai-service/internal/generation"
	"github.com/TNAHOM/project-x-ai-service/internal/logging"
	"github.com/TNAHOM/project-x-ai-service/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStageFailuresAreLoggedWithAgent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := logging.UseCore(core)
	defer restore()

	port := newStubPort().fail("classify", &generation.BackendUnavailable{Backend: "fake", Cause: errors.New("503")})
	_, err := newTestExecutor(port).Classify(context.Background(), ClassifyContext{History: budgetingHistory})
	require.Error(t, err)

	failures := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, failures, 1)
	assert.Equal(t, "stages", failures[0].LoggerName)
	assert.Equal(t, "classifying", failures[0].ContextMap()["agent"])
	assert.Contains(t, failures[0].Message, "unavailable")
}

func TestStageOutcomesAreCounted(t *testing.T) {
	m := metrics.New()
	port := newStubPort().
		on("clarify", `{"is_problem_clear": true, "clarifying_question": null, "suggested_answers": []}`).
		on("classify", `{"domain": "nope"}`)
	e := newTestExecutor(port, WithMetrics(m))

	_, err := e.Clarify(context.Background(), ClarifyContext{UserPrompt: "hi"})
	require.NoError(t, err)
	_, err = e.Classify(context.Background(), ClassifyContext{History: budgetingHistory})
	require.Error(t, err)
	_, err = e.Classify(context.Background(), ClassifyContext{})
	require.Error(t, err)

	n, err := testutil.GatherAndCount(m.Registry(), "projectx_stage_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{&ContextIncomplete{Agent: "domain"}, "incomplete"},
		{&UnsupportedDomainType{Value: "x"}, "incomplete"},
		{&StageOutputInvalid{Agent: "domain"}, "invalid"},
		{&ExecutionTimeout{}, "timeout"},
		{ErrSessionUnavailable, "session_unavailable"},
		{&generation.RateLimited{}, "rate_limited"},
		{&generation.BackendUnavailable{}, "unavailable"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Outcome(tt.err))
	}
}

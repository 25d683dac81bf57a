package generation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/TNAHOM/project-x-ai-service/internal/metrics"
	"github.com/TNAHOM/project-x-ai-service/internal/prompt"
	"github.com/TNAHOM/project-x-ai-service/internal/schema"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T, backend Backend, opts ...Option) *Generator {
	t.Helper()
	lib, err := prompt.LoadEmbedded()
	require.NoError(t, err)
	return New(lib, backend, opts...)
}

func clarifyVars() map[string]any {
	return map[string]any{
		"history":     []map[string]string{{"role": "user", "content": "something's wrong"}},
		"user_prompt": "something's wrong",
	}
}

func TestGenerateReturnsValidatedJSON(t *testing.T) {
	backend := &fakeBackend{answers: []fakeAnswer{{
		text: "```json\n{\"is_problem_clear\": true, \"clarifying_question\": null, \"suggested_answers\": [],}\n```",
	}}}
	g := newTestGenerator(t, backend)

	raw, err := g.Generate(context.Background(), "clarify", clarifyVars(), schema.ClarifyShape())
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, true, out["is_problem_clear"])

	require.Equal(t, 1, backend.calls())
	req := backend.requests[0]
	assert.Equal(t, "clarify", req.TemplateID)
	assert.Contains(t, req.User, "something's wrong")
	assert.NotEmpty(t, req.System)
	assert.NotNil(t, req.Shape)
}

func TestGenerateShapeMismatch(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not json", "I think the problem is clear."},
		{"missing field", `{"is_problem_clear": false}`},
		{"wrong type", `{"is_problem_clear": "no", "clarifying_question": null, "suggested_answers": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(t, &fakeBackend{answers: []fakeAnswer{{text: tt.text}}})

			_, err := g.Generate(context.Background(), "clarify", clarifyVars(), schema.ClarifyShape())
			require.Error(t, err)

			var mismatch *ShapeMismatch
			require.True(t, errors.As(err, &mismatch))
			assert.Equal(t, "clarify", mismatch.TemplateID)
			assert.True(t, IsShapeMismatch(err))
			assert.False(t, IsTransient(err))
		})
	}
}

func TestGenerateAcceptsSemanticallyOddValues(t *testing.T) {
	// not clear but no question: structurally valid, stage invariants are not the port's concern
	g := newTestGenerator(t, &fakeBackend{answers: []fakeAnswer{{
		text: `{"is_problem_clear": false, "clarifying_question": null, "suggested_answers": []}`,
	}}})

	_, err := g.Generate(context.Background(), "clarify", clarifyVars(), schema.ClarifyShape())
	assert.NoError(t, err)
}

func TestGenerateMissingVariableSkipsBackend(t *testing.T) {
	backend := &fakeBackend{answers: []fakeAnswer{{text: `{}`}}}
	g := newTestGenerator(t, backend)

	_, err := g.Generate(context.Background(), "clarify", map[string]any{"history": nil}, schema.ClarifyShape())
	require.Error(t, err)

	var missing *prompt.MissingVariablesError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"user_prompt"}, missing.Missing)
	assert.Zero(t, backend.calls())
}

func TestGenerateRequiresShape(t *testing.T) {
	backend := &fakeBackend{}
	g := newTestGenerator(t, backend)

	_, err := g.Generate(context.Background(), "clarify", clarifyVars(), nil)
	require.Error(t, err)
	assert.Zero(t, backend.calls())
}

func TestGeneratePassesBackendErrorsThrough(t *testing.T) {
	limited := &RateLimited{Backend: "fake", Cause: errors.New("quota")}
	m := metrics.New()
	g := newTestGenerator(t, &fakeBackend{answers: []fakeAnswer{{err: limited}}}, WithMetrics(m))

	_, err := g.Generate(context.Background(), "clarify", clarifyVars(), schema.ClarifyShape())
	require.ErrorIs(t, err, limited)
	assert.True(t, IsTransient(err))

	n, err := testutil.GatherAndCount(m.Registry(), "projectx_generations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCompleteTrimsText(t *testing.T) {
	backend := &fakeBackend{answers: []fakeAnswer{{text: "  Meeting booked for Friday.\n"}}}
	g := newTestGenerator(t, backend)

	out, err := g.Complete(context.Background(), "execute", map[string]any{
		"title":       "Book meeting",
		"contents":    "Friday 10am with Sam",
		"capability":  nil,
		"payload":     nil,
		"instruction": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, "Meeting booked for Friday.", out)
	assert.Nil(t, backend.requests[0].Shape)
}

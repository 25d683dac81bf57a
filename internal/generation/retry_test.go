package generation

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TNAHOM/project-x-ai-service/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel fails with errs in order, then succeeds.
type scriptedModel struct {
	errs  []error
	calls atomic.Int32
}

func (s *scriptedModel) next() error {
	n := int(s.calls.Add(1))
	if n <= len(s.errs) {
		return s.errs[n-1]
	}
	return nil
}

func (s *scriptedModel) Generate(ctx context.Context, templateID string, vars map[string]any, shape *schema.Shape) (json.RawMessage, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func (s *scriptedModel) Complete(ctx context.Context, templateID string, vars map[string]any) (string, error) {
	if err := s.next(); err != nil {
		return "", err
	}
	return "done", nil
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestRetryingRecoversFromTransientErrors(t *testing.T) {
	model := &scriptedModel{errs: []error{
		&BackendUnavailable{Backend: "fake", Cause: errors.New("503")},
		&RateLimited{Backend: "fake", Cause: errors.New("429")},
	}}
	r := NewRetrying(model, fastPolicy(3))

	raw, err := r.Generate(context.Background(), "clarify", nil, schema.ClarifyShape())
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.EqualValues(t, 3, model.calls.Load())
}

func TestRetryingStopsAtMaxAttempts(t *testing.T) {
	unavailable := &BackendUnavailable{Backend: "fake", Cause: errors.New("timeout")}
	model := &scriptedModel{errs: []error{unavailable, unavailable, unavailable, unavailable}}
	r := NewRetrying(model, fastPolicy(3))

	_, err := r.Complete(context.Background(), "execute", nil)
	require.Error(t, err)

	var got *BackendUnavailable
	assert.True(t, errors.As(err, &got))
	assert.EqualValues(t, 3, model.calls.Load())
}

func TestRetryingDoesNotRetryPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"shape mismatch", &ShapeMismatch{TemplateID: "clarify", Cause: errors.New("missing field")}},
		{"rejected request", &BackendUnavailable{Backend: "fake", Permanent: true, Cause: errors.New("401")}},
		{"plain error", errors.New("template exploded")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedModel{errs: []error{tt.err}}
			r := NewRetrying(model, fastPolicy(5))

			_, err := r.Generate(context.Background(), "clarify", nil, schema.ClarifyShape())
			require.ErrorIs(t, err, tt.err)
			assert.EqualValues(t, 1, model.calls.Load())
		})
	}
}

func TestRetryingHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	unavailable := &BackendUnavailable{Backend: "fake", Cause: errors.New("timeout")}
	model := &scriptedModel{errs: []error{unavailable, unavailable, unavailable}}
	r := NewRetrying(model, RetryPolicy{MaxAttempts: 3, InitialInterval: time.Second, MaxInterval: time.Second})

	_, err := r.Generate(ctx, "clarify", nil, schema.ClarifyShape())
	require.Error(t, err)
	assert.LessOrEqual(t, model.calls.Load(), int32(1))
}

func TestNewRetryingClampsAttempts(t *testing.T) {
	model := &scriptedModel{errs: []error{&RateLimited{Backend: "fake", Cause: errors.New("429")}}}
	r := NewRetrying(model, fastPolicy(0))

	_, err := r.Complete(context.Background(), "execute", nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, model.calls.Load())
}

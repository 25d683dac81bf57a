package generation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/TNAHOM/project-x-ai-service/internal/logging"
	"github.com/TNAHOM/project-x-ai-service/internal/schema"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds retries of transient generation failures.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy returns sensible retry defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 2 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// Retrying wraps a Port and Completer with exponential backoff. Only
// BackendUnavailable and RateLimited are retried; ShapeMismatch and
// template errors return immediately.
type Retrying struct {
	next   Model
	policy RetryPolicy
}

// NewRetrying decorates next with policy.
func NewRetrying(next Model, policy RetryPolicy) *Retrying {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrying{next: next, policy: policy}
}

// Generate implements Port.
func (r *Retrying) Generate(ctx context.Context, templateID string, vars map[string]any, shape *schema.Shape) (json.RawMessage, error) {
	var out json.RawMessage
	err := r.do(ctx, templateID, func() error {
		var err error
		out, err = r.next.Generate(ctx, templateID, vars, shape)
		return err
	})
	return out, err
}

// Complete implements Completer.
func (r *Retrying) Complete(ctx context.Context, templateID string, vars map[string]any) (string, error) {
	var out string
	err := r.do(ctx, templateID, func() error {
		var err error
		out, err = r.next.Complete(ctx, templateID, vars)
		return err
	})
	return out, err
}

func (r *Retrying) do(ctx context.Context, templateID string, call func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.policy.InitialInterval
	eb.MaxInterval = r.policy.MaxInterval
	if r.policy.Multiplier > 0 {
		eb.Multiplier = r.policy.Multiplier
	}
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(eb, uint64(r.policy.MaxAttempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := call()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		logging.GenerationWarn("%s attempt %d/%d failed, retrying in %v: %v", templateID, attempt, r.policy.MaxAttempts, wait, err)
	})
}

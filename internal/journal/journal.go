// Package journal records stage invocations for later inspection. A journal
// is an observability sink: the pipeline writes to it and never reads it back.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/TNAHOM/project-x-ai-service/internal/config"
	"github.com/TNAHOM/project-x-ai-service/internal/logging"
)

// Entry is one recorded stage invocation.
type Entry struct {
	RunID      string          `json:"run_id"`
	Agent      string          `json:"agent"`
	Outcome    string          `json:"outcome"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	Output     json.RawMessage `json:"output,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Sink receives entries.
type Sink interface {
	Record(ctx context.Context, e Entry) error
	Close() error
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
func (Nop) Close() error                        { return nil }

// Multi fans every entry out to each sink. A failing sink does not stop
// the others.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open builds the sinks named by cfg. With neither a database path nor a
// NATS URL the journal is a Nop.
func Open(cfg config.JournalConfig) (Sink, error) {
	var sinks Multi
	if cfg.DatabasePath != "" {
		store, err := OpenStore(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, store)
	}
	if cfg.NATSURL != "" {
		pub, err := Connect(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, pub)
	}

	switch len(sinks) {
	case 0:
		logging.Get(logging.CategoryJournal).Debug("run journal disabled")
		return Nop{}, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}

package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TNAHOM/project-x-ai-service/internal/logging"

	"github.com/nats-io/nats.go"
)

// DefaultSubject prefixes every published entry.
const DefaultSubject = "projectx.stages"

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher publishes entries as JSON on <subject>.<agent>.
type Publisher struct {
	conn    conn
	subject string
}

// Connect dials the NATS server at url.
func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("project-x-ai-service"),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.JournalWarn("nats disconnected: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	logging.Get(logging.CategoryJournal).Info("publishing run journal to %s", nc.ConnectedUrl())
	return newPublisher(nc, subject), nil
}

func newPublisher(c conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: c, subject: subject}
}

// Subject returns the subject entries for agent are published on.
func (p *Publisher) Subject(agent string) string {
	return p.subject + "." + agent
}

func (p *Publisher) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	if err := p.conn.Publish(p.Subject(e.Agent), data); err != nil {
		return fmt.Errorf("publish journal entry: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}

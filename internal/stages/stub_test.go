package stages

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/TNAHOM/project-x-ai-service/internal/schema"

	"github.com/stretchr/testify/require"
)

// stubPort answers Generate from canned responses keyed by template id.
type stubPort struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []stubCall
}

type stubCall struct {
	TemplateID string
	Vars       map[string]any
}

func newStubPort() *stubPort {
	return &stubPort{responses: map[string]string{}, errs: map[string]error{}}
}

func (s *stubPort) on(templateID, raw string) *stubPort {
	s.responses[templateID] = raw
	return s
}

func (s *stubPort) fail(templateID string, err error) *stubPort {
	s.errs[templateID] = err
	return s
}

func (s *stubPort) Generate(ctx context.Context, templateID string, vars map[string]any, shape *schema.Shape) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, stubCall{TemplateID: templateID, Vars: vars})
	if err := s.errs[templateID]; err != nil {
		return nil, err
	}
	raw, ok := s.responses[templateID]
	if !ok {
		raw = "{}"
	}
	return json.RawMessage(raw), nil
}

func (s *stubPort) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubPort) lastCall(t *testing.T) stubCall {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.calls)
	return s.calls[len(s.calls)-1]
}

func newTestExecutor(port *stubPort, opts ...Option) *Executor {
	return New(port, schema.Default(nil), opts...)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func objectives(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "objective " + string(rune('A'+i))
	}
	return out
}

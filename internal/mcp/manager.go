package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TNAHOM/project-x-ai-service/internal/logging"
	"github.com/TNAHOM/project-x-ai-service/internal/metrics"
	"github.com/TNAHOM/project-x-ai-service/internal/stages"

	"golang.org/x/sync/singleflight"
)

// DefaultCloseTimeout bounds Close when the caller passes no timeout.
const DefaultCloseTimeout = 5 * time.Second

// ErrClosedDuringInit is returned by an Initialize that finished after Close.
var ErrClosedDuringInit = errors.New("tool sessions closed during initialization")

// State is the lifecycle state of a Manager.
type State int

const (
	StateUninitialized State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "uninitialized"
}

// SetupFunc opens a session set.
type SetupFunc func(ctx context.Context) (*SessionSet, error)

// AgentFactory builds the agent bound to a ready session set.
type AgentFactory func(ctx context.Context, sessions *SessionSet) (Agent, error)

// FromConfigFile returns a SetupFunc that reads an mcp_config.json file and
// dials every enabled server.
func FromConfigFile(path string, timeout time.Duration) SetupFunc {
	return func(ctx context.Context) (*SessionSet, error) {
		cfg, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		return Dial(ctx, cfg, timeout)
	}
}

// Manager owns the process's tool sessions. Concurrent first-time
// initialization collapses into a single setup; once Ready, the session set
// and the cached agent are shared read-only by every request.
type Manager struct {
	setup       SetupFunc
	newAgent    AgentFactory
	metrics     *metrics.Metrics
	initTimeout time.Duration

	group singleflight.Group

	mu       sync.RWMutex
	state    State
	sessions *SessionSet
	agent    Agent
	lastErr  error

	// epoch advances on every Close; a setup started in an older epoch
	// must not publish its session set.
	epoch uint64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerMetrics records readiness and initialization outcomes.
func WithManagerMetrics(m *metrics.Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithInitTimeout bounds session setup. Zero leaves it bound only by the
// caller's context.
func WithInitTimeout(d time.Duration) ManagerOption {
	return func(mgr *Manager) { mgr.initTimeout = d }
}

// NewManager creates an Uninitialized manager.
func NewManager(setup SetupFunc, newAgent AgentFactory, opts ...ManagerOption) *Manager {
	m := &Manager{setup: setup, newAgent: newAgent}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize opens the session set. A manager that is already Ready returns
// the live set without doing any setup. On failure the manager stays
// Uninitialized, records the error, and returns it; callers may continue
// in degraded mode.
func (m *Manager) Initialize(ctx context.Context) (*SessionSet, error) {
	m.mu.RLock()
	if m.state == StateReady {
		sessions := m.sessions
		m.mu.RUnlock()
		logging.Tools("tool sessions already initialized")
		return sessions, nil
	}
	m.mu.RUnlock()

	v, err, shared := m.group.Do("initialize", func() (any, error) {
		m.mu.RLock()
		if m.state == StateReady {
			sessions := m.sessions
			m.mu.RUnlock()
			return sessions, nil
		}
		epoch := m.epoch
		m.mu.RUnlock()

		setupCtx, cancel := ctx, context.CancelFunc(func() {})
		if m.initTimeout > 0 {
			setupCtx, cancel = context.WithTimeout(ctx, m.initTimeout)
		}
		timer := logging.StartTimer(logging.CategoryTools, "tool session initialize")
		sessions, err := m.setup(setupCtx)
		timer.Stop()
		if err != nil && errors.Is(setupCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("tool session initialization timed out after %v: %w", m.initTimeout, err)
		}
		cancel()

		m.mu.Lock()
		if err == nil && m.epoch != epoch {
			m.mu.Unlock()
			logging.ToolsWarn("tool sessions were closed while initializing, discarding the late session set")
			closeCtx, cancelClose := context.WithTimeout(context.WithoutCancel(ctx), DefaultCloseTimeout)
			defer cancelClose()
			if cerr := sessions.Close(closeCtx); cerr != nil {
				logging.ToolsWarn("closing late session set: %v", cerr)
			}
			return nil, ErrClosedDuringInit
		}
		defer m.mu.Unlock()
		if err != nil {
			m.lastErr = err
			m.metrics.ObserveSessionInit("error")
			logging.ToolsError("tool session initialization failed, continuing without tools: %v", err)
			return nil, err
		}
		m.state = StateReady
		m.sessions = sessions
		m.lastErr = nil
		m.metrics.ObserveSessionInit("ok")
		m.metrics.SetSessionReady(true)
		logging.Tools("tool sessions ready")
		return sessions, nil
	})
	if shared {
		logging.ToolsDebug("joined in-flight tool session initialization")
	}
	if err != nil {
		return nil, err
	}
	return v.(*SessionSet), nil
}

// Acquire returns the live session set.
func (m *Manager) Acquire() (*SessionSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady {
		return nil, ErrNotInitialized
	}
	return m.sessions, nil
}

// Agent returns the cached agent, building it on first use.
func (m *Manager) Agent(ctx context.Context) (Agent, error) {
	m.mu.RLock()
	if m.agent != nil {
		a := m.agent
		m.mu.RUnlock()
		return a, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.agent != nil {
		return m.agent, nil
	}
	if m.state != StateReady {
		return nil, fmt.Errorf("%w: %w", stages.ErrSessionUnavailable, ErrNotInitialized)
	}
	if m.newAgent == nil {
		return nil, fmt.Errorf("%w: no agent configured", stages.ErrSessionUnavailable)
	}
	a, err := m.newAgent(ctx, m.sessions)
	if err != nil {
		return nil, fmt.Errorf("%w: build tool agent: %w", stages.ErrSessionUnavailable, err)
	}
	m.agent = a
	return a, nil
}

// Ready reports whether the session set is live.
func (m *Manager) Ready() bool {
	return m.State() == StateReady
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastError returns the most recent initialization failure, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Status summarizes the manager for health reporting.
func (m *Manager) Status() ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch {
	case m.state == StateReady:
		return ServerStatusConnected
	case m.lastErr != nil:
		return ServerStatusError
	default:
		return ServerStatusDisconnected
	}
}

// Servers reports per-server state, or nil when not Ready.
func (m *Manager) Servers() []ServerState {
	sessions, err := m.Acquire()
	if err != nil {
		return nil
	}
	return sessions.Servers()
}

// Run sends instruction to the cached agent and returns its final answer.
func (m *Manager) Run(ctx context.Context, instruction string) (string, error) {
	a, err := m.Agent(ctx)
	if err != nil {
		return "", err
	}
	return a.Run(ctx, instruction)
}

// Close closes the session set, waiting at most timeout. Cleanup is detached
// from ctx: if ctx is cancelled mid-wait a warning is logged and cleanup
// continues until the timeout. The manager always ends Uninitialized.
func (m *Manager) Close(ctx context.Context, timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultCloseTimeout
	}

	m.mu.Lock()
	sessions := m.sessions
	wasReady := m.state == StateReady
	m.epoch++
	m.state = StateUninitialized
	m.sessions = nil
	m.agent = nil
	m.mu.Unlock()
	m.metrics.SetSessionReady(false)

	if !wasReady || sessions == nil {
		logging.ToolsWarn("close requested but tool sessions were not initialized")
		return
	}

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sessions.Close(cleanupCtx) }()

	select {
	case err := <-done:
		m.closed(err)
		return
	case <-cleanupCtx.Done():
		logging.ToolsWarn("closing tool sessions timed out after %v", timeout)
		return
	case <-ctx.Done():
		logging.ToolsWarn("shutdown cancelled while closing tool sessions, finishing cleanup: %v", ctx.Err())
	}

	select {
	case err := <-done:
		m.closed(err)
	case <-cleanupCtx.Done():
		logging.ToolsWarn("closing tool sessions timed out after %v", timeout)
	}
}

func (m *Manager) closed(err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.ToolsWarn("tool sessions closed with errors: %v", err)
		return
	}
	logging.Tools("tool sessions closed")
}

var _ stages.ToolRunner = (*Manager)(nil)

package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/TNAHOM/project-x-ai-service/internal/logging"

	"golang.org/x/sync/errgroup"
)

// toolSeparator joins server and tool names into a tool ID. Function-calling
// APIs reject '/' in names, so the double underscore is used instead.
const toolSeparator = "__"

// Tool is a tool discovered on one server of a session set.
type Tool struct {
	ID     string // server__tool
	Server string
	Schema ToolSchema
}

// ServerState is a point-in-time view of one server for health reporting.
type ServerState struct {
	Name    string       `json:"name"`
	Status  ServerStatus `json:"status"`
	Server  string       `json:"server,omitempty"`
	Version string       `json:"version,omitempty"`
}

// Toolbox is what the tool agent needs from a session set.
type Toolbox interface {
	Tools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, toolID string, args map[string]any) (*CallResult, error)
}

// SessionSet is the live connection set to every configured server.
type SessionSet struct {
	servers map[string]Transport

	toolsMu sync.Mutex
	tools   []Tool
}

// Dial builds transports from cfg and opens them.
func Dial(ctx context.Context, cfg *FileConfig, timeout time.Duration) (*SessionSet, error) {
	return Open(ctx, cfg.Transports(timeout))
}

// Open connects every transport concurrently and health-checks each with a
// ping. Any failure closes the transports already opened and fails the set.
func Open(ctx context.Context, transports map[string]Transport) (*SessionSet, error) {
	if len(transports) == 0 {
		return nil, ErrNoServers
	}

	timer := logging.StartTimer(logging.CategoryTools, "session set open")
	defer timer.Stop()

	g, gctx := errgroup.WithContext(ctx)
	for name, t := range transports {
		g.Go(func() error {
			if err := t.Connect(gctx); err != nil {
				return fmt.Errorf("connect %s: %w", name, err)
			}
			if err := t.Ping(gctx); err != nil {
				return fmt.Errorf("health check %s: %w", name, err)
			}
			logging.ToolsDebug("server %s ready", name)
			return nil
		})
	}

	set := &SessionSet{servers: transports}
	if err := g.Wait(); err != nil {
		if cerr := set.Close(context.WithoutCancel(ctx)); cerr != nil {
			logging.ToolsWarn("cleanup after failed open: %v", cerr)
		}
		return nil, err
	}

	logging.Tools("tool session set open: %s", strings.Join(set.Names(), ", "))
	return set, nil
}

// Names returns the server names in sorted order.
func (s *SessionSet) Names() []string {
	names := make([]string, 0, len(s.servers))
	for name := range s.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Servers reports the state of each server.
func (s *SessionSet) Servers() []ServerState {
	out := make([]ServerState, 0, len(s.servers))
	for _, name := range s.Names() {
		t := s.servers[name]
		state := ServerState{Name: name, Status: ServerStatusDisconnected}
		if t.IsConnected() {
			state.Status = ServerStatusConnected
		}
		info := t.Info()
		state.Server, state.Version = info.Name, info.Version
		out = append(out, state)
	}
	return out
}

// Tools discovers tools on every server. The result is cached for the life
// of the set.
func (s *SessionSet) Tools(ctx context.Context) ([]Tool, error) {
	s.toolsMu.Lock()
	defer s.toolsMu.Unlock()
	if s.tools != nil {
		return s.tools, nil
	}

	var mu sync.Mutex
	var tools []Tool
	g, gctx := errgroup.WithContext(ctx)
	for name, t := range s.servers {
		g.Go(func() error {
			schemas, err := t.ListTools(gctx)
			if err != nil {
				return fmt.Errorf("discover tools on %s: %w", name, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, schema := range schemas {
				tools = append(tools, Tool{ID: toolID(name, schema.Name), Server: name, Schema: schema})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(tools, func(i, j int) bool { return tools[i].ID < tools[j].ID })
	if tools == nil {
		tools = []Tool{}
	}
	s.tools = tools
	logging.Tools("discovered %d tools across %d servers", len(tools), len(s.servers))
	return tools, nil
}

// CallTool invokes a tool by its server__tool ID.
func (s *SessionSet) CallTool(ctx context.Context, id string, args map[string]any) (*CallResult, error) {
	server, name := parseToolID(id)
	if server == "" {
		return nil, fmt.Errorf("invalid tool ID: %s", id)
	}
	t, ok := s.servers[server]
	if !ok || !t.IsConnected() {
		return &CallResult{
			Success: false,
			Error:   fmt.Sprintf("MCP server %s is not connected", server),
		}, nil
	}

	result, err := t.CallTool(ctx, name, args)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", id, err)
	}
	logging.ToolsDebug("%s success=%t in %dms", id, result.Success, result.LatencyMs)
	return result, nil
}

// Close closes every transport concurrently. All transports are attempted
// even when some fail; the failures are joined.
func (s *SessionSet) Close(ctx context.Context) error {
	var mu sync.Mutex
	var errs []error
	var wg sync.WaitGroup
	for name, t := range s.servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := t.Close(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func toolID(server, tool string) string {
	return server + toolSeparator + tool
}

// parseToolID splits a tool ID at its first separator.
func parseToolID(id string) (server, tool string) {
	server, tool, ok := strings.Cut(id, toolSeparator)
	if !ok || server == "" || tool == "" {
		return "", id
	}
	return server, tool
}

var _ Toolbox = (*SessionSet)(nil)

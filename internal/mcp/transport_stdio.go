package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/TNAHOM/project-x-ai-service/internal/logging"
)

// maxMessageSize bounds one newline-delimited JSON-RPC message.
const maxMessageSize = 4 * 1024 * 1024

// StdioTransport implements Transport over a subprocess's stdin and stdout.
type StdioTransport struct {
	mu sync.Mutex

	command string
	args    []string
	env     map[string]string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	connected bool
	info      ServerInfo

	pending map[int64]chan *rpcResponse
	nextID  int64

	wg sync.WaitGroup
}

// NewStdioTransport creates a new stdio transport. env is added to the
// parent's environment.
func NewStdioTransport(command string, args []string, env map[string]string) *StdioTransport {
	return &StdioTransport{
		command: command,
		args:    args,
		env:     env,
		pending: make(map[int64]chan *rpcResponse),
		nextID:  1,
	}
}

// Connect starts the subprocess and the reader loops, then performs the
// initialize handshake. The process outlives ctx; only the handshake is bound by it.
func (t *StdioTransport) Connect(ctx context.Context) error {
	if err := t.start(); err != nil {
		return err
	}

	resp, err := t.call(ctx, "initialize", initializeParams())
	if err != nil {
		_ = t.Close(context.WithoutCancel(ctx))
		return fmt.Errorf("initialize %s: %w", t.command, err)
	}

	t.mu.Lock()
	t.info = parseInitialize(resp.Result)
	t.mu.Unlock()

	if err := t.write(rpcRequest{JSONRPC: "2.0", Method: "notifications/initialized"}); err != nil {
		logging.ToolsWarn("initialized notification to %s failed: %v", t.command, err)
	}
	logging.Tools("MCP stdio transport started %s (%s %s)", t.command, t.info.Name, t.info.Version)
	return nil
}

func (t *StdioTransport) start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}
	if t.command == "" {
		return fmt.Errorf("empty command for stdio transport")
	}

	t.cmd = exec.Command(t.command, t.args...)
	if len(t.env) > 0 {
		t.cmd.Env = append(os.Environ(), envList(t.env)...)
	}

	var err error
	if t.stdin, err = t.cmd.StdinPipe(); err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	if t.stdout, err = t.cmd.StdoutPipe(); err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if t.stderr, err = t.cmd.StderrPipe(); err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := t.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start command %s: %w", t.command, err)
	}

	t.connected = true
	t.wg.Add(2)
	go t.readStderr(t.stderr)
	go t.readStdout(t.stdout)
	return nil
}

// Close kills the process and waits for the reader loops, bounded by ctx.
func (t *StdioTransport) Close(ctx context.Context) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false

	if t.stdin != nil {
		_ = t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	cmd := t.cmd
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		if cmd != nil {
			_ = cmd.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		logging.Tools("MCP stdio transport %s stopped", t.command)
		return nil
	case <-ctx.Done():
		logging.ToolsWarn("timeout waiting for %s to exit: %v", t.command, ctx.Err())
		return ctx.Err()
	}
}

func (t *StdioTransport) readStderr(r io.Reader) {
	defer t.wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logging.ToolsDebug("[%s stderr] %s", t.command, scanner.Text())
	}
}

// readStdout dispatches responses to their waiting callers.
func (t *StdioTransport) readStdout(r io.Reader) {
	defer t.wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			logging.ToolsWarn("failed to parse JSON from %s: %v", t.command, err)
			continue
		}
		if resp.ID == nil {
			logging.ToolsDebug("notification from %s: %s", t.command, truncate(string(line), 200))
			continue
		}

		t.mu.Lock()
		ch, ok := t.pending[*resp.ID]
		if ok {
			delete(t.pending, *resp.ID)
			ch <- &resp
		} else {
			logging.ToolsWarn("response for unknown id %d from %s", *resp.ID, t.command)
		}
		t.mu.Unlock()
	}

	if err := scanner.Err(); err != nil && t.IsConnected() {
		logging.ToolsError("error reading stdout of %s: %v", t.command, err)
	}

	// process gone: fail whoever is still waiting
	t.mu.Lock()
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.mu.Unlock()
}

func (t *StdioTransport) write(req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return ErrNotConnected
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write to stdin: %w", err)
	}
	return nil
}

// call sends a request and waits for its response.
func (t *StdioTransport) call(ctx context.Context, method string, params any) (*rpcResponse, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, ErrNotConnected
	}
	id := t.nextID
	t.nextID++
	ch := make(chan *rpcResponse, 1)
	t.pending[id] = ch
	t.mu.Unlock()

	if err := t.write(rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		t.forget(id)
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok || resp == nil {
			return nil, errors.New("connection closed")
		}
		if resp.Error != nil {
			return resp, resp.Error
		}
		return resp, nil
	case <-ctx.Done():
		t.forget(id)
		return nil, ctx.Err()
	}
}

func (t *StdioTransport) forget(id int64) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// ListTools retrieves available tools from the server.
func (t *StdioTransport) ListTools(ctx context.Context) ([]ToolSchema, error) {
	resp, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	var result struct {
		Tools []ToolSchema `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tools response: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes a tool on the MCP server.
func (t *StdioTransport) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	start := time.Now()
	resp, err := t.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		var rpcErr *rpcError
		if errors.As(err, &rpcErr) {
			return &CallResult{Success: false, Error: rpcErr.Message, LatencyMs: latencyMs}, nil
		}
		return nil, err
	}
	return callToolResult(resp.Result, latencyMs), nil
}

// Ping checks if the server is responsive.
func (t *StdioTransport) Ping(ctx context.Context) error {
	_, err := t.call(ctx, "ping", nil)
	return err
}

// Info returns what the server reported during the handshake.
func (t *StdioTransport) Info() ServerInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

// IsConnected returns current connection status.
func (t *StdioTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

var _ Transport = (*StdioTransport)(nil)

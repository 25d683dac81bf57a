package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TNAHOM/project-x-ai-service/internal/logging"
)

// sessionHeader carries the server-assigned session on streamable HTTP servers.
const sessionHeader = "Mcp-Session-Id"

// HTTPTransport implements Transport over HTTP POST. Responses may be plain
// JSON or a single-message event stream.
type HTTPTransport struct {
	mu sync.RWMutex

	baseURL   string
	headers   map[string]string
	client    *http.Client
	connected bool
	session   string
	info      ServerInfo

	nextID atomic.Int64
}

// NewHTTPTransport creates a new HTTP transport for MCP communication.
func NewHTTPTransport(baseURL string, headers map[string]string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		baseURL: baseURL,
		headers: headers,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Connect performs the initialize handshake.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	resp, session, err := t.post(ctx, "initialize", initializeParams(), "")
	if err != nil {
		return fmt.Errorf("failed to connect to MCP server at %s: %w", t.baseURL, err)
	}

	t.mu.Lock()
	t.info = parseInitialize(resp.Result)
	t.session = session
	t.connected = true
	t.mu.Unlock()

	if err := t.notify(ctx, "notifications/initialized"); err != nil {
		logging.ToolsDebug("initialized notification to %s failed: %v", t.baseURL, err)
	}
	logging.Tools("MCP HTTP transport connected to %s (%s %s)", t.baseURL, t.info.Name, t.info.Version)
	return nil
}

// Close forgets the session. HTTP servers hold no per-client resources we can release.
func (t *HTTPTransport) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil
	}
	t.connected = false
	t.session = ""
	logging.Tools("MCP HTTP transport disconnected from %s", t.baseURL)
	return nil
}

// ListTools retrieves available tools from the server.
func (t *HTTPTransport) ListTools(ctx context.Context) ([]ToolSchema, error) {
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

	logging.ToolsDebug("MCP server %s returned %d tools", t.baseURL, len(result.Tools))
	return result.Tools, nil
}

// CallTool invokes a tool on the MCP server.
func (t *HTTPTransport) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
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
func (t *HTTPTransport) Ping(ctx context.Context) error {
	_, err := t.call(ctx, "ping", nil)
	if err == nil {
		return nil
	}
	var rpcErr *rpcError
	if !errors.As(err, &rpcErr) {
		return err
	}

	// Servers that predate ping: fall back to a plain health GET.
	req, err2 := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(t.baseURL, "/")+"/health", nil)
	if err2 != nil {
		return err
	}
	resp, err2 := t.client.Do(req)
	if err2 != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}

// Info returns what the server reported during the handshake.
func (t *HTTPTransport) Info() ServerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info
}

// IsConnected returns current connection status.
func (t *HTTPTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// call makes a JSON-RPC call on the established session. JSON-RPC errors are
// returned as *rpcError.
func (t *HTTPTransport) call(ctx context.Context, method string, params any) (*rpcResponse, error) {
	t.mu.RLock()
	connected, session := t.connected, t.session
	t.mu.RUnlock()
	if !connected {
		return nil, ErrNotConnected
	}
	resp, _, err := t.post(ctx, method, params, session)
	return resp, err
}

func (t *HTTPTransport) notify(ctx context.Context, method string) error {
	t.mu.RLock()
	session := t.session
	t.mu.RUnlock()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method})
	if err != nil {
		return err
	}
	httpResp, err := t.do(ctx, body, session)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()
	_, _ = io.Copy(io.Discard, httpResp.Body)
	if httpResp.StatusCode >= 400 {
		return fmt.Errorf("server returned status %d", httpResp.StatusCode)
	}
	return nil
}

func (t *HTTPTransport) post(ctx context.Context, method string, params any, session string) (*rpcResponse, string, error) {
	id := t.nextID.Add(1)
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      &id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpResp, err := t.do(ctx, body, session)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, "", fmt.Errorf("server returned status %d: %s", httpResp.StatusCode, truncate(string(bodyBytes), 200))
	}

	resp, err := decodeResponse(httpResp)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Error != nil {
		return resp, "", resp.Error
	}
	return resp, httpResp.Header.Get(sessionHeader), nil
}

func (t *HTTPTransport) do(ctx context.Context, body []byte, session string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	if session != "" {
		req.Header.Set(sessionHeader, session)
	}
	return t.client.Do(req)
}

// decodeResponse reads a JSON body or the first data event of a stream.
func decodeResponse(httpResp *http.Response) (*rpcResponse, error) {
	mediaType, _, _ := mime.ParseMediaType(httpResp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		var resp rpcResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var msg rpcResponse
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &msg); err != nil {
			return nil, err
		}
		if msg.ID == nil {
			// server notification on the stream
			continue
		}
		return &msg, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.ErrUnexpectedEOF
}

var _ Transport = (*HTTPTransport)(nil)

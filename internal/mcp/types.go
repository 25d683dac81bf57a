// Package mcp manages the service's sessions with external tool servers
// speaking the Model Context Protocol, and the agent that drives them.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ServerStatus represents the connection status of an MCP server.
type ServerStatus string

const (
	ServerStatusConnected    ServerStatus = "connected"
	ServerStatusDisconnected ServerStatus = "disconnected"
	ServerStatusError        ServerStatus = "error"
)

// Protocol represents the MCP transport protocol.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolStdio Protocol = "stdio"
)

// protocolVersion is sent in the initialize handshake.
const protocolVersion = "2024-11-05"

var (
	// ErrNotInitialized is returned when no session set is live.
	ErrNotInitialized = errors.New("tool sessions not initialized")

	// ErrNotConnected is returned by transports used before Connect or after Close.
	ErrNotConnected = errors.New("not connected to MCP server")

	// ErrNoServers is returned when the configuration names no servers.
	ErrNoServers = errors.New("no MCP servers configured")
)

// ToolSchema is a tool as advertised by tools/list.
type ToolSchema struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// ServerInfo is what a server reports about itself during initialize.
type ServerInfo struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	ProtocolVersion string `json:"protocolVersion,omitempty"`
}

// CallResult represents the result of a tool call.
type CallResult struct {
	Success   bool            `json:"success"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	LatencyMs int64           `json:"latency_ms"`
}

// Text flattens the text content blocks of a tools/call result. Results
// without content blocks are returned as raw JSON.
func (r *CallResult) Text() string {
	if r == nil {
		return ""
	}
	if !r.Success {
		return r.Error
	}
	var body struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(r.Output, &body); err != nil || len(body.Content) == 0 {
		return string(r.Output)
	}
	parts := make([]string, 0, len(body.Content))
	for _, c := range body.Content {
		if c.Type == "text" || c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Transport is a connection to one MCP server.
type Transport interface {
	// Connect opens the connection and performs the initialize handshake.
	Connect(ctx context.Context) error

	// Close releases the connection. It is safe to call more than once.
	Close(ctx context.Context) error

	// ListTools returns the server's tools.
	ListTools(ctx context.Context) ([]ToolSchema, error)

	// CallTool invokes a tool. Tool-level failures are reported in the
	// result; the error is reserved for transport failures.
	CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error)

	// Ping checks if the server is responsive.
	Ping(ctx context.Context) error

	// Info returns what the server reported during the handshake.
	Info() ServerInfo

	IsConnected() bool
}

// rpcRequest represents a JSON-RPC request. A nil ID makes it a notification.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents an error in a JSON-RPC response.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func initializeParams() map[string]any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]string{
			"name":    "project-x-ai-service",
			"version": "1.0.0",
		},
	}
}

// parseInitialize extracts the server info from an initialize result.
func parseInitialize(raw json.RawMessage) ServerInfo {
	var result struct {
		ProtocolVersion string     `json:"protocolVersion"`
		ServerInfo      ServerInfo `json:"serverInfo"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return ServerInfo{}
	}
	info := result.ServerInfo
	info.ProtocolVersion = result.ProtocolVersion
	return info
}

// callToolResult turns a tools/call result into a CallResult, honouring the
// isError flag servers use for tool-level failures.
func callToolResult(raw json.RawMessage, latencyMs int64) *CallResult {
	var flag struct {
		IsError bool `json:"isError"`
	}
	_ = json.Unmarshal(raw, &flag)
	if flag.IsError {
		failed := &CallResult{Success: true, Output: raw}
		return &CallResult{Success: false, Output: raw, Error: failed.Text(), LatencyMs: latencyMs}
	}
	return &CallResult{Success: true, Output: raw, LatencyMs: latencyMs}
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

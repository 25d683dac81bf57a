package mcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"go.uber.org/goleak"
)

const helperEnv = "PROJECTX_MCP_STDIO_HELPER"

func TestMain(m *testing.M) {
	// The test binary doubles as a stdio MCP server for the stdio transport tests.
	switch os.Getenv(helperEnv) {
	case "1":
		serveStdio()
		os.Exit(0)
	case "silent":
		// reads requests and never answers
		_, _ = io.Copy(io.Discard, os.Stdin)
		os.Exit(0)
	}
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// rpcHandler answers the subset of MCP the tests exercise.
func rpcHandler(method string, params json.RawMessage) (any, *rpcError) {
	switch method {
	case "initialize":
		return map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]string{"name": "mock-server", "version": "1.0.0"},
		}, nil
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return map[string]any{
			"tools": []map[string]any{
				{
					"name":        "echo",
					"description": "Echoes its text argument",
					"inputSchema": map[string]any{
						"type":       "object",
						"properties": map[string]any{"text": map[string]string{"type": "string"}},
						"required":   []string{"text"},
					},
				},
				{
					"name":        "fail",
					"description": "Always fails",
					"inputSchema": map[string]any{"type": "object"},
				},
			},
		}, nil
	case "tools/call":
		var p struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &rpcError{Code: -32700, Message: "Parse error"}
		}
		switch p.Name {
		case "echo":
			return map[string]any{
				"content": []map[string]string{{"type": "text", "text": fmt.Sprint(p.Arguments["text"])}},
			}, nil
		case "fail":
			return map[string]any{
				"content": []map[string]string{{"type": "text", "text": "calendar is read-only"}},
				"isError": true,
			}, nil
		}
		return nil, &rpcError{Code: -32602, Message: "Unknown tool: " + p.Name}
	}
	return nil, &rpcError{Code: -32601, Message: "Method not found"}
}

// headerLog records the session header of every request.
type headerLog struct {
	mu     sync.Mutex
	values []string
}

func (h *headerLog) add(v string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values = append(h.values, v)
}

func (h *headerLog) all() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.values...)
}

// mockServerHandler serves rpcHandler over HTTP. sse switches responses to an event stream.
func mockServerHandler(sse bool, sessions *headerLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     *int64          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		if sessions != nil {
			sessions.add(r.Header.Get(sessionHeader))
		}
		if req.ID == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}

		result, rpcErr := rpcHandler(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": *req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		if req.Method == "initialize" {
			w.Header().Set(sessionHeader, "session-1")
		}

		if sse {
			w.Header().Set("Content-Type", "text/event-stream")
			data, _ := json.Marshal(resp)
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func serveStdio() {
	scanner := bufio.NewScanner(os.Stdin)
	out := json.NewEncoder(os.Stdout)
	for scanner.Scan() {
		var req struct {
			ID     *int64          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil || req.ID == nil {
			continue
		}
		fmt.Fprintf(os.Stderr, "handling %s\n", req.Method)
		result, rpcErr := rpcHandler(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": *req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		_ = out.Encode(resp)
	}
}

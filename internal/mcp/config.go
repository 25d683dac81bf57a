package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// ServerConfig is one entry of the mcpServers map. Command servers are
// launched as subprocesses speaking JSON-RPC over stdio; URL servers are
// reached over HTTP.
type ServerConfig struct {
	Command  string            `json:"command,omitempty"`
	Args     []string          `json:"args,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	URL      string            `json:"url,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Disabled bool              `json:"disabled,omitempty"`
}

// Protocol reports how the server is reached.
func (c ServerConfig) Protocol() Protocol {
	if c.URL != "" {
		return ProtocolHTTP
	}
	return ProtocolStdio
}

// FileConfig is the mcp_config.json document.
type FileConfig struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// LoadConfig reads an mcp_config.json file. ${VAR} references in commands,
// args, env values, URLs and headers are expanded from the environment.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read MCP config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses an mcp_config.json document.
func ParseConfig(data []byte) (*FileConfig, error) {
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse MCP config: %w", err)
	}
	for name, server := range cfg.Servers {
		if server.Command == "" && server.URL == "" {
			return nil, fmt.Errorf("MCP server %q: either command or url is required", name)
		}
		if server.Command != "" && server.URL != "" {
			return nil, fmt.Errorf("MCP server %q: command and url are mutually exclusive", name)
		}
		cfg.Servers[name] = server.expand()
	}
	return &cfg, nil
}

// Enabled returns the names of enabled servers in sorted order.
func (c *FileConfig) Enabled() []string {
	names := make([]string, 0, len(c.Servers))
	for name, server := range c.Servers {
		if !server.Disabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Transports builds one unconnected transport per enabled server.
func (c *FileConfig) Transports(timeout time.Duration) map[string]Transport {
	out := make(map[string]Transport)
	for _, name := range c.Enabled() {
		server := c.Servers[name]
		switch server.Protocol() {
		case ProtocolHTTP:
			out[name] = NewHTTPTransport(server.URL, server.Headers, timeout)
		default:
			out[name] = NewStdioTransport(server.Command, server.Args, server.Env)
		}
	}
	return out
}

func (c ServerConfig) expand() ServerConfig {
	c.Command = os.ExpandEnv(c.Command)
	c.URL = os.ExpandEnv(c.URL)
	if len(c.Args) > 0 {
		args := make([]string, len(c.Args))
		for i, a := range c.Args {
			args[i] = os.ExpandEnv(a)
		}
		c.Args = args
	}
	c.Env = expandMap(c.Env)
	c.Headers = expandMap(c.Headers)
	return c
}

func expandMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return m
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = os.ExpandEnv(v)
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Generation backend
	LLM LLMConfig `yaml:"llm"`

	// Caller-side retry policy wrapped around the generation port
	Retry RetryConfig `yaml:"retry"`

	// Stage pipeline settings
	Pipeline PipelineConfig `yaml:"pipeline"`

	// External tool sessions (MCP)
	Tools ToolsConfig `yaml:"tools"`

	// Prompt template overrides
	Prompts PromptsConfig `yaml:"prompts"`

	// HTTP server
	Server ServerConfig `yaml:"server"`

	// Run journal sinks
	Journal JournalConfig `yaml:"journal"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Research provider key; snippets are fetched by collaborators, not by this service.
	PerplexityAPIKey string `yaml:"pplx_api_key,omitempty"`
}

// PipelineConfig configures stage-level behaviour.
type PipelineConfig struct {
	AllowedDomains []string `yaml:"allowed_domains"`
	MaxSources     int      `yaml:"max_sources"`
}

// PromptsConfig configures template overrides.
type PromptsConfig struct {
	OverrideDir string `yaml:"override_dir"`
	Watch       bool   `yaml:"watch"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	MaxConnections  int    `yaml:"max_connections"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// JournalConfig configures where stage invocations are recorded.
// Both sinks are optional; an empty config disables the journal.
type JournalConfig struct {
	DatabasePath string `yaml:"database_path"`
	NATSURL      string `yaml:"nats_url"`
	NATSSubject  string `yaml:"nats_subject"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "project-x-ai-service",
		Version: "1.0.0",

		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-2.5-flash",
			Timeout:     "300s",
			Temperature: 0.1,
		},

		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: "2s",
			MaxInterval:     "30s",
			Multiplier:      2.0,
		},

		Pipeline: PipelineConfig{
			AllowedDomains: []string{"finance", "personal", "professional"},
			MaxSources:     8,
		},

		Tools: ToolsConfig{
			Enabled:       true,
			MCPConfigPath: "config/mcp_config.json",
			InitTimeout:   "60s",
			ExecTimeout:   "400s",
			CloseTimeout:  "5s",
			MaxSteps:      30,
			Temperature:   0.7,
		},

		Server: ServerConfig{
			Addr:            ":8000",
			MaxConnections:  256,
			ReadTimeout:     "30s",
			WriteTimeout:    "420s",
			ShutdownTimeout: "10s",
		},

		Journal: JournalConfig{
			NATSSubject: "projectx.stages",
		},

		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			File:       "logs/app.log",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overwriting variables that are already set.
// Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Gemini key under either name; GOOGLE_API_KEY is what the genai SDK documents.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.Provider == "gemini" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" && c.LLM.Provider == "gemini" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && c.LLM.Provider == "anthropic" {
		c.LLM.APIKey = key
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		c.LLM.Provider = strings.ToLower(provider)
		switch c.LLM.Provider {
		case "gemini":
			c.LLM.APIKey = firstNonEmpty(os.Getenv("GOOGLE_API_KEY"), os.Getenv("GEMINI_API_KEY"), c.LLM.APIKey)
		case "anthropic":
			c.LLM.APIKey = firstNonEmpty(os.Getenv("ANTHROPIC_API_KEY"), c.LLM.APIKey)
		}
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}

	if key := firstNonEmpty(os.Getenv("GOOGLE_API_KEY"), os.Getenv("GEMINI_API_KEY")); key != "" && c.Tools.APIKey == "" {
		c.Tools.APIKey = key
	}

	if path := os.Getenv("MCP_CONFIG_PATH"); path != "" {
		c.Tools.MCPConfigPath = path
	}
	if key := os.Getenv("PPLX_API_KEY"); key != "" {
		c.PerplexityAPIKey = key
	}
	if addr := os.Getenv("PROJECTX_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if path := os.Getenv("PROJECTX_DB"); path != "" {
		c.Journal.DatabasePath = path
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		c.Journal.NATSURL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDuration returns fallback when s is empty or malformed.
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetLLMTimeout returns the generation timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 300*time.Second)
}

// GetInitTimeout returns the bound on tool session startup.
func (c *Config) GetInitTimeout() time.Duration {
	return parseDuration(c.Tools.InitTimeout, 60*time.Second)
}

// GetExecTimeout returns the per-request tool execution timeout.
func (c *Config) GetExecTimeout() time.Duration {
	return parseDuration(c.Tools.ExecTimeout, 400*time.Second)
}

// GetCloseTimeout returns the bound on tool session shutdown.
func (c *Config) GetCloseTimeout() time.Duration {
	return parseDuration(c.Tools.CloseTimeout, 5*time.Second)
}

// GetShutdownTimeout returns the HTTP graceful shutdown bound.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

// GetReadTimeout returns the HTTP read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the HTTP write timeout. It must outlast the tool execution timeout.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 420*time.Second)
}

// ValidProviders lists all supported generation providers.
var ValidProviders = []string{"gemini", "anthropic"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GOOGLE_API_KEY or ANTHROPIC_API_KEY)")
	}

	if len(c.Pipeline.AllowedDomains) == 0 {
		return fmt.Errorf("pipeline.allowed_domains must not be empty")
	}
	if c.Pipeline.MaxSources <= 0 {
		return fmt.Errorf("pipeline.max_sources must be positive, got %d", c.Pipeline.MaxSources)
	}
	if c.Tools.MaxSteps <= 0 {
		return fmt.Errorf("tools.max_steps must be positive, got %d", c.Tools.MaxSteps)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}

	return nil
}

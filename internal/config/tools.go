package config

// ToolsConfig configures the external tool session layer.
type ToolsConfig struct {
	// Enabled=false skips session initialization; Execute falls back to plain completion.
	Enabled bool `yaml:"enabled"`

	// Path to the mcpServers JSON file.
	MCPConfigPath string `yaml:"mcp_config_path"`

	// Bound on connecting and health-checking every server at startup.
	InitTimeout string `yaml:"init_timeout"`

	// Overall bound on one tool-backed execution.
	ExecTimeout string `yaml:"exec_timeout"`

	// Bound on closing every session at shutdown.
	CloseTimeout string `yaml:"close_timeout"`

	// Step budget of the tool agent loop.
	MaxSteps int `yaml:"max_steps"`

	// Sampling temperature for the tool agent.
	Temperature float32 `yaml:"temperature"`

	// Model for the tool agent; empty uses llm.model when the provider is gemini.
	Model string `yaml:"model,omitempty"`

	// Gemini key for the tool agent. Falls back to llm.api_key when the
	// provider is gemini.
	APIKey string `yaml:"api_key,omitempty"`
}

// AgentAPIKey returns the key the tool agent authenticates with.
func (c *Config) AgentAPIKey() string {
	if c.Tools.APIKey != "" {
		return c.Tools.APIKey
	}
	if c.LLM.Provider == "gemini" {
		return c.LLM.APIKey
	}
	return ""
}

// AgentModel returns the model the tool agent runs on.
func (c *Config) AgentModel() string {
	if c.Tools.Model != "" {
		return c.Tools.Model
	}
	if c.LLM.Provider == "gemini" {
		return c.LLM.Model
	}
	return ""
}

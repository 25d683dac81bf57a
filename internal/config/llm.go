package config

import "time"

// LLMConfig configures the generation backend.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // gemini, anthropic
	APIKey      string  `yaml:"api_key,omitempty"`
	Model       string  `yaml:"model"`
	Timeout     string  `yaml:"timeout"`
	Temperature float32 `yaml:"temperature"`
}

// RetryConfig is the bounded exponential backoff applied by callers of the
// generation port. Only transient failures (rate limits, unavailable backend) retry.
type RetryConfig struct {
	MaxAttempts     int     `yaml:"max_attempts"`
	InitialInterval string  `yaml:"initial_interval"`
	MaxInterval     string  `yaml:"max_interval"`
	Multiplier      float64 `yaml:"multiplier"`
}

// GetInitialInterval returns the first backoff interval.
func (r RetryConfig) GetInitialInterval() time.Duration {
	return parseDuration(r.InitialInterval, 2*time.Second)
}

// GetMaxInterval returns the backoff ceiling.
func (r RetryConfig) GetMaxInterval() time.Duration {
	return parseDuration(r.MaxInterval, 30*time.Second)
}

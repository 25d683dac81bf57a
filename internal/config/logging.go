package config

import "github.com/TNAHOM/project-x-ai-service/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level" json:"level,omitempty"`             // debug, info, warn, error
	Format     string          `yaml:"format" json:"format,omitempty"`           // json, console
	File       string          `yaml:"file" json:"file,omitempty"`               // rotated log file
	MaxSizeMB  int             `yaml:"max_size_mb" json:"max_size_mb,omitempty"` // rotate threshold
	MaxBackups int             `yaml:"max_backups" json:"max_backups,omitempty"` // rotated files kept
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode,omitempty"`   // forces debug level
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"`   // Per-category toggles
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Categories that are not listed are enabled.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// ToLogging converts the YAML section into the logging package's config.
func (c LoggingConfig) ToLogging() logging.Config {
	return logging.Config{
		Level:      c.Level,
		Format:     c.Format,
		File:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		DebugMode:  c.DebugMode,
		Categories: c.Categories,
	}
}

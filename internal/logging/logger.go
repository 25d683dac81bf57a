// Package logging provides categorized logging for the service.
// Every category is a named zap logger writing to the console and, when a file is
// configured, to a size-rotated log file. Categories can be switched off from config.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot         Category = "boot"         // Startup, shutdown, composition
	CategoryAPI          Category = "api"          // HTTP surface
	CategoryGeneration   Category = "generation"   // Model calls through the generation port
	CategoryPrompt       Category = "prompt"       // Template loading and rendering
	CategoryStages       Category = "stages"       // Stage executors
	CategoryOrchestrator Category = "orchestrator" // Dispatch and multi-stage runs
	CategoryTools        Category = "tools"        // MCP sessions, tool agent, execution
	CategoryJournal      Category = "journal"      // Run journal sinks
	CategoryPerformance  Category = "performance"  // Slow operations
)

// Config controls the logging backend. It mirrors config.LoggingConfig so this
// package does not import config.
type Config struct {
	Level      string          // debug, info, warn, error
	Format     string          // console, json
	File       string          // rotated log file; empty disables file output
	MaxSizeMB  int             // rotate after this many megabytes
	MaxBackups int             // rotated files to keep
	DebugMode  bool            // forces debug level
	Categories map[string]bool // per-category switch; missing entries are enabled
	Quiet      bool            // no console output
}

var (
	mu         sync.RWMutex
	base       = zap.NewNop()
	categories map[string]bool
	rotator    *lumberjack.Logger

	loggersMu sync.RWMutex
	loggers   = make(map[Category]*Logger)
)

// Initialize builds the zap core from cfg and replaces the process-wide base logger.
// Safe to call more than once; the previous file handle is closed.
func Initialize(cfg Config) error {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = lvl
	}
	if cfg.DebugMode {
		level = zapcore.DebugLevel
	}

	var cores []zapcore.Core
	if !cfg.Quiet {
		cores = append(cores, zapcore.NewCore(encoder(cfg.Format, true), zapcore.Lock(os.Stderr), level))
	}

	var rot *lumberjack.Logger
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		rot = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
		}
		cores = append(cores, zapcore.NewCore(encoder(cfg.Format, false), zapcore.AddSync(rot), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))

	mu.Lock()
	old := rotator
	base = logger
	rotator = rot
	categories = cfg.Categories
	mu.Unlock()
	resetCache()

	if old != nil {
		_ = old.Close()
	}

	Get(CategoryBoot).Debug("logging initialized: level=%s file=%q categories=%d", level, cfg.File, len(cfg.Categories))
	return nil
}

// UseCore swaps the backend for a caller-supplied core (tests use zaptest/observer).
// The returned func restores the previous backend.
func UseCore(core zapcore.Core) (restore func()) {
	mu.Lock()
	prevBase, prevCats := base, categories
	base = zap.New(core)
	categories = nil
	mu.Unlock()
	resetCache()

	return func() {
		mu.Lock()
		base, categories = prevBase, prevCats
		mu.Unlock()
		resetCache()
	}
}

// L returns the base zap logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// CloseAll flushes buffered entries and closes the rotated file.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	_ = base.Sync()
	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}
}

func encoder(format string, console bool) zapcore.Encoder {
	if format == "json" {
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(ec)
	}
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	if console {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(ec)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func resetCache() {
	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

// Get returns (or creates) a logger for the given category.
// Disabled categories get a no-op logger.
func Get(category Category) *Logger {
	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	l := &Logger{category: category}
	if IsCategoryEnabled(category) {
		l.sugar = L().Named(string(category)).Sugar()
	} else {
		l.sugar = zap.NewNop().Sugar()
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if existing, ok := loggers[category]; ok {
		return existing
	}
	loggers[category] = l
	return l
}

// With returns a child logger carrying structured key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootWarn logs warning to the boot category
func BootWarn(format string, args ...interface{}) { Get(CategoryBoot).Warn(format, args...) }

// BootError logs error to the boot category
func BootError(format string, args ...interface{}) { Get(CategoryBoot).Error(format, args...) }

// API logs to the api category
func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

// APIWarn logs warning to the api category
func APIWarn(format string, args ...interface{}) { Get(CategoryAPI).Warn(format, args...) }

// APIError logs error to the api category
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Error(format, args...) }

// Generation logs to the generation category
func Generation(format string, args ...interface{}) { Get(CategoryGeneration).Info(format, args...) }

// GenerationDebug logs debug to the generation category
func GenerationDebug(format string, args ...interface{}) {
	Get(CategoryGeneration).Debug(format, args...)
}

// GenerationWarn logs warning to the generation category
func GenerationWarn(format string, args ...interface{}) {
	Get(CategoryGeneration).Warn(format, args...)
}

// Prompt logs to the prompt category
func Prompt(format string, args ...interface{}) { Get(CategoryPrompt).Info(format, args...) }

// PromptWarn logs warning to the prompt category
func PromptWarn(format string, args ...interface{}) { Get(CategoryPrompt).Warn(format, args...) }

// Stages logs to the stages category
func Stages(format string, args ...interface{}) { Get(CategoryStages).Info(format, args...) }

// StagesDebug logs debug to the stages category
func StagesDebug(format string, args ...interface{}) { Get(CategoryStages).Debug(format, args...) }

// StagesError logs error to the stages category
func StagesError(format string, args ...interface{}) { Get(CategoryStages).Error(format, args...) }

// Orchestrator logs to the orchestrator category
func Orchestrator(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Info(format, args...)
}

// OrchestratorError logs error to the orchestrator category
func OrchestratorError(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Error(format, args...)
}

// Tools logs to the tools category
func Tools(format string, args ...interface{}) { Get(CategoryTools).Info(format, args...) }

// ToolsDebug logs debug to the tools category
func ToolsDebug(format string, args ...interface{}) { Get(CategoryTools).Debug(format, args...) }

// ToolsWarn logs warning to the tools category
func ToolsWarn(format string, args ...interface{}) { Get(CategoryTools).Warn(format, args...) }

// ToolsError logs error to the tools category
func ToolsError(format string, args ...interface{}) { Get(CategoryTools).Error(format, args...) }

// JournalWarn logs warning to the journal category
func JournalWarn(format string, args ...interface{}) { Get(CategoryJournal).Warn(format, args...) }

// =============================================================================
// REQUEST ID TRACING
// =============================================================================

// RequestLogger provides request-scoped logging with a correlation ID
type RequestLogger struct {
	category  Category
	requestID string
	fields    []interface{}
}

// WithRequestID creates a request-scoped logger
func WithRequestID(category Category, requestID string) *RequestLogger {
	return &RequestLogger{category: category, requestID: requestID}
}

// WithField adds a field to the request logger
func (r *RequestLogger) WithField(key string, value interface{}) *RequestLogger {
	r.fields = append(r.fields, key, value)
	return r
}

func (r *RequestLogger) logger() *Logger {
	return Get(r.category).With(append([]interface{}{"req", r.requestID}, r.fields...)...)
}

func (r *RequestLogger) Debug(format string, args ...interface{}) { r.logger().Debug(format, args...) }
func (r *RequestLogger) Info(format string, args ...interface{})  { r.logger().Info(format, args...) }
func (r *RequestLogger) Warn(format string, args ...interface{})  { r.logger().Warn(format, args...) }
func (r *RequestLogger) Error(format string, args ...interface{}) { r.logger().Error(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(CategoryPerformance).Warn("%s/%s took %v (threshold: %v)", t.category, t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}

// Package app wires every component of the service from a config.Config.
// It owns the tool session manager and the run journal; nothing else in the
// process holds them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/TNAHOM/project-x-ai-service/internal/api"
	"github.com/TNAHOM/project-x-ai-service/internal/capability"
	"github.com/TNAHOM/project-x-ai-service/internal/config"
	"github.com/TNAHOM/project-x-ai-service/internal/generation"
	"github.com/TNAHOM/project-x-ai-service/internal/journal"
	"github.com/TNAHOM/project-x-ai-service/internal/logging"
	"github.com/TNAHOM/project-x-ai-service/internal/mcp"
	"github.com/TNAHOM/project-x-ai-service/internal/metrics"
	"github.com/TNAHOM/project-x-ai-service/internal/orchestrator"
	"github.com/TNAHOM/project-x-ai-service/internal/prompt"
	"github.com/TNAHOM/project-x-ai-service/internal/schema"
	"github.com/TNAHOM/project-x-ai-service/internal/stages"
)

// App is the assembled service.
type App struct {
	Config       *config.Config
	Metrics      *metrics.Metrics
	Prompts      *prompt.Library
	Generator    *generation.Generator
	Tools        *mcp.Manager
	Stages       *stages.Executor
	Journal      journal.Sink
	Orchestrator *orchestrator.Orchestrator
	Server       *api.Server

	watcher *prompt.Watcher
}

type options struct {
	backend   generation.Backend
	models    generation.ContentGenerator
	toolSetup mcp.SetupFunc
	newAgent  mcp.AgentFactory
}

// Option overrides a component New would otherwise build from config.
type Option func(*options)

// WithBackend replaces the generation backend.
func WithBackend(b generation.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithToolSetup replaces how tool sessions are opened and how the agent is built.
func WithToolSetup(setup mcp.SetupFunc, newAgent mcp.AgentFactory) Option {
	return func(o *options) {
		o.toolSetup = setup
		o.newAgent = newAgent
	}
}

// New builds the service. It performs no network I/O; tool sessions are
// opened by Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	timer := logging.StartTimer(logging.CategoryBoot, "app.New")
	defer timer.Stop()

	a := &App{Config: cfg, Metrics: metrics.New()}

	lib, err := prompt.LoadEmbedded()
	if err != nil {
		return nil, err
	}
	if dir := cfg.Prompts.OverrideDir; dir != "" {
		n, err := lib.LoadOverrides(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompt overrides: %w", err)
		}
		logging.Boot("loaded %d prompt overrides from %s", n, dir)
		if cfg.Prompts.Watch {
			if a.watcher, err = prompt.NewWatcher(lib, dir); err != nil {
				return nil, fmt.Errorf("failed to watch prompt overrides: %w", err)
			}
		}
	}
	a.Prompts = lib

	if err := o.buildBackends(ctx, cfg); err != nil {
		return nil, err
	}

	a.Generator = generation.New(lib, o.backend, generation.WithMetrics(a.Metrics))
	model := generation.NewRetrying(a.Generator, generation.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.GetInitialInterval(),
		MaxInterval:     cfg.Retry.GetMaxInterval(),
		Multiplier:      cfg.Retry.Multiplier,
	})

	stageOpts := []stages.Option{
		stages.WithCapabilities(capability.Default()),
		stages.WithCompleter(model),
		stages.WithMetrics(a.Metrics),
		stages.WithAllowedDomains(cfg.Pipeline.AllowedDomains),
		stages.WithMaxSources(cfg.Pipeline.MaxSources),
		stages.WithExecTimeout(cfg.GetExecTimeout()),
	}
	if cfg.Tools.Enabled {
		setup, newAgent := o.toolSetup, o.newAgent
		if setup == nil {
			setup = mcp.FromConfigFile(cfg.Tools.MCPConfigPath, cfg.GetExecTimeout())
		}
		if newAgent == nil {
			newAgent = agentFactory(o.models, cfg)
		}
		a.Tools = mcp.NewManager(setup, newAgent,
			mcp.WithManagerMetrics(a.Metrics),
			mcp.WithInitTimeout(cfg.GetInitTimeout()))
		stageOpts = append(stageOpts, stages.WithTools(a.Tools, lib))
	} else {
		logging.Boot("tool sessions disabled; execution uses plain completion")
	}
	a.Stages = stages.New(model, schema.Default(cfg.Pipeline.AllowedDomains), stageOpts...)

	if a.Journal, err = journal.Open(cfg.Journal); err != nil {
		return nil, err
	}
	a.Orchestrator = orchestrator.New(a.Stages, schema.Default(cfg.Pipeline.AllowedDomains), orchestrator.WithJournal(a.Journal))

	serverCfg := api.Config{
		Addr:           cfg.Server.Addr,
		AppName:        cfg.Name,
		Version:        cfg.Version,
		MaxConnections: cfg.Server.MaxConnections,
		ReadTimeout:    cfg.GetReadTimeout(),
		WriteTimeout:   cfg.GetWriteTimeout(),
		Metrics:        a.Metrics,
	}
	if a.Tools != nil {
		serverCfg.Tools = a.Tools
	}
	a.Server = api.New(serverCfg, a.Orchestrator)

	logging.Boot("service assembled: backend %s, tools enabled %v, %d capabilities",
		a.Generator.Backend(), cfg.Tools.Enabled, a.Stages.Capabilities().Count())
	return a, nil
}

// buildBackends creates the SDK clients the config asks for. The Gemini
// client is shared by generation and the tool agent when both use it.
func (o *options) buildBackends(ctx context.Context, cfg *config.Config) error {
	if cfg.Tools.Enabled && o.models == nil && o.newAgent == nil {
		if key := cfg.AgentAPIKey(); key != "" {
			client, err := generation.NewGeminiClient(ctx, key)
			if err != nil {
				return err
			}
			o.models = client.Models
		}
	}
	if o.backend != nil {
		return nil
	}

	switch cfg.LLM.Provider {
	case "gemini":
		models := o.models
		if models == nil || cfg.AgentAPIKey() != cfg.LLM.APIKey {
			client, err := generation.NewGeminiClient(ctx, cfg.LLM.APIKey)
			if err != nil {
				return err
			}
			models = client.Models
		}
		o.backend = generation.NewGeminiBackend(models, generation.GeminiConfig{
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.GetLLMTimeout(),
		})
	case "anthropic":
		messages, err := generation.NewAnthropicMessages(cfg.LLM.APIKey)
		if err != nil {
			return err
		}
		o.backend = generation.NewAnthropicBackend(messages, generation.AnthropicConfig{
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.GetLLMTimeout(),
		})
	default:
		return fmt.Errorf("unsupported LLM provider %q", cfg.LLM.Provider)
	}
	return nil
}

// agentFactory builds the Gemini tool agent over a ready session set.
func agentFactory(models generation.ContentGenerator, cfg *config.Config) mcp.AgentFactory {
	return func(ctx context.Context, sessions *mcp.SessionSet) (mcp.Agent, error) {
		if models == nil {
			return nil, errors.New("tool agent needs a Gemini API key (tools.api_key or GOOGLE_API_KEY)")
		}
		return mcp.NewToolAgent(ctx, models, sessions, mcp.AgentConfig{
			Model:       cfg.AgentModel(),
			Temperature: cfg.Tools.Temperature,
			MaxSteps:    cfg.Tools.MaxSteps,
		})
	}
}

// Start opens tool sessions and starts the prompt watcher. A tool
// initialization failure is logged and the service runs degraded.
func (a *App) Start(ctx context.Context) error {
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start prompt watcher: %w", err)
		}
	}
	if a.Tools == nil {
		return nil
	}
	if _, err := a.Tools.Initialize(ctx); err != nil {
		logging.BootWarn("starting in degraded mode without tools: %v", err)
	}
	return nil
}

// Serve starts the app, serves HTTP on l until ctx is cancelled, then
// shuts everything down.
func (a *App) Serve(ctx context.Context, l net.Listener) error {
	if err := a.Start(ctx); err != nil {
		_ = l.Close()
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Serve(l) }()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		logging.Boot("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.GetShutdownTimeout())
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		logging.BootWarn("http shutdown: %v", err)
	}
	if serveErr == nil {
		serveErr = <-errCh
	}
	a.Close(shutdownCtx)
	return serveErr
}

// ListenAndServe listens on the configured address and calls Serve.
func (a *App) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", a.Config.Server.Addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, l)
}

// Close releases tool sessions, the journal and the prompt watcher. It
// is bounded by the configured close timeout.
func (a *App) Close(ctx context.Context) {
	start := time.Now()
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.Tools != nil {
		a.Tools.Close(ctx, a.Config.GetCloseTimeout())
	}
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			logging.BootWarn("closing journal: %v", err)
		}
	}
	logging.Boot("shutdown complete in %v", time.Since(start))
}

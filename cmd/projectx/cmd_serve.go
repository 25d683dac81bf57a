package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/TNAHOM/project-x-ai-service/internal/app"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveAddr string

// serveCmd runs the HTTP API until SIGINT or SIGTERM.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Starts the HTTP API. Tool sessions are opened at startup; if that fails
the service keeps running without tools and /health reports the error.

Routes:
  POST /agent/                 run one stage by agent_name
  POST /agent/pipeline         classify, domain, tasks and automate in one call
  POST /agent/expander-agent/  expand and execute a batch of tasks
  POST /mcp/execute            execute one action
  GET  /health                 liveness and tool session status
  GET  /metrics                Prometheus metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("Starting server",
		zap.String("addr", cfg.Server.Addr),
		zap.String("provider", cfg.LLM.Provider),
		zap.Bool("tools", cfg.Tools.Enabled))
	return a.ListenAndServe(ctx)
}

// Package api exposes the orchestrator over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/TNAHOM/project-x-ai-service/internal/logging"
	"github.com/TNAHOM/project-x-ai-service/internal/mcp"
	"github.com/TNAHOM/project-x-ai-service/internal/metrics"
	"github.com/TNAHOM/project-x-ai-service/internal/orchestrator"
	"github.com/TNAHOM/project-x-ai-service/internal/stages"

	"golang.org/x/net/netutil"
)

// Service is what the handlers call.
type Service interface {
	Dispatch(ctx context.Context, req orchestrator.AgentRequest) (*orchestrator.Result, error)
	Pipeline(ctx context.Context, req orchestrator.PipelineRequest) (*orchestrator.PipelineResult, error)
	ExpandAndExecute(ctx context.Context, tasks []string) ([]orchestrator.ExecutionItem, error)
	Execute(ctx context.Context, req stages.ChatRequest) (*stages.ExecuteOutput, error)
}

// ToolStatus reports the tool session state for /health.
type ToolStatus interface {
	Status() mcp.ServerStatus
}

// Config configures the server.
type Config struct {
	Addr           string
	AppName        string
	Version        string
	MaxConnections int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Metrics        *metrics.Metrics
	Tools          ToolStatus
}

// Server is the HTTP front of the service.
type Server struct {
	cfg     Config
	service Service
	server  *http.Server
}

// New builds the server and its routes.
func New(cfg Config, service Service) *Server {
	s := &Server{cfg: cfg, service: service}
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "POST /agent/pipeline", s.handlePipeline)
	s.route(mux, "POST /agent/expander-agent/", s.handleExpander)
	s.route(mux, "POST /agent/", s.handleAgent)
	s.route(mux, "POST /mcp/execute", s.handleExecute)
	s.route(mux, "GET /health", s.handleHealth)
	s.route(mux, "GET /{$}", s.handleRoot)
	mux.Handle("GET /metrics", s.cfg.Metrics.Handler())
	return mux
}

func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, requestLogging(pattern, s.cfg.Metrics, h))
}

// Serve accepts connections on l, capped at MaxConnections when set.
// It returns nil after Shutdown.
func (s *Server) Serve(l net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		l = netutil.LimitListener(l, s.cfg.MaxConnections)
	}
	logging.API("listening on %s (max connections %d)", l.Addr(), s.cfg.MaxConnections)
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and serves.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.API("shutting down http server")
	return s.server.Shutdown(ctx)
}

package api

import (
	"net/http"

	"github.com/TNAHOM/project-x-ai-service/internal/mcp"
	"github.com/TNAHOM/project-x-ai-service/internal/orchestrator"
	"github.com/TNAHOM/project-x-ai-service/internal/stages"
)

type expanderRequest struct {
	Tasks []string `json:"tasks"`
}

type expanderResponse struct {
	ExecutionOutput []orchestrator.ExecutionItem `json:"executionOutput"`
}

// chatResponse is the /mcp/execute reply.
type chatResponse struct {
	Answer    string `json:"answer"`
	Mode      string `json:"mode"`
	LatencyMS int64  `json:"latency_ms"`
}

type healthResponse struct {
	Status    string `json:"status"`
	AppName   string `json:"app_name"`
	Version   string `json:"version"`
	MCPStatus string `json:"mcp_status"`
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.AgentRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeMappedError(w, r, err)
		return
	}
	res, err := s.service.Dispatch(r.Context(), req)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.PipelineRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeMappedError(w, r, err)
		return
	}
	res, err := s.service.Pipeline(r.Context(), req)
	if err != nil {
		status, _ := statusFor(err)
		if res == nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, status, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExpander(w http.ResponseWriter, r *http.Request) {
	var req expanderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeMappedError(w, r, err)
		return
	}
	items, err := s.service.ExpandAndExecute(r.Context(), req.Tasks)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expanderResponse{ExecutionOutput: items})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req stages.ChatRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeMappedError(w, r, err)
		return
	}
	out, err := s.service.Execute(r.Context(), req)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Answer: out.Message, Mode: out.Mode, LatencyMS: out.LatencyMS})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := mcp.ServerStatusDisconnected
	if s.cfg.Tools != nil {
		status = s.cfg.Tools.Status()
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		AppName:   s.cfg.AppName,
		Version:   s.cfg.Version,
		MCPStatus: string(status),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": s.cfg.AppName + " is running",
		"version": s.cfg.Version,
	})
}

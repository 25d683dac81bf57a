package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/TNAHOM/project-x-ai-service/internal/capability"
	"github.com/TNAHOM/project-x-ai-service/internal/generation"
	"github.com/TNAHOM/project-x-ai-service/internal/logging"
	"github.com/TNAHOM/project-x-ai-service/internal/orchestrator"
	"github.com/TNAHOM/project-x-ai-service/internal/schema"
	"github.com/TNAHOM/project-x-ai-service/internal/stages"
)

const maxRequestBodyBytes = 1 << 20

const (
	codeInvalidRequest    = "invalid_request"
	codeContextIncomplete = "context_incomplete"
	codeUnprocessable     = "unprocessable"
	codeInvalidOutput     = "stage_output_invalid"
	codeRateLimited       = "rate_limited"
	codeUnavailable       = "backend_unavailable"
	codeSessionDown       = "session_unavailable"
	codeTimeout           = "execution_timeout"
	codeInternal          = "internal_error"
)

type errorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Agent   string   `json:"agent,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

// statusFor maps an error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	var (
		incomplete  *stages.ContextIncomplete
		unsupported *stages.UnsupportedDomainType
		invalidOut  *stages.StageOutputInvalid
		timeout     *stages.ExecutionTimeout
		limited     *generation.RateLimited
		unavailable *generation.BackendUnavailable
	)
	switch {
	case errors.Is(err, schema.ErrUnknownAgent), errors.Is(err, orchestrator.ErrMalformedRequest):
		return http.StatusBadRequest, codeInvalidRequest
	case errors.As(err, &incomplete):
		return http.StatusUnprocessableEntity, codeContextIncomplete
	case errors.As(err, &unsupported),
		errors.Is(err, stages.ErrInvalidRequest),
		errors.Is(err, capability.ErrCapabilityNotFound):
		return http.StatusUnprocessableEntity, codeUnprocessable
	case errors.As(err, &invalidOut):
		return http.StatusBadGateway, codeInvalidOutput
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout, codeTimeout
	case errors.As(err, &limited):
		return http.StatusTooManyRequests, codeRateLimited
	case errors.Is(err, stages.ErrSessionUnavailable):
		return http.StatusServiceUnavailable, codeSessionDown
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable, codeUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	body := errorResponse{Error: err.Error(), Code: code}

	var incomplete *stages.ContextIncomplete
	if errors.As(err, &incomplete) {
		body.Agent = string(incomplete.Agent)
		body.Missing = incomplete.Missing
	}

	if status >= http.StatusInternalServerError {
		logging.APIError("%s %s: %d %s: %v", r.Method, r.URL.Path, status, code, err)
	} else {
		logging.APIWarn("%s %s: %d %s: %v", r.Method, r.URL.Path, status, code, err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSONBody decodes exactly one JSON value from the request body.
func decodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: request body is required", orchestrator.ErrMalformedRequest)
	}

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", orchestrator.ErrMalformedRequest)
		}
		return fmt.Errorf("%w: invalid JSON body: %v", orchestrator.ErrMalformedRequest, err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: request body must contain exactly one JSON object", orchestrator.ErrMalformedRequest)
	}
	return nil
}

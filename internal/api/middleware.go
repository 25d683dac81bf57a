package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/TNAHOM/project-x-ai-service/internal/logging"
	"github.com/TNAHOM/project-x-ai-service/internal/metrics"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// requestLogging logs each request with its id, status and latency and
// counts it under the route pattern.
func requestLogging(pattern string, m *metrics.Metrics, next http.Handler) http.Handler {
	route := pattern
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		route = pattern[i+1:]
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)

		m.ObserveRequest(route, sw.status)
		logging.WithRequestID(logging.CategoryAPI, id).
			WithField("status", sw.status).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Info("%s %s", r.Method, r.URL.Path)
	})
}

package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "vellum_request_id"

// RequestIDFrom returns the request identifier the middleware assigned, or
// "" outside a request.
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController, which
// the websocket upgrade uses to hijack the connection.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// addMiddleware wraps the route table in the standard stack, outermost
// first: request identity and logging, CORS, security headers with a CSP
// nonce, then the context payload scope.
func (s *PreviewServer) addMiddleware(handler http.Handler) http.Handler {
	wrapped := s.scopeMiddleware(handler)
	wrapped = s.securityMiddleware(wrapped)
	wrapped = s.corsMiddleware(wrapped)
	return s.loggingMiddleware(wrapped)
}

// loggingMiddleware assigns each request an identifier and logs its outcome.
func (s *PreviewServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		recorder := &statusRecorder{ResponseWriter: w}

		start := time.Now()
		next.ServeHTTP(recorder, r.WithContext(ctx))

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Debug(ctx, "request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(s.routeLabel(r.URL.Path), fmt.Sprintf("%d", status)).Inc()
		}
	})
}

// routeLabel collapses parameterized paths to a bounded label set.
func (s *PreviewServer) routeLabel(path string) string {
	staticPrefix := strings.TrimSuffix(s.config.Assets.StaticPrefix, "/") + "/"
	switch {
	case path == "/":
		return "index"
	case hasSegPrefix(path, "/preview/"):
		return "preview"
	case hasSegPrefix(path, "/context/"):
		return "context"
	case hasSegPrefix(path, staticPrefix):
		return "static"
	case path == "/ws":
		return "ws"
	case path == "/health":
		return "health"
	case path == "/vellum.js":
		return "runtime"
	case path == "/api/templates":
		return "templates"
	case path == s.config.Metrics.Path:
		return "metrics"
	default:
		return "other"
	}
}

func hasSegPrefix(path, prefix string) bool {
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}

// corsMiddleware applies the allow-list, with a development-only wildcard.
func (s *PreviewServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if s.config.Server.Environment == "development" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		// Production default: no CORS header.

		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *PreviewServer) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range s.config.Server.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// securityMiddleware sets baseline headers and threads a per-request CSP
// nonce through the render context, so emitted script tags carry it.
func (s *PreviewServer) securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce, err := generateNonce()
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", fmt.Sprintf(
			"default-src 'self'; script-src 'self' 'nonce-%s'; style-src 'self' 'nonce-%s'; img-src 'self' data:; connect-src 'self' ws: wss:",
			nonce, nonce,
		))

		next.ServeHTTP(w, r.WithContext(templ.WithNonce(r.Context(), nonce)))
	})
}

func generateNonce() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(bytes), nil
}

// scopeMiddleware bounds the context payload lifecycle to the request:
// payloads finalized while handling it are disposed once the response is
// fully written, after which retrieval reports them expired.
func (s *PreviewServer) scopeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := RequestIDFrom(r.Context())
		if requestID == "" {
			next.ServeHTTP(w, r)
			return
		}

		s.contexts.Begin(requestID)
		defer s.contexts.End(requestID)
		next.ServeHTTP(w, r)
	})
}

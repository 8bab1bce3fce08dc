package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/internal/version"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/pdp"
)

// HeaderRequestID carries the caller's correlation id.
const HeaderRequestID = "X-Request-ID"

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes = 1 << 20

// ServerConfig holds configuration options for the API server.
type ServerConfig struct {
	// Logger for request and error logging. If nil, uses slog.Default().
	Logger *slog.Logger

	// MaxBodyBytes bounds request bodies. Defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Server is the AuthZEN HTTP API server.
type Server struct {
	pdp          authzen.PDP
	logger       *slog.Logger
	maxBodyBytes int64
}

// NewServer creates a new API server over p.
func NewServer(p authzen.PDP, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Server{pdp: p, logger: logger, maxBodyBytes: maxBody}
}

// Handler returns the router with middleware applied:
// recover -> request id -> logging -> routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all API routes.
func (s *Server) RegisterRoutes(r chi.Router) {
	// Access evaluation routes
	r.Post(authzen.PathEvaluation, s.handle(OpEvaluation))
	r.Post(authzen.PathEvaluations, s.handle(OpEvaluations))

	// Search routes
	r.Post(authzen.PathSearchSubject, s.handle(OpSubjectSearch))
	r.Post(authzen.PathSearchResource, s.handle(OpResourceSearch))
	r.Post(authzen.PathSearchAction, s.handle(OpActionSearch))

	// Metadata
	r.Get(authzen.PathConfiguration, s.handleConfiguration)

	// Health routes
	r.Get("/health", s.handleHealth)
}

func (s *Server) handle(op Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			s.writeError(w, r, http.StatusBadRequest, "failed to read request body")
			return
		}

		resp, err := Dispatch(r.Context(), s.pdp, op, body)
		if err != nil {
			s.writePDPError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

// handleConfiguration serves the PDP metadata rooted at the request's origin.
func (s *Server) handleConfiguration(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, authzen.NewConfiguration(baseURL(r)))
}

// handleHealth is the liveness probe endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// requestIDMiddleware echoes X-Request-ID and stores it for the decision log,
// generating one when absent.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get(HeaderRequestID); id != "" {
			ctx = pdp.ContextWithRequestID(ctx, id)
			w.Header().Set(HeaderRequestID, id)
		} else {
			ctx, _ = pdp.EnsureRequestID(ctx)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", clientIP(r),
			"status", sw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", pdp.RequestIDFromContext(r.Context()),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.logger.Warn("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", message,
		"request_id", pdp.RequestIDFromContext(r.Context()),
	)
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeInternalError logs the detailed error internally and returns a generic message to the client.
func (s *Server) writeInternalError(w http.ResponseWriter, r *http.Request, err error, genericMsg string) {
	s.logger.Error(genericMsg,
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
		"request_id", pdp.RequestIDFromContext(r.Context()),
	)
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": genericMsg})
}

// writePDPError maps a PDP failure to its status. Only validation and
// unsupported-operation messages reach the client verbatim.
func (s *Server) writePDPError(w http.ResponseWriter, r *http.Request, err error) {
	var e *authzen.Error
	if !errors.As(err, &e) {
		s.writeInternalError(w, r, err, "internal error")
		return
	}
	switch e.Code {
	case authzen.CodeValidation, authzen.CodeUnsupportedOperation:
		s.writeError(w, r, e.HTTPStatus(), e.Message)
	case authzen.CodeEntityResolution:
		s.logger.Error("entity resolution failed", "error", err, "request_id", pdp.RequestIDFromContext(r.Context()))
		s.writeJSON(w, e.HTTPStatus(), map[string]string{"error": "entity resolution failed"})
	default:
		s.writeInternalError(w, r, err, "evaluation failed")
	}
}

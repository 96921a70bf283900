package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/filedrop/internal/config"
	"github.com/mattjoyce/filedrop/internal/events"
	"github.com/mattjoyce/filedrop/internal/metrics"
)

// Server represents the webhook HTTP server.
type Server struct {
	config   Config
	verifier *Verifier
	handler  EventHandler
	counter  RetrievalCounter
	logger   *slog.Logger
	server   *http.Server
	started  time.Time
}

// New creates a new webhook server instance. counter may be nil.
func New(cfg Config, handler EventHandler, counter RetrievalCounter, logger *slog.Logger) *Server {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.EventsPath == "" {
		cfg.EventsPath = config.DefaultEventsPath
	}
	if cfg.TimestampHeader == "" {
		cfg.TimestampHeader = config.DefaultTimestampHeader
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = config.DefaultSignatureHeader
	}
	if cfg.StatusMessage == "" {
		cfg.StatusMessage = DefaultStatusMessage
	}

	return &Server{
		config:   cfg,
		verifier: NewVerifier(cfg.Verifier),
		handler:  handler,
		counter:  counter,
		logger:   logger,
		started:  time.Now(),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting",
		"listen", s.config.Listen,
		"events_path", s.config.EventsPath,
		"replay_window", s.config.Verifier.Tolerance,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleStatus)
	r.Get("/healthz", s.handleHealthz)
	r.Post(s.config.EventsPath, s.handleEvents)
	if s.config.MetricsPath != "" {
		r.Handle(s.config.MetricsPath, promhttp.Handler())
	}

	return r
}

// loggingMiddleware logs HTTP requests (excludes payloads and signatures).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, StatusResponse{Message: s.config.StatusMessage})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if s.counter != nil {
		n, err := s.counter.StoredCount(r.Context())
		if err != nil {
			s.logger.Warn("healthz retrieval count failed", "error", err)
		} else {
			resp.Retrievals = n
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleEvents authenticates the raw body before anything parses it.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		s.reject(w, http.StatusInternalServerError, "error", "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.reject(w, http.StatusRequestEntityTooLarge, "too_large", "payload too large")
		return
	}

	timestamp := r.Header.Get(s.config.TimestampHeader)
	signature := r.Header.Get(s.config.SignatureHeader)
	if err := s.verifier.Verify(timestamp, signature, body); err != nil {
		s.logger.Warn("webhook request rejected",
			"path", r.URL.Path,
			"reason", err,
			"request_id", middleware.GetReqID(r.Context()),
		)
		s.reject(w, http.StatusForbidden, "forbidden", "forbidden")
		return
	}

	// Retrieval outlives a dropped inbound connection.
	ctx := context.WithoutCancel(r.Context())
	res, err := s.handler.Handle(ctx, body)
	switch {
	case errors.Is(err, events.ErrMalformedBody):
		s.logger.Warn("malformed event body", "error", err)
		s.reject(w, http.StatusBadRequest, "malformed", "malformed body")
		return
	case errors.Is(err, events.ErrMissingFileID):
		s.logger.Warn("file_shared event without file id")
		s.reject(w, http.StatusBadRequest, "malformed", "missing file id")
		return
	case err != nil:
		s.logger.Error("event handling failed", "error", err)
		s.reject(w, http.StatusInternalServerError, "error", "internal error")
		return
	}

	metrics.WebhookRequests.WithLabelValues(res.Kind.String()).Inc()
	if res.Kind == events.KindChallenge {
		s.respondJSON(w, http.StatusOK, ChallengeResponse{Challenge: res.Challenge})
		return
	}
	s.respondJSON(w, http.StatusOK, AckResponse{OK: true})
}

func (s *Server) reject(w http.ResponseWriter, status int, outcome, message string) {
	metrics.WebhookRequests.WithLabelValues(outcome).Inc()
	s.respondError(w, status, message)
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}

package webhook

import (
	"context"
	"time"

	"github.com/mattjoyce/filedrop/internal/events"
)

// EventHandler handles an authenticated event body.
type EventHandler interface {
	Handle(ctx context.Context, body []byte) (events.Result, error)
}

// RetrievalCounter reports how many files have been stored so far.
type RetrievalCounter interface {
	StoredCount(ctx context.Context) (int, error)
}

// Config holds webhook server configuration.
type Config struct {
	Listen     string
	EventsPath string

	// TimestampHeader and SignatureHeader name the authentication headers.
	TimestampHeader string
	SignatureHeader string

	// MaxBodySize is the maximum allowed request body size in bytes (default: 1MB)
	MaxBodySize int64

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Verifier VerifierConfig

	// MetricsPath serves Prometheus metrics when non-empty.
	MetricsPath string

	// StatusMessage is returned by GET /.
	StatusMessage string
}

// ChallengeResponse answers the endpoint ownership handshake.
type ChallengeResponse struct {
	Challenge string `json:"challenge"`
}

// AckResponse acknowledges an event notification.
type AckResponse struct {
	OK bool `json:"ok"`
}

// StatusResponse is the body of GET /.
type StatusResponse struct {
	Message string `json:"message"`
}

// HealthzResponse is the body of GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Retrievals    int    `json:"retrievals"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Default values
const (
	DefaultMaxBodySize   = 1048576 // 1 MB
	DefaultStatusMessage = "filedrop is live"
	shutdownTimeout      = 5 * time.Second
)

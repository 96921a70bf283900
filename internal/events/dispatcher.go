package events

import (
	"context"
	"log/slog"
)

//go:generate mockgen -destination=mocks/mock_retriever.go -package=mocks github.com/mattjoyce/filedrop/internal/events Retriever

// Retriever fetches a shared file and returns the local path it was written to.
type Retriever interface {
	Retrieve(ctx context.Context, fileID string) (string, error)
}

// Kind classifies how an approved request was handled.
type Kind int

const (
	// KindAcknowledged: envelope with neither handshake nor event.
	KindAcknowledged Kind = iota
	// KindChallenge: handshake answered with the challenge.
	KindChallenge
	// KindIgnored: event type without a handler.
	KindIgnored
	// KindRetrieved: file_shared event whose file was stored.
	KindRetrieved
	// KindAcknowledgedWithFailure: file_shared event whose retrieval failed.
	KindAcknowledgedWithFailure
)

func (k Kind) String() string {
	switch k {
	case KindAcknowledged:
		return "acknowledged"
	case KindChallenge:
		return "challenge"
	case KindIgnored:
		return "ignored"
	case KindRetrieved:
		return "retrieved"
	case KindAcknowledgedWithFailure:
		return "retrieval_failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of Handle. Every kind is acknowledged to the platform;
// Err records the internal failure behind KindAcknowledgedWithFailure.
type Result struct {
	Kind      Kind
	Challenge string
	EventType string
	FileID    string
	Path      string
	Err       error
}

// Failed reports whether an internal follow-up failed.
func (r Result) Failed() bool {
	return r.Kind == KindAcknowledgedWithFailure
}

// Dispatcher routes approved envelopes to their side effects.
type Dispatcher struct {
	retriever Retriever
	logger    *slog.Logger
}

// New creates a dispatcher. The body handed to Handle must already be
// authenticated.
func New(retriever Retriever, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{retriever: retriever, logger: logger}
}

// Handle parses body and performs the side effect for its event type.
// Only ErrMalformedBody and ErrMissingFileID are returned as errors; retrieval
// failures are folded into the result.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) (Result, error) {
	env, err := ParseEnvelope(body)
	if err != nil {
		return Result{}, err
	}

	if env.IsHandshake() {
		return Result{Kind: KindChallenge, Challenge: env.Challenge}, nil
	}

	if env.Event == nil {
		return Result{Kind: KindAcknowledged}, nil
	}

	res := Result{EventType: env.Event.Type}
	if env.Event.Type != EventFileShared {
		d.logger.Info("unhandled event", "event_type", env.Event.Type, "event_id", env.EventID)
		res.Kind = KindIgnored
		return res, nil
	}

	fileID, err := env.Event.SharedFileID()
	if err != nil {
		return Result{}, err
	}
	res.FileID = fileID

	d.logger.Info("file shared", "file_id", fileID, "event_id", env.EventID, "channel_id", env.Event.ChannelID)

	path, err := d.retriever.Retrieve(ctx, fileID)
	if err != nil {
		d.logger.Error("file retrieval failed", "file_id", fileID, "error", err)
		res.Kind = KindAcknowledgedWithFailure
		res.Err = err
		return res, nil
	}

	res.Kind = KindRetrieved
	res.Path = path
	return res, nil
}

package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope and event discriminators understood by the dispatcher.
const (
	TypeURLVerification = "url_verification"
	TypeEventCallback   = "event_callback"

	EventFileShared = "file_shared"
)

var (
	// ErrMalformedBody means the approved body is not a JSON envelope.
	ErrMalformedBody = errors.New("malformed event body")

	// ErrMissingFileID means a file_shared event carried no file identifier.
	ErrMissingFileID = errors.New("file_shared event without file id")
)

// Envelope is the top-level structure of an inbound notification.
type Envelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge,omitempty"`
	TeamID    string `json:"team_id,omitempty"`
	APIAppID  string `json:"api_app_id,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	EventTime int64  `json:"event_time,omitempty"`
	Event     *Event `json:"event,omitempty"`
}

// Event is the notification payload nested in an envelope.
type Event struct {
	Type      string   `json:"type"`
	FileID    string   `json:"file_id,omitempty"`
	File      *FileRef `json:"file,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	ChannelID string   `json:"channel_id,omitempty"`
	EventTS   string   `json:"event_ts,omitempty"`
}

// FileRef is the nested file object of a file event.
type FileRef struct {
	ID string `json:"id"`
}

// ParseEnvelope decodes body. Unknown fields are ignored.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return &env, nil
}

// IsHandshake reports whether the envelope is the ownership challenge.
func (e *Envelope) IsHandshake() bool {
	return e.Type == TypeURLVerification
}

// SharedFileID returns the identifier of the shared file, preferring the
// nested file object over the flat file_id field.
func (e *Event) SharedFileID() (string, error) {
	if e.File != nil && e.File.ID != "" {
		return e.File.ID, nil
	}
	if e.FileID != "" {
		return e.FileID, nil
	}
	return "", ErrMissingFileID
}

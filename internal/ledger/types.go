package ledger

import "time"

// Status is the final state of one retrieval attempt.
type Status string

const (
	StatusStored         Status = "stored"
	StatusLookupFailed   Status = "lookup_failed"
	StatusDownloadFailed Status = "download_failed"
	StatusPersistFailed  Status = "persist_failed"
)

// Entry records one retrieval attempt.
type Entry struct {
	ID          string
	FileID      string
	Name        string
	Path        string
	Size        int64
	Digest      string
	Status      Status
	LastError   *string
	StartedAt   time.Time
	CompletedAt time.Time
}

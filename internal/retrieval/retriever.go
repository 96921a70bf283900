// Package retrieval fetches a shared file by id and stores it locally.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mattjoyce/filedrop/internal/filesapi"
	"github.com/mattjoyce/filedrop/internal/ledger"
	"github.com/mattjoyce/filedrop/internal/log"
	"github.com/mattjoyce/filedrop/internal/metrics"
	"github.com/mattjoyce/filedrop/internal/storage"
)

var (
	ErrLookupFailed   = errors.New("lookup failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrPersistFailed  = errors.New("persist failed")
)

// FileAPI is the remote side of a retrieval.
type FileAPI interface {
	FileInfo(ctx context.Context, fileID string) (*filesapi.FileMetadata, error)
	Download(ctx context.Context, downloadURL string, w io.Writer, limit int64) (int64, error)
}

// Recorder keeps the history of retrieval attempts.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) (string, error)
}

// Config holds optional Retriever settings.
type Config struct {
	// Timeout bounds each outbound call separately. Zero means no extra bound.
	Timeout time.Duration

	// MaxFileSize caps the downloaded content. Zero means unlimited.
	MaxFileSize int64

	Logger *slog.Logger
}

// Retriever runs lookup, download and persist for one file id.
type Retriever struct {
	api       FileAPI
	downloads *storage.Downloads
	recorder  Recorder
	timeout   time.Duration
	maxSize   int64
	logger    *slog.Logger
}

// New creates a Retriever. recorder may be nil.
func New(api FileAPI, downloads *storage.Downloads, recorder Recorder, cfg Config) *Retriever {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithComponent("retrieval")
	}
	return &Retriever{
		api:       api,
		downloads: downloads,
		recorder:  recorder,
		timeout:   cfg.Timeout,
		maxSize:   cfg.MaxFileSize,
		logger:    logger,
	}
}

// Retrieve looks up fileID, downloads its content and writes it into the
// downloads directory. It returns the local path of the stored file.
func (r *Retriever) Retrieve(ctx context.Context, fileID string) (string, error) {
	start := time.Now()
	logger := r.logger.With("file_id", fileID)
	entry := ledger.Entry{FileID: fileID, StartedAt: start}

	stored, err := r.retrieve(ctx, fileID, &entry)

	elapsed := time.Since(start)
	metrics.RetrievalDuration.Observe(elapsed.Seconds())

	if err != nil {
		entry.Status = failureStatus(err)
		msg := err.Error()
		entry.LastError = &msg
		metrics.Retrievals.WithLabelValues(string(entry.Status)).Inc()
		logger.Warn("file retrieval failed", "status", entry.Status, "error", err, "duration_ms", elapsed.Milliseconds())
		r.record(ctx, logger, entry)
		return "", err
	}

	entry.Status = ledger.StatusStored
	entry.Name = stored.Name
	entry.Path = stored.Path
	entry.Size = stored.Size
	entry.Digest = stored.Digest
	metrics.Retrievals.WithLabelValues(string(entry.Status)).Inc()
	metrics.DownloadedBytes.Add(float64(stored.Size))
	logger.Info("file stored", "path", stored.Path, "bytes", stored.Size, "duration_ms", elapsed.Milliseconds())
	r.record(ctx, logger, entry)
	return stored.Path, nil
}

func (r *Retriever) retrieve(ctx context.Context, fileID string, entry *ledger.Entry) (storage.StoredFile, error) {
	meta, err := r.lookup(ctx, fileID)
	if err != nil {
		return storage.StoredFile{}, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	entry.Name = meta.Name

	pending, err := r.downloads.Create(meta.Name, fileID)
	if err != nil {
		return storage.StoredFile{}, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	if err := r.download(ctx, meta.URLPrivateDownload, pending); err != nil {
		_ = pending.Abort()
		return storage.StoredFile{}, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}

	stored, err := pending.Commit()
	if err != nil {
		return storage.StoredFile{}, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	return stored, nil
}

func (r *Retriever) lookup(ctx context.Context, fileID string) (*filesapi.FileMetadata, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.api.FileInfo(ctx, fileID)
}

func (r *Retriever) download(ctx context.Context, downloadURL string, w io.Writer) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.api.Download(ctx, downloadURL, w, r.maxSize)
	return err
}

func (r *Retriever) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Retriever) record(ctx context.Context, logger *slog.Logger, entry ledger.Entry) {
	if r.recorder == nil {
		return
	}
	entry.CompletedAt = time.Now()
	if _, err := r.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		logger.Error("failed to record retrieval", "error", err)
	}
}

func failureStatus(err error) ledger.Status {
	switch {
	case errors.Is(err, ErrLookupFailed):
		return ledger.StatusLookupFailed
	case errors.Is(err, ErrDownloadFailed):
		return ledger.StatusDownloadFailed
	default:
		return ledger.StatusPersistFailed
	}
}

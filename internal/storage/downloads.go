package storage

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zeebo/blake3"
)

const maxNameBytes = 255

// StoredFile describes a file committed to the downloads directory.
type StoredFile struct {
	Name   string
	Path   string
	Size   int64
	Digest string // BLAKE3-256, hex
}

// Downloads writes retrieved files into one flat directory. A file with the
// same name is replaced; the last committed write wins.
type Downloads struct {
	dir      string
	sanitize bool
}

// NewDownloads creates a store rooted at dir. The directory is created lazily.
func NewDownloads(dir string, sanitize bool) (*Downloads, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, fmt.Errorf("downloads directory is empty")
	}
	return &Downloads{dir: filepath.Clean(trimmed), sanitize: sanitize}, nil
}

// Dir returns the downloads directory.
func (d *Downloads) Dir() string { return d.dir }

// Create opens a pending file for the display name. fileID names the file
// when the display name is unusable.
func (d *Downloads) Create(name, fileID string) (*PendingFile, error) {
	final := d.localName(name, fileID)

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create downloads directory: %w", err)
	}

	tmp, err := os.CreateTemp(d.dir, ".filedrop-*.part")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	hasher := blake3.New()
	return &PendingFile{
		f:      tmp,
		hasher: hasher,
		w:      io.MultiWriter(tmp, hasher),
		name:   final,
		target: filepath.Join(d.dir, final),
	}, nil
}

func (d *Downloads) localName(name, fileID string) string {
	fallback := "file-" + SanitizeName(fileID, "unknown")
	if d.sanitize {
		return SanitizeName(name, fallback)
	}
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == ".." || base == "/" || base == "" {
		return fallback
	}
	return base
}

// PendingFile buffers content in a temp file until Commit renames it into place.
type PendingFile struct {
	f      *os.File
	hasher *blake3.Hasher
	w      io.Writer
	name   string
	target string
	size   int64
	done   bool
}

// Write implements io.Writer.
func (p *PendingFile) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.size += int64(n)
	return n, err
}

// Name returns the local file name the content will be stored under.
func (p *PendingFile) Name() string { return p.name }

// Commit flushes the temp file and atomically moves it to its final name.
func (p *PendingFile) Commit() (StoredFile, error) {
	if p.done {
		return StoredFile{}, fmt.Errorf("pending file %q already finished", p.name)
	}
	p.done = true

	tmpPath := p.f.Name()
	if err := p.f.Sync(); err != nil {
		_ = p.f.Close()
		_ = os.Remove(tmpPath)
		return StoredFile{}, fmt.Errorf("sync %q: %w", p.name, err)
	}
	if err := p.f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return StoredFile{}, fmt.Errorf("close %q: %w", p.name, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return StoredFile{}, fmt.Errorf("chmod %q: %w", p.name, err)
	}
	if err := os.Rename(tmpPath, p.target); err != nil {
		_ = os.Remove(tmpPath)
		return StoredFile{}, fmt.Errorf("rename into %q: %w", p.target, err)
	}

	return StoredFile{
		Name:   p.name,
		Path:   p.target,
		Size:   p.size,
		Digest: hex.EncodeToString(p.hasher.Sum(nil)),
	}, nil
}

// Abort discards the pending content. Safe to call after Commit.
func (p *PendingFile) Abort() error {
	if p.done {
		return nil
	}
	p.done = true
	tmpPath := p.f.Name()
	_ = p.f.Close()
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp file: %w", err)
	}
	return nil
}

// SanitizeName reduces a remote display name to a safe single path element.
// Directory parts, control characters and leading dots are dropped; names
// that end up empty become fallback.
func SanitizeName(name, fallback string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "/" {
		return fallback
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == utf8.RuneError, unicode.IsControl(r):
			continue
		case r == '/' || r == ':':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	cleaned := strings.TrimLeft(strings.TrimSpace(b.String()), ".")
	if cleaned == "" {
		return fallback
	}

	for len(cleaned) > maxNameBytes {
		_, size := utf8.DecodeLastRuneInString(cleaned)
		cleaned = cleaned[:len(cleaned)-size]
	}
	return cleaned
}

package storage

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
)

func writeAndCommit(t *testing.T, d *Downloads, name, fileID, content string) StoredFile {
	t.Helper()
	p, err := d.Create(name, fileID)
	require.NoError(t, err)
	_, err = io.Copy(p, strings.NewReader(content))
	require.NoError(t, err)
	stored, err := p.Commit()
	require.NoError(t, err)
	return stored
}

func TestDownloadsCreatesDirectoryAndWrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not", "yet", "there")
	d, err := NewDownloads(dir, true)
	require.NoError(t, err)

	stored := writeAndCommit(t, d, "report.pdf", "F1", "pdf bytes")

	assert.Equal(t, filepath.Join(dir, "report.pdf"), stored.Path)
	assert.Equal(t, int64(len("pdf bytes")), stored.Size)

	sum := blake3.Sum256([]byte("pdf bytes"))
	assert.Equal(t, hex.EncodeToString(sum[:]), stored.Digest)

	data, err := os.ReadFile(stored.Path)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(data))

	info, err := os.Stat(stored.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestDownloadsLastWriteWins(t *testing.T) {
	d, err := NewDownloads(t.TempDir(), true)
	require.NoError(t, err)

	writeAndCommit(t, d, "notes.txt", "F1", "first")
	stored := writeAndCommit(t, d, "notes.txt", "F2", "second")

	data, err := os.ReadFile(stored.Path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestDownloadsAbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDownloads(dir, true)
	require.NoError(t, err)

	p, err := d.Create("partial.bin", "F1")
	require.NoError(t, err)
	_, err = p.Write([]byte("half"))
	require.NoError(t, err)
	require.NoError(t, p.Abort())
	require.NoError(t, p.Abort(), "abort is idempotent")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadsTraversalStaysInside(t *testing.T) {
	for _, sanitize := range []bool{true, false} {
		dir := t.TempDir()
		d, err := NewDownloads(dir, sanitize)
		require.NoError(t, err)

		stored := writeAndCommit(t, d, "../../etc/passwd", "F9", "x")
		assert.Equal(t, dir, filepath.Dir(stored.Path), "sanitize=%v", sanitize)
		assert.Equal(t, "passwd", stored.Name)

		stored = writeAndCommit(t, d, "..", "F9", "x")
		assert.Equal(t, "file-F9", stored.Name, "sanitize=%v", sanitize)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../secret.txt", "secret.txt"},
		{`..\..\windows\system32`, "system32"},
		{".bashrc", "bashrc"},
		{"a\x00b\nc.txt", "abc.txt"},
		{"C:evil", "C_evil"},
		{"   ", "fallback"},
		{"..", "fallback"},
		{"", "fallback"},
		{"/", "fallback"},
		{"résumé final.docx", "résumé final.docx"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in, "fallback"))
		})
	}
}

func TestSanitizeNameTruncates(t *testing.T) {
	long := strings.Repeat("é", 200) // 400 bytes
	got := SanitizeName(long, "fallback")
	assert.LessOrEqual(t, len(got), maxNameBytes)
	assert.True(t, strings.HasPrefix(long, got))
}

func TestNewDownloadsEmptyDir(t *testing.T) {
	_, err := NewDownloads("  ", true)
	assert.Error(t, err)
}

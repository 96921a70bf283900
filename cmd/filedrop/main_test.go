package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/filedrop/internal/config"
	"github.com/mattjoyce/filedrop/internal/ledger"
	"github.com/mattjoyce/filedrop/internal/storage"
	"github.com/mattjoyce/filedrop/internal/webhook"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func runCaptured(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return captureOutputWithExitCode(t, func() int { return runCLI(args) })
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		config.EnvSigningSecret, config.EnvBotToken, config.EnvListen, config.EnvDownloadsDir,
		"SLACK_SIGNING_SECRET", "SLACK_BOT_TOKEN",
	} {
		t.Setenv(name, "")
	}
}

// writeConfigFixture writes a config.yaml whose state and downloads live in dir.
func writeConfigFixture(t *testing.T, dir, extra string) string {
	t.Helper()
	clearEnv(t)
	content := "state:\n  path: '" + filepath.Join(dir, "data", "filedrop.db") + "'\n" +
		"downloads:\n  dir: '" + filepath.Join(dir, "downloads") + "'\n" + extra
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunCLINoArgsPrintsUsage(t *testing.T) {
	code, _, stderr := runCaptured(t)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "filedrop <noun> <action>") {
		t.Fatalf("usage missing from stderr: %q", stderr)
	}
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := runCaptured(t, "frobnicate")
	if code != 1 || !strings.Contains(stderr, "Unknown command: frobnicate") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}
}

func TestRunNounHelp(t *testing.T) {
	for _, noun := range []string{"system", "config", "files", "event"} {
		t.Run(noun, func(t *testing.T) {
			code, stdout, _ := runCaptured(t, noun, "help")
			if code != 0 {
				t.Fatalf("exit code = %d, want 0", code)
			}
			if !strings.Contains(stdout, "Usage: filedrop "+noun) {
				t.Fatalf("unexpected help output %q", stdout)
			}
		})
	}
}

func TestRunActionHelpFlag(t *testing.T) {
	code, stdout, _ := runCaptured(t, "files", "list", "--help")
	if code != 0 || !strings.Contains(stdout, "filedrop files list") {
		t.Fatalf("code=%d stdout=%q", code, stdout)
	}
}

func TestRunUnknownAction(t *testing.T) {
	code, _, stderr := runCaptured(t, "files", "delete")
	if code != 1 || !strings.Contains(stderr, "Unknown files action: delete") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}
}

func TestRunVersionJSONOutputIncludesMetadata(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef", "2026-03-01T10:00:00+02:00")

	code, stdout, _ := runCaptured(t, "version", "--json")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	var info versionInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if info.Version != "1.2.3" || info.Commit != "0123456789ab" || info.BuildTime != "2026-03-01T08:00:00Z" {
		t.Fatalf("unexpected version info %+v", info)
	}
}

func TestRunEventSignMatchesVerifier(t *testing.T) {
	body := `{"type":"url_verification","challenge":"abc"}`
	code, stdout, stderr := runCaptured(t, "event", "sign", "--secret", "s3cret", "--timestamp", "1531420618", "--body", body)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%q", code, stderr)
	}

	headers := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			t.Fatalf("unexpected line %q", line)
		}
		headers[name] = value
	}

	v := webhook.NewVerifier(webhook.VerifierConfig{Secret: "s3cret"})
	err := v.Verify(headers[config.DefaultTimestampHeader], headers[config.DefaultSignatureHeader], []byte(body))
	if err != nil {
		t.Fatalf("printed signature rejected: %v", err)
	}
}

func TestRunEventSignFromFileWithCurl(t *testing.T) {
	path := filepath.Join(t.TempDir(), "body.json")
	if err := os.WriteFile(path, []byte(`{"it's":"quoted"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	code, stdout, _ := runCaptured(t, "event", "sign", "--secret", "s", "--file", path, "--curl", "http://localhost:8080/events")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	for _, want := range []string{"curl -X POST http://localhost:8080/events", "X-Request-Signature: v0=", `'{"it'\''s":"quoted"}'`} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestRunEventSignRequiresInputs(t *testing.T) {
	clearEnv(t)
	tests := [][]string{
		{"event", "sign", "--body", "{}"},
		{"event", "sign", "--secret", "s"},
		{"event", "sign", "--secret", "s", "--body", "{}", "--file", "x"},
	}
	for _, args := range tests {
		code, _, _ := runCaptured(t, args...)
		if code != 1 {
			t.Errorf("%v: exit code = %d, want 1", args, code)
		}
	}
}

func TestRunConfigCheck(t *testing.T) {
	t.Run("valid with bot token warning", func(t *testing.T) {
		path := writeConfigFixture(t, t.TempDir(), "platform:\n  signing_secret: s3cret\n")
		code, stdout, _ := runCaptured(t, "config", "check", "--config", path)
		if code != 2 {
			t.Fatalf("exit code = %d, want 2; output %q", code, stdout)
		}
		if !strings.Contains(stdout, "platform.bot_token") {
			t.Fatalf("expected bot token warning, got %q", stdout)
		}
	})

	t.Run("fully valid", func(t *testing.T) {
		path := writeConfigFixture(t, t.TempDir(), "platform:\n  signing_secret: s3cret\n  bot_token: xoxb-1\n")
		code, stdout, _ := runCaptured(t, "config", "check", "--config", path)
		if code != 0 {
			t.Fatalf("exit code = %d, want 0; output %q", code, stdout)
		}
	})

	t.Run("missing secret json", func(t *testing.T) {
		path := writeConfigFixture(t, t.TempDir(), "")
		code, stdout, _ := runCaptured(t, "config", "check", "--config", path, "--json")
		if code != 1 {
			t.Fatalf("exit code = %d, want 1", code)
		}
		var result struct {
			Valid  bool `json:"valid"`
			Errors []struct {
				Field string `json:"field"`
			} `json:"errors"`
		}
		if err := json.Unmarshal([]byte(stdout), &result); err != nil {
			t.Fatalf("invalid JSON %q: %v", stdout, err)
		}
		if result.Valid || len(result.Errors) == 0 || result.Errors[0].Field != "platform.signing_secret" {
			t.Fatalf("unexpected result %+v", result)
		}
	})

	t.Run("load failure", func(t *testing.T) {
		clearEnv(t)
		code, _, stderr := runCaptured(t, "config", "check", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
		if code != 1 || !strings.Contains(stderr, "Load error") {
			t.Fatalf("code=%d stderr=%q", code, stderr)
		}
	})
}

func TestRunConfigShowRedactsSecrets(t *testing.T) {
	path := writeConfigFixture(t, t.TempDir(), "platform:\n  signing_secret: topsecret\n  bot_token: xoxb-private\n")
	code, stdout, _ := runCaptured(t, "config", "show", "--config", path)
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if strings.Contains(stdout, "topsecret") || strings.Contains(stdout, "xoxb-private") {
		t.Fatalf("secrets leaked:\n%s", stdout)
	}
	if !strings.Contains(stdout, "<redacted>") {
		t.Fatalf("expected redaction marker:\n%s", stdout)
	}
}

func TestRunFilesListAndShow(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFixture(t, dir, "platform:\n  signing_secret: s\n")

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(dir, "data", "filedrop.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	id, err := ledger.New(db).Record(context.Background(), ledger.Entry{
		FileID: "F42",
		Name:   "notes.txt",
		Path:   filepath.Join(dir, "downloads", "notes.txt"),
		Size:   5,
		Status: ledger.StatusStored,
	})
	_ = db.Close()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	code, stdout, stderr := runCaptured(t, "files", "list", "--config", path)
	if code != 0 {
		t.Fatalf("list exit code = %d, stderr=%q", code, stderr)
	}
	if !strings.Contains(stdout, "notes.txt") || !strings.Contains(stdout, "F42") {
		t.Fatalf("list output missing entry:\n%s", stdout)
	}

	code, stdout, _ = runCaptured(t, "files", "list", "--config", path, "--json")
	if code != 0 {
		t.Fatalf("list --json exit code = %d", code)
	}
	var views []entryView
	if err := json.Unmarshal([]byte(stdout), &views); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(views) != 1 || views[0].ID != id || views[0].Status != "stored" {
		t.Fatalf("unexpected views %+v", views)
	}

	code, stdout, _ = runCaptured(t, "files", "show", id, "--config", path)
	if code != 0 {
		t.Fatalf("show exit code = %d", code)
	}
	var view entryView
	if err := json.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if view.FileID != "F42" {
		t.Fatalf("unexpected view %+v", view)
	}

	code, _, stderr = runCaptured(t, "files", "show", "nope", "--config", path)
	if code != 1 || !strings.Contains(stderr, "not found") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}
}

func TestRunFilesListEmpty(t *testing.T) {
	path := writeConfigFixture(t, t.TempDir(), "")
	code, stdout, _ := runCaptured(t, "files", "list", "--config", path)
	if code != 0 || !strings.Contains(stdout, "No retrievals recorded.") {
		t.Fatalf("code=%d stdout=%q", code, stdout)
	}
}

func TestRunStartFailsOnBadConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("service:\n  log_level: loud\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, _, stderr := runCaptured(t, "system", "start", "--config", path)
	if code != 1 || !strings.Contains(stderr, "Failed to load config") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}
}

// Package doctor validates filedrop configuration beyond what loading enforces.
package doctor

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattjoyce/filedrop/internal/config"
	"github.com/mattjoyce/filedrop/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateCredentials(r)
	d.validateDownloads(r)
	d.validateState(r)
	d.warnReplayWindow(r)
	d.warnAPIBase(r)
	d.warnTimeouts(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateCredentials checks the signing secret and bot token.
func (d *Doctor) validateCredentials(r *Result) {
	if d.cfg.Platform.SigningSecret == "" {
		d.addError(r, "credentials", "platform.signing_secret",
			fmt.Sprintf("signing secret is empty; every request will be rejected (set $%s)", config.EnvSigningSecret))
	}
	if d.cfg.Platform.BotToken == "" {
		d.addWarning(r, "credentials", "platform.bot_token",
			fmt.Sprintf("bot token is empty; file lookups will fail (set $%s)", config.EnvBotToken))
	}
}

// validateDownloads checks the target directory can be created and written.
func (d *Doctor) validateDownloads(r *Result) {
	dir := d.cfg.Downloads.Dir
	if err := storage.CheckLocalFilesystem(dir, "downloads.dir"); err != nil {
		d.addError(r, "downloads", "downloads.dir", err.Error())
		return
	}

	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		d.addError(r, "downloads", "downloads.dir", fmt.Sprintf("%s exists and is not a directory", dir))
		return
	case err == nil:
		if probeErr := probeWritable(dir); probeErr != nil {
			d.addError(r, "downloads", "downloads.dir", fmt.Sprintf("%s is not writable: %v", dir, probeErr))
		}
	case os.IsNotExist(err):
		if parent := nearestExisting(dir); parent != "" {
			if info, err := os.Stat(parent); err == nil && !info.IsDir() {
				d.addError(r, "downloads", "downloads.dir",
					fmt.Sprintf("%s cannot be created: %s is not a directory", dir, parent))
			}
		}
	default:
		d.addError(r, "downloads", "downloads.dir", fmt.Sprintf("cannot stat %s: %v", dir, err))
	}

	if d.cfg.Downloads.KeepRemoteNames {
		d.addWarning(r, "downloads", "downloads.keep_remote_names",
			"remote file names are used unsanitized (directory parts are still stripped)")
	}
}

// validateState checks the database lives on a local filesystem.
func (d *Doctor) validateState(r *Result) {
	if err := storage.CheckLocalFilesystem(d.cfg.State.Path, "state.path"); err != nil {
		d.addError(r, "state", "state.path", err.Error())
	}
}

func (d *Doctor) warnReplayWindow(r *Result) {
	if d.cfg.Platform.DisableReplayCheck {
		d.addWarning(r, "security", "platform.disable_replay_check",
			"replay check disabled; captured requests can be replayed indefinitely")
		return
	}
	if d.cfg.Platform.ReplayWindow > 15*time.Minute {
		d.addWarning(r, "security", "platform.replay_window",
			fmt.Sprintf("replay window %s is unusually long", d.cfg.Platform.ReplayWindow))
	}
}

func (d *Doctor) warnAPIBase(r *Result) {
	u, err := url.Parse(d.cfg.Platform.APIBaseURL)
	if err != nil {
		return
	}
	if u.Scheme != "https" {
		d.addWarning(r, "platform", "platform.api_base_url",
			"API base is not https; the bot token is sent in clear text")
	}
}

func (d *Doctor) warnTimeouts(r *Result) {
	write := d.cfg.Server.WriteTimeout
	perCall := d.cfg.Platform.RequestTimeout
	if write > 0 && perCall > 0 && write < 2*perCall {
		d.addWarning(r, "server", "server.write_timeout",
			fmt.Sprintf("write_timeout %s is shorter than lookup plus download (2 x %s); acknowledgements may be cut off", write, perCall))
	}
}

func probeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".filedrop-doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// nearestExisting returns the closest ancestor of path that exists.
func nearestExisting(path string) string {
	p := filepath.Clean(path)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return ""
		}
		p = parent
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}

	return b.String()
}

func writeIssue(b *strings.Builder, label string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", label, i.Category, i.Field, i.Message)
	} else {
		fmt.Fprintf(b, "  %s [%s] %s\n", label, i.Category, i.Message)
	}
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

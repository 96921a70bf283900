package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/filedrop/internal/config"
	"github.com/mattjoyce/filedrop/internal/doctor"
	"github.com/mattjoyce/filedrop/internal/events"
	"github.com/mattjoyce/filedrop/internal/filesapi"
	"github.com/mattjoyce/filedrop/internal/ledger"
	"github.com/mattjoyce/filedrop/internal/lock"
	"github.com/mattjoyce/filedrop/internal/log"
	"github.com/mattjoyce/filedrop/internal/retrieval"
	"github.com/mattjoyce/filedrop/internal/storage"
	"github.com/mattjoyce/filedrop/internal/tui"
	"github.com/mattjoyce/filedrop/internal/webhook"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "files":
		return runFilesNoun(args)
	case "event":
		return runEventNoun(args)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: filedrop version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("filedrop %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `filedrop - signed event webhook that stores shared files locally

Usage:
  filedrop <noun> <action> [flags]

Resources (Nouns):
  system    Daemon lifecycle
  config    Configuration checks
  files     Retrieval history
  event     Test request helpers

System Commands:
  system start      Start the webhook server in foreground

Config Commands:
  config check      Validate configuration and environment
  config show       Print the effective configuration (secrets redacted)

Files Commands:
  files list        Show recent retrievals
  files show <id>   Show one retrieval as JSON
  files watch       Live retrieval monitor

Event Commands:
  event sign        Compute signature headers for a request body

General:
  version           Show version information
  help              Show this help message

Use 'filedrop <noun> help' for action-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

type action struct {
	help string
	run  func([]string) int
}

func dispatchNoun(noun string, args []string, actions map[string]action, usage string) int {
	printHelp := func(w io.Writer) {
		fmt.Fprintf(w, "Usage: filedrop %s <action>\n\nActions:\n%s", noun, usage)
	}
	if len(args) < 1 {
		printHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printHelp(os.Stdout)
		return 0
	}

	a, ok := actions[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown %s action: %s\n", noun, args[0])
		return 1
	}
	if hasHelpFlag(args[1:]) {
		fmt.Println(a.help)
		return 0
	}
	return a.run(args[1:])
}

func runSystemNoun(args []string) int {
	return dispatchNoun("system", args, map[string]action{
		"start": {help: "Usage: filedrop system start [--config PATH]", run: runStart},
	}, "  start   Start the webhook server in foreground\n")
}

func runConfigNoun(args []string) int {
	return dispatchNoun("config", args, map[string]action{
		"check": {help: "Usage: filedrop config check [--config PATH] [--json]", run: runConfigCheck},
		"show":  {help: "Usage: filedrop config show [--config PATH]", run: runConfigShow},
	}, "  check   Validate configuration and environment\n  show    Print the effective configuration\n")
}

func runFilesNoun(args []string) int {
	return dispatchNoun("files", args, map[string]action{
		"list":  {help: "Usage: filedrop files list [--config PATH] [--limit N] [--json]", run: runFilesList},
		"show":  {help: "Usage: filedrop files show <id> [--config PATH]", run: runFilesShow},
		"watch": {help: "Usage: filedrop files watch [--config PATH]", run: runFilesWatch},
	}, "  list    Show recent retrievals\n  show    Show one retrieval\n  watch   Live retrieval monitor\n")
}

func runEventNoun(args []string) int {
	return dispatchNoun("event", args, map[string]action{
		"sign": {help: "Usage: filedrop event sign --secret S [--timestamp T] (--body B | --file F) [--curl URL]", run: runEventSign},
	}, "  sign    Compute signature headers for a request body\n")
}

// --- CONFIG HELPERS ---

// resolveConfigPath returns the explicit path, a discovered one, or "" when
// the process should run from defaults and environment.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	discovered, err := config.DiscoverConfigPath()
	if errors.Is(err, config.ErrNoConfig) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return discovered, nil
}

func loadConfigForTool(explicit string) (*config.Config, string, error) {
	path, err := resolveConfigPath(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func openLedgerForTool(explicit string) (*sql.DB, *ledger.Ledger, error) {
	cfg, _, err := loadConfigForTool(explicit)
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.OpenSQLite(context.Background(), cfg.State.Path)
	if err != nil {
		return nil, nil, err
	}
	return db, ledger.New(db), nil
}

// --- ACTIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "No config file found; using defaults and environment")
	} else if *configPath == "" {
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("filedrop starting", "version", version, "config", path, "platform", cfg.Platform)

	for _, issue := range doctor.New(cfg).Validate().Errors {
		logger.Warn("configuration problem", "field", issue.Field, "message", issue.Message)
	}

	pidLockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	history := ledger.New(db)

	downloads, err := storage.NewDownloads(cfg.Downloads.Dir, !cfg.Downloads.KeepRemoteNames)
	if err != nil {
		logger.Error("invalid downloads directory", "error", err)
		return 1
	}
	maxFileSize, err := config.ParseSize(cfg.Downloads.MaxFileSize)
	if err != nil {
		logger.Error("invalid max_file_size", "error", err)
		return 1
	}

	api := filesapi.New(cfg.Platform.APIBaseURL, cfg.Platform.BotToken, &http.Client{Timeout: cfg.Platform.RequestTimeout})
	retriever := retrieval.New(api, downloads, history, retrieval.Config{
		Timeout:     cfg.Platform.RequestTimeout,
		MaxFileSize: maxFileSize,
		Logger:      log.WithComponent("retrieval"),
	})
	dispatcher := events.New(retriever, log.WithComponent("events"))

	webhookConfig, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		logger.Error("failed to configure webhook server", "error", err)
		return 1
	}
	server := webhook.New(webhookConfig, dispatcher, history, log.WithComponent("webhook"))

	logger.Info("filedrop running (press Ctrl+C to stop)", "downloads_dir", downloads.Dir())
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("webhook server failed", "error", err)
		return 1
	}

	logger.Info("filedrop stopped")
	return 0
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfigForTool(*configPath)
	if err != nil {
		if *jsonOut {
			out, _ := doctor.FormatJSON(&doctor.Result{
				Errors: []doctor.Issue{{Category: "load", Message: err.Error()}},
			})
			fmt.Println(out)
		} else {
			fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		}
		return 1
	}

	result := doctor.New(cfg).Validate()
	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	switch {
	case !result.Valid:
		return 1
	case len(result.Warnings) > 0:
		return 2
	default:
		return 0
	}
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	redacted := *cfg
	redacted.Platform.SigningSecret = redact(cfg.Platform.SigningSecret)
	redacted.Platform.BotToken = redact(cfg.Platform.BotToken)

	out, err := yaml.Marshal(&redacted)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Print(string(out))
	return 0
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "<redacted>"
}

// entryView is the JSON shape of a ledger entry.
type entryView struct {
	ID          string    `json:"id"`
	FileID      string    `json:"file_id"`
	Name        string    `json:"name,omitempty"`
	Path        string    `json:"path,omitempty"`
	Size        int64     `json:"size"`
	Digest      string    `json:"digest,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

func toView(e *ledger.Entry) entryView {
	v := entryView{
		ID:          e.ID,
		FileID:      e.FileID,
		Name:        e.Name,
		Path:        e.Path,
		Size:        e.Size,
		Digest:      e.Digest,
		Status:      string(e.Status),
		StartedAt:   e.StartedAt,
		CompletedAt: e.CompletedAt,
	}
	if e.LastError != nil {
		v.Error = *e.LastError
	}
	return v
}

func runFilesList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", 20, "Maximum number of entries")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	db, history, err := openLedgerForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open ledger: %v\n", err)
		return 1
	}
	defer db.Close()

	entries, err := history.List(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list retrievals: %v\n", err)
		return 1
	}

	if *jsonOut {
		views := make([]entryView, 0, len(entries))
		for _, e := range entries {
			views = append(views, toView(e))
		}
		data, err := json.MarshalIndent(views, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Print(tui.RenderEntries(tui.NewDefaultTheme(), entries))
	return 0
}

func runFilesShow(args []string) int {
	var id string
	var rest []string
	for _, arg := range args {
		if id == "" && !strings.HasPrefix(arg, "-") {
			id = arg
			continue
		}
		rest = append(rest, arg)
	}

	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(rest); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if id == "" {
		fmt.Fprintln(os.Stderr, "Usage: filedrop files show <id> [--config PATH]")
		return 1
	}

	db, history, err := openLedgerForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open ledger: %v\n", err)
		return 1
	}
	defer db.Close()

	entry, err := history.Get(context.Background(), id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read retrieval: %v\n", err)
		return 1
	}
	if entry == nil {
		fmt.Fprintf(os.Stderr, "Retrieval not found: %s\n", id)
		return 1
	}

	data, err := json.MarshalIndent(toView(entry), "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

func runFilesWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	db, history, err := openLedgerForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open ledger: %v\n", err)
		return 1
	}
	defer db.Close()

	p := tea.NewProgram(tui.NewMonitor(history), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running watch: %v\n", err)
		return 1
	}
	return 0
}

func runEventSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	secret := fs.String("secret", "", "Signing secret (default: $SIGNING_SECRET)")
	timestamp := fs.String("timestamp", "", "Request timestamp in Unix seconds (default: now)")
	body := fs.String("body", "", "Request body")
	file := fs.String("file", "", "Read the request body from a file")
	curlURL := fs.String("curl", "", "Print a curl command posting to this URL")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if *secret == "" {
		*secret = os.Getenv(config.EnvSigningSecret)
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "A signing secret is required (--secret or $SIGNING_SECRET)")
		return 1
	}
	if (*body == "") == (*file == "") {
		fmt.Fprintln(os.Stderr, "Exactly one of --body or --file is required")
		return 1
	}

	payload := []byte(*body)
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read body: %v\n", err)
			return 1
		}
		payload = data
	}

	ts := *timestamp
	if ts == "" {
		ts = strconv.FormatInt(time.Now().Unix(), 10)
	}
	signature := webhook.Sign(*secret, ts, payload)

	if *curlURL != "" {
		fmt.Printf("curl -X POST %s \\\n  -H 'Content-Type: application/json' \\\n  -H '%s: %s' \\\n  -H '%s: %s' \\\n  --data-binary %s\n",
			*curlURL, config.DefaultTimestampHeader, ts, config.DefaultSignatureHeader, signature, shellQuote(string(payload)))
		return 0
	}

	fmt.Printf("%s: %s\n", config.DefaultTimestampHeader, ts)
	fmt.Printf("%s: %s\n", config.DefaultSignatureHeader, signature)
	return 0
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

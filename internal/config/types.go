package config

import (
	"log/slog"
	"time"
)

// Config represents the complete filedrop configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Server    ServerConfig    `yaml:"server"`
	Platform  PlatformConfig  `yaml:"platform"`
	Downloads DownloadsConfig `yaml:"downloads"`
	State     StateConfig     `yaml:"state"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// ServerConfig defines the inbound webhook listener.
type ServerConfig struct {
	Listen     string `yaml:"listen"`
	EventsPath string `yaml:"events_path"`

	// TimestampHeader and SignatureHeader name the headers carrying the
	// request timestamp and the v0 signature.
	TimestampHeader string `yaml:"timestamp_header"`
	SignatureHeader string `yaml:"signature_header"`

	// MaxBodySize accepts plain bytes or KB/MB/GB suffixes (default: 1MB)
	MaxBodySize string `yaml:"max_body_size"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PlatformConfig holds the credentials and endpoints of the messaging platform.
type PlatformConfig struct {
	SigningSecret string `yaml:"signing_secret"`
	BotToken      string `yaml:"bot_token"`
	APIBaseURL    string `yaml:"api_base_url"`

	// ReplayWindow bounds how far a request timestamp may drift from now.
	ReplayWindow       time.Duration `yaml:"replay_window"`
	DisableReplayCheck bool          `yaml:"disable_replay_check"`

	// RequestTimeout applies to each outbound call separately.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LogValue keeps credentials out of structured logs.
func (p PlatformConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("signing_secret_set", p.SigningSecret != ""),
		slog.Bool("bot_token_set", p.BotToken != ""),
		slog.String("api_base_url", p.APIBaseURL),
		slog.Duration("replay_window", p.ReplayWindow),
		slog.Bool("disable_replay_check", p.DisableReplayCheck),
		slog.Duration("request_timeout", p.RequestTimeout),
	)
}

// DownloadsConfig defines where retrieved files are written.
type DownloadsConfig struct {
	Dir string `yaml:"dir"`

	// KeepRemoteNames skips filename sanitization. The name is still reduced
	// to its base element.
	KeepRemoteNames bool `yaml:"keep_remote_names"`

	MaxFileSize string `yaml:"max_file_size"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default values
const (
	DefaultListen          = "0.0.0.0:8080"
	DefaultEventsPath      = "/events"
	DefaultTimestampHeader = "X-Request-Timestamp"
	DefaultSignatureHeader = "X-Request-Signature"
	DefaultMaxBodySize     = "1MB"
	DefaultAPIBaseURL      = "https://slack.com/api"
	DefaultReplayWindow    = 5 * time.Minute
	DefaultRequestTimeout  = 30 * time.Second
	DefaultDownloadsDir    = "./downloads"
	DefaultMaxFileSize     = "100MB"
	DefaultStatePath       = "./data/filedrop.db"
	DefaultMetricsPath     = "/metrics"
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "filedrop",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Server: ServerConfig{
			Listen:          DefaultListen,
			EventsPath:      DefaultEventsPath,
			TimestampHeader: DefaultTimestampHeader,
			SignatureHeader: DefaultSignatureHeader,
			MaxBodySize:     DefaultMaxBodySize,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    90 * time.Second,
		},
		Platform: PlatformConfig{
			APIBaseURL:     DefaultAPIBaseURL,
			ReplayWindow:   DefaultReplayWindow,
			RequestTimeout: DefaultRequestTimeout,
		},
		Downloads: DownloadsConfig{
			Dir:         DefaultDownloadsDir,
			MaxFileSize: DefaultMaxFileSize,
		},
		State: StateConfig{
			Path: DefaultStatePath,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    DefaultMetricsPath,
		},
	}
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Environment variables that override file values. The SLACK_ prefixed names
// are accepted as fallbacks.
const (
	EnvSigningSecret = "SIGNING_SECRET"
	EnvBotToken      = "BOT_TOKEN"
	EnvListen        = "FILEDROP_LISTEN"
	EnvDownloadsDir  = "FILEDROP_DOWNLOADS_DIR"
)

var envFallbacks = map[string]string{
	EnvSigningSecret: "SLACK_SIGNING_SECRET",
	EnvBotToken:      "SLACK_BOT_TOKEN",
}

// Load reads and parses configuration from a file, then applies environment
// overrides and validates the result. An empty path loads defaults plus
// environment only.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path or run with --config flag", absPath)
		}
		if info.IsDir() {
			absPath = filepath.Join(absPath, "config.yaml")
			if _, err := os.Stat(absPath); err != nil {
				return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
			}
		}

		if err := loadConfigFile(absPath, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadConfigFile parses a single YAML file over the values already in cfg.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := lookupEnv(EnvSigningSecret); v != "" {
		cfg.Platform.SigningSecret = v
	}
	if v := lookupEnv(EnvBotToken); v != "" {
		cfg.Platform.BotToken = v
	}
	if v := lookupEnv(EnvListen); v != "" {
		cfg.Server.Listen = v
	}
	if v := lookupEnv(EnvDownloadsDir); v != "" {
		cfg.Downloads.Dir = v
	}
}

func lookupEnv(name string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	if fallback, ok := envFallbacks[name]; ok {
		return os.Getenv(fallback)
	}
	return ""
}

// applyConfigDefaults fills values an explicit empty YAML entry blanked out.
func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Server.EventsPath == "" {
		cfg.Server.EventsPath = defaults.Server.EventsPath
	}
	if cfg.Server.TimestampHeader == "" {
		cfg.Server.TimestampHeader = defaults.Server.TimestampHeader
	}
	if cfg.Server.SignatureHeader == "" {
		cfg.Server.SignatureHeader = defaults.Server.SignatureHeader
	}
	if cfg.Server.MaxBodySize == "" {
		cfg.Server.MaxBodySize = defaults.Server.MaxBodySize
	}
	if cfg.Platform.APIBaseURL == "" {
		cfg.Platform.APIBaseURL = defaults.Platform.APIBaseURL
	}
	cfg.Platform.APIBaseURL = strings.TrimRight(cfg.Platform.APIBaseURL, "/")
	if cfg.Platform.ReplayWindow == 0 {
		cfg.Platform.ReplayWindow = defaults.Platform.ReplayWindow
	}
	if cfg.Platform.RequestTimeout == 0 {
		cfg.Platform.RequestTimeout = defaults.Platform.RequestTimeout
	}
	if cfg.Downloads.MaxFileSize == "" {
		cfg.Downloads.MaxFileSize = defaults.Downloads.MaxFileSize
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaults.Metrics.Path
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place so validation can name the variable.
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := strings.ToLower(cfg.Service.LogFormat); f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if !strings.HasPrefix(cfg.Server.EventsPath, "/") {
		return fmt.Errorf("server.events_path must start with / (got %q)", cfg.Server.EventsPath)
	}
	if cfg.Server.EventsPath == "/" {
		return fmt.Errorf("server.events_path cannot be / (reserved for the status endpoint)")
	}
	if _, err := ParseSize(cfg.Server.MaxBodySize); err != nil {
		return fmt.Errorf("server.max_body_size %q: %w", cfg.Server.MaxBodySize, err)
	}

	for field, value := range map[string]string{
		"platform.signing_secret": cfg.Platform.SigningSecret,
		"platform.bot_token":      cfg.Platform.BotToken,
	} {
		if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
			return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
		}
	}

	u, err := url.Parse(cfg.Platform.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("platform.api_base_url must be an absolute URL (got %q)", cfg.Platform.APIBaseURL)
	}
	if cfg.Platform.ReplayWindow < 0 {
		return fmt.Errorf("platform.replay_window must be positive")
	}
	if cfg.Platform.RequestTimeout < 0 {
		return fmt.Errorf("platform.request_timeout must be positive")
	}

	if cfg.Downloads.Dir == "" {
		return fmt.Errorf("downloads.dir is required")
	}
	if _, err := ParseSize(cfg.Downloads.MaxFileSize); err != nil {
		return fmt.Errorf("downloads.max_file_size %q: %w", cfg.Downloads.MaxFileSize, err)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with / (got %q)", cfg.Metrics.Path)
	}
	return nil
}

// ParseSize parses size strings like "1MB", "512KB" or "2048576" to bytes.
func ParseSize(size string) (int64, error) {
	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}

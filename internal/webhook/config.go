package webhook

import (
	"fmt"

	"github.com/mattjoyce/filedrop/internal/config"
)

// FromGlobalConfig converts the service configuration to webhook.Config.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}

	maxBodySize, err := config.ParseSize(cfg.Server.MaxBodySize)
	if err != nil {
		return Config{}, fmt.Errorf("invalid max_body_size %q: %w", cfg.Server.MaxBodySize, err)
	}

	tolerance := cfg.Platform.ReplayWindow
	if cfg.Platform.DisableReplayCheck {
		tolerance = 0
	}

	out := Config{
		Listen:          cfg.Server.Listen,
		EventsPath:      cfg.Server.EventsPath,
		TimestampHeader: cfg.Server.TimestampHeader,
		SignatureHeader: cfg.Server.SignatureHeader,
		MaxBodySize:     maxBodySize,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		Verifier: VerifierConfig{
			Secret:    cfg.Platform.SigningSecret,
			Tolerance: tolerance,
		},
	}
	if cfg.Metrics.Enabled {
		out.MetricsPath = cfg.Metrics.Path
	}
	return out, nil
}

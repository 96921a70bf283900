package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/filedrop/internal/config"
)

func TestFromGlobalConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Platform.SigningSecret = "s3cret"
	cfg.Server.MaxBodySize = "512KB"

	wc, err := FromGlobalConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(512*1024), wc.MaxBodySize)
	assert.Equal(t, "s3cret", wc.Verifier.Secret)
	assert.Equal(t, 5*time.Minute, wc.Verifier.Tolerance)
	assert.Equal(t, "/metrics", wc.MetricsPath)
	assert.Equal(t, "/events", wc.EventsPath)
}

func TestFromGlobalConfigReplayCheckDisabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.Platform.DisableReplayCheck = true
	cfg.Metrics.Enabled = false

	wc, err := FromGlobalConfig(cfg)
	require.NoError(t, err)
	assert.Zero(t, wc.Verifier.Tolerance)
	assert.Empty(t, wc.MetricsPath)
}

func TestFromGlobalConfigErrors(t *testing.T) {
	_, err := FromGlobalConfig(nil)
	assert.Error(t, err)

	cfg := config.Defaults()
	cfg.Server.MaxBodySize = "lots"
	_, err = FromGlobalConfig(cfg)
	assert.Error(t, err)
}

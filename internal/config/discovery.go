package config

import (
	"errors"
	"os"
	"path/filepath"
)

// EnvConfigPath points at a config file or a directory holding config.yaml.
const EnvConfigPath = "FILEDROP_CONFIG"

// ErrNoConfig is returned when none of the standard locations holds a config.
var ErrNoConfig = errors.New("no config found (checked: $FILEDROP_CONFIG, ~/.config/filedrop, /etc/filedrop, ./config.yaml)")

// DiscoverConfigPath finds the config by checking standard locations.
// Priority order: $FILEDROP_CONFIG, ~/.config/filedrop, /etc/filedrop, ./config.yaml
func DiscoverConfigPath() (string, error) {
	return discoverIn(candidatePaths())
}

func candidatePaths() []string {
	var paths []string
	if p := os.Getenv(EnvConfigPath); p != "" {
		paths = append(paths, p)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "filedrop", "config.yaml"))
	}
	return append(paths, "/etc/filedrop/config.yaml", "./config.yaml")
}

func discoverIn(paths []string) (string, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrNoConfig
}

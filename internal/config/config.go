// Package config loads the CLI configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"appauth/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/appauth"
	configFileName = "config.yaml"
)

// Config is the on-disk CLI configuration.
type Config struct {
	ClientID              string   `yaml:"client_id"`
	RedirectURI           string   `yaml:"redirect_uri"`
	EndSessionRedirectURI string   `yaml:"end_session_redirect_uri"`
	IssuerURI             string   `yaml:"issuer_uri"`
	Scopes                []string `yaml:"scopes"`
	CallbackPort          int      `yaml:"callback_port"`
	StoragePath           string   `yaml:"storage_path"`
}

// DefaultConfigPath returns the default config file location under the
// user's home directory.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

// Load reads the configuration from path. An empty path falls back to
// the default location; a missing file there is an error because the
// CLI cannot do anything without a client registration.
func Load(path string) (*Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no configuration found at %s, create one with client_id, issuer_uri and scopes", path)
		}
		return nil, fmt.Errorf("error reading config from %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error loading config from %s: %w", path, err)
	}

	applyDefaults(&cfg)
	logging.Debug("config", "Loaded configuration from %s", path)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.CallbackPort == 0 {
		cfg.CallbackPort = 8090
	}
	if cfg.RedirectURI == "" {
		cfg.RedirectURI = fmt.Sprintf("http://localhost:%d/callback", cfg.CallbackPort)
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "profile", "email", "offline_access"}
	}
	if cfg.StoragePath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.StoragePath = filepath.Join(home, userConfigDir, "session.json")
		}
	}
}

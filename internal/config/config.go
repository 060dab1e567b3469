// Package config loads and persists the vthost configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
)

// Config holds the user-tunable settings. Command-line flags override
// anything loaded from the file.
type Config struct {
	// Mode is the VT dialect string handed to the mode parser. Empty
	// selects the default dialect.
	Mode string `toml:"mode"`
	// Width and Height set the initial viewport in cells.
	Width  int  `toml:"width"`
	Height int  `toml:"height"`
	Debug  bool `toml:"debug"`
	// LogFile receives debug traces; empty disables file logging.
	LogFile string `toml:"log_file"`
}

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Mode:   "",
		Width:  80,
		Height: 24,
	}
}

// GetConfigPath returns the path of the config file under the XDG config
// directory, creating parent directories as needed.
func GetConfigPath() (string, error) {
	return xdg.ConfigFile("vthost/config.toml")
}

// Load reads the config file at path. A missing file yields the defaults;
// a malformed one is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadUserConfig loads the config from its XDG location.
func LoadUserConfig() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("could not determine config path: %w", err)
	}
	return Load(path)
}

// Save writes cfg to path in TOML form.
func Save(cfg *Config, path string) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Package config loads backend configuration from a TOML file, with
// sensible defaults for every field. Command-line flags override file
// values in cmd/cadence.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds backend configuration from config.toml.
type Config struct {
	Port    string `toml:"port"`
	DataDir string `toml:"data_dir"`
	Debug   bool   `toml:"debug"`
	API     API    `toml:"api"`
	MPD     MPD    `toml:"mpd"`
}

// API configures the content API client.
type API struct {
	BaseURL string `toml:"base_url"`
}

// MPD configures the audio engine connection.
type MPD struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:    "3001",
		DataDir: "data",
		API: API{
			BaseURL: "https://api.cadence.fm",
		},
		MPD: MPD{
			Host: "localhost",
			Port: 6600,
		},
	}
}

// Load reads the config file at path on top of the defaults. A missing
// file is not an error; the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if info.IsDir() {
		return cfg, fmt.Errorf("config path %s is a directory", path)
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

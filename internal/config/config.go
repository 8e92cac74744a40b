package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config carries the process-level settings shared by the server and
// the client commands.
type Config struct {
	Addr     string `yaml:"addr"`
	LogDir   string `yaml:"log_dir"`
	LogLevel string `yaml:"log_level"`
}

func Default() *Config {
	return &Config{
		Addr:     ":8080",
		LogDir:   "logs",
		LogLevel: "error",
	}
}

// Load reads a YAML config file, filling missing fields with defaults.
// A missing file is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if cfg.Addr == "" {
		cfg.Addr = Default().Addr
	}
	if cfg.LogDir == "" {
		cfg.LogDir = Default().LogDir
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = Default().LogLevel
	}

	return cfg, nil
}

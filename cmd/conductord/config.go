package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DaemonConfig models the conductord YAML config file.
type DaemonConfig struct {
	Listen      string `yaml:"listen"`
	CommandsDir string `yaml:"commands_dir"`

	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`

	MaxTurns  int           `yaml:"max_turns"`
	WallClock time.Duration `yaml:"wall_clock"`

	ShellTimeoutMs    int `yaml:"shell_timeout_ms"`
	ShellMaxTimeoutMs int `yaml:"shell_max_timeout_ms"`
}

func defaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		Listen:      ":8080",
		CommandsDir: "commands",
		Provider:    "anthropic",
	}
}

// loadConfig reads the YAML config at path. An empty path returns the
// defaults unchanged.
func loadConfig(path string) (DaemonConfig, error) {
	cfg := defaultDaemonConfig()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Provider == "" {
		cfg.Provider = "anthropic"
	}
	return cfg, nil
}

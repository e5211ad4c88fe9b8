package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the workspace config file.
const FileName = "taskroster.yml"

// Config models taskroster.yml.
type Config struct {
	Server ServerConfig `yaml:"server" json:"server"`
	Query  QueryConfig  `yaml:"query" json:"query"`
	Log    LogConfig    `yaml:"log" json:"log"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	BasePath string `yaml:"base_path" json:"base_path"`
}

// QueryConfig holds list defaults. A zero default limit means unbounded.
type QueryConfig struct {
	TaskDefaultLimit int `yaml:"task_default_limit" json:"task_default_limit"`
	UserDefaultLimit int `yaml:"user_default_limit" json:"user_default_limit"`
	MaxLimit         int `yaml:"max_limit" json:"max_limit"`
}

type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Query.TaskDefaultLimit < 0 || c.Query.UserDefaultLimit < 0 {
		return fmt.Errorf("config.query default limits must not be negative")
	}
	if c.Query.MaxLimit < 0 {
		return fmt.Errorf("config.query.max_limit must not be negative")
	}
	if c.Query.MaxLimit > 0 {
		if c.Query.TaskDefaultLimit > c.Query.MaxLimit || c.Query.UserDefaultLimit > c.Query.MaxLimit {
			return fmt.Errorf("config.query default limits exceed max_limit %d", c.Query.MaxLimit)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format %q is not one of text, json", c.Log.Format)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses config over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Write stores the default template in the workspace unless a config exists.
func Write(workspace string, overwrite bool) (string, error) {
	path := Path(workspace)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return path, fmt.Errorf("config %s already exists", path)
		}
	}
	return path, os.WriteFile(path, []byte(defaultTemplate), 0o644)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

query:
  # tasks are paged by default, users are not
  task_default_limit: 100
  user_default_limit: 0
  max_limit: 0

log:
  level: info
  format: text
  file: ""
  max_size_mb: 50
  max_backups: 3
  max_age_days: 28
`

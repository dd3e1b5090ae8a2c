// Package config loads the wardclaw configuration file. A missing file is
// not an error: the runtime starts with local-only defaults (Ollama backend,
// readonly profile) so a fresh install works without any setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/wardlabs/wardclaw/internal/types"
)

// Config is the full runtime configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`

	DefaultModel   string `yaml:"default_model"`
	DefaultProfile string `yaml:"default_profile"`

	// MaxTurns bounds the model/tool loop per task.
	MaxTurns int `yaml:"max_turns"`

	Workspace      string `yaml:"workspace"`
	CommandTimeout int    `yaml:"command_timeout_secs"`

	Providers map[string]Provider      `yaml:"providers"`
	Profiles  map[string]types.Profile `yaml:"profiles"`

	Server    Server    `yaml:"server"`
	Auth      Auth      `yaml:"auth"`
	Gate      Gate      `yaml:"gate"`
	Scheduler Scheduler `yaml:"scheduler"`
}

// Provider configures one model backend, keyed by its routing alias.
type Provider struct {
	// Kind selects the adapter: "ollama" or "openai".
	Kind    string `yaml:"kind"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// Server configures serve mode.
type Server struct {
	Addr string `yaml:"addr"`
}

// Auth enables bearer-token verification on the HTTP API when a secret
// is set.
type Auth struct {
	Secret string `yaml:"secret"`
}

// Gate configures the asynchronous confirmation gate.
type Gate struct {
	// TimeoutSecs is how long a pending confirmation waits before it is
	// treated as denied.
	TimeoutSecs int `yaml:"timeout_secs"`
}

// Scheduler holds cron-style task definitions for serve mode.
type Scheduler struct {
	Jobs []Job `yaml:"jobs"`
}

// Job is one scheduled task.
type Job struct {
	Name    string `yaml:"name"`
	Spec    string `yaml:"spec"`
	Task    string `yaml:"task"`
	Profile string `yaml:"profile"`
}

// DefaultPath returns ~/.wardclaw/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".wardclaw", "config.yaml")
	}
	return filepath.Join(home, ".wardclaw", "config.yaml")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LogLevel:       "info",
		DataDir:        defaultDataDir(),
		DefaultModel:   "local/llama3",
		DefaultProfile: "readonly",
		MaxTurns:       8,
		CommandTimeout: 30,
		Providers: map[string]Provider{
			"local": {Kind: "ollama", BaseURL: "http://localhost:11434"},
		},
		Server: Server{Addr: "127.0.0.1:8787"},
		Gate:   Gate{TimeoutSecs: 600},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".wardclaw", "state")
	}
	return filepath.Join(home, ".wardclaw", "state")
}

// Load reads the config at path, overlaying it on the defaults. A missing
// file returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for alias, p := range c.Providers {
		switch p.Kind {
		case "ollama", "openai":
		case "":
			return fmt.Errorf("provider %q: kind is required", alias)
		default:
			return fmt.Errorf("provider %q: unknown kind %q", alias, p.Kind)
		}
	}
	for name, p := range c.Profiles {
		if p.Name != "" && p.Name != name {
			return fmt.Errorf("profile %q: name field %q does not match key", name, p.Name)
		}
	}
	if c.MaxTurns < 1 {
		return fmt.Errorf("max_turns must be at least 1")
	}
	return nil
}

// ResolvedProfiles returns the config's profile map with the map key filled
// into each profile's Name. Config profiles shadow builtins of the same name
// downstream.
func (c *Config) ResolvedProfiles() map[string]types.Profile {
	out := make(map[string]types.Profile, len(c.Profiles))
	for name, p := range c.Profiles {
		p.Name = name
		out[name] = p
	}
	return out
}

// EnsureDataDir creates the state directory.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

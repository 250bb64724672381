// Package config loads the file configuration of the agentrun CLI and
// server. TOML files are decoded with BurntSushi/toml, ".yaml" and ".yml"
// files with yaml.v3. Fields missing from the file keep their defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Agent kinds accepted in the [agent] section.
const (
	KindLeaf       = "leaf"
	KindSequential = "sequential"
	KindParallel   = "parallel"
	KindLoop       = "loop"
)

// Config is the root of the configuration file.
type Config struct {
	AppName   string          `toml:"app_name" yaml:"app_name"`
	Runner    RunnerConfig    `toml:"runner" yaml:"runner"`
	Session   SessionConfig   `toml:"session" yaml:"session"`
	Model     ModelConfig     `toml:"model" yaml:"model"`
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Log       LogConfig       `toml:"log" yaml:"log"`
	Telemetry TelemetryConfig `toml:"telemetry" yaml:"telemetry"`
	Agent     AgentConfig     `toml:"agent" yaml:"agent"`
}

// RunnerConfig maps onto runner.Options.
type RunnerConfig struct {
	Deadline        Duration `toml:"deadline" yaml:"deadline"`
	ToolCallBudget  int      `toml:"tool_call_budget" yaml:"tool_call_budget"`
	EventBufferSize int      `toml:"event_buffer_size" yaml:"event_buffer_size"`
	// MaxConcurrentInvocations bounds concurrent runs; zero is unlimited.
	MaxConcurrentInvocations int `toml:"max_concurrent_invocations" yaml:"max_concurrent_invocations"`
}

// SessionConfig selects the session backend.
type SessionConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `toml:"backend" yaml:"backend"`
	// Path is the sqlite database file.
	Path string `toml:"path" yaml:"path"`
}

// ModelConfig selects and configures the model provider shared by all leaves.
type ModelConfig struct {
	// Provider is "openai", "anthropic" or "mock".
	Provider    string  `toml:"provider" yaml:"provider"`
	Model       string  `toml:"model" yaml:"model"`
	APIKey      string  `toml:"api_key" yaml:"api_key"`
	BaseURL     string  `toml:"base_url" yaml:"base_url"`
	Temperature float64 `toml:"temperature" yaml:"temperature"`
	MaxTokens   int64   `toml:"max_tokens" yaml:"max_tokens"`
	Streaming   bool    `toml:"streaming" yaml:"streaming"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// TelemetryConfig configures the OTLP trace exporter.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled" yaml:"enabled"`
	Endpoint string `toml:"endpoint" yaml:"endpoint"`
	URLPath  string `toml:"url_path" yaml:"url_path"`
	APIKey   string `toml:"api_key" yaml:"api_key"`
	Insecure bool   `toml:"insecure" yaml:"insecure"`
}

// AgentConfig describes one node of the agent tree the CLI builds.
type AgentConfig struct {
	Kind          string        `toml:"kind" yaml:"kind"`
	Name          string        `toml:"name" yaml:"name"`
	Description   string        `toml:"description" yaml:"description"`
	Instruction   string        `toml:"instruction" yaml:"instruction"`
	Tools         []string      `toml:"tools" yaml:"tools"`
	OutputKey     string        `toml:"output_key" yaml:"output_key"`
	MaxIterations int           `toml:"max_iterations" yaml:"max_iterations"`
	Children      []AgentConfig `toml:"children" yaml:"children"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML and YAML.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}

	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	d.Duration = v

	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file is present: one
// assistant leaf backed by the OpenAI provider and an in-memory session store.
func Default() *Config {
	return &Config{
		AppName: "agentrun",
		Runner: RunnerConfig{
			Deadline:        Duration{5 * time.Minute},
			ToolCallBudget:  20,
			EventBufferSize: 16,
		},
		Session: SessionConfig{
			Backend: "memory",
			Path:    defaultDBPath(),
		},
		Model: ModelConfig{
			Provider:    "openai",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Server: ServerConfig{
			Addr: ":8484",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Agent: AgentConfig{
			Kind:  KindLeaf,
			Name:  "assistant",
			Tools: []string{"calculator"},
		},
	}
}

// Load reads the configuration at path over the defaults. An empty path
// selects DefaultPath; a missing default file is not an error, a missing
// explicit file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks enumerations and the shape of the agent tree.
func (c *Config) Validate() error {
	if c.AppName == "" {
		return errors.New("app_name must not be empty")
	}

	switch c.Session.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}

	switch c.Model.Provider {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}

	if c.Runner.ToolCallBudget < 0 {
		return errors.New("runner.tool_call_budget must not be negative")
	}

	return c.Agent.validate("agent")
}

func (a *AgentConfig) validate(path string) error {
	if a.Name == "" {
		return fmt.Errorf("%s: name is required", path)
	}

	path = path + "." + a.Name

	switch a.Kind {
	case KindLeaf, "":
		if len(a.Children) > 0 {
			return fmt.Errorf("%s: a leaf agent has no children", path)
		}
	case KindSequential, KindParallel, KindLoop:
		if len(a.Children) == 0 {
			return fmt.Errorf("%s: a %s agent needs children", path, a.Kind)
		}

		if a.MaxIterations < 0 {
			return fmt.Errorf("%s: max_iterations must not be negative", path)
		}
	default:
		return fmt.Errorf("%s: unknown agent kind %q", path, a.Kind)
	}

	for i := range a.Children {
		if err := a.Children[i].validate(path); err != nil {
			return err
		}
	}

	return nil
}

// DefaultPath returns the config file looked up when none is given.
func DefaultPath() string {
	dir, _ := os.UserConfigDir()
	return filepath.Join(dir, "agentrun", "config.toml")
}

func defaultDBPath() string {
	dir, _ := os.UserHomeDir()
	return filepath.Join(dir, ".local", "share", "agentrun", "sessions.db")
}

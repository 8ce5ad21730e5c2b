package engine

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/germanamz/guibridge/pkg/dispatch"
	"github.com/germanamz/guibridge/pkg/launcher"
	"github.com/germanamz/guibridge/pkg/wire"
)

// Defaults applied to zero-valued config fields.
const (
	DefaultWebsocketAddress  = "ws://127.0.0.1"
	DefaultCorePort          = 8181
	DefaultCorePath          = "/core"
	DefaultGUIPath           = "/gui"
	DefaultReconnectInterval = time.Second
)

// Config is the top-level engine configuration.
type Config struct {
	Dir                        string           `yaml:"-"` // Set by CLI, not from YAML.
	WebsocketAddress           string           `yaml:"websocket_address"`
	CorePort                   int              `yaml:"core_port,omitempty"`
	CorePath                   string           `yaml:"core_path,omitempty"`
	GUIPath                    string           `yaml:"gui_path,omitempty"`
	ReconnectInterval          string           `yaml:"reconnect_interval,omitempty"` // Duration string, e.g. "1s", "500ms".
	CoreLoader                 CoreLoaderConfig `yaml:"core_loader"`
	MaxPort                    int              `yaml:"max_port,omitempty"`
	NoisePrefixes              []string         `yaml:"noise_prefixes,omitempty"`
	ShareDelegatesAcrossSkills bool             `yaml:"share_delegates_across_skills,omitempty"`
	LogLevel                   string           `yaml:"log_level,omitempty"`
}

// CoreLoaderConfig describes the program started when the core is absent.
type CoreLoaderConfig struct {
	Command  string   `yaml:"command"`
	Args     []string `yaml:"args,omitempty"`
	Disabled bool     `yaml:"disabled,omitempty"`
}

// LoadConfig reads a YAML file and returns a Config.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing, so the core address can come from the environment (e.g. a
// .env file) on kiosk installs.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML config data after expanding environment variables.
func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	return cfg, nil
}

// WithDefaults returns a copy of c with zero-valued fields filled in.
func (c Config) WithDefaults() Config {
	if c.WebsocketAddress == "" {
		c.WebsocketAddress = DefaultWebsocketAddress
	}
	c.WebsocketAddress = strings.TrimRight(c.WebsocketAddress, "/")
	if c.CorePort == 0 {
		c.CorePort = DefaultCorePort
	}
	if c.CorePath == "" {
		c.CorePath = DefaultCorePath
	}
	if c.GUIPath == "" {
		c.GUIPath = DefaultGUIPath
	}
	if c.ReconnectInterval == "" {
		c.ReconnectInterval = DefaultReconnectInterval.String()
	}
	if c.CoreLoader.Command == "" {
		c.CoreLoader.Command = launcher.DefaultCommand
	}
	if c.MaxPort == 0 {
		c.MaxPort = dispatch.DefaultMaxPort
	}
	if c.NoisePrefixes == nil {
		c.NoisePrefixes = wire.DefaultNoisePrefixes
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}

// Validate checks that the configuration is internally consistent. It expects
// defaults to have been applied.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.WebsocketAddress, "ws://") && !strings.HasPrefix(c.WebsocketAddress, "wss://") {
		return fmt.Errorf("engine: config: websocket_address %q must start with ws:// or wss://", c.WebsocketAddress)
	}

	if c.CorePort < 1 || c.CorePort > 65535 {
		return fmt.Errorf("engine: config: core_port %d out of range", c.CorePort)
	}

	if !strings.HasPrefix(c.CorePath, "/") {
		return fmt.Errorf("engine: config: core_path %q must start with /", c.CorePath)
	}
	if !strings.HasPrefix(c.GUIPath, "/") {
		return fmt.Errorf("engine: config: gui_path %q must start with /", c.GUIPath)
	}

	if c.MaxPort < 0 || c.MaxPort > 65535 {
		return fmt.Errorf("engine: config: max_port %d out of range", c.MaxPort)
	}

	d, err := time.ParseDuration(c.ReconnectInterval)
	if err != nil {
		return fmt.Errorf("engine: config: reconnect_interval: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("engine: config: reconnect_interval must be positive")
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// ReconnectDelay returns the parsed reconnect interval, falling back to the
// default when it is unset or invalid.
func (c Config) ReconnectDelay() time.Duration {
	d, err := time.ParseDuration(c.ReconnectInterval)
	if err != nil || d <= 0 {
		return DefaultReconnectInterval
	}
	return d
}

// Level returns the configured slog level, defaulting to info.
func (c Config) Level() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}

	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("engine: config: log_level %q: %w", s, err)
	}
	return l, nil
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("engine: marshal config: %w", err)
	}
	return data, nil
}

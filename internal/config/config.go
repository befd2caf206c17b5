// Package config provides configuration management for the pydevd-MCP server.
//
// Configuration controls:
//   - Capability mode (readonly vs full): determines which tools are available
//   - Permission flags: control spawn, attach, modify, and execute operations
//   - Protocol timing: response, connect and accept timeouts
//   - Python settings: interpreter, pydevd entry script, minimum version
//   - Safety limits: maximum sessions and session timeout
//
// Configuration is read from a YAML or JSON file with viper; every key can be
// overridden from the environment with the PYDEVD_MCP_ prefix, for example
// PYDEVD_MCP_PROTOCOL_RESPONSE_TIMEOUT=30s.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "PYDEVD_MCP"

// CapabilityMode defines the level of debugging capabilities exposed
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // Inspection tools only
	ModeFull     CapabilityMode = "full"     // All tools enabled
)

// Config holds the server configuration
type Config struct {
	// Capability levels
	Mode         CapabilityMode `mapstructure:"mode" yaml:"mode"`
	AllowSpawn   bool           `mapstructure:"allow_spawn" yaml:"allow_spawn"`
	AllowAttach  bool           `mapstructure:"allow_attach" yaml:"allow_attach"`
	AllowModify  bool           `mapstructure:"allow_modify" yaml:"allow_modify"`
	AllowExecute bool           `mapstructure:"allow_execute" yaml:"allow_execute"`

	// Limits for safety
	MaxSessions    int           `mapstructure:"max_sessions" yaml:"max_sessions"`
	SessionTimeout time.Duration `mapstructure:"session_timeout" yaml:"session_timeout"`
	OutputLines    int           `mapstructure:"output_lines" yaml:"output_lines"`

	Protocol ProtocolConfig `mapstructure:"protocol" yaml:"protocol"`
	Python   PythonConfig   `mapstructure:"python" yaml:"python"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// ProtocolConfig tunes the debugger connection.
type ProtocolConfig struct {
	ResponseTimeout time.Duration `mapstructure:"response_timeout" yaml:"response_timeout"`
	ConnectRetries  int           `mapstructure:"connect_retries" yaml:"connect_retries"`
	ConnectDelay    time.Duration `mapstructure:"connect_delay" yaml:"connect_delay"`
	AcceptTimeout   time.Duration `mapstructure:"accept_timeout" yaml:"accept_timeout"`
}

// PythonConfig holds interpreter settings used when launching programs.
type PythonConfig struct {
	Interpreter  string `mapstructure:"interpreter" yaml:"interpreter"`
	PydevdPath   string `mapstructure:"pydevd_path" yaml:"pydevd_path"`
	Multiprocess bool   `mapstructure:"multiprocess" yaml:"multiprocess"`
	MinVersion   string `mapstructure:"min_version" yaml:"min_version"`
}

// LoggingConfig holds log settings. Level is a pslog level name.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:           ModeFull,
		AllowSpawn:     true,
		AllowAttach:    true,
		AllowModify:    true,
		AllowExecute:   true,
		MaxSessions:    10,
		SessionTimeout: 30 * time.Minute,
		OutputLines:    1000,
		Protocol: ProtocolConfig{
			ResponseTimeout: 60 * time.Second,
			ConnectRetries:  20,
			ConnectDelay:    250 * time.Millisecond,
			AcceptTimeout:   30 * time.Second,
		},
		Python: PythonConfig{
			Interpreter: "python3",
			MinVersion:  "1.1",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "pydevd-mcp", "config.yaml"), nil
}

// LoadConfig reads configuration from path. An empty path reads the default
// location when it exists and falls back to the defaults otherwise; an
// explicit path must exist.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		defaultPath, err := DefaultConfigPath()
		if err == nil {
			path = defaultPath
		}
	}

	cfg := DefaultConfig()
	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			v.SetConfigFile(path)
			if filepath.Ext(path) == "" {
				v.SetConfigType("yaml")
			}
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		case explicit || !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Python.Interpreter = os.ExpandEnv(cfg.Python.Interpreter)
	cfg.Python.PydevdPath = os.ExpandEnv(cfg.Python.PydevdPath)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("mode", string(cfg.Mode))
	v.SetDefault("allow_spawn", cfg.AllowSpawn)
	v.SetDefault("allow_attach", cfg.AllowAttach)
	v.SetDefault("allow_modify", cfg.AllowModify)
	v.SetDefault("allow_execute", cfg.AllowExecute)
	v.SetDefault("max_sessions", cfg.MaxSessions)
	v.SetDefault("session_timeout", cfg.SessionTimeout)
	v.SetDefault("output_lines", cfg.OutputLines)
	v.SetDefault("protocol.response_timeout", cfg.Protocol.ResponseTimeout)
	v.SetDefault("protocol.connect_retries", cfg.Protocol.ConnectRetries)
	v.SetDefault("protocol.connect_delay", cfg.Protocol.ConnectDelay)
	v.SetDefault("protocol.accept_timeout", cfg.Protocol.AcceptTimeout)
	v.SetDefault("python.interpreter", cfg.Python.Interpreter)
	v.SetDefault("python.pydevd_path", cfg.Python.PydevdPath)
	v.SetDefault("python.multiprocess", cfg.Python.Multiprocess)
	v.SetDefault("python.min_version", cfg.Python.MinVersion)
	v.SetDefault("logging.level", cfg.Logging.Level)
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeReadOnly, ModeFull:
	default:
		return fmt.Errorf("unsupported mode %q (want %q or %q)", c.Mode, ModeReadOnly, ModeFull)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", c.MaxSessions)
	}
	if c.Protocol.ResponseTimeout <= 0 {
		return fmt.Errorf("protocol.response_timeout must be positive")
	}
	if c.Protocol.AcceptTimeout <= 0 {
		return fmt.Errorf("protocol.accept_timeout must be positive")
	}
	if c.Protocol.ConnectRetries < 0 {
		return fmt.Errorf("protocol.connect_retries must not be negative")
	}
	return nil
}

// Render returns the configuration as YAML.
func (c *Config) Render() ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteDefault writes the default config to path, or to DefaultConfigPath
// when path is empty, and returns the path written.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}
	data, err := DefaultConfig().Render()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// CanUseControlTools returns true if control tools are enabled
func (c *Config) CanUseControlTools() bool {
	return c.Mode == ModeFull
}

// CanSpawn returns true if launching Python programs is allowed
func (c *Config) CanSpawn() bool {
	return c.AllowSpawn
}

// CanAttach returns true if attaching to running interpreters is allowed
func (c *Config) CanAttach() bool {
	return c.AllowAttach
}

// CanModifyVariables returns true if variable modification is allowed
func (c *Config) CanModifyVariables() bool {
	return c.Mode == ModeFull && c.AllowModify
}

// CanEvaluate returns true if expression evaluation is allowed
func (c *Config) CanEvaluate() bool {
	return c.AllowExecute
}

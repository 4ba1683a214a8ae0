// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment is the deployment type.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Config is the console service configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Console ConsoleConfig `yaml:"console"`

	Log LogConfig `yaml:"log"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides holds the per-environment sections.
type ConfigOverrides struct {
	Console *ConsoleConfig `yaml:"console,omitempty"`
	Log     *LogConfig     `yaml:"log,omitempty"`
}

// ConsoleConfig locates the console endpoints and tunes the session
// protocol.
type ConsoleConfig struct {
	// RunDirectory holds the rendezvous, session, and control sockets.
	RunDirectory string `yaml:"run_directory"`

	// RendezvousName is the well-known pipe name clients negotiate on.
	// The socket is <RunDirectory>/<RendezvousName>.sock.
	RendezvousName string `yaml:"rendezvous_name"`

	// ControlSocket is the operator control socket path.
	ControlSocket string `yaml:"control_socket"`

	// SameUserOnly rejects rendezvous clients whose peer credentials
	// name a different uid than the service's.
	SameUserOnly bool `yaml:"same_user_only"`

	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig holds protocol timings as Go duration strings.
type TimeoutsConfig struct {
	// Byte is the per-byte read deadline during negotiation.
	Byte string `yaml:"byte"`

	// Connect bounds the wait for a client on its private endpoint.
	Connect string `yaml:"connect"`

	// Watchdog is the session liveness poll interval.
	Watchdog string `yaml:"watchdog"`

	// Restart is the backoff before restarting a failed negotiator.
	Restart string `yaml:"restart"`
}

// Timeouts is TimeoutsConfig parsed.
type Timeouts struct {
	Byte     time.Duration
	Connect  time.Duration
	Watchdog time.Duration
	Restart  time.Duration
}

// LogConfig selects the service log level and format.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is json or text.
	Format string `yaml:"format"`
}

// Default returns the development defaults.
func Default() *Config {
	return &Config{
		Environment: Development,
		Console: ConsoleConfig{
			RunDirectory:   "${XDG_RUNTIME_DIR:-/tmp}/bureau-console",
			RendezvousName: "console",
			ControlSocket:  "${RUN_DIRECTORY}/control.sock",
			Timeouts: TimeoutsConfig{
				Byte:     "500ms",
				Connect:  "10s",
				Watchdog: "250ms",
				Restart:  "1s",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads the file named by BUREAU_CONSOLE_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv("BUREAU_CONSOLE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("BUREAU_CONSOLE_CONFIG environment variable not set; " +
			"set it to the path of your console.yaml, or use --config")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path on top of Default.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.Expand()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &ConfigOverrides{
				Console: &ConsoleConfig{SameUserOnly: true},
			}
		}
	}
	if overrides == nil {
		return
	}

	if console := overrides.Console; console != nil {
		if console.RunDirectory != "" {
			c.Console.RunDirectory = console.RunDirectory
		}
		if console.RendezvousName != "" {
			c.Console.RendezvousName = console.RendezvousName
		}
		if console.ControlSocket != "" {
			c.Console.ControlSocket = console.ControlSocket
		}
		// SameUserOnly is a bool, so an override section always sets it.
		c.Console.SameUserOnly = console.SameUserOnly
		if console.Timeouts.Byte != "" {
			c.Console.Timeouts.Byte = console.Timeouts.Byte
		}
		if console.Timeouts.Connect != "" {
			c.Console.Timeouts.Connect = console.Timeouts.Connect
		}
		if console.Timeouts.Watchdog != "" {
			c.Console.Timeouts.Watchdog = console.Timeouts.Watchdog
		}
		if console.Timeouts.Restart != "" {
			c.Console.Timeouts.Restart = console.Timeouts.Restart
		}
	}

	if log := overrides.Log; log != nil {
		if log.Level != "" {
			c.Log.Level = log.Level
		}
		if log.Format != "" {
			c.Log.Format = log.Format
		}
	}
}

// Expand resolves variables in path fields. RunDirectory is expanded
// first so ControlSocket may refer to it as ${RUN_DIRECTORY}.
func (c *Config) Expand() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}
	c.Console.RunDirectory = expandVars(c.Console.RunDirectory, vars)
	vars["RUN_DIRECTORY"] = c.Console.RunDirectory
	c.Console.ControlSocket = expandVars(c.Console.ControlSocket, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return parts[2]
	})
}

// ParseTimeouts converts the duration strings. Every value must be
// positive.
func (c *Config) ParseTimeouts() (Timeouts, error) {
	var (
		timeouts Timeouts
		errs     []error
	)
	fields := []struct {
		name  string
		value string
		into  *time.Duration
	}{
		{"console.timeouts.byte", c.Console.Timeouts.Byte, &timeouts.Byte},
		{"console.timeouts.connect", c.Console.Timeouts.Connect, &timeouts.Connect},
		{"console.timeouts.watchdog", c.Console.Timeouts.Watchdog, &timeouts.Watchdog},
		{"console.timeouts.restart", c.Console.Timeouts.Restart, &timeouts.Restart},
	}
	for _, field := range fields {
		parsed, err := time.ParseDuration(field.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field.name, err))
			continue
		}
		if parsed <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", field.name, field.value))
			continue
		}
		*field.into = parsed
	}
	return timeouts, errors.Join(errs...)
}

// LogLevel returns the slog level named by Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// RendezvousPath is the rendezvous socket path.
func (c *Config) RendezvousPath() string {
	return filepath.Join(c.Console.RunDirectory, c.Console.RendezvousName+".sock")
}

// ReservedPipeNames lists pipe names a session must not take because
// another socket of this service already lives at that path in the run
// directory. Today that is the control socket, when it sits there.
func (c *Config) ReservedPipeNames() []string {
	directory, base := filepath.Split(c.Console.ControlSocket)
	if filepath.Clean(directory) != filepath.Clean(c.Console.RunDirectory) {
		return nil
	}
	name, ok := strings.CutSuffix(base, ".sock")
	if !ok || name == "" {
		return nil
	}
	return []string{name}
}

// Validate reports every configuration error at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Console.RunDirectory == "" {
		errs = append(errs, fmt.Errorf("console.run_directory is required"))
	} else if !filepath.IsAbs(c.Console.RunDirectory) {
		errs = append(errs, fmt.Errorf("console.run_directory must be absolute, got %q", c.Console.RunDirectory))
	}
	if c.Console.RendezvousName == "" {
		errs = append(errs, fmt.Errorf("console.rendezvous_name is required"))
	}
	if c.Console.ControlSocket == "" {
		errs = append(errs, fmt.Errorf("console.control_socket is required"))
	}
	if _, err := c.ParseTimeouts(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// EnsureRunDirectory creates the run directory with mode 0700.
func (c *Config) EnsureRunDirectory() error {
	if err := os.MkdirAll(c.Console.RunDirectory, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Console.RunDirectory, err)
	}
	return nil
}

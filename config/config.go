// Package config loads the client's YAML configuration file.
//
// The file is optional. Its path comes from the --config flag or the
// PLAYPALACE_CONFIG environment variable; values it does not set keep
// their defaults. ${VAR} and ${VAR:-default} references in data_dir are
// expanded against the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chrisnestrud/PlayPalace11/packet"
	"github.com/chrisnestrud/PlayPalace11/session"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "PLAYPALACE_CONFIG"

const (
	profileFile = "profile.db"
	keyFile     = "master.key"
)

// Config is the client configuration.
type Config struct {
	DataDir          string                 `yaml:"data_dir"`
	LogLevel         string                 `yaml:"log_level"`
	LogFormat        string                 `yaml:"log_format"`
	DebugPackets     bool                   `yaml:"debug_packets"`
	AuthorizeTimeout time.Duration          `yaml:"authorize_timeout"`
	JoinTimeout      time.Duration          `yaml:"join_timeout"`
	ProtocolVersion  packet.ProtocolVersion `yaml:"protocol_version"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	dataDir := filepath.Join(".", ".playpalace")
	if dir, err := os.UserConfigDir(); err == nil {
		dataDir = filepath.Join(dir, "playpalace")
	}
	return &Config{
		DataDir:          dataDir,
		LogLevel:         "warn",
		LogFormat:        "json",
		AuthorizeTimeout: session.DefaultAuthorizeTimeout,
		JoinTimeout:      session.DefaultJoinTimeout,
		ProtocolVersion:  packet.DefaultProtocolVersion,
	}
}

// Load reads the file at path, falling back to $PLAYPALACE_CONFIG. With
// neither set it returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	return LoadFile(path)
}

// LoadFile reads and validates the file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.DataDir = expandVars(cfg.DataDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.AuthorizeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("authorize_timeout must be positive, got %s", c.AuthorizeTimeout))
	}
	if c.JoinTimeout <= 0 {
		errs = append(errs, fmt.Errorf("join_timeout must be positive, got %s", c.JoinTimeout))
	}
	v := c.ProtocolVersion
	if v.Major < 0 || v.Minor < 0 || v.Patch < 0 {
		errs = append(errs, fmt.Errorf("protocol_version must not be negative, got %s", v))
	}
	return errors.Join(errs...)
}

// ProfilePath is the bbolt file holding servers, identities and pins.
func (c *Config) ProfilePath() string { return filepath.Join(c.DataDir, profileFile) }

// KeyPath is the profile master key file.
func (c *Config) KeyPath() string { return filepath.Join(c.DataDir, keyFile) }

// Logger builds a slog.Logger writing to w in the configured format.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

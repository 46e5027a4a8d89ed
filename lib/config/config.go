// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/iostream/lib/ingest"
	"github.com/bureau-foundation/iostream/lib/logging"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "IOSTREAM_CONFIG"

// Config is the complete iostreamd configuration.
type Config struct {
	// Listen is the HOST:PORT the HTTP/WebSocket server binds.
	// Default: 0.0.0.0:9093
	Listen string `yaml:"listen" json:"listen"`

	// IotopPath is the upstream executable. A bare name is resolved
	// through PATH; ${VAR} references are expanded.
	// Default: iotop
	IotopPath string `yaml:"iotop_path" json:"iotop_path"`

	// Window is the retention window in seconds.
	// Default: 900
	Window int64 `yaml:"interval" json:"interval"`

	// OnParseError is "fatal" (stop the daemon on the first malformed
	// line) or "skip" (log it and continue).
	// Default: fatal
	OnParseError string `yaml:"on_parse_error" json:"on_parse_error"`

	// LogLevel is debug, info, warn, or error.
	// Default: info
	LogLevel string `yaml:"log_level" json:"log_level"`

	// PingInterval is how often idle subscribers are pinged.
	// Default: 30s
	PingInterval Duration `yaml:"ping_interval" json:"ping_interval"`

	// WriteTimeout bounds each message write to a subscriber; a
	// client that cannot accept a frame in this time is dropped.
	// Default: 10s
	WriteTimeout Duration `yaml:"write_timeout" json:"write_timeout"`
}

// Duration is a time.Duration written as a Go duration string
// ("30s", "1m30s") in config files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler, which both
// encoding/json and yaml.v3 use for string values.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:       "0.0.0.0:9093",
		IotopPath:    "iotop",
		Window:       900,
		OnParseError: string(ingest.PolicyFatal),
		LogLevel:     "info",
		PingInterval: Duration(30 * time.Second),
		WriteTimeout: Duration(10 * time.Second),
	}
}

// Load reads the file named by IOSTREAM_CONFIG over the defaults, or
// returns the defaults unchanged when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults and expands ${VAR} references
// in IotopPath.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	cfg.IotopPath = expandVars(cfg.IotopPath)
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		return decoder.Decode(c)
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		err := decoder.Decode(c)
		if errors.Is(err, io.EOF) {
			// An empty file leaves the defaults in place.
			return nil
		}
		return err
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default} with environment
// values.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks every field and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error

	if _, port, err := net.SplitHostPort(c.Listen); err != nil {
		errs = append(errs, fmt.Errorf("listen %q is not HOST:PORT: %w", c.Listen, err))
	} else if port == "" {
		errs = append(errs, fmt.Errorf("listen %q has no port", c.Listen))
	}

	if c.IotopPath == "" {
		errs = append(errs, errors.New("iotop_path is required"))
	}

	if c.Window < 0 {
		errs = append(errs, fmt.Errorf("interval must not be negative, got %d", c.Window))
	}

	if _, err := ingest.ParseErrorPolicy(c.OnParseError); err != nil {
		errs = append(errs, err)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if c.PingInterval <= 0 {
		errs = append(errs, fmt.Errorf("ping_interval must be positive, got %s", c.PingInterval.Std()))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("write_timeout must be positive, got %s", c.WriteTimeout.Std()))
	}

	return errors.Join(errs...)
}

// ResolveIotopPath returns the absolute path of the upstream
// executable, searching PATH for bare names.
func (c *Config) ResolveIotopPath() (string, error) {
	path, err := exec.LookPath(c.IotopPath)
	if err != nil {
		return "", fmt.Errorf("upstream executable %q: %w", c.IotopPath, err)
	}
	return path, nil
}

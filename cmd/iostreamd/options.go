// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/iostream/lib/config"
	"github.com/bureau-foundation/iostream/lib/version"
)

const programName = "iostreamd"

// errExit stops run without an error after --help or --version.
var errExit = errors.New("exit requested")

// parseOptions builds the effective configuration: defaults, then the
// config file (--config or IOSTREAM_CONFIG), then flags the user set.
func parseOptions(args []string, output io.Writer, getenv func(string) string) (*config.Config, error) {
	defaults := config.Default()

	var (
		configPath   string
		listen       string
		iotopPath    string
		window       int64
		onParseError string
		logLevel     string
		pingInterval time.Duration
		writeTimeout time.Duration
		showVersion  bool
		showHelp     bool
	)

	flagSet := pflag.NewFlagSet(programName, pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.StringVarP(&listen, "listen", "l", defaults.Listen, "HOST:PORT to serve the stream on")
	flagSet.StringVarP(&iotopPath, "path", "p", defaults.IotopPath, "iotop executable (looked up in PATH)")
	flagSet.Int64VarP(&window, "interval", "i", defaults.Window, "retention window in seconds")
	flagSet.StringVar(&onParseError, "on-parse-error", defaults.OnParseError, "on an unparseable iotop line: fatal or skip")
	flagSet.StringVar(&configPath, "config", "", "YAML or JSONC config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&logLevel, "log-level", defaults.LogLevel, "debug, info, warn, or error")
	flagSet.DurationVar(&pingInterval, "ping-interval", defaults.PingInterval.Std(), "keepalive ping period for subscribers")
	flagSet.DurationVar(&writeTimeout, "write-timeout", defaults.WriteTimeout.Std(), "drop a subscriber that cannot take a frame in this time")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&showHelp, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(output, flagSet)
			return nil, errExit
		}
		return nil, err
	}
	if showHelp {
		printHelp(output, flagSet)
		return nil, errExit
	}
	if showVersion {
		version.Print(output, programName)
		return nil, errExit
	}
	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	if configPath == "" {
		configPath = getenv(config.EnvironmentVariable)
	}
	cfg := defaults
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flagSet.Changed("listen") {
		cfg.Listen = listen
	}
	if flagSet.Changed("path") {
		cfg.IotopPath = iotopPath
	}
	if flagSet.Changed("interval") {
		cfg.Window = window
	}
	if flagSet.Changed("on-parse-error") {
		cfg.OnParseError = onParseError
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flagSet.Changed("ping-interval") {
		cfg.PingInterval = config.Duration(pingInterval)
	}
	if flagSet.Changed("write-timeout") {
		cfg.WriteTimeout = config.Duration(writeTimeout)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func printHelp(output io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(output, `iostreamd streams per-thread disk I/O from iotop to WebSocket subscribers.

New subscribers receive the retained history (the last --interval
seconds), then every new sample as iotop reports it.

Usage:
  iostreamd [flags]

Examples:
  # Serve on the default address with a 15 minute window
  iostreamd

  # Keep one hour of history and tolerate odd iotop output
  iostreamd --interval 3600 --on-parse-error skip

  # Use a config file, overriding its listen address
  iostreamd --config /etc/iostream.yaml -l 127.0.0.1:9093

Flags:
`)
	flagSet.SetOutput(output)
	flagSet.PrintDefaults()
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/iostream/lib/process"
	"github.com/bureau-foundation/iostream/lib/stream"
	"github.com/bureau-foundation/iostream/lib/streamclient"
	"github.com/bureau-foundation/iostream/lib/version"
)

const programName = "iostream-top"

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(programName, err)
	}
}

func run(args []string) error {
	var (
		url         string
		window      int64
		rows        int
		binary      bool
		showVersion bool
		showHelp    bool
	)

	flagSet := pflag.NewFlagSet(programName, pflag.ContinueOnError)
	flagSet.StringVar(&url, "url", "ws://127.0.0.1:9093/", "iostreamd stream URL")
	flagSet.Int64Var(&window, "window", 10, "show threads seen within this many seconds of the newest sample")
	flagSet.IntVar(&rows, "rows", 0, "maximum rows to show (0: fit the terminal)")
	flagSet.BoolVar(&binary, "cbor", false, "request the CBOR subprotocol")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&showHelp, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(os.Stderr, flagSet)
			return nil
		}
		return err
	}
	if showHelp {
		printHelp(os.Stderr, flagSet)
		return nil
	}
	if showVersion {
		version.Print(os.Stdout, programName)
		return nil
	}
	if window < 0 {
		return fmt.Errorf("--window must not be negative, got %d", window)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subprotocol := stream.SubprotocolJSON
	if binary {
		subprotocol = stream.SubprotocolCBOR
	}
	client, err := streamclient.Dial(ctx, streamclient.Config{URL: url, Subprotocol: subprotocol})
	if err != nil {
		return err
	}
	defer client.Close()

	events := make(chan streamEvent, 256)
	go pump(ctx, client, events)

	program := tea.NewProgram(newModel(url, events, window, rows), tea.WithAltScreen())
	_, err = program.Run()
	return err
}

// pump forwards samples until the stream fails or ctx ends. The
// channel is closed on exit.
func pump(ctx context.Context, client *streamclient.Client, events chan<- streamEvent) {
	defer close(events)
	for {
		sample, err := client.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				events <- streamEvent{err: err}
			}
			return
		}
		select {
		case events <- streamEvent{sample: sample}:
		case <-ctx.Done():
			return
		}
	}
}

func printHelp(output io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(output, `iostream-top shows live per-thread disk I/O from an iostreamd server.

Usage:
  iostream-top [flags]

Examples:
  # Watch the local daemon
  iostream-top

  # Watch a remote daemon, keeping threads for a minute
  iostream-top --url ws://storage-01:9093/ --window 60

Flags:
`)
	flagSet.SetOutput(output)
	flagSet.PrintDefaults()
}

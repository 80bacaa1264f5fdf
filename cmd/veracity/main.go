// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command veracity runs compliance assessments against target systems.
//
// Usage:
//
//	veracity assess --framework soc2 --target acme-prod
//	veracity assess --framework iso27001 --target acme-prod --depth comprehensive --compare
//	veracity runs --target acme-prod
//	veracity serve --config /etc/veracity/assess.yaml
//
// The assess command runs one assessment in the foreground with a
// progress display. The serve command starts the HTTP API, exposing the
// same engine at /v1/assess.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// version is stamped by the build via -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	debugMode  bool
)

func main() {
	root := &cobra.Command{
		Use:          "veracity",
		Short:        "Automated compliance assessment",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML config file")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	root.AddCommand(newAssessCommand())
	root.AddCommand(newRunsCommand())
	root.AddCommand(newServeCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging configures the global slog handler. Interactive
// terminals get human-readable text; everything else gets JSON for log
// shippers.
func setupLogging() {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

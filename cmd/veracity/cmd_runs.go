// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/VeracityAI/VeracityFOSS/services/assess"
	"github.com/VeracityAI/VeracityFOSS/services/assess/config"
)

var (
	runsTarget string
	runsLimit  int
	runsJSON   bool
)

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored assessment runs",
		RunE:  runRuns,
	}
	cmd.Flags().StringVar(&runsTarget, "target", "", "Filter by target system")
	cmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to show")
	cmd.Flags().BoolVar(&runsJSON, "json", false, "Print records as JSON")
	return cmd
}

func runRuns(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	svc, err := assess.NewService(cmd.Context(), assess.ServiceOptions{Config: cfg})
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Shutdown(); err != nil {
			slog.Warn("Service shutdown failed", slog.String("error", err.Error()))
		}
	}()

	recs, err := svc.ListRuns(cmd.Context(), runsTarget, runsLimit)
	if err != nil {
		return err
	}

	if runsJSON {
		out, err := json.MarshalIndent(recs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	if len(recs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Printf("%-36s  %-10s  %-20s  %-10s  %-5s  %s\n",
		"RUN", "FRAMEWORK", "TARGET", "STATUS", "GAPS", "CREATED")
	for _, rec := range recs {
		gaps := "-"
		if rec.Report != nil {
			gaps = fmt.Sprintf("%d", len(rec.Report.Gaps))
		}
		fmt.Printf("%-36s  %-10s  %-20s  %-10s  %-5s  %s\n",
			rec.ID, rec.Framework, rec.Target, rec.Status, gaps,
			rec.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

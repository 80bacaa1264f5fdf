// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phases

import (
	"context"
	"time"

	"github.com/VeracityAI/VeracityFOSS/services/assess/agent"
	"github.com/VeracityAI/VeracityFOSS/services/assess/graph"
	"github.com/VeracityAI/VeracityFOSS/services/assess/progress"
	"github.com/VeracityAI/VeracityFOSS/services/assess/scan"
)

// Dependencies are the collaborators one orchestrator run needs.
// Reasoner and Tools are required; everything else degrades gracefully
// when absent.
type Dependencies struct {
	Reasoner agent.Reasoner
	Tools    agent.ToolClient

	// Memory is advisory. When nil, recalls return nothing and
	// remembers are discarded.
	Memory agent.MemoryStore

	// Reporter may be nil; progress is then discarded.
	Reporter *progress.Reporter

	// Executor defaults to one built over Tools with the Reporter.
	Executor *scan.Executor

	// Credentials are handed to Tools.Connect for the run's target.
	Credentials agent.Credentials

	// Scan tunes the extraction phase; zero values use scan defaults.
	Scan scan.Options

	// now is injected by tests; defaults to time.Now.
	now func() time.Time
}

func (d Dependencies) validate() error {
	if d.Reasoner == nil {
		return &graph.ConfigurationError{Msg: "orchestrator requires a Reasoner"}
	}
	if d.Tools == nil {
		return &graph.ConfigurationError{Msg: "orchestrator requires a ToolClient"}
	}
	return nil
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Reporter == nil {
		d.Reporter = progress.NewReporter()
	}
	if d.Memory == nil {
		d.Memory = noopMemory{}
	}
	if d.Executor == nil {
		d.Executor = scan.NewExecutor(d.Tools, d.Reporter, nil)
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// noopMemory satisfies the advisory contract with nothing behind it.
type noopMemory struct{}

func (noopMemory) Remember(context.Context, string, string, []string) string { return "" }

func (noopMemory) Recall(context.Context, string, agent.RecallFilters, int) []agent.MemoryHit {
	return nil
}

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
	"fmt"
	"log/slog"
	"strings"

	"github.com/VeracityAI/VeracityFOSS/services/assess/graph"
)

// reportPhase assembles the terminal artifact. Assembly is local and
// deterministic; only the executive summary asks the reasoner, and a
// failed inference falls back to a computed summary rather than a
// phase failure.
func (o *Orchestrator) reportPhase(ctx context.Context, s graph.State) (graph.Partial, error) {
	framework := stateString(s, ChFramework)
	target := stateString(s, ChTarget)
	reqs := stateRequirements(s)
	gaps := stateGaps(s)
	remediations := stateRemediations(s)

	report := &Report{
		Framework:        framework,
		FrameworkVersion: stateFrameworkVersion(s),
		Target:           target,
		GeneratedAt:      o.deps.now(),
		Requirements:     reqs,
		Gaps:             gaps,
		Remediations:     remediations,
	}
	report.Summary = o.summarize(ctx, s, report)

	// Advisory: a lost memory write never affects the run.
	o.deps.Memory.Remember(ctx, report.Summary, "assessment",
		[]string{framework, target})

	return graph.Partial{ChReport: report}, nil
}

func (o *Orchestrator) summarize(ctx context.Context, s graph.State, report *Report) string {
	computed := fmt.Sprintf(
		"%s assessment of %s: %d requirements evaluated, %d gaps found, %d remediations proposed.",
		report.Framework, report.Target,
		len(report.Requirements), len(report.Gaps), len(report.Remediations))

	var b strings.Builder
	fmt.Fprintf(&b, "Framework: %s\nTarget: %s\n", report.Framework, report.Target)
	if a := stateAnalysis(s); a != nil {
		promptSection(&b, "Observations", a.Observations)
	}
	promptSection(&b, "Gaps", gapLines(report.Gaps))

	summary, err := o.deps.Reasoner.Infer(ctx, systemReporter, b.String(), false)
	if err != nil || strings.TrimSpace(summary) == "" {
		if err != nil {
			slog.Warn("Summary inference failed, using computed summary",
				slog.String("error", err.Error()),
			)
		}
		return computed
	}
	return strings.TrimSpace(summary)
}

// stateFrameworkVersion reads the framework version from the data bag,
// where the entry point stashed it.
func stateFrameworkVersion(s graph.State) string {
	data, _ := s[ChData].(map[string]any)
	v, _ := data["framework_version"].(string)
	return v
}

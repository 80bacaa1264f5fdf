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
	"fmt"
	"time"

	"github.com/VeracityAI/VeracityFOSS/services/assess/scan"
)

// Fallback synthesis: deterministic, pure functions keyed by the
// framework name. Each one bottoms out in a non-empty minimal record,
// which is what guarantees forward progress — every phase after a
// successful plan always has a non-empty required input, genuine or
// synthesized. Calling any synthesizer twice with the same key yields
// structurally identical output (replay and debugging depend on this),
// so no clocks, counters, or randomness in here except the report
// timestamp, which is injected by the caller.

// baselineRequirements is the hard-coded minimal control set per
// framework. Unknown frameworks get the generic bottom record.
var baselineRequirements = map[string][]Requirement{
	"soc2": {
		{ID: "CC6.1", Control: "Logical access", Description: "Access to systems is restricted to authorized users", Severity: "high"},
		{ID: "CC7.2", Control: "Monitoring", Description: "Anomalies are detected and analyzed", Severity: "medium"},
		{ID: "CC8.1", Control: "Change management", Description: "Changes are authorized, tested, and approved", Severity: "high"},
	},
	"iso27001": {
		{ID: "A.5.15", Control: "Access control", Description: "Rules to control access to information are established", Severity: "high"},
		{ID: "A.8.8", Control: "Vulnerability management", Description: "Technical vulnerabilities are identified and addressed", Severity: "high"},
		{ID: "A.5.23", Control: "Cloud services", Description: "Use of cloud services is governed", Severity: "medium"},
	},
	"gdpr": {
		{ID: "Art.32", Control: "Security of processing", Description: "Appropriate technical measures protect personal data", Severity: "high"},
		{ID: "Art.30", Control: "Records of processing", Description: "Processing activities are documented", Severity: "medium"},
	},
	"hipaa": {
		{ID: "164.312(a)", Control: "Access control", Description: "Technical policies limit ePHI access", Severity: "high"},
		{ID: "164.312(b)", Control: "Audit controls", Description: "Activity in systems with ePHI is recorded", Severity: "high"},
	},
	"pci-dss": {
		{ID: "Req.7", Control: "Need to know", Description: "Access to cardholder data is restricted by business need", Severity: "high"},
		{ID: "Req.10", Control: "Logging", Description: "All access to system components is logged", Severity: "high"},
	},
}

// genericRequirement is the bottom record: every fallback chain ends
// in something, even for a framework nobody taught us about.
func genericRequirement(framework string) Requirement {
	return Requirement{
		ID:          "BASE-1",
		Control:     "Baseline security review",
		Description: fmt.Sprintf("Manual baseline review required for framework %q", framework),
		Severity:    "medium",
	}
}

// FallbackRequirements returns the minimal control set for a framework.
func FallbackRequirements(framework string) []Requirement {
	if reqs, ok := baselineRequirements[framework]; ok {
		out := make([]Requirement, len(reqs))
		copy(out, reqs)
		return out
	}
	return []Requirement{genericRequirement(framework)}
}

// FallbackPlan synthesizes a minimal scan plan: one conservative
// read-only task per capability family plus the framework's baseline
// objectives.
func FallbackPlan(framework, target string) *Plan {
	return &Plan{
		Framework: framework,
		Target:    target,
		Objectives: []string{
			fmt.Sprintf("establish a %s evidence baseline for %s", framework, target),
		},
		Tasks: []scan.Task{
			{ID: "fallback-repo", ToolName: "repo_list_repositories", Purpose: "inventory repositories"},
			{ID: "fallback-cloud", ToolName: "cloud_list_resources", Purpose: "inventory cloud resources"},
			{ID: "fallback-ticket", ToolName: "ticket_search", Purpose: "locate compliance tickets",
				Parameters: map[string]any{"query": framework}},
		},
		Synthetic: true,
	}
}

// FallbackEvidence is the single bottom evidence record for a run where
// extraction produced nothing usable.
func FallbackEvidence(framework, target string) []scan.Evidence {
	return []scan.Evidence{{
		Capability: "none",
		Family:     scan.FamilyGeneric,
		Summary:    fmt.Sprintf("no evidence could be extracted from %s", target),
		Attributes: map[string]any{"framework": framework, "synthetic": true},
	}}
}

// FallbackAnalysis synthesizes the minimal analysis.
func FallbackAnalysis(framework string) *Analysis {
	return &Analysis{
		Framework: framework,
		Observations: []string{
			"no usable evidence was extracted; analysis proceeds from framework baseline",
		},
		RiskAreas: []string{fmt.Sprintf("%s controls unverified", framework)},
		Synthetic: true,
	}
}

// FallbackGaps marks every baseline requirement as an open gap. With
// no evidence to the contrary, unverified is treated as unmet.
func FallbackGaps(framework string) []Gap {
	reqs := FallbackRequirements(framework)
	gaps := make([]Gap, 0, len(reqs))
	for _, r := range reqs {
		gaps = append(gaps, Gap{
			RequirementID: r.ID,
			Severity:      r.Severity,
			Description:   fmt.Sprintf("no evidence found for %s (%s)", r.ID, r.Control),
		})
	}
	return gaps
}

// FallbackRemediations proposes the generic remediation per gap.
func FallbackRemediations(framework string) []Remediation {
	gaps := FallbackGaps(framework)
	out := make([]Remediation, 0, len(gaps))
	for _, g := range gaps {
		out = append(out, Remediation{
			RequirementID: g.RequirementID,
			Action:        fmt.Sprintf("collect and attach evidence for %s", g.RequirementID),
		})
	}
	return out
}

// FallbackReport assembles the minimal report from the other
// synthesizers. generatedAt is injected so the function stays pure.
func FallbackReport(framework, target string, generatedAt time.Time) *Report {
	return &Report{
		Framework:    framework,
		Target:       target,
		GeneratedAt:  generatedAt,
		Summary:      fmt.Sprintf("Synthetic %s baseline report for %s: no phase output was available.", framework, target),
		Requirements: FallbackRequirements(framework),
		Gaps:         FallbackGaps(framework),
		Remediations: FallbackRemediations(framework),
		Synthetic:    true,
	}
}

// FallbackComparison is used when no previous report exists or the
// comparison itself produced nothing.
func FallbackComparison() *Comparison {
	return &Comparison{
		Summary: "no previous report available; nothing to compare",
	}
}

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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/VeracityAI/VeracityFOSS/services/assess/agent"
	"github.com/VeracityAI/VeracityFOSS/services/assess/scan"
)

// System prompts per reasoning phase. Each instructs the model to reply
// with a single JSON object matching the phase's reply struct; the
// reasoner layer strips fences and rejects non-JSON when expectJSON is
// set, so decoding here can assume the payload at least parses.
const (
	systemPlanner = `You are a compliance assessment planner. Given a framework, a target
system, and the tool capabilities available on that target, produce a scan plan.
Reply with one JSON object: {"objectives": [string], "tasks": [{"id": string,
"tool_name": string, "purpose": string, "parameters": object}]}. Only use
tool names from the provided capability list. Prefer read-only inventory
capabilities first.`

	systemAnalyst = `You are a compliance analyst. Given a framework and normalized
evidence records, summarize what the evidence shows and where the risk
concentrates. Reply with one JSON object:
{"observations": [string], "risk_areas": [string]}.`

	systemAuditor = `You are a compliance auditor. Given a framework and an analysis of a
target system, enumerate the concrete requirements the framework imposes that
are relevant to this target. Reply with one JSON object:
{"requirements": [{"id": string, "control": string, "description": string,
"severity": "low"|"medium"|"high"}]}.`

	systemGapAnalyst = `You are a compliance gap analyst. Given requirements and evidence,
identify which requirements the evidence fails to satisfy. Cite the evidence
summaries you relied on. Reply with one JSON object:
{"gaps": [{"requirement_id": string, "severity": "low"|"medium"|"high",
"description": string, "evidence": [string]}]}.`

	systemRemediator = `You are a remediation engineer. For each compliance gap, propose a
concrete corrective action. When the fix is a configuration or code change,
include it as a unified diff in the patch field. Reply with one JSON object:
{"remediations": [{"requirement_id": string, "action": string, "patch": string}]}.`

	systemReporter = `You are a compliance report writer. Given the full assessment state,
write a short executive summary (3-5 sentences, plain prose, no markdown).
Reply with the summary text only.`
)

// decodeReply unmarshals a reasoner reply into the phase's reply struct,
// wrapping parse failures in ErrReasoningMalformed so callers can treat
// them uniformly as recoverable.
func decodeReply[T any](raw string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, fmt.Errorf("%w: %v", agent.ErrReasoningMalformed, err)
	}
	return v, nil
}

// promptSection renders one labeled block of a user prompt.
func promptSection(b *strings.Builder, label string, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.WriteString(label)
	b.WriteString(":\n")
	for _, l := range lines {
		b.WriteString("  - ")
		b.WriteString(l)
		b.WriteByte('\n')
	}
}

// evidenceLines renders evidence for inclusion in a prompt, capped so a
// large extraction cannot blow the context window.
func evidenceLines(evidence []scan.Evidence, limit int) []string {
	if len(evidence) > limit {
		evidence = evidence[:limit]
	}
	out := make([]string, 0, len(evidence))
	for _, ev := range evidence {
		out = append(out, fmt.Sprintf("[%s/%s] %s", ev.Family, ev.Capability, ev.Summary))
	}
	return out
}

// memoryLines renders recalled memory hits for a prompt.
func memoryLines(hits []agent.MemoryHit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Text)
	}
	return out
}

func requirementLines(reqs []Requirement) []string {
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, fmt.Sprintf("%s (%s, %s): %s", r.ID, r.Control, r.Severity, r.Description))
	}
	return out
}

func gapLines(gaps []Gap) []string {
	out := make([]string, 0, len(gaps))
	for _, g := range gaps {
		out = append(out, fmt.Sprintf("%s (%s): %s", g.RequirementID, g.Severity, g.Description))
	}
	return out
}

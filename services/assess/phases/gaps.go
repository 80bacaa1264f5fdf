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
	"errors"
	"fmt"
	"strings"

	"github.com/VeracityAI/VeracityFOSS/services/assess/graph"
)

type gapsReply struct {
	Gaps []Gap `json:"gaps"`
}

// gapDetectPhase cross-references requirements with evidence. A clean
// bill of health is not a usable output here: an assessment that found
// nothing to say gets the fallback gap set rather than an empty list,
// so the distinction between "verified compliant" and "could not
// verify" stays visible in the report.
func (o *Orchestrator) gapDetectPhase(ctx context.Context, s graph.State) (graph.Partial, error) {
	framework := stateString(s, ChFramework)
	reqs := stateRequirements(s)
	if len(reqs) == 0 {
		return nil, errors.New("no requirements in state")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Framework: %s\n", framework)
	promptSection(&b, "Requirements", requirementLines(reqs))
	promptSection(&b, "Evidence", evidenceLines(stateEvidence(s), promptEvidenceLimit))

	raw, err := o.deps.Reasoner.Infer(ctx, systemGapAnalyst, b.String(), true)
	if err != nil {
		return nil, err
	}
	reply, err := decodeReply[gapsReply](raw)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(reqs))
	for _, r := range reqs {
		known[r.ID] = struct{}{}
	}
	gaps := make([]Gap, 0, len(reply.Gaps))
	for _, g := range reply.Gaps {
		if _, ok := known[g.RequirementID]; !ok {
			// The analyst invented a requirement; drop the gap.
			continue
		}
		if g.Severity == "" {
			g.Severity = "medium"
		}
		gaps = append(gaps, g)
	}
	if len(gaps) == 0 {
		return nil, errors.New("gap analysis returned nothing attributable")
	}
	return graph.Partial{ChGaps: gaps}, nil
}

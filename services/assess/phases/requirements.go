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

type requirementsReply struct {
	Requirements []Requirement `json:"requirements"`
}

func (o *Orchestrator) requirementsPhase(ctx context.Context, s graph.State) (graph.Partial, error) {
	framework := stateString(s, ChFramework)
	analysis := stateAnalysis(s)
	if analysis == nil {
		return nil, errors.New("no analysis in state")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Framework: %s\n", framework)
	promptSection(&b, "Observations", analysis.Observations)
	promptSection(&b, "Risk areas", analysis.RiskAreas)

	raw, err := o.deps.Reasoner.Infer(ctx, systemAuditor, b.String(), true)
	if err != nil {
		return nil, err
	}
	reply, err := decodeReply[requirementsReply](raw)
	if err != nil {
		return nil, err
	}

	reqs := sanitizeRequirements(reply.Requirements)
	if len(reqs) == 0 {
		return nil, errors.New("auditor returned no requirements")
	}
	return graph.Partial{ChRequirements: reqs}, nil
}

// sanitizeRequirements drops records with no ID and fills missing
// severities with medium so downstream sorting never sees an empty key.
func sanitizeRequirements(reqs []Requirement) []Requirement {
	out := make([]Requirement, 0, len(reqs))
	for _, r := range reqs {
		if r.ID == "" {
			continue
		}
		if r.Severity == "" {
			r.Severity = "medium"
		}
		out = append(out, r)
	}
	return out
}

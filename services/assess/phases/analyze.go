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

// Cap on how many evidence records make it into a prompt.
const promptEvidenceLimit = 40

type analysisReply struct {
	Observations []string `json:"observations"`
	RiskAreas    []string `json:"risk_areas"`
}

func (o *Orchestrator) analyzePhase(ctx context.Context, s graph.State) (graph.Partial, error) {
	framework := stateString(s, ChFramework)
	evidence := stateEvidence(s)

	var b strings.Builder
	fmt.Fprintf(&b, "Framework: %s\n", framework)
	promptSection(&b, "Evidence", evidenceLines(evidence, promptEvidenceLimit))

	raw, err := o.deps.Reasoner.Infer(ctx, systemAnalyst, b.String(), true)
	if err != nil {
		return nil, err
	}
	reply, err := decodeReply[analysisReply](raw)
	if err != nil {
		return nil, err
	}
	if len(reply.Observations) == 0 {
		return nil, errors.New("analyst returned no observations")
	}

	return graph.Partial{ChAnalysis: &Analysis{
		Framework:    framework,
		Observations: reply.Observations,
		RiskAreas:    reply.RiskAreas,
	}}, nil
}

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
	"log/slog"
	"strings"

	"github.com/VeracityAI/VeracityFOSS/services/assess/agent"
	"github.com/VeracityAI/VeracityFOSS/services/assess/graph"
	"github.com/VeracityAI/VeracityFOSS/services/assess/scan"
)

type planReply struct {
	Objectives []string    `json:"objectives"`
	Tasks      []scan.Task `json:"tasks"`
}

// planPhase asks the reasoner for a scan plan over the target's
// advertised capabilities. Capability discovery failing is not fatal
// here: the plan is produced blind and the executor's validation drops
// anything the target does not actually advertise.
func (o *Orchestrator) planPhase(ctx context.Context, s graph.State) (graph.Partial, error) {
	framework := stateString(s, ChFramework)
	target := stateString(s, ChTarget)

	caps, err := o.listCapabilities(ctx, target)
	if err != nil {
		slog.Warn("Capability discovery failed, planning blind",
			slog.String("target", target),
			slog.String("error", err.Error()),
		)
	}

	hints := o.deps.Memory.Recall(ctx, framework+" "+target,
		agent.RecallFilters{Category: "assessment"}, 3)

	var b strings.Builder
	fmt.Fprintf(&b, "Framework: %s\nTarget: %s\n", framework, target)
	promptSection(&b, "Available capabilities", caps)
	promptSection(&b, "Findings from previous assessments", memoryLines(hints))

	raw, err := o.deps.Reasoner.Infer(ctx, systemPlanner, b.String(), true)
	if err != nil {
		return nil, err
	}
	reply, err := decodeReply[planReply](raw)
	if err != nil {
		return nil, err
	}
	if len(reply.Tasks) == 0 {
		return nil, errors.New("planner returned no tasks")
	}
	for i := range reply.Tasks {
		if reply.Tasks[i].ID == "" {
			reply.Tasks[i].ID = fmt.Sprintf("task-%d", i+1)
		}
	}

	plan := &Plan{
		Framework:  framework,
		Target:     target,
		Objectives: reply.Objectives,
		Tasks:      reply.Tasks,
	}
	return graph.Partial{
		ChPlan: plan,
		ChData: map[string]any{"capabilities": caps},
	}, nil
}

// listCapabilities dials the target once just to read its capability
// advertisement, then closes the session.
func (o *Orchestrator) listCapabilities(ctx context.Context, target string) ([]string, error) {
	session, err := o.deps.Tools.Connect(ctx, target, o.deps.Credentials)
	if err != nil {
		return nil, err
	}
	defer session.Close()
	return o.deps.Tools.ListCapabilities(ctx, session)
}

// stateCapabilities reads the capability list the plan phase stashed in
// the data bag.
func stateCapabilities(s graph.State) []string {
	data, _ := s[ChData].(map[string]any)
	caps, _ := data["capabilities"].([]string)
	return caps
}

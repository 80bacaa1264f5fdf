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

	"github.com/sourcegraph/go-diff/diff"

	"github.com/VeracityAI/VeracityFOSS/services/assess/graph"
)

type remediationsReply struct {
	Remediations []Remediation `json:"remediations"`
}

// remediatePhase proposes corrective actions for the detected gaps.
// Model-produced patches are only trusted after they parse as a unified
// diff; an unparseable patch is stripped and the remediation survives
// as a prose action.
func (o *Orchestrator) remediatePhase(ctx context.Context, s graph.State) (graph.Partial, error) {
	framework := stateString(s, ChFramework)
	gaps := stateGaps(s)
	if len(gaps) == 0 {
		return nil, errors.New("no gaps in state")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Framework: %s\nTarget: %s\n", framework, stateString(s, ChTarget))
	promptSection(&b, "Gaps", gapLines(gaps))

	raw, err := o.deps.Reasoner.Infer(ctx, systemRemediator, b.String(), true)
	if err != nil {
		return nil, err
	}
	reply, err := decodeReply[remediationsReply](raw)
	if err != nil {
		return nil, err
	}

	out := make([]Remediation, 0, len(reply.Remediations))
	for _, r := range reply.Remediations {
		if r.RequirementID == "" || r.Action == "" {
			continue
		}
		if r.Patch != "" {
			r.PatchValid = validPatch(r.Patch)
			if !r.PatchValid {
				slog.Warn("Discarding unparseable remediation patch",
					slog.String("requirement", r.RequirementID),
				)
				r.Patch = ""
			}
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, errors.New("remediator returned nothing usable")
	}
	return graph.Partial{ChRemediations: out}, nil
}

// validPatch reports whether the text parses as a unified diff touching
// at least one file.
func validPatch(patch string) bool {
	fds, err := diff.ParseMultiFileDiff([]byte(patch))
	return err == nil && len(fds) > 0
}

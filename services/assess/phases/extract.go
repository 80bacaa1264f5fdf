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
	"time"

	"github.com/VeracityAI/VeracityFOSS/services/assess/graph"
	"github.com/VeracityAI/VeracityFOSS/services/assess/scan"
)

const timeLogPrecision = time.Millisecond

// extractPhase hands the plan's tasks to the scan executor and
// normalizes what comes back. A target whose connection never came up
// still yields evidence (the synthetic pass-through record), so the run
// continues; the failure is recorded in the error log instead of
// stopping the pipeline.
func (o *Orchestrator) extractPhase(ctx context.Context, s graph.State) (graph.Partial, error) {
	plan := statePlan(s)
	if plan == nil {
		return nil, errors.New("no plan in state")
	}
	target := stateString(s, ChTarget)

	caps := stateCapabilities(s)
	if len(caps) == 0 {
		// Planning went blind; try discovery once more before executing.
		fresh, err := o.listCapabilities(ctx, target)
		if err == nil {
			caps = fresh
		}
	}
	if len(caps) == 0 {
		// No advertisement at all, most likely because the target is
		// unreachable. Let every task through so the executor's own
		// connect produces the synthetic failure outcome instead of
		// silently dropping the whole plan.
		for _, t := range plan.Tasks {
			caps = append(caps, t.ToolName)
		}
	}

	outcomes := o.deps.Executor.Run(ctx, target, o.deps.Credentials, caps, plan.Tasks, o.deps.Scan)
	evidence := scan.Normalize(outcomes)
	if len(evidence) == 0 {
		return nil, errors.New("extraction produced no evidence")
	}

	toolLog := make([]string, 0, len(outcomes))
	connectionFailed := false
	for _, oc := range outcomes {
		if oc.ConnectionFailure {
			connectionFailed = true
		}
		toolLog = append(toolLog, fmt.Sprintf("%s attempts=%d took=%s",
			oc.Task.ToolName, oc.Attempts, oc.Took.Round(timeLogPrecision)))
	}

	partial := graph.Partial{
		ChEvidence: evidence,
		ChToolLog:  toolLog,
	}
	if connectionFailed {
		partial[graph.ChannelErrors] = []string{
			"extract: connection to target failed; evidence limited to the failure record",
		}
	}
	return partial, nil
}

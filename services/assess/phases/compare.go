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

	"golang.org/x/mod/semver"

	"github.com/VeracityAI/VeracityFOSS/services/assess/graph"
)

// comparePhase diffs the fresh report against the previous one: which
// gaps are new, which were resolved, and whether the framework version
// drifted between runs. Pure state computation, no reasoner.
func (o *Orchestrator) comparePhase(_ context.Context, s graph.State) (graph.Partial, error) {
	prev := statePrevReport(s)
	cur := stateReport(s)
	if prev == nil || cur == nil {
		return nil, errors.New("compare needs both a previous and a current report")
	}

	prevGaps := gapIDSet(prev.Gaps)
	curGaps := gapIDSet(cur.Gaps)

	var newGaps, resolved []string
	for _, g := range cur.Gaps {
		if _, ok := prevGaps[g.RequirementID]; !ok {
			newGaps = append(newGaps, g.RequirementID)
		}
	}
	for _, g := range prev.Gaps {
		if _, ok := curGaps[g.RequirementID]; !ok {
			resolved = append(resolved, g.RequirementID)
		}
	}

	cmp := &Comparison{
		PreviousVersion: prev.FrameworkVersion,
		CurrentVersion:  cur.FrameworkVersion,
		VersionDrift:    versionDrift(prev.FrameworkVersion, cur.FrameworkVersion),
		NewGaps:         newGaps,
		ResolvedGaps:    resolved,
	}
	cmp.Summary = fmt.Sprintf("%d new gaps, %d resolved since the previous assessment",
		len(newGaps), len(resolved))
	if cmp.VersionDrift != "" && cmp.VersionDrift != "same" {
		cmp.Summary += fmt.Sprintf("; framework version is %s (%s -> %s)",
			cmp.VersionDrift, prev.FrameworkVersion, cur.FrameworkVersion)
	}
	return graph.Partial{ChComparison: cmp}, nil
}

func gapIDSet(gaps []Gap) map[string]struct{} {
	set := make(map[string]struct{}, len(gaps))
	for _, g := range gaps {
		set[g.RequirementID] = struct{}{}
	}
	return set
}

// versionDrift classifies the current framework version relative to the
// previous one. Returns "" when either side is absent or not semver.
func versionDrift(prev, cur string) string {
	p, c := canonical(prev), canonical(cur)
	if p == "" || c == "" {
		return ""
	}
	switch semver.Compare(c, p) {
	case -1:
		return "older"
	case 1:
		return "newer"
	default:
		return "same"
	}
}

// canonical coerces a bare "2024.1"-style version into semver form.
func canonical(v string) string {
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}

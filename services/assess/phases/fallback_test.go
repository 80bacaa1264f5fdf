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
	"reflect"
	"testing"
	"time"
)

var fallbackFrameworks = []string{"soc2", "iso27001", "gdpr", "hipaa", "pci-dss", "made-up-framework"}

// Synthesizers must be idempotent: the same key always yields the same
// structure, so a replayed run reproduces its fallbacks exactly.
func TestFallback_Idempotent(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, fw := range fallbackFrameworks {
		if !reflect.DeepEqual(FallbackPlan(fw, "x"), FallbackPlan(fw, "x")) {
			t.Errorf("%s: plan fallback not idempotent", fw)
		}
		if !reflect.DeepEqual(FallbackRequirements(fw), FallbackRequirements(fw)) {
			t.Errorf("%s: requirements fallback not idempotent", fw)
		}
		if !reflect.DeepEqual(FallbackReport(fw, "x", at), FallbackReport(fw, "x", at)) {
			t.Errorf("%s: report fallback not idempotent", fw)
		}
	}
}

// Every synthesizer must produce a non-empty value for every framework,
// including ones nobody taught the baseline table about.
func TestFallback_AlwaysNonEmpty(t *testing.T) {
	for _, fw := range fallbackFrameworks {
		if p := FallbackPlan(fw, "x"); len(p.Tasks) == 0 || !p.Synthetic {
			t.Errorf("%s: plan fallback must be non-empty and marked synthetic", fw)
		}
		if len(FallbackEvidence(fw, "x")) == 0 {
			t.Errorf("%s: evidence fallback is empty", fw)
		}
		if len(FallbackRequirements(fw)) == 0 {
			t.Errorf("%s: requirements fallback is empty", fw)
		}
		if len(FallbackGaps(fw)) == 0 {
			t.Errorf("%s: gaps fallback is empty", fw)
		}
		if len(FallbackRemediations(fw)) == 0 {
			t.Errorf("%s: remediations fallback is empty", fw)
		}
	}
}

// Gaps and remediations must line up with the baseline requirement set
// one-to-one, so a synthetic report is internally consistent.
func TestFallback_GapsCoverRequirements(t *testing.T) {
	for _, fw := range fallbackFrameworks {
		reqs := FallbackRequirements(fw)
		gaps := FallbackGaps(fw)
		if len(gaps) != len(reqs) {
			t.Fatalf("%s: %d gaps for %d requirements", fw, len(gaps), len(reqs))
		}
		for i, g := range gaps {
			if g.RequirementID != reqs[i].ID {
				t.Errorf("%s: gap %d references %s, want %s", fw, i, g.RequirementID, reqs[i].ID)
			}
		}
	}
}

func TestFallback_UnknownFrameworkGetsBottomRecord(t *testing.T) {
	reqs := FallbackRequirements("made-up-framework")
	if len(reqs) != 1 || reqs[0].ID != "BASE-1" {
		t.Fatalf("unknown framework should get the single bottom record, got %+v", reqs)
	}
}

// Mutating a returned slice must not leak into later calls.
func TestFallback_ReturnsCopies(t *testing.T) {
	first := FallbackRequirements("soc2")
	first[0].ID = "MUTATED"
	second := FallbackRequirements("soc2")
	if second[0].ID == "MUTATED" {
		t.Fatal("fallback shares its backing array with callers")
	}
}

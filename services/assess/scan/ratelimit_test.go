// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scan

import (
	"testing"
)

func TestTargetLimiter_NoLimitConfigured(t *testing.T) {
	l := NewTargetLimiter(map[string]int{})

	ok, _ := l.Allow("prod-cluster")
	if !ok {
		t.Error("target with no limit should always be allowed")
	}
}

func TestTargetLimiter_WithinLimit(t *testing.T) {
	l := NewTargetLimiter(map[string]int{"prod-cluster": 5})

	for i := 0; i < 5; i++ {
		ok, _ := l.Allow("prod-cluster")
		if !ok {
			t.Errorf("invocation %d should be within limit", i+1)
		}
	}
}

func TestTargetLimiter_ExceedsLimit(t *testing.T) {
	l := NewTargetLimiter(map[string]int{"prod-cluster": 3})

	for i := 0; i < 3; i++ {
		l.Allow("prod-cluster")
	}

	ok, retryAfter := l.Allow("prod-cluster")
	if ok {
		t.Error("invocation should be rate limited")
	}
	if retryAfter <= 0 {
		t.Errorf("retryAfter should be positive, got %v", retryAfter)
	}
}

func TestTargetLimiter_IndependentTargets(t *testing.T) {
	l := NewTargetLimiter(map[string]int{
		"prod-cluster":    2,
		"staging-cluster": 2,
	})

	l.Allow("prod-cluster")
	l.Allow("prod-cluster")
	ok, _ := l.Allow("prod-cluster")
	if ok {
		t.Error("prod-cluster should be rate limited")
	}

	ok, _ = l.Allow("staging-cluster")
	if !ok {
		t.Error("staging-cluster should not be limited by prod-cluster's window")
	}
}

func TestTargetLimiter_ZeroLimitMeansUnlimited(t *testing.T) {
	l := NewTargetLimiter(map[string]int{"prod-cluster": 0})

	for i := 0; i < 50; i++ {
		if ok, _ := l.Allow("prod-cluster"); !ok {
			t.Fatal("zero limit must mean unlimited")
		}
	}
}

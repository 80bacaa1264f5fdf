// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pool

import (
	"errors"
	"sync"
	"testing"
)

func TestRegistry_BuildsOnce(t *testing.T) {
	r := NewRegistry()
	builds := 0
	init := func() (any, func() error, error) {
		builds++
		return "resource", nil, nil
	}

	a, err := r.Acquire("db", init)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Acquire("db", init)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("second acquire must return the same instance")
	}
	if builds != 1 {
		t.Errorf("init ran %d times, want 1", builds)
	}
}

func TestRegistry_ClosesAtZeroRefs(t *testing.T) {
	r := NewRegistry()
	closed := 0
	init := func() (any, func() error, error) {
		return "resource", func() error { closed++; return nil }, nil
	}

	_, _ = r.Acquire("db", init)
	_, _ = r.Acquire("db", init)

	if err := r.Release("db"); err != nil {
		t.Fatal(err)
	}
	if closed != 0 {
		t.Fatal("closed while a reference was still held")
	}
	if err := r.Release("db"); err != nil {
		t.Fatal(err)
	}
	if closed != 1 {
		t.Fatalf("closer ran %d times, want 1", closed)
	}
	if r.Acquired("db") {
		t.Error("entry should be gone after last release")
	}
}

func TestRegistry_FailedInitLeavesNoEntry(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	_, err := r.Acquire("db", func() (any, func() error, error) {
		return nil, nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped init error, got %v", err)
	}
	if r.Acquired("db") {
		t.Error("failed init must not register the resource")
	}

	// Next acquire retries the init.
	v, err := r.Acquire("db", func() (any, func() error, error) {
		return 42, nil, nil
	})
	if err != nil || v != 42 {
		t.Fatalf("retry failed: %v %v", v, err)
	}
}

func TestRegistry_ReleaseUnacquired(t *testing.T) {
	r := NewRegistry()
	if err := r.Release("ghost"); err == nil {
		t.Fatal("releasing an unacquired resource must error")
	}
}

func TestRegistry_ConcurrentAcquire(t *testing.T) {
	r := NewRegistry()
	builds := 0
	init := func() (any, func() error, error) {
		builds++
		return struct{}{}, nil, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Acquire("shared", init); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if builds != 1 {
		t.Fatalf("init ran %d times under contention, want 1", builds)
	}
}

func TestRegistry_ShutdownClosesAll(t *testing.T) {
	r := NewRegistry()
	closed := map[string]bool{}
	for _, name := range []string{"a", "b"} {
		name := name
		_, _ = r.Acquire(name, func() (any, func() error, error) {
			return name, func() error { closed[name] = true; return nil }, nil
		})
	}

	if err := r.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if !closed["a"] || !closed["b"] {
		t.Errorf("shutdown left resources open: %v", closed)
	}
}

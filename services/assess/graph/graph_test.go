// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"errors"
	"testing"
)

func noop(_ context.Context, _ State) (Partial, error) { return nil, nil }

func requireConfigError(t *testing.T, err error) *ConfigurationError {
	t.Helper()
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("want *ConfigurationError, got %v", err)
	}
	return cfgErr
}

func TestCompile_MissingEntry(t *testing.T) {
	b := New("g", testSchema())
	b.AddNode("a", noop)
	_, err := b.Compile()
	requireConfigError(t, err)
}

func TestCompile_EntryNotRegistered(t *testing.T) {
	b := New("g", testSchema())
	b.AddNode("a", noop)
	b.SetEntry("missing")
	_, err := b.Compile()
	requireConfigError(t, err)
}

func TestCompile_EdgeToUnknownNode(t *testing.T) {
	b := New("g", testSchema())
	b.AddNode("a", noop)
	b.AddEdge("a", "ghost")
	b.SetEntry("a")
	_, err := b.Compile()
	requireConfigError(t, err)
}

func TestCompile_ConditionalLabelToUnknownNode(t *testing.T) {
	b := New("g", testSchema())
	b.AddNode("a", noop)
	b.AddConditionalEdge("a", func(_ State) string { return "x" },
		map[string]string{"x": "ghost"})
	b.SetEntry("a")
	_, err := b.Compile()
	requireConfigError(t, err)
}

func TestCompile_ConditionalWithoutLabels(t *testing.T) {
	b := New("g", testSchema())
	b.AddNode("a", noop)
	b.AddConditionalEdge("a", func(_ State) string { return "x" }, nil)
	b.SetEntry("a")
	_, err := b.Compile()
	requireConfigError(t, err)
}

func TestCompile_DuplicateNode(t *testing.T) {
	b := New("g", testSchema())
	b.AddNode("a", noop)
	b.AddNode("a", noop)
	b.SetEntry("a")
	_, err := b.Compile()
	requireConfigError(t, err)
}

func TestCompile_SchemaMustDeclareStatusAndErrors(t *testing.T) {
	b := New("g", Schema{"plan": Replace})
	b.AddNode("a", noop)
	b.SetEntry("a")
	_, err := b.Compile()
	requireConfigError(t, err)
}

func TestCompile_TerminalIsAlwaysValidTarget(t *testing.T) {
	b := New("g", testSchema())
	b.AddNode("a", noop)
	b.AddEdge("a", Terminal)
	b.SetEntry("a")
	if _, err := b.Compile(); err != nil {
		t.Fatalf("terminal edge should compile, got %v", err)
	}
}

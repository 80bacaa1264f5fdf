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
	"reflect"
	"testing"
)

func testSchema() Schema {
	return Schema{
		ChannelStatus: Replace,
		ChannelErrors: Append,
		"plan":        Replace,
		"log":         Append,
		"data":        ShallowMerge,
	}
}

func TestMerge_ReplaceKeepsCurrentWhenAbsent(t *testing.T) {
	s := State{"plan": "original"}
	s.merge(testSchema(), Partial{ChannelStatus: "running"})

	if s["plan"] != "original" {
		t.Errorf("plan should be untouched, got %v", s["plan"])
	}
	if s[ChannelStatus] != "running" {
		t.Errorf("status should be replaced, got %v", s[ChannelStatus])
	}
}

func TestMerge_ReplaceNilIncomingKeepsCurrent(t *testing.T) {
	s := State{"plan": "original"}
	s.merge(testSchema(), Partial{"plan": nil})

	if s["plan"] != "original" {
		t.Errorf("nil incoming must not clobber, got %v", s["plan"])
	}
}

func TestMerge_AppendPreservesOrder(t *testing.T) {
	s := State{}
	s.merge(testSchema(), Partial{"log": []string{"a"}})
	s.merge(testSchema(), Partial{"log": []string{"b", "c"}})

	got := s["log"].([]string)
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("append order: got %v, want %v", got, want)
	}
}

// Merging [A] then [B] then [C] must equal merging [A,B] then [C]:
// append is associative and never deduplicates.
func TestMerge_AppendAssociativity(t *testing.T) {
	schema := testSchema()

	one := State{}
	one.merge(schema, Partial{"log": []string{"A"}})
	one.merge(schema, Partial{"log": []string{"B"}})
	one.merge(schema, Partial{"log": []string{"C"}})

	two := State{}
	two.merge(schema, Partial{"log": []string{"A", "B"}})
	two.merge(schema, Partial{"log": []string{"C"}})

	if !reflect.DeepEqual(one["log"], two["log"]) {
		t.Errorf("associativity violated: %v vs %v", one["log"], two["log"])
	}
}

func TestMerge_AppendNoDedup(t *testing.T) {
	s := State{}
	s.merge(testSchema(), Partial{"log": []string{"x"}})
	s.merge(testSchema(), Partial{"log": []string{"x"}})

	if got := len(s["log"].([]string)); got != 2 {
		t.Errorf("duplicates must be preserved, got %d entries", got)
	}
}

func TestMerge_AppendTypeMismatchDropped(t *testing.T) {
	s := State{}
	s.merge(testSchema(), Partial{"log": []string{"a"}})
	s.merge(testSchema(), Partial{"log": []int{1}})

	got := s["log"].([]string)
	if !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("mismatched append should be dropped, got %v", got)
	}
}

func TestMerge_ShallowMergeOverwritesMatchingKeys(t *testing.T) {
	s := State{"data": map[string]any{"kept": 1, "hit": "old"}}
	s.merge(testSchema(), Partial{"data": map[string]any{"hit": "new", "added": true}})

	got := s["data"].(map[string]any)
	if got["kept"] != 1 || got["hit"] != "new" || got["added"] != true {
		t.Errorf("shallow merge wrong: %v", got)
	}
}

func TestMerge_UnknownChannelDropped(t *testing.T) {
	s := State{}
	s.merge(testSchema(), Partial{"bogus": "value"})

	if _, ok := s["bogus"]; ok {
		t.Error("undeclared channel must not be stored")
	}
}

func TestClone_IsIndependent(t *testing.T) {
	s := State{ChannelStatus: "a"}
	c := s.Clone()
	c[ChannelStatus] = "b"

	if s[ChannelStatus] != "a" {
		t.Error("clone mutation leaked into original")
	}
}

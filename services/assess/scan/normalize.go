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
	"fmt"
	"strings"

	"github.com/VeracityAI/VeracityFOSS/services/assess/agent"
)

// Evidence is the normalized form of one piece of extracted data. Tool
// payloads arrive in vendor-specific shapes; normalization happens
// exactly once here, per capability family, instead of shape-sniffing
// at every downstream call site.
type Evidence struct {
	Capability string         `json:"capability"`
	Family     string         `json:"family"`
	Summary    string         `json:"summary"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Capability families group tools that share a payload dialect.
const (
	FamilyRepository = "repository"
	FamilyCloud      = "cloud"
	FamilyTicketing  = "ticketing"
	FamilyGeneric    = "generic"
)

// familyOf maps a capability name to its family by prefix convention.
func familyOf(capability string) string {
	switch {
	case strings.HasPrefix(capability, "repo_"), strings.HasPrefix(capability, "github_"):
		return FamilyRepository
	case strings.HasPrefix(capability, "cloud_"), strings.HasPrefix(capability, "aws_"), strings.HasPrefix(capability, "gcp_"):
		return FamilyCloud
	case strings.HasPrefix(capability, "ticket_"), strings.HasPrefix(capability, "jira_"):
		return FamilyTicketing
	default:
		return FamilyGeneric
	}
}

// normalizer converts one raw result into evidence records.
type normalizer func(capability string, r agent.RawToolResult) []Evidence

var normalizers = map[string]normalizer{
	FamilyRepository: normalizeKeyed("name", "full_name", "path"),
	FamilyCloud:      normalizeKeyed("resource_id", "arn", "id"),
	FamilyTicketing:  normalizeKeyed("key", "ticket_id", "id"),
	FamilyGeneric:    normalizeGeneric,
}

// Normalize flattens resolved outcomes into evidence. The synthetic
// connection-failure outcome passes through as a single generic record
// so downstream phases can still see that the connection never came up.
func Normalize(outcomes []Outcome) []Evidence {
	var out []Evidence
	for _, o := range outcomes {
		if o.ConnectionFailure {
			out = append(out, Evidence{
				Capability: o.Task.ToolName,
				Family:     FamilyGeneric,
				Summary:    o.Result.Text,
				Attributes: map[string]any{"connection_failure": true},
			})
			continue
		}
		family := familyOf(o.Task.ToolName)
		out = append(out, normalizers[family](o.Task.ToolName, o.Result)...)
	}
	return out
}

// normalizeKeyed builds a normalizer for families whose objects carry a
// well-known identifying key. The first present key becomes the summary.
func normalizeKeyed(idKeys ...string) normalizer {
	summarize := func(m map[string]any) string {
		for _, k := range idKeys {
			if v, ok := m[k]; ok {
				return fmt.Sprintf("%v", v)
			}
		}
		return "unidentified record"
	}
	return func(capability string, r agent.RawToolResult) []Evidence {
		family := familyOf(capability)
		switch r.Kind {
		case agent.RawText:
			if r.Text == "" {
				return nil
			}
			return []Evidence{{Capability: capability, Family: family, Summary: firstLine(r.Text)}}
		case agent.RawStructured:
			if len(r.Structured) == 0 {
				return nil
			}
			return []Evidence{{
				Capability: capability,
				Family:     family,
				Summary:    summarize(r.Structured),
				Attributes: r.Structured,
			}}
		case agent.RawList:
			out := make([]Evidence, 0, len(r.List))
			for _, item := range r.List {
				ev := Evidence{Capability: capability, Family: family}
				if m, ok := item.(map[string]any); ok {
					ev.Summary = summarize(m)
					ev.Attributes = m
				} else {
					ev.Summary = fmt.Sprintf("%v", item)
				}
				out = append(out, ev)
			}
			return out
		}
		return nil
	}
}

func normalizeGeneric(capability string, r agent.RawToolResult) []Evidence {
	if r.IsEmpty() {
		return nil
	}
	switch r.Kind {
	case agent.RawText:
		return []Evidence{{Capability: capability, Family: FamilyGeneric, Summary: firstLine(r.Text)}}
	case agent.RawStructured:
		return []Evidence{{
			Capability: capability,
			Family:     FamilyGeneric,
			Summary:    fmt.Sprintf("%s: %d fields", capability, len(r.Structured)),
			Attributes: r.Structured,
		}}
	case agent.RawList:
		return []Evidence{{
			Capability: capability,
			Family:     FamilyGeneric,
			Summary:    fmt.Sprintf("%s: %d items", capability, len(r.List)),
			Attributes: map[string]any{"items": r.List},
		}}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return strings.TrimSpace(s)
}

// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import "encoding/json"

// RawResultKind discriminates the RawToolResult union.
type RawResultKind string

const (
	RawText       RawResultKind = "text"
	RawStructured RawResultKind = "structured"
	RawList       RawResultKind = "list"
)

// RawToolResult is the tagged union of shapes a tool invocation can
// return. Exactly one of Text, Structured, or List is populated,
// selected by Kind. Normalization into domain records happens per
// capability family in the scan package, not at every call site.
type RawToolResult struct {
	Kind       RawResultKind
	Text       string
	Structured map[string]any
	List       []any
}

// TextResult wraps plain text output.
func TextResult(s string) RawToolResult {
	return RawToolResult{Kind: RawText, Text: s}
}

// StructuredResult wraps a single JSON object.
func StructuredResult(m map[string]any) RawToolResult {
	return RawToolResult{Kind: RawStructured, Structured: m}
}

// ListResult wraps a JSON array.
func ListResult(items []any) RawToolResult {
	return RawToolResult{Kind: RawList, List: items}
}

// ParseRawResult classifies a raw payload by sniffing its JSON shape
// once, at the transport boundary. Non-JSON payloads become text.
func ParseRawResult(payload []byte) RawToolResult {
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err == nil {
		return StructuredResult(obj)
	}
	var list []any
	if err := json.Unmarshal(payload, &list); err == nil {
		return ListResult(list)
	}
	return TextResult(string(payload))
}

// IsEmpty reports whether the result carries no usable payload.
func (r RawToolResult) IsEmpty() bool {
	switch r.Kind {
	case RawText:
		return r.Text == ""
	case RawStructured:
		return len(r.Structured) == 0
	case RawList:
		return len(r.List) == 0
	}
	return true
}

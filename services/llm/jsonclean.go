// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls a JSON document out of a model reply.
//
// Description:
//
//	Models wrap JSON in markdown fences, preambles ("Here is the
//	plan:"), and trailing commentary more often than not. This strips
//	fences, then locates the outermost object or array and verifies it
//	parses. The returned string is the raw JSON slice of the reply, not
//	a re-marshaled form, so key order and formatting survive.
//
// Outputs:
//   - string: The JSON document.
//   - error: No JSON found, or the candidate did not parse.
func ExtractJSON(reply string) (string, error) {
	s := strings.TrimSpace(reply)
	s = stripFences(s)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", fmt.Errorf("no JSON document in reply")
	}
	end := matchingEnd(s, start)
	if end < 0 {
		return "", fmt.Errorf("unterminated JSON document in reply")
	}
	candidate := s[start : end+1]

	if !json.Valid([]byte(candidate)) {
		return "", fmt.Errorf("candidate JSON does not parse")
	}
	return candidate, nil
}

// stripFences removes a surrounding markdown code fence, with or
// without a language tag.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		first := strings.TrimSpace(s[:i])
		if len(first) <= 10 && !strings.ContainsAny(first, "{[") {
			s = s[i+1:]
		}
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// matchingEnd finds the index of the bracket closing the document that
// opens at start, honoring strings and escapes.
func matchingEnd(s string, start int) int {
	open := s[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

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
	"testing"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  string
		ok    bool
	}{
		{
			name:  "bare object",
			reply: `{"a": 1}`,
			want:  `{"a": 1}`,
			ok:    true,
		},
		{
			name:  "fenced with language tag",
			reply: "```json\n{\"a\": 1}\n```",
			want:  `{"a": 1}`,
			ok:    true,
		},
		{
			name:  "fenced without tag",
			reply: "```\n[1, 2]\n```",
			want:  `[1, 2]`,
			ok:    true,
		},
		{
			name:  "preamble and trailing prose",
			reply: "Here is the plan:\n{\"tasks\": []}\nLet me know if you need more.",
			want:  `{"tasks": []}`,
			ok:    true,
		},
		{
			name:  "braces inside strings",
			reply: `{"msg": "a } inside", "n": 1}`,
			want:  `{"msg": "a } inside", "n": 1}`,
			ok:    true,
		},
		{
			name:  "escaped quote inside string",
			reply: `{"msg": "she said \"}\""}`,
			want:  `{"msg": "she said \"}\""}`,
			ok:    true,
		},
		{
			name:  "nested objects",
			reply: `prefix {"a": {"b": {"c": 1}}} suffix`,
			want:  `{"a": {"b": {"c": 1}}}`,
			ok:    true,
		},
		{
			name:  "no json at all",
			reply: "I am unable to help with that.",
			ok:    false,
		},
		{
			name:  "unterminated",
			reply: `{"a": 1`,
			ok:    false,
		},
		{
			name:  "invalid candidate",
			reply: `{a: 1}`,
			ok:    false,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ExtractJSON(c.reply)
			if c.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != c.want {
					t.Fatalf("got %q, want %q", got, c.want)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error, got %q", got)
			}
		})
	}
}

func TestSafeLogString(t *testing.T) {
	cases := map[string]string{
		"error: sk-ant-REDACTED returned 401": "error: [REDACTED:anthropic_key] returned 401",
		"key sk-abcdefghijklmnopqrstuv rejected":                    "key [REDACTED:openai_key] rejected",
		"Authorization: Bearer abc.def.ghi-jkl":                     "Authorization: [REDACTED:bearer_token]",
		"dsn postgres://svc:hunter2@db:5432/x":                      "dsn postgres://[REDACTED]@db:5432/x",
		"nothing secret here":                                       "nothing secret here",
		"": "",
	}
	for in, want := range cases {
		if got := SafeLogString(in); got != want {
			t.Errorf("SafeLogString(%q) = %q, want %q", in, got, want)
		}
	}
}

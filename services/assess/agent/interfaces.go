// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent defines the narrow collaborator contracts the assessment
// engine depends on. The engine is implementable and testable against
// fakes of each interface in this package.
package agent

import (
	"context"
)

// Reasoner is the abstract reasoning capability backing every phase that
// needs model output.
//
// Description:
//
//	Infer sends one system/user prompt pair and returns the raw reply
//	text. When expectJSON is true the implementation must return
//	ErrReasoningMalformed if the reply cannot be parsed as JSON after
//	cleanup. Callers treat both error kinds as recoverable: a failed
//	inference triggers fallback synthesis, never a run failure.
type Reasoner interface {
	Infer(ctx context.Context, systemPrompt, userPrompt string, expectJSON bool) (string, error)
}

// Credentials carries what a ToolClient needs to authenticate against a
// target system. Token is resolved at connect time; implementations that
// hold secrets at rest should keep them in a locked enclave and only
// materialize here for the duration of the dial.
type Credentials struct {
	Endpoint string
	Token    string
	Extra    map[string]string
}

// Session is one live connection to a target system.
type Session interface {
	// Target returns the target name this session is connected to.
	Target() string

	// Close releases the underlying transport. Safe to call twice.
	Close() error
}

// ToolClient connects to a target system and invokes its advertised
// capabilities. The scan executor is the sole consumer and encodes the
// retry policy per error kind (see services/assess/scan).
type ToolClient interface {
	Connect(ctx context.Context, target string, creds Credentials) (Session, error)
	ListCapabilities(ctx context.Context, session Session) ([]string, error)
	Invoke(ctx context.Context, session Session, capability string, args map[string]any) (RawToolResult, error)
}

// MemoryHit is one ranked result from MemoryStore.Recall.
type MemoryHit struct {
	ID       string
	Text     string
	Category string
	Tags     []string
	Score    float64
}

// RecallFilters narrows a Recall query.
type RecallFilters struct {
	Category string
	Tags     []string
}

// MemoryStore is the advisory long-term memory.
//
// Description:
//
//	Remember returns the stored record's ID, or "" when storage failed.
//	Recall returns ranked hits, or an empty slice when retrieval failed.
//	Memory is advisory only: every call site must tolerate total
//	unavailability without affecting the run outcome. Implementations
//	must therefore swallow transport errors and return the empty value.
type MemoryStore interface {
	Remember(ctx context.Context, text, category string, tags []string) string
	Recall(ctx context.Context, query string, filters RecallFilters, limit int) []MemoryHit
}

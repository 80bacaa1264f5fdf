// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scan executes planned tool invocations against a target
// system in bounded-concurrency waves with retry, backoff, and quota
// limits. One task's failure never fails a wave, and a wave's failure
// never raises out of the executor: terminal task failures are simply
// absent from the result set.
package scan

import (
	"math"
	"time"

	"github.com/VeracityAI/VeracityFOSS/services/assess/agent"
)

// Depth filters what fraction of planned tasks are kept before batching.
type Depth string

const (
	DepthQuick         Depth = "quick"         // ~30% of planned tasks
	DepthStandard      Depth = "standard"      // ~60%
	DepthComprehensive Depth = "comprehensive" // everything
)

// keepFraction returns the fraction of tasks a depth retains.
func (d Depth) keepFraction() float64 {
	switch d {
	case DepthQuick:
		return 0.3
	case DepthStandard:
		return 0.6
	default:
		return 1.0
	}
}

// keepCount applies the depth fraction to n. Rounds to nearest, and a
// non-empty plan always keeps at least one task.
func (d Depth) keepCount(n int) int {
	if n == 0 {
		return 0
	}
	keep := int(math.Round(float64(n) * d.keepFraction()))
	if keep < 1 {
		keep = 1
	}
	return keep
}

// Task is an atomic unit of remote work produced by the planning phase.
type Task struct {
	ID         string         `json:"id"`
	ToolName   string         `json:"tool_name"`
	Purpose    string         `json:"purpose"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Outcome is one resolved task. Outcomes are unordered: within a wave
// tasks complete in whatever order the target answers.
type Outcome struct {
	Task     Task
	Result   agent.RawToolResult
	Attempts int
	Took     time.Duration

	// ConnectionFailure marks the single synthetic outcome emitted when
	// the connection itself could never be established.
	ConnectionFailure bool
}

// Options tune one executor run. Zero values fall back to defaults via
// withDefaults; MaxTasks and MaxToolCalls of 0 mean unlimited.
type Options struct {
	BatchSize     int
	MaxIterations int
	MaxTasks      int
	MaxToolCalls  int
	Depth         Depth

	// WaveDelay is the politeness pause between waves.
	WaveDelay time.Duration

	// TaskTimeout bounds a single invocation attempt.
	TaskTimeout time.Duration

	// RateLimitBackoff is the long sleep after a rate-limit signal.
	RateLimitBackoff time.Duration

	// RetryBackoff is the short sleep between ordinary retries.
	RetryBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 20
	}
	if o.Depth == "" {
		o.Depth = DepthStandard
	}
	if o.WaveDelay <= 0 {
		o.WaveDelay = 2 * time.Second
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = 90 * time.Second
	}
	if o.RateLimitBackoff <= 0 {
		o.RateLimitBackoff = 60 * time.Second
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	return o
}

// retry counts are fixed policy, not knobs.
const (
	maxRateLimitRetries = 2
	maxErrorRetries     = 3
)

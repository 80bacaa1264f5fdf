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
	"sync"
	"time"
)

// TargetLimiter implements a sliding window rate limiter per target.
//
// Description:
//
//	Limits the number of tool invocations per minute against each
//	target using a sliding window of timestamps. When the limit is
//	exceeded, returns the duration until the next request can be made.
//	Targets without a configured limit are never limited.
//
// Thread Safety: Safe for concurrent use via sync.Mutex.
type TargetLimiter struct {
	mu      sync.Mutex
	limits  map[string]int
	windows map[string][]int64 // timestamps in Unix milliseconds
}

// NewTargetLimiter creates a limiter with per-target limits.
//
// Inputs:
//   - limitsPerMin: Per-target rate limits (invocations per minute).
//     Targets not in the map are not rate-limited.
func NewTargetLimiter(limitsPerMin map[string]int) *TargetLimiter {
	limits := make(map[string]int, len(limitsPerMin))
	for k, v := range limitsPerMin {
		limits[k] = v
	}
	return &TargetLimiter{
		limits:  limits,
		windows: make(map[string][]int64),
	}
}

// Allow checks whether an invocation against the target is within the
// rate limit. If allowed, the timestamp is recorded.
//
// Outputs:
//   - bool: True if the invocation is allowed.
//   - time.Duration: If limited, how long to wait before retrying.
//     Zero if allowed.
func (l *TargetLimiter) Allow(target string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit, exists := l.limits[target]
	if !exists || limit == 0 {
		return true, 0 // no limit configured
	}

	now := time.Now().UnixMilli()
	windowStart := now - 60_000 // 1 minute ago

	// Prune expired entries
	timestamps := l.windows[target]
	pruned := make([]int64, 0, len(timestamps))
	for _, ts := range timestamps {
		if ts > windowStart {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= limit {
		oldestInWindow := pruned[0]
		retryAfter := time.Duration(oldestInWindow+60_000-now) * time.Millisecond
		l.windows[target] = pruned
		return false, retryAfter
	}

	pruned = append(pruned, now)
	l.windows[target] = pruned
	return true, 0
}

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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level Prometheus metrics for the scan executor.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// scanWavesTotal counts executed waves per target.
	scanWavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assess",
		Subsystem: "scan",
		Name:      "waves_total",
		Help:      "Total executed waves by target",
	}, []string{"target"})

	// scanTasksResolved counts tasks that produced an outcome.
	scanTasksResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assess",
		Subsystem: "scan",
		Name:      "tasks_resolved_total",
		Help:      "Total resolved tasks by target",
	}, []string{"target"})

	// scanTasksAbandoned counts tasks abandoned after exhausting retries.
	scanTasksAbandoned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assess",
		Subsystem: "scan",
		Name:      "tasks_abandoned_total",
		Help:      "Total abandoned tasks by target",
	}, []string{"target"})

	// scanTasksDropped counts tasks dropped before execution because the
	// target does not advertise the requested capability.
	scanTasksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assess",
		Subsystem: "scan",
		Name:      "tasks_dropped_total",
		Help:      "Total tasks dropped for unadvertised capabilities",
	}, []string{"target"})

	// scanTaskRetries counts retries by cause.
	// Labels: target, cause (rate_limited, reconnect, error)
	scanTaskRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assess",
		Subsystem: "scan",
		Name:      "task_retries_total",
		Help:      "Total task retries by target and cause",
	}, []string{"target", "cause"})

	// scanConnectionFailures counts runs where no session could be
	// established at all.
	scanConnectionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assess",
		Subsystem: "scan",
		Name:      "connection_failures_total",
		Help:      "Total runs with no establishable session",
	}, []string{"target"})

	// scanTaskDuration measures wall time per resolved task including
	// retries and backoff.
	scanTaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "assess",
		Subsystem: "scan",
		Name:      "task_duration_seconds",
		Help:      "Wall time per resolved task including retries",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"target"})
)

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
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/VeracityAI/VeracityFOSS/services/assess/agent"
	"github.com/VeracityAI/VeracityFOSS/services/assess/progress"
)

const tracerName = "assess.scan"

// Executor runs planned tasks against one target with bounded
// concurrency. Safe for concurrent use; each Run call owns its session.
type Executor struct {
	client   agent.ToolClient
	reporter *progress.Reporter
	limiter  *TargetLimiter
}

// NewExecutor builds an executor. reporter and limiter may be nil; a
// nil reporter discards progress and a nil limiter disables pacing.
func NewExecutor(client agent.ToolClient, reporter *progress.Reporter, limiter *TargetLimiter) *Executor {
	if reporter == nil {
		reporter = progress.NewReporter()
	}
	return &Executor{client: client, reporter: reporter, limiter: limiter}
}

// Run executes the task list and returns the accumulated outcomes.
//
// Description:
//
//	Tasks naming capabilities the target does not advertise are dropped
//	with a warning before execution, guarding against a planner
//	hallucinating capabilities. The survivors are depth-filtered and
//	quota-capped, then partitioned into waves of BatchSize executed
//	concurrently with collect-all semantics. Between waves the executor
//	pauses for the politeness delay and honors cancellation; a
//	cancellation request takes effect at the next wave boundary.
//
//	Run never returns an error for individual task failures: tasks that
//	errored terminally are absent from the result. The one exception is
//	total connection failure, reported as a single synthetic outcome so
//	the caller can tell "nothing worked" from "nothing was planned".
func (e *Executor) Run(ctx context.Context, target string, creds agent.Credentials,
	capabilities []string, tasks []Task, opts Options) []Outcome {

	opts = opts.withDefaults()
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "scan.run")
	defer span.End()

	kept := e.prepare(target, capabilities, tasks, opts)
	span.SetAttributes(
		attribute.String("target", target),
		attribute.Int("planned", len(tasks)),
		attribute.Int("kept", len(kept)),
		attribute.Int("batch_size", opts.BatchSize),
	)
	if len(kept) == 0 {
		return nil
	}

	session, err := e.client.Connect(ctx, target, creds)
	if err != nil {
		slog.Error("Could not establish connection to target",
			slog.String("target", target),
			slog.String("error", err.Error()),
		)
		scanConnectionFailures.WithLabelValues(target).Inc()
		return []Outcome{{
			Task:              Task{ToolName: "connect", Purpose: "establish session"},
			Result:            agent.TextResult("connection failed: " + err.Error()),
			ConnectionFailure: true,
		}}
	}
	sess := &managedSession{client: e.client, target: target, creds: creds, session: session}
	defer sess.Close()

	var (
		mu        sync.Mutex
		outcomes  []Outcome
		completed int
		invoked   int
	)

	total := len(kept)
	waves := partition(kept, opts.BatchSize)

	for i, wave := range waves {
		if i >= opts.MaxIterations {
			slog.Warn("Iteration cap reached, stopping early",
				slog.String("target", target),
				slog.Int("max_iterations", opts.MaxIterations),
			)
			break
		}
		if ctx.Err() != nil {
			slog.Info("Scan cancelled at wave boundary",
				slog.String("target", target),
				slog.Int("wave", i),
			)
			break
		}
		if opts.MaxToolCalls > 0 && invoked >= opts.MaxToolCalls {
			slog.Warn("Tool-call quota reached, stopping early",
				slog.String("target", target),
				slog.Int("quota", opts.MaxToolCalls),
			)
			break
		}

		scanWavesTotal.WithLabelValues(target).Inc()

		// Fan the wave out; one task's failure never cancels siblings,
		// so the group collects everything and returns nil.
		g, waveCtx := errgroup.WithContext(context.WithoutCancel(ctx))
		g.SetLimit(opts.BatchSize)
		for _, task := range wave {
			task := task
			g.Go(func() error {
				outcome, ok := e.executeTask(waveCtx, sess, task, opts)
				mu.Lock()
				invoked++
				completed++
				current := completed
				if ok {
					outcomes = append(outcomes, outcome)
				}
				mu.Unlock()

				e.reporter.Report(progress.Event{
					Target:  target,
					Phase:   "scan",
					Current: current,
					Total:   total,
					Message: task.Purpose,
				})
				return nil
			})
		}
		_ = g.Wait()

		// Politeness pause before the next wave.
		if i < len(waves)-1 {
			select {
			case <-time.After(opts.WaveDelay):
			case <-ctx.Done():
			}
		}
	}

	return outcomes
}

// prepare validates, depth-filters, and quota-caps the planned tasks.
func (e *Executor) prepare(target string, capabilities []string, tasks []Task, opts Options) []Task {
	advertised := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		advertised[c] = struct{}{}
	}

	valid := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if _, ok := advertised[t.ToolName]; !ok {
			slog.Warn("Dropping task for unadvertised capability",
				slog.String("target", target),
				slog.String("tool", t.ToolName),
				slog.String("purpose", t.Purpose),
			)
			scanTasksDropped.WithLabelValues(target).Inc()
			continue
		}
		valid = append(valid, t)
	}

	keep := opts.Depth.keepCount(len(valid))
	if keep < len(valid) {
		slog.Info("Depth filter trimmed task list",
			slog.String("target", target),
			slog.String("depth", string(opts.Depth)),
			slog.Int("planned", len(valid)),
			slog.Int("kept", keep),
		)
		valid = valid[:keep]
	}
	if opts.MaxTasks > 0 && len(valid) > opts.MaxTasks {
		valid = valid[:opts.MaxTasks]
	}
	return valid
}

// executeTask attempts one task with the full retry policy. The second
// return is false when the task was abandoned.
func (e *Executor) executeTask(ctx context.Context, sess *managedSession, task Task, opts Options) (Outcome, bool) {
	target := sess.target
	started := time.Now()

	var (
		attempts         int
		rateLimitRetries int
		errorRetries     int
		reconnected      bool
	)

	for {
		attempts++
		if e.limiter != nil {
			if ok, wait := e.limiter.Allow(target); !ok {
				sleep(ctx, wait)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, opts.TaskTimeout)
		result, err := sess.invoke(attemptCtx, task.ToolName, task.Parameters)
		cancel()

		if err == nil {
			scanTasksResolved.WithLabelValues(target).Inc()
			scanTaskDuration.WithLabelValues(target).Observe(time.Since(started).Seconds())
			return Outcome{
				Task:     task,
				Result:   result,
				Attempts: attempts,
				Took:     time.Since(started),
			}, true
		}

		switch {
		case errors.Is(err, agent.ErrRateLimited):
			if rateLimitRetries >= maxRateLimitRetries {
				return e.abandon(target, task, attempts, err)
			}
			rateLimitRetries++
			scanTaskRetries.WithLabelValues(target, "rate_limited").Inc()
			slog.Info("Rate limited, backing off",
				slog.String("target", target),
				slog.String("tool", task.ToolName),
				slog.Duration("backoff", opts.RateLimitBackoff),
			)
			sleep(ctx, opts.RateLimitBackoff)

		case errors.Is(err, agent.ErrConnectionClosed):
			if !reconnected {
				reconnected = true
				if rcErr := sess.reconnect(ctx); rcErr != nil {
					return e.abandon(target, task, attempts, rcErr)
				}
				scanTaskRetries.WithLabelValues(target, "reconnect").Inc()
				continue // retry immediately on the fresh session
			}
			return e.abandon(target, task, attempts, err)

		case errors.Is(err, agent.ErrCapabilityNotFound):
			// Validated up front; a disagreement here means the target
			// changed its advertisement mid-run. Not retryable.
			return e.abandon(target, task, attempts, err)

		default:
			if errorRetries >= maxErrorRetries {
				return e.abandon(target, task, attempts, err)
			}
			errorRetries++
			scanTaskRetries.WithLabelValues(target, "error").Inc()
			sleep(ctx, opts.RetryBackoff)
		}

		if ctx.Err() != nil {
			return e.abandon(target, task, attempts, ctx.Err())
		}
	}
}

// abandon records a terminal task failure. Abandoned tasks produce no
// outcome; they are visible through logs and metrics only.
func (e *Executor) abandon(target string, task Task, attempts int, err error) (Outcome, bool) {
	slog.Warn("Abandoning task",
		slog.String("target", target),
		slog.String("tool", task.ToolName),
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()),
	)
	scanTasksAbandoned.WithLabelValues(target).Inc()
	return Outcome{}, false
}

// managedSession wraps the live session so a reconnect swaps the
// underlying transport for every in-flight task consistently.
type managedSession struct {
	client agent.ToolClient
	target string
	creds  agent.Credentials

	mu      sync.Mutex
	session agent.Session
}

func (m *managedSession) invoke(ctx context.Context, capability string, args map[string]any) (agent.RawToolResult, error) {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	return m.client.Invoke(ctx, s, capability, args)
}

func (m *managedSession) reconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.session.Close()
	fresh, err := m.client.Connect(ctx, m.target, m.creds)
	if err != nil {
		return err
	}
	m.session = fresh
	return nil
}

func (m *managedSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Close()
}

func partition(tasks []Task, size int) [][]Task {
	var waves [][]Task
	for len(tasks) > 0 {
		n := size
		if n > len(tasks) {
			n = len(tasks)
		}
		waves = append(waves, tasks[:n])
		tasks = tasks[n:]
	}
	return waves
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

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
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "assess.graph"

// RunResult is the terminal snapshot of one run. Status is always
// completed or failed; never pending or running at observation time.
type RunResult struct {
	Status string
	State  State
}

// Errors returns the run's accumulated error log, if any.
func (r RunResult) Errors() []string {
	errs, _ := r.State[ChannelErrors].([]string)
	return errs
}

// StreamEvent is one element of the lazy sequence produced by Stream.
// Intermediate events carry the node that just completed and a snapshot
// of the merged state. The final event carries Result (and Err when the
// run aborted on a configuration error).
type StreamEvent struct {
	Node   string
	State  State
	Result *RunResult
	Err    error
}

// Runnable is a compiled, immutable graph. Safe for concurrent use; each
// Invoke or Stream call drives its own State instance.
type Runnable struct {
	name   string
	schema Schema
	nodes  map[string]NodeFunc
	edges  map[string]*edge
	entry  string
}

// Invoke runs the graph to completion.
//
// Description:
//
//	Maintains a cursor node starting at the entry. On each step the
//	cursor's node runs, its partial merges into the state via the
//	declared reducers, and the outgoing edge resolves the next cursor.
//	A node error does not crash the run: the driver synthesizes a
//	partial appending the message to the errors channel and setting
//	status to failed, then still routes from the updated state. The
//	conditional edges are expected to inspect status/errors and route
//	to Terminal when appropriate, so different phases can disagree
//	about whether a given error is fatal.
//
// Outputs:
//   - RunResult: Terminal snapshot; status completed or failed.
//   - error: Non-nil only for *ConfigurationError (a decide function
//     returned an unregistered label) or context cancellation. The
//     RunResult is still populated for inspection in both cases.
func (r *Runnable) Invoke(ctx context.Context, initial State) (RunResult, error) {
	state := initial.Clone()
	if state == nil {
		state = State{}
	}

	var result RunResult
	err := r.drive(ctx, state, nil)
	result.State = state
	if status, _ := state[ChannelStatus].(string); status == StatusFailed {
		result.Status = StatusFailed
	} else {
		result.Status = StatusCompleted
	}
	if err != nil {
		result.Status = StatusFailed
	}
	return result, err
}

// Stream runs the graph and yields a state snapshot after every node
// completion, followed by one final event carrying the RunResult. The
// stream is single-pass over one run; it is not restartable.
func (r *Runnable) Stream(ctx context.Context, initial State) <-chan StreamEvent {
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		state := initial.Clone()
		if state == nil {
			state = State{}
		}
		err := r.drive(ctx, state, func(node string, s State) {
			select {
			case out <- StreamEvent{Node: node, State: s.Clone()}:
			case <-ctx.Done():
			}
		})
		result := RunResult{State: state, Status: StatusCompleted}
		if status, _ := state[ChannelStatus].(string); status == StatusFailed || err != nil {
			result.Status = StatusFailed
		}
		select {
		case out <- StreamEvent{Result: &result, Err: err}:
		case <-ctx.Done():
		}
	}()
	return out
}

// drive is the shared cursor loop. onStep, when non-nil, is called after
// each merge with the node name and the live state.
func (r *Runnable) drive(ctx context.Context, state State, onStep func(string, State)) error {
	tracer := otel.Tracer(tracerName)
	cursor := r.entry

	for cursor != Terminal {
		if err := ctx.Err(); err != nil {
			state.merge(r.schema, Partial{
				ChannelStatus: StatusFailed,
				ChannelErrors: []string{fmt.Sprintf("run cancelled before node %q", cursor)},
			})
			return err
		}

		fn := r.nodes[cursor]
		nodeCtx, span := tracer.Start(ctx, "node."+cursor)
		span.SetAttributes(
			attribute.String("graph", r.name),
			attribute.String("node", cursor),
		)

		started := time.Now()
		partial, err := runNode(nodeCtx, fn, state)
		if err != nil {
			// Soft-fail: record the error as data and let the router
			// decide whether it ends the run.
			span.RecordError(err)
			slog.Warn("Node failed, routing from soft-failed state",
				slog.String("graph", r.name),
				slog.String("node", cursor),
				slog.String("error", err.Error()),
			)
			partial = Partial{
				ChannelStatus: StatusFailed,
				ChannelErrors: []string{fmt.Sprintf("%s: %s", cursor, err.Error())},
			}
		}
		state.merge(r.schema, partial)
		span.End()

		slog.Debug("Node completed",
			slog.String("graph", r.name),
			slog.String("node", cursor),
			slog.Duration("took", time.Since(started)),
			slog.Bool("errored", err != nil),
		)

		if onStep != nil {
			onStep(cursor, state)
		}

		next, routeErr := r.route(cursor, state)
		if routeErr != nil {
			state.merge(r.schema, Partial{
				ChannelStatus: StatusFailed,
				ChannelErrors: []string{routeErr.Error()},
			})
			return routeErr
		}
		cursor = next
	}
	return nil
}

// runNode invokes a node, converting a panic into an ordinary error so
// one misbehaving step cannot take down the driver.
func runNode(ctx context.Context, fn NodeFunc, state State) (p Partial, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p = nil
			err = fmt.Errorf("node panicked: %v", rec)
		}
	}()
	return fn(ctx, state)
}

// route resolves the next cursor from the node's outgoing edge. A node
// with no outgoing edge halts the run.
func (r *Runnable) route(from string, state State) (string, error) {
	e, ok := r.edges[from]
	if !ok {
		return Terminal, nil
	}
	if e.decide == nil {
		return e.target, nil
	}
	label := e.decide(state)
	target, ok := e.labels[label]
	if !ok {
		return Terminal, configErrf(
			"decide for node %q returned unregistered label %q", from, label)
	}
	return target, nil
}

// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph implements the pipeline execution engine: a shared state
// bag partitioned into channels with per-channel merge rules, a directed
// graph of nodes, and a single-cursor driver that runs one node at a
// time. The engine is deliberately general: it allows cycles and does
// not enforce termination; bounding iteration is orchestrator policy.
package graph

import (
	"log/slog"
	"reflect"
)

// Reducer selects how an incoming channel value merges into the current
// one. Every channel has exactly one reducer.
type Reducer int

const (
	// Replace keeps the incoming value if present, else the current one.
	// Used for scalars: status, current step, plan, report.
	Replace Reducer = iota

	// Append concatenates the incoming sequence onto the current one.
	// Associative and order-preserving; insertion order is meaningful
	// (log and audit ordering). No deduplication.
	Append

	// ShallowMerge overwrites matching keys of the current object with
	// the incoming object's keys and preserves the rest. Used for the
	// free-form data bag.
	ShallowMerge
)

// Schema declares the channels a state bag recognizes. Partial updates
// touching undeclared channels are dropped, not stored, so node bugs
// cannot cause schema drift.
type Schema map[string]Reducer

// State is the shared run state: one value per declared channel. The
// driver owns the State for the duration of a run and passes it to
// exactly one in-flight node at a time. Nodes must not mutate it; all
// writes go through the returned Partial.
type State map[string]any

// Partial is the update a node returns. Channels absent from the
// partial are left untouched.
type Partial map[string]any

// Clone returns a shallow copy of the state. Channel values are shared;
// stream consumers must treat them as read-only.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// merge applies a partial update to the state in place, channel by
// channel, using the schema's declared reducers. Unknown channels are
// dropped with a warning.
func (s State) merge(schema Schema, p Partial) {
	for key, incoming := range p {
		reducer, ok := schema[key]
		if !ok {
			slog.Warn("Dropping write to undeclared channel",
				slog.String("channel", key),
			)
			continue
		}
		switch reducer {
		case Replace:
			if incoming != nil {
				s[key] = incoming
			}
		case Append:
			s[key] = appendValues(key, s[key], incoming)
		case ShallowMerge:
			s[key] = shallowMerge(s[key], incoming)
		}
	}
}

// appendValues concatenates two slice values of the same concrete type.
// A nil side passes the other side through. Mismatched types are dropped
// rather than stored, to keep the channel's element type stable.
func appendValues(channel string, current, incoming any) any {
	if incoming == nil {
		return current
	}
	if current == nil {
		return incoming
	}

	cv := reflect.ValueOf(current)
	iv := reflect.ValueOf(incoming)
	if cv.Kind() != reflect.Slice || iv.Kind() != reflect.Slice || cv.Type() != iv.Type() {
		slog.Warn("Dropping append of incompatible value",
			slog.String("channel", channel),
			slog.String("current_type", cv.Type().String()),
			slog.String("incoming_type", iv.Type().String()),
		)
		return current
	}

	merged := reflect.MakeSlice(cv.Type(), 0, cv.Len()+iv.Len())
	merged = reflect.AppendSlice(merged, cv)
	merged = reflect.AppendSlice(merged, iv)
	return merged.Interface()
}

// shallowMerge overlays incoming map keys onto the current map. Both
// sides must be map[string]any; a nil side passes the other through.
func shallowMerge(current, incoming any) any {
	im, ok := incoming.(map[string]any)
	if !ok || im == nil {
		return current
	}
	cm, ok := current.(map[string]any)
	if !ok || cm == nil {
		out := make(map[string]any, len(im))
		for k, v := range im {
			out[k] = v
		}
		return out
	}
	out := make(map[string]any, len(cm)+len(im))
	for k, v := range cm {
		out[k] = v
	}
	for k, v := range im {
		out[k] = v
	}
	return out
}

// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package progress is the push-based notification channel between the
// engine and whoever is watching a run. Reporting is fire-and-forget:
// no acknowledgement, no backpressure, and a broken sink must never
// take the run down with it. Consumers that need ordering rely on the
// engine's node-completion order, not on timestamps.
package progress

import (
	"log/slog"
)

// Event is one status notification.
type Event struct {
	Target  string `json:"target"`
	Phase   string `json:"phase"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// Sink receives events. Implementations may block briefly but should
// not; the Reporter shields the engine from panics either way.
type Sink interface {
	Report(ev Event)
}

// Reporter fans an event out to its sinks, catching anything a sink
// throws. This is the only Sink implementation engine code should hold.
type Reporter struct {
	sinks []Sink
}

// NewReporter wraps zero or more sinks. A Reporter with no sinks is
// valid and discards everything, so call sites never nil-check.
func NewReporter(sinks ...Sink) *Reporter {
	return &Reporter{sinks: sinks}
}

// Report delivers the event to every sink. A sink panic is logged and
// swallowed; the remaining sinks still receive the event.
func (r *Reporter) Report(ev Event) {
	if r == nil {
		return
	}
	for _, s := range r.sinks {
		reportOne(s, ev)
	}
}

func reportOne(s Sink, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("Progress sink panicked, event dropped",
				slog.String("phase", ev.Phase),
				slog.Any("panic", rec),
			)
		}
	}()
	s.Report(ev)
}

// LogSink writes events to slog at debug level.
type LogSink struct{}

func (LogSink) Report(ev Event) {
	slog.Debug("Progress",
		slog.String("target", ev.Target),
		slog.String("phase", ev.Phase),
		slog.Int("current", ev.Current),
		slog.Int("total", ev.Total),
		slog.String("message", ev.Message),
	)
}

// ChanSink forwards events into a channel without blocking: when the
// buffer is full the event is dropped. Sending on a closed channel
// panics, which the Reporter absorbs, so it is safe for the consumer
// to walk away mid-run.
type ChanSink struct {
	C chan Event
}

// NewChanSink creates a sink with the given buffer size.
func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{C: make(chan Event, buffer)}
}

func (c *ChanSink) Report(ev Event) {
	select {
	case c.C <- ev:
	default:
		// Consumer is behind; dropping is preferable to stalling a wave.
	}
}

// FuncSink adapts a plain function.
type FuncSink func(Event)

func (f FuncSink) Report(ev Event) { f(ev) }

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
)

// Terminal is the explicit end marker. Routing to Terminal halts the
// run; so does reaching a node with no outgoing edge.
const Terminal = "__terminal__"

// Reserved channel names the driver writes through the soft-fail path.
const (
	ChannelStatus = "status"
	ChannelErrors = "errors"
)

// Run statuses observable on a RunResult. A result is never pending or
// running once the driver returns.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// NodeFunc is one step of the pipeline: a function from state to a
// partial update. It may perform I/O before returning, but must not
// mutate the state it was handed.
type NodeFunc func(ctx context.Context, s State) (Partial, error)

// DecideFunc routes a conditional edge. It must be a total function
// over the label set declared at edge registration; returning an
// unregistered label is a fatal configuration error.
type DecideFunc func(s State) string

// ConfigurationError reports invalid graph wiring. Always fatal,
// surfaced immediately, never retried.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "graph configuration: " + e.Msg
}

func configErrf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

type edge struct {
	target string

	// conditional routing; nil decide means the edge is unconditional.
	decide DecideFunc
	labels map[string]string
}

// Builder assembles a graph prior to compilation.
//
// Description:
//
//	Register nodes, wire one outgoing edge set per node, set the entry
//	node, then Compile. Compile validates the wiring and returns an
//	immutable Runnable; the builder can keep being used to compile
//	variants, but a Runnable never changes after compilation.
type Builder struct {
	name   string
	schema Schema
	nodes  map[string]NodeFunc
	edges  map[string]*edge
	entry  string
}

// New creates an empty builder for the given schema. The status and
// errors channels are required so the driver's soft-fail path always
// has somewhere to write.
func New(name string, schema Schema) *Builder {
	return &Builder{
		name:   name,
		schema: schema,
		nodes:  make(map[string]NodeFunc),
		edges:  make(map[string]*edge),
	}
}

// AddNode registers a named unit of work. Re-registering a name is a
// configuration error surfaced at Compile.
func (b *Builder) AddNode(name string, fn NodeFunc) *Builder {
	if _, dup := b.nodes[name]; dup {
		b.nodes[name] = nil // poisoned; Compile reports it
		return b
	}
	b.nodes[name] = fn
	return b
}

// AddEdge wires an unconditional edge from -> to. Use Terminal as the
// target to end the run after the node.
func (b *Builder) AddEdge(from, to string) *Builder {
	b.edges[from] = &edge{target: to}
	return b
}

// AddConditionalEdge wires a routing decision evaluated after the node
// completes. The decide function's return value is mapped through
// labels to select the next node; every label target must be a
// registered node or Terminal.
func (b *Builder) AddConditionalEdge(from string, decide DecideFunc, labels map[string]string) *Builder {
	b.edges[from] = &edge{decide: decide, labels: labels}
	return b
}

// SetEntry sets the node execution starts from.
func (b *Builder) SetEntry(name string) *Builder {
	b.entry = name
	return b
}

// Compile validates the wiring and returns the executable graph.
//
// Outputs:
//   - *Runnable: The compiled graph, ready for Invoke or Stream.
//   - error: *ConfigurationError describing the first wiring defect.
func (b *Builder) Compile() (*Runnable, error) {
	if b.schema == nil {
		return nil, configErrf("graph %q has no channel schema", b.name)
	}
	if _, ok := b.schema[ChannelStatus]; !ok {
		return nil, configErrf("graph %q schema is missing the %q channel", b.name, ChannelStatus)
	}
	if _, ok := b.schema[ChannelErrors]; !ok {
		return nil, configErrf("graph %q schema is missing the %q channel", b.name, ChannelErrors)
	}
	if b.entry == "" {
		return nil, configErrf("graph %q has no entry node", b.name)
	}
	if _, ok := b.nodes[b.entry]; !ok {
		return nil, configErrf("graph %q entry node %q is not registered", b.name, b.entry)
	}
	for name, fn := range b.nodes {
		if fn == nil {
			return nil, configErrf("node %q registered twice", name)
		}
	}
	for from, e := range b.edges {
		if _, ok := b.nodes[from]; !ok {
			return nil, configErrf("edge source %q is not a registered node", from)
		}
		if e.decide == nil {
			if err := b.checkTarget(from, e.target); err != nil {
				return nil, err
			}
			continue
		}
		if len(e.labels) == 0 {
			return nil, configErrf("conditional edge from %q declares no labels", from)
		}
		for label, target := range e.labels {
			if label == "" {
				return nil, configErrf("conditional edge from %q declares an empty label", from)
			}
			if err := b.checkTarget(from, target); err != nil {
				return nil, err
			}
		}
	}

	nodes := make(map[string]NodeFunc, len(b.nodes))
	for k, v := range b.nodes {
		nodes[k] = v
	}
	edges := make(map[string]*edge, len(b.edges))
	for k, v := range b.edges {
		edges[k] = v
	}
	return &Runnable{
		name:   b.name,
		schema: b.schema,
		nodes:  nodes,
		edges:  edges,
		entry:  b.entry,
	}, nil
}

func (b *Builder) checkTarget(from, target string) error {
	if target == Terminal {
		return nil
	}
	if _, ok := b.nodes[target]; !ok {
		return configErrf("edge from %q targets unregistered node %q", from, target)
	}
	return nil
}

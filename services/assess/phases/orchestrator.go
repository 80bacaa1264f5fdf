// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VeracityAI/VeracityFOSS/services/assess/graph"
	"github.com/VeracityAI/VeracityFOSS/services/assess/progress"
)

// Phase names, in pipeline order.
const (
	PhasePlan         = "plan"
	PhaseExtract      = "extract"
	PhaseAnalyze      = "analyze"
	PhaseRequirements = "requirements"
	PhaseGapDetect    = "gap_detect"
	PhaseRemediate    = "remediate"
	PhaseReport       = "report"
	PhaseCompare      = "compare"
)

// Routing labels for the per-phase conditional edges.
const (
	routeContinue = "continue"
	routeHalt     = "halt"
)

// Request describes one assessment run.
type Request struct {
	Framework string
	Target    string

	// FrameworkVersion, when set, is stamped on the report and used for
	// version-drift detection in the compare phase.
	FrameworkVersion string

	// Previous enables the compare phase. Nil skips comparison.
	Previous *Report
}

func initialState(req Request) graph.State {
	s := graph.State{
		ChFramework: req.Framework,
		ChTarget:    req.Target,
	}
	if req.FrameworkVersion != "" {
		s[ChData] = map[string]any{"framework_version": req.FrameworkVersion}
	}
	if req.Previous != nil {
		s[ChPrevReport] = req.Previous
	}
	return s
}

// Result is what an orchestrator run produces. Report is non-nil
// whenever Status is completed; a run that had to synthesize fallbacks
// still completes, with the synthesis recorded in Errors.
type Result struct {
	Status     string
	Report     *Report
	Comparison *Comparison
	Errors     []string
	State      graph.State
}

// phaseDef binds a phase body to its output channel, time budget, and
// fallback synthesizer. A nil fallback means the phase has no tier-3
// recovery and its failure halts the run.
type phaseDef struct {
	name     string
	channel  string
	timeout  time.Duration
	run      func(ctx context.Context, s graph.State) (graph.Partial, error)
	fallback func(s graph.State) graph.Partial
}

// Orchestrator runs the fixed assessment pipeline. Build once, run many
// times; each Run owns its state.
type Orchestrator struct {
	deps     Dependencies
	runnable *graph.Runnable
	total    int
}

// New validates dependencies, wires the pipeline graph, and compiles it.
func New(deps Dependencies) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{deps: deps.withDefaults()}

	defs := o.phaseDefs()
	o.total = len(defs)

	b := graph.New("assessment", StateSchema())
	for i, def := range defs {
		b.AddNode(def.name, o.node(def, i+1))

		switch def.name {
		case PhaseReport:
			// Compare only runs when a previous report is in state.
			b.AddConditionalEdge(def.name, decideAfterReport, map[string]string{
				routeContinue: PhaseCompare,
				routeHalt:     graph.Terminal,
			})
		case PhaseCompare:
			b.AddEdge(def.name, graph.Terminal)
		default:
			b.AddConditionalEdge(def.name, decideOutput(def.channel), map[string]string{
				routeContinue: defs[i+1].name,
				routeHalt:     graph.Terminal,
			})
		}
	}
	b.SetEntry(PhasePlan)

	runnable, err := b.Compile()
	if err != nil {
		return nil, err
	}
	o.runnable = runnable
	return o, nil
}

func (o *Orchestrator) phaseDefs() []phaseDef {
	return []phaseDef{
		{PhasePlan, ChPlan, 60 * time.Second, o.planPhase, fallbackPartial(func(s graph.State) any {
			return FallbackPlan(stateString(s, ChFramework), stateString(s, ChTarget))
		}, ChPlan)},
		{PhaseExtract, ChEvidence, 180 * time.Second, o.extractPhase, fallbackPartial(func(s graph.State) any {
			return FallbackEvidence(stateString(s, ChFramework), stateString(s, ChTarget))
		}, ChEvidence)},
		{PhaseAnalyze, ChAnalysis, 120 * time.Second, o.analyzePhase, fallbackPartial(func(s graph.State) any {
			return FallbackAnalysis(stateString(s, ChFramework))
		}, ChAnalysis)},
		{PhaseRequirements, ChRequirements, 90 * time.Second, o.requirementsPhase, fallbackPartial(func(s graph.State) any {
			return FallbackRequirements(stateString(s, ChFramework))
		}, ChRequirements)},
		{PhaseGapDetect, ChGaps, 90 * time.Second, o.gapDetectPhase, fallbackPartial(func(s graph.State) any {
			return FallbackGaps(stateString(s, ChFramework))
		}, ChGaps)},
		{PhaseRemediate, ChRemediations, 120 * time.Second, o.remediatePhase, fallbackPartial(func(s graph.State) any {
			return FallbackRemediations(stateString(s, ChFramework))
		}, ChRemediations)},
		{PhaseReport, ChReport, 90 * time.Second, o.reportPhase, func(s graph.State) graph.Partial {
			return graph.Partial{ChReport: FallbackReport(
				stateString(s, ChFramework), stateString(s, ChTarget), o.deps.now())}
		}},
		{PhaseCompare, ChComparison, 30 * time.Second, o.comparePhase, fallbackPartial(func(graph.State) any {
			return FallbackComparison()
		}, ChComparison)},
	}
}

// fallbackPartial adapts a synthesizer returning one value into a
// partial on the phase's output channel.
func fallbackPartial(synth func(graph.State) any, channel string) func(graph.State) graph.Partial {
	return func(s graph.State) graph.Partial {
		return graph.Partial{channel: synth(s)}
	}
}

// node wraps a phase body with the shared per-phase machinery: progress
// reporting, the time budget, and the three-tier outcome policy.
//
// Description:
//
//	Tier 1: the body returned a partial that populates the phase's
//	output channel. Pass it through.
//	Tier 2: the body failed and no fallback exists. Return the error;
//	the engine records it and the decide function halts the run.
//	Tier 3: the body failed, timed out, or produced nothing, and a
//	fallback exists. Synthesize it, log the substitution into the
//	errors channel, and continue. A timeout is tier 3, not a failure.
func (o *Orchestrator) node(def phaseDef, index int) graph.NodeFunc {
	return func(ctx context.Context, s graph.State) (graph.Partial, error) {
		target := stateString(s, ChTarget)
		o.deps.Reporter.Report(progress.Event{
			Target:  target,
			Phase:   def.name,
			Current: index,
			Total:   o.total,
			Message: "phase started",
		})

		pctx, cancel := context.WithTimeout(ctx, def.timeout)
		partial, err := def.run(pctx, s)
		cancel()

		if err == nil && hasOutput(partial, def.channel) {
			partial[ChCurrentStep] = def.name
			return partial, nil
		}

		if def.fallback == nil {
			if err == nil {
				err = fmt.Errorf("phase %s produced no usable output", def.name)
			}
			return nil, err
		}

		reason := "no usable output"
		if err != nil {
			reason = err.Error()
		}
		slog.Warn("Phase fell back to synthetic output",
			slog.String("phase", def.name),
			slog.String("target", target),
			slog.String("reason", reason),
		)
		fb := def.fallback(s)
		fb[ChCurrentStep] = def.name
		fb[graph.ChannelErrors] = []string{fmt.Sprintf("%s: %s (synthetic fallback used)", def.name, reason)}
		return fb, nil
	}
}

// hasOutput reports whether the partial carries a non-empty value on
// the phase's output channel.
func hasOutput(p graph.Partial, channel string) bool {
	if p == nil {
		return false
	}
	v, ok := p[channel]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case []Requirement:
		return len(t) > 0
	case []Gap:
		return len(t) > 0
	case []Remediation:
		return len(t) > 0
	case []string:
		return len(t) > 0
	default:
		return true
	}
}

// Run executes the pipeline for one request.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	rr, err := o.runnable.Invoke(ctx, initialState(req))
	if err != nil {
		// The snapshot is still worth returning for inspection.
		return resultFrom(rr), err
	}
	return resultFrom(rr), nil
}

// Stream executes the pipeline and emits one event per completed phase,
// then a final event carrying the Result.
func (o *Orchestrator) Stream(ctx context.Context, req Request) <-chan PhaseEvent {
	out := make(chan PhaseEvent)
	go func() {
		defer close(out)
		for ev := range o.runnable.Stream(ctx, initialState(req)) {
			pe := PhaseEvent{Phase: ev.Node, Err: ev.Err}
			if ev.Result != nil {
				pe.Result = resultFrom(*ev.Result)
			}
			select {
			case out <- pe:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// PhaseEvent is one streamed pipeline notification. Result is set only
// on the final event.
type PhaseEvent struct {
	Phase  string
	Result *Result
	Err    error
}

func resultFrom(rr graph.RunResult) *Result {
	return &Result{
		Status:     rr.Status,
		Report:     stateReport(rr.State),
		Comparison: stateComparison(rr.State),
		Errors:     rr.Errors(),
		State:      rr.State,
	}
}

// decideOutput routes on whether the phase's output channel holds a
// value in state. Pure: the fallback policy in the node wrapper has
// already decided what, if anything, got written.
func decideOutput(channel string) graph.DecideFunc {
	return func(s graph.State) string {
		if s[graph.ChannelStatus] == graph.StatusFailed {
			return routeHalt
		}
		if v, ok := s[channel]; ok && v != nil {
			return routeContinue
		}
		return routeHalt
	}
}

// decideAfterReport runs compare only when a previous report exists.
func decideAfterReport(s graph.State) string {
	if s[graph.ChannelStatus] == graph.StatusFailed {
		return routeHalt
	}
	if statePrevReport(s) != nil && stateReport(s) != nil {
		return routeContinue
	}
	return routeHalt
}

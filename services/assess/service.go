// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assess is the service layer: it owns the shared resources
// (run store, memory, archiver, progress sinks), launches assessment
// runs, and exposes them over HTTP. The engine itself lives in the
// subpackages; nothing here knows how a phase works.
package assess

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/VeracityAI/VeracityFOSS/services/assess/agent"
	"github.com/VeracityAI/VeracityFOSS/services/assess/archive"
	"github.com/VeracityAI/VeracityFOSS/services/assess/config"
	"github.com/VeracityAI/VeracityFOSS/services/assess/memory"
	"github.com/VeracityAI/VeracityFOSS/services/assess/phases"
	"github.com/VeracityAI/VeracityFOSS/services/assess/pool"
	"github.com/VeracityAI/VeracityFOSS/services/assess/progress"
	"github.com/VeracityAI/VeracityFOSS/services/assess/scan"
	"github.com/VeracityAI/VeracityFOSS/services/assess/store"
	"github.com/VeracityAI/VeracityFOSS/services/assess/toolclient"
	"github.com/VeracityAI/VeracityFOSS/services/llm"
)

// runBudget bounds a whole background run. Generous; individual phases
// carry their own, much tighter, budgets.
const runBudget = 30 * time.Minute

// ServiceOptions assembles a Service. Config is required; the
// collaborator fields exist so tests can inject fakes instead of the
// real providers.
type ServiceOptions struct {
	Config *config.Config

	Reasoner agent.Reasoner
	Tools    agent.ToolClient
	Memory   agent.MemoryStore

	// ExtraSinks receive progress events for every run, in addition to
	// the sinks the config enables.
	ExtraSinks []progress.Sink
}

// Service coordinates assessment runs over shared resources.
//
// Thread Safety: Service is safe for concurrent use.
type Service struct {
	cfg       *config.Config
	reasoner  agent.Reasoner
	tools     agent.ToolClient
	memory    agent.MemoryStore
	resources *pool.Registry
	runs      store.Store
	archiver  *archive.Archiver
	vault     *toolclient.Vault
	baseSinks []progress.Sink

	mu       sync.Mutex
	watchers map[string][]*progress.ChanSink
	finished map[string]struct{}
}

// NewService builds the service and its shared resources.
//
// Description:
//
//	Resources go through the pool registry so Shutdown can close them
//	in one place. Optional resources (archiver, influx, memory) are
//	skipped when unconfigured rather than erroring.
//
// Inputs:
//   - ctx: Used for client construction only.
//   - opts: Config plus optional collaborator overrides.
//
// Outputs:
//   - *Service: The ready service.
//   - error: Missing config or a required resource failing to build.
func NewService(ctx context.Context, opts ServiceOptions) (*Service, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("assess: config must not be nil")
	}
	cfg := opts.Config

	svc := &Service{
		cfg:       cfg,
		reasoner:  opts.Reasoner,
		tools:     opts.Tools,
		memory:    opts.Memory,
		resources: pool.NewRegistry(),
		baseSinks: append([]progress.Sink{progress.LogSink{}}, opts.ExtraSinks...),
		watchers:  make(map[string][]*progress.ChanSink),
		finished:  make(map[string]struct{}),
	}

	if svc.reasoner == nil {
		r, err := llm.NewReasoner(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("assess: building reasoner: %w", err)
		}
		svc.reasoner = r
	}
	if svc.tools == nil {
		svc.tools = toolclient.NewClient(cfg.Targets)
	}
	// The target token lives sealed in a memguard enclave; plaintext
	// exists only while a dial materializes it.
	svc.vault = toolclient.NewVault("", os.Getenv("VERACITY_TARGET_TOKEN"), nil)

	if svc.memory == nil && cfg.Memory.Host != "" {
		m, err := memory.New(ctx, cfg.Memory)
		if err != nil {
			slog.Warn("Memory store unavailable, runs proceed without recall",
				slog.String("host", cfg.Memory.Host),
				slog.String("error", err.Error()))
		} else {
			svc.memory = m
		}
	}

	runs, err := svc.acquireStore()
	if err != nil {
		return nil, err
	}
	svc.runs = runs

	if cfg.Archive.Bucket != "" {
		v, err := svc.resources.Acquire("archiver", func() (any, func() error, error) {
			a, err := archive.New(ctx, archive.Options{
				Bucket:    cfg.Archive.Bucket,
				Anonymous: cfg.Archive.Anonymous,
			})
			if err != nil {
				return nil, nil, err
			}
			return a, a.Close, nil
		})
		if err != nil {
			slog.Warn("Report archive unavailable, reports stay local",
				slog.String("bucket", cfg.Archive.Bucket),
				slog.String("error", err.Error()))
		} else {
			svc.archiver = v.(*archive.Archiver)
		}
	}

	if cfg.Progress.Influx.URL != "" {
		v, err := svc.resources.Acquire("influx", func() (any, func() error, error) {
			s := progress.NewInfluxSink(
				cfg.Progress.Influx.URL,
				cfg.Progress.Influx.Token,
				cfg.Progress.Influx.Org,
				cfg.Progress.Influx.Bucket,
			)
			return s, func() error { s.Close(); return nil }, nil
		})
		if err == nil {
			svc.baseSinks = append(svc.baseSinks, v.(*progress.InfluxSink))
		}
	}

	return svc, nil
}

func (s *Service) acquireStore() (store.Store, error) {
	v, err := s.resources.Acquire("runstore", func() (any, func() error, error) {
		if s.cfg.Store.Path == "" {
			m := store.NewInMemory()
			return m, m.Close, nil
		}
		b, err := store.OpenBadger(s.cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	})
	if err != nil {
		return nil, fmt.Errorf("assess: opening run store: %w", err)
	}
	return v.(store.Store), nil
}

// StartRequest begins one assessment.
type StartRequest struct {
	Framework        string `json:"framework" binding:"required"`
	FrameworkVersion string `json:"framework_version"`
	Target           string `json:"target" binding:"required"`

	// CompareWithPrevious pulls the latest stored report for the same
	// framework/target so the run ends with a comparison.
	CompareWithPrevious bool `json:"compare_with_previous"`
}

// StartRun launches an assessment in the background and returns its
// record immediately. Progress is observable via Subscribe; the final
// state lands in the run store.
func (s *Service) StartRun(ctx context.Context, req StartRequest) (*store.Record, error) {
	rec := store.NewRecord(req.Framework, req.FrameworkVersion, req.Target)
	if err := s.runs.Save(ctx, rec); err != nil {
		return nil, err
	}

	run := phases.Request{
		Framework:        req.Framework,
		FrameworkVersion: req.FrameworkVersion,
		Target:           req.Target,
	}
	if req.CompareWithPrevious {
		prev, err := s.runs.LatestReport(ctx, req.Framework, req.Target)
		if err == nil {
			run.Previous = prev
		}
	}

	// The run outlives the HTTP request that started it.
	go s.execute(context.WithoutCancel(ctx), rec, run)

	return rec, nil
}

// Run executes an assessment synchronously. The CLI path.
func (s *Service) Run(ctx context.Context, req StartRequest) (*store.Record, *phases.Result, error) {
	rec := store.NewRecord(req.Framework, req.FrameworkVersion, req.Target)
	if err := s.runs.Save(ctx, rec); err != nil {
		return nil, nil, err
	}

	run := phases.Request{
		Framework:        req.Framework,
		FrameworkVersion: req.FrameworkVersion,
		Target:           req.Target,
	}
	if req.CompareWithPrevious {
		if prev, err := s.runs.LatestReport(ctx, req.Framework, req.Target); err == nil {
			run.Previous = prev
		}
	}

	result, err := s.runOnce(ctx, rec, run)
	return rec, result, err
}

func (s *Service) execute(ctx context.Context, rec *store.Record, run phases.Request) {
	ctx, cancel := context.WithTimeout(ctx, runBudget)
	defer cancel()

	if _, err := s.runOnce(ctx, rec, run); err != nil {
		slog.Error("Assessment run failed",
			slog.String("run_id", rec.ID),
			slog.String("target", rec.Target),
			slog.String("error", err.Error()))
	}
}

func (s *Service) runOnce(ctx context.Context, rec *store.Record, run phases.Request) (*phases.Result, error) {
	defer s.closeWatchers(rec.ID)

	s.mu.Lock()
	scanOpts := s.cfg.Scan.Options()
	rateLimits := s.cfg.Scan.TargetRateLimits
	s.mu.Unlock()

	creds, err := s.vault.Materialize()
	if err != nil {
		slog.Warn("Credential enclave unreadable, connecting unauthenticated",
			slog.String("run_id", rec.ID),
			slog.String("error", err.Error()))
		creds = agent.Credentials{}
	}

	reporter := progress.NewReporter(append(s.baseSinks, s.broadcastSink(rec.ID))...)
	orch, err := phases.New(phases.Dependencies{
		Reasoner:    s.reasoner,
		Tools:       s.tools,
		Memory:      s.memory,
		Reporter:    reporter,
		Executor:    scan.NewExecutor(s.tools, reporter, scan.NewTargetLimiter(rateLimits)),
		Credentials: creds,
		Scan:        scanOpts,
	})
	if err != nil {
		rec.Status = "failed"
		rec.Errors = append(rec.Errors, err.Error())
		_ = s.runs.Save(ctx, rec)
		return nil, err
	}

	result, runErr := orch.Run(ctx, run)

	rec.Status = "failed"
	if result != nil {
		if result.Status != "" {
			rec.Status = result.Status
		}
		rec.Report = result.Report
		rec.Comparison = result.Comparison
		rec.Errors = result.Errors
	}
	if runErr != nil {
		rec.Errors = append(rec.Errors, runErr.Error())
	}
	if err := s.runs.Save(ctx, rec); err != nil {
		slog.Error("Failed to persist run outcome",
			slog.String("run_id", rec.ID),
			slog.String("error", err.Error()))
	}

	if s.archiver != nil && rec.Report != nil {
		if _, err := s.archiver.Store(ctx, rec.Report, rec.ID); err != nil {
			slog.Warn("Report archive upload failed",
				slog.String("run_id", rec.ID),
				slog.String("error", err.Error()))
		}
	}
	return result, runErr
}

// GetRun returns one run record.
func (s *Service) GetRun(ctx context.Context, id string) (*store.Record, error) {
	return s.runs.Get(ctx, id)
}

// ListRuns returns runs newest-first, optionally filtered by target.
func (s *Service) ListRuns(ctx context.Context, target string, limit int) ([]*store.Record, error) {
	return s.runs.List(ctx, target, limit)
}

// Subscribe attaches a watcher to a run's progress feed. The returned
// channel closes when the run finishes or cancel is called. Events are
// dropped, not queued, when the watcher falls behind.
func (s *Service) Subscribe(runID string) (<-chan progress.Event, func()) {
	sink := progress.NewChanSink(32)

	s.mu.Lock()
	if _, done := s.finished[runID]; done {
		// The run already ended; hand back a closed channel so the
		// caller's receive loop falls straight through.
		s.mu.Unlock()
		close(sink.C)
		return sink.C, func() {}
	}
	s.watchers[runID] = append(s.watchers[runID], sink)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		found := false
		live := s.watchers[runID][:0]
		for _, w := range s.watchers[runID] {
			if w == sink {
				found = true
				continue
			}
			live = append(live, w)
		}
		// Already gone means closeWatchers beat us; the channel is closed.
		if !found {
			return
		}
		if len(live) == 0 {
			delete(s.watchers, runID)
		} else {
			s.watchers[runID] = live
		}
		close(sink.C)
	}
	return sink.C, cancel
}

// broadcastSink fans a run's events out to its current watchers.
func (s *Service) broadcastSink(runID string) progress.Sink {
	return progress.FuncSink(func(ev progress.Event) {
		s.mu.Lock()
		watchers := append([]*progress.ChanSink(nil), s.watchers[runID]...)
		s.mu.Unlock()
		for _, w := range watchers {
			w.Report(ev)
		}
	})
}

func (s *Service) closeWatchers(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished[runID] = struct{}{}
	for _, w := range s.watchers[runID] {
		close(w.C)
	}
	delete(s.watchers, runID)
}

// ApplyScanConfig swaps the scan tuning for future runs. Runs already
// in flight keep the options they started with.
func (s *Service) ApplyScanConfig(sc config.ScanConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Scan = sc
}

// Shutdown closes every shared resource.
func (s *Service) Shutdown() error {
	return s.resources.Shutdown()
}

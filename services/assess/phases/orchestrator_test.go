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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VeracityAI/VeracityFOSS/services/assess/agent"
	"github.com/VeracityAI/VeracityFOSS/services/assess/graph"
	"github.com/VeracityAI/VeracityFOSS/services/assess/scan"
)

// fakeReasoner replies per system prompt. A missing entry returns
// ErrReasoningUnavailable, which is how tests simulate a dead model.
type fakeReasoner struct {
	replies map[string]string
	calls   int
}

func (f *fakeReasoner) Infer(_ context.Context, systemPrompt, _ string, _ bool) (string, error) {
	f.calls++
	if reply, ok := f.replies[systemPrompt]; ok {
		return reply, nil
	}
	return "", agent.ErrReasoningUnavailable
}

// scriptedReasoner returns every canned phase reply.
func scriptedReasoner() *fakeReasoner {
	return &fakeReasoner{replies: map[string]string{
		systemPlanner: `{"objectives": ["inventory the estate"],
			"tasks": [
				{"id": "t1", "tool_name": "repo_list_repositories", "purpose": "list repos"},
				{"id": "t2", "tool_name": "cloud_list_resources", "purpose": "list resources"}
			]}`,
		systemAnalyst: `{"observations": ["single repository, no branch protection"],
			"risk_areas": ["change management"]}`,
		systemAuditor: `{"requirements": [
			{"id": "CC8.1", "control": "Change management", "description": "Changes are approved", "severity": "high"}]}`,
		systemGapAnalyst: `{"gaps": [
			{"requirement_id": "CC8.1", "severity": "high", "description": "no branch protection", "evidence": ["repo main"]}]}`,
		systemRemediator: `{"remediations": [
			{"requirement_id": "CC8.1", "action": "enable branch protection",
			 "patch": "--- a/settings.yml\n+++ b/settings.yml\n@@ -1,1 +1,1 @@\n-protected: false\n+protected: true\n"}]}`,
		systemReporter: "One high-severity change-management gap was found.",
	}}
}

type stubSession struct{ target string }

func (s *stubSession) Target() string { return s.target }
func (s *stubSession) Close() error   { return nil }

// stubToolClient advertises a fixed capability set and answers every
// invoke with a small text payload.
type stubToolClient struct {
	capabilities []string
	connectErr   error
}

func (c *stubToolClient) Connect(_ context.Context, target string, _ agent.Credentials) (agent.Session, error) {
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	return &stubSession{target: target}, nil
}

func (c *stubToolClient) ListCapabilities(context.Context, agent.Session) ([]string, error) {
	return c.capabilities, nil
}

func (c *stubToolClient) Invoke(_ context.Context, _ agent.Session, capability string, _ map[string]any) (agent.RawToolResult, error) {
	return agent.TextResult("result from " + capability), nil
}

// recordingMemory captures remembers so tests can assert on them.
type recordingMemory struct {
	remembered []string
}

func (m *recordingMemory) Remember(_ context.Context, text, _ string, _ []string) string {
	m.remembered = append(m.remembered, text)
	return "mem-1"
}

func (m *recordingMemory) Recall(context.Context, string, agent.RecallFilters, int) []agent.MemoryHit {
	return []agent.MemoryHit{{Text: "previous run found stale IAM keys"}}
}

func fastScan() scan.Options {
	return scan.Options{
		Depth:            scan.DepthComprehensive,
		WaveDelay:        time.Millisecond,
		TaskTimeout:      time.Second,
		RateLimitBackoff: time.Millisecond,
		RetryBackoff:     time.Millisecond,
	}
}

func testDeps(r agent.Reasoner, t agent.ToolClient) Dependencies {
	return Dependencies{
		Reasoner: r,
		Tools:    t,
		Scan:     fastScan(),
		now:      func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	var cfgErr *graph.ConfigurationError

	_, err := New(Dependencies{Tools: &stubToolClient{}})
	require.ErrorAs(t, err, &cfgErr)

	_, err = New(Dependencies{Reasoner: scriptedReasoner()})
	require.ErrorAs(t, err, &cfgErr)
}

func TestRun_HappyPath(t *testing.T) {
	mem := &recordingMemory{}
	deps := testDeps(scriptedReasoner(), &stubToolClient{
		capabilities: []string{"repo_list_repositories", "cloud_list_resources"},
	})
	deps.Memory = mem

	o, err := New(deps)
	require.NoError(t, err)

	res, err := o.Run(context.Background(), Request{Framework: "soc2", Target: "acme-prod"})
	require.NoError(t, err)

	assert.Equal(t, graph.StatusCompleted, res.Status)
	require.NotNil(t, res.Report)
	assert.False(t, res.Report.Synthetic)
	assert.Equal(t, "soc2", res.Report.Framework)
	assert.Equal(t, "One high-severity change-management gap was found.", res.Report.Summary)
	require.Len(t, res.Report.Gaps, 1)
	assert.Equal(t, "CC8.1", res.Report.Gaps[0].RequirementID)
	require.Len(t, res.Report.Remediations, 1)
	assert.True(t, res.Report.Remediations[0].PatchValid, "well-formed diff must validate")
	assert.Empty(t, res.Errors)
	assert.Nil(t, res.Comparison, "no previous report, no comparison")
	assert.Len(t, mem.remembered, 1, "report summary is remembered")
}

// A dead reasoner must not stop the pipeline: every reasoning phase
// falls back to its synthetic minimum and the run still completes with
// a report.
func TestRun_DeadReasonerStillCompletes(t *testing.T) {
	deps := testDeps(&fakeReasoner{}, &stubToolClient{
		capabilities: []string{"repo_list_repositories", "cloud_list_resources", "ticket_search"},
	})

	o, err := New(deps)
	require.NoError(t, err)

	res, err := o.Run(context.Background(), Request{Framework: "soc2", Target: "acme-prod"})
	require.NoError(t, err)

	assert.Equal(t, graph.StatusCompleted, res.Status)
	require.NotNil(t, res.Report)
	assert.NotEmpty(t, res.Report.Requirements, "baseline requirements stand in")
	assert.NotEmpty(t, res.Report.Gaps)
	assert.NotEmpty(t, res.Errors, "every substitution is on the record")
}

// An unreachable target degrades, it does not fail: the synthetic
// connection-failure outcome flows through extraction as evidence and
// the final report still materializes.
func TestRun_UnreachableTargetStillCompletes(t *testing.T) {
	deps := testDeps(scriptedReasoner(), &stubToolClient{connectErr: agent.ErrConnection})

	o, err := New(deps)
	require.NoError(t, err)

	res, err := o.Run(context.Background(), Request{Framework: "soc2", Target: "darkhost"})
	require.NoError(t, err)

	assert.Equal(t, graph.StatusCompleted, res.Status)
	require.NotNil(t, res.Report)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "connection")
}

func TestRun_CompareRunsOnlyWithPreviousReport(t *testing.T) {
	prev := &Report{
		Framework:        "soc2",
		FrameworkVersion: "2022.1",
		Target:           "acme-prod",
		Gaps: []Gap{
			{RequirementID: "CC6.1", Severity: "high"},
			{RequirementID: "CC8.1", Severity: "high"},
		},
	}
	deps := testDeps(scriptedReasoner(), &stubToolClient{
		capabilities: []string{"repo_list_repositories", "cloud_list_resources"},
	})

	o, err := New(deps)
	require.NoError(t, err)

	res, err := o.Run(context.Background(), Request{
		Framework:        "soc2",
		Target:           "acme-prod",
		FrameworkVersion: "2023.1",
		Previous:         prev,
	})
	require.NoError(t, err)

	require.NotNil(t, res.Comparison)
	assert.Equal(t, "newer", res.Comparison.VersionDrift)
	assert.Empty(t, res.Comparison.NewGaps, "CC8.1 was already open")
	assert.Equal(t, []string{"CC6.1"}, res.Comparison.ResolvedGaps)
}

func TestStream_EmitsPhaseEventsThenResult(t *testing.T) {
	deps := testDeps(scriptedReasoner(), &stubToolClient{
		capabilities: []string{"repo_list_repositories", "cloud_list_resources"},
	})
	o, err := New(deps)
	require.NoError(t, err)

	var phases []string
	var final *Result
	for ev := range o.Stream(context.Background(), Request{Framework: "soc2", Target: "acme-prod"}) {
		if ev.Result != nil {
			final = ev.Result
			continue
		}
		phases = append(phases, ev.Phase)
	}

	assert.Equal(t, []string{
		PhasePlan, PhaseExtract, PhaseAnalyze, PhaseRequirements,
		PhaseGapDetect, PhaseRemediate, PhaseReport,
	}, phases)
	require.NotNil(t, final)
	assert.Equal(t, graph.StatusCompleted, final.Status)
}

func TestDecideOutput_HaltsOnFailedStatus(t *testing.T) {
	decide := decideOutput(ChPlan)

	s := graph.State{graph.ChannelStatus: graph.StatusFailed, ChPlan: &Plan{}}
	assert.Equal(t, routeHalt, decide(s))

	s = graph.State{ChPlan: &Plan{}}
	assert.Equal(t, routeContinue, decide(s))

	s = graph.State{}
	assert.Equal(t, routeHalt, decide(s))
}

func TestValidPatch(t *testing.T) {
	good := "--- a/x\n+++ b/x\n@@ -1,1 +1,1 @@\n-a\n+b\n"
	assert.True(t, validPatch(good))
	assert.False(t, validPatch("just some prose about fixing things"))
	assert.False(t, validPatch(""))
}

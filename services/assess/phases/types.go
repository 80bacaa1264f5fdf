// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package phases wires the fixed assessment pipeline
// (Plan -> Extract -> Analyze -> Requirements -> Gap-detect ->
// Remediate -> Report -> Compare) onto the graph engine and supplies
// the conditional-routing and fallback policy that keeps the pipeline
// moving: a phase with no usable output gets a deterministic synthetic
// minimum, so downstream phases never see an empty required input
// unless the run is truly blocked.
package phases

import (
	"time"

	"github.com/VeracityAI/VeracityFOSS/services/assess/graph"
	"github.com/VeracityAI/VeracityFOSS/services/assess/scan"
)

// Channel names of the run state.
const (
	ChFramework    = "framework"
	ChTarget       = "target"
	ChCurrentStep  = "current_step"
	ChPlan         = "plan"
	ChEvidence     = "evidence"
	ChAnalysis     = "analysis"
	ChRequirements = "requirements"
	ChGaps         = "gaps"
	ChRemediations = "remediations"
	ChReport       = "report"
	ChComparison   = "comparison"
	ChPrevReport   = "previous_report"
	ChToolLog      = "tool_log"
	ChData         = "data"
)

// StateSchema declares every channel and its reducer. Scalars replace,
// logs and accumulated extraction results append, the free-form bag
// shallow-merges.
func StateSchema() graph.Schema {
	return graph.Schema{
		graph.ChannelStatus: graph.Replace,
		graph.ChannelErrors: graph.Append,
		ChFramework:         graph.Replace,
		ChTarget:            graph.Replace,
		ChCurrentStep:       graph.Replace,
		ChPlan:              graph.Replace,
		ChEvidence:          graph.Append,
		ChAnalysis:          graph.Replace,
		ChRequirements:      graph.Replace,
		ChGaps:              graph.Replace,
		ChRemediations:      graph.Replace,
		ChReport:            graph.Replace,
		ChComparison:        graph.Replace,
		ChPrevReport:        graph.Replace,
		ChToolLog:           graph.Append,
		ChData:              graph.ShallowMerge,
	}
}

// Plan is the first phase's output: what to look at and which tool
// invocations to make.
type Plan struct {
	Framework  string      `json:"framework"`
	Target     string      `json:"target"`
	Objectives []string    `json:"objectives"`
	Tasks      []scan.Task `json:"tasks"`
	Synthetic  bool        `json:"synthetic,omitempty"`
}

// Analysis summarizes the extracted evidence against the framework.
type Analysis struct {
	Framework    string   `json:"framework"`
	Observations []string `json:"observations"`
	RiskAreas    []string `json:"risk_areas"`
	Synthetic    bool     `json:"synthetic,omitempty"`
}

// Requirement is one control the framework demands.
type Requirement struct {
	ID          string `json:"id"`
	Control     string `json:"control"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// Gap is one requirement the evidence does not satisfy.
type Gap struct {
	RequirementID string   `json:"requirement_id"`
	Severity      string   `json:"severity"`
	Description   string   `json:"description"`
	Evidence      []string `json:"evidence,omitempty"`
}

// Remediation proposes how to close a gap. Patch, when present, is a
// unified diff the remediate phase has already validated for shape.
type Remediation struct {
	RequirementID string `json:"requirement_id"`
	Action        string `json:"action"`
	Patch         string `json:"patch,omitempty"`
	PatchValid    bool   `json:"patch_valid,omitempty"`
}

// Report is the terminal artifact of one assessment.
type Report struct {
	Framework        string        `json:"framework"`
	FrameworkVersion string        `json:"framework_version,omitempty"`
	Target           string        `json:"target"`
	GeneratedAt      time.Time     `json:"generated_at"`
	Summary          string        `json:"summary"`
	Requirements     []Requirement `json:"requirements"`
	Gaps             []Gap         `json:"gaps"`
	Remediations     []Remediation `json:"remediations"`
	Synthetic        bool          `json:"synthetic,omitempty"`
}

// Comparison relates the current report to a previous one.
type Comparison struct {
	PreviousVersion string   `json:"previous_version,omitempty"`
	CurrentVersion  string   `json:"current_version,omitempty"`
	VersionDrift    string   `json:"version_drift,omitempty"` // older, same, newer
	NewGaps         []string `json:"new_gaps"`
	ResolvedGaps    []string `json:"resolved_gaps"`
	Summary         string   `json:"summary"`
}

// Typed accessors over the untyped state bag. Readers tolerate absent
// or mistyped values by returning the zero value; the fallback policy
// makes missing inputs impossible on the happy path anyway.

func stateString(s graph.State, key string) string {
	v, _ := s[key].(string)
	return v
}

func statePlan(s graph.State) *Plan {
	v, _ := s[ChPlan].(*Plan)
	return v
}

func stateEvidence(s graph.State) []scan.Evidence {
	v, _ := s[ChEvidence].([]scan.Evidence)
	return v
}

func stateAnalysis(s graph.State) *Analysis {
	v, _ := s[ChAnalysis].(*Analysis)
	return v
}

func stateRequirements(s graph.State) []Requirement {
	v, _ := s[ChRequirements].([]Requirement)
	return v
}

func stateGaps(s graph.State) []Gap {
	v, _ := s[ChGaps].([]Gap)
	return v
}

func stateRemediations(s graph.State) []Remediation {
	v, _ := s[ChRemediations].([]Remediation)
	return v
}

func stateReport(s graph.State) *Report {
	v, _ := s[ChReport].(*Report)
	return v
}

func stateComparison(s graph.State) *Comparison {
	v, _ := s[ChComparison].(*Comparison)
	return v
}

func statePrevReport(s graph.State) *Report {
	v, _ := s[ChPrevReport].(*Report)
	return v
}

// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	progressbar "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/VeracityAI/VeracityFOSS/services/assess"
	"github.com/VeracityAI/VeracityFOSS/services/assess/config"
	"github.com/VeracityAI/VeracityFOSS/services/assess/progress"
	"github.com/VeracityAI/VeracityFOSS/services/assess/store"
)

var (
	assessFramework string
	assessVersion   string
	assessTarget    string
	assessDepth     string
	assessCompare   bool
	assessJSON      bool
)

func newAssessCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Run one assessment in the foreground",
		RunE:  runAssess,
	}
	cmd.Flags().StringVar(&assessFramework, "framework", "", "Compliance framework (soc2, iso27001, gdpr, hipaa, pci-dss)")
	cmd.Flags().StringVar(&assessVersion, "framework-version", "", "Framework version for drift detection")
	cmd.Flags().StringVar(&assessTarget, "target", "", "Target system name from the config's targets map")
	cmd.Flags().StringVar(&assessDepth, "depth", "", "Scan depth: quick, standard, or comprehensive")
	cmd.Flags().BoolVar(&assessCompare, "compare", false, "Compare against the latest stored report")
	cmd.Flags().BoolVar(&assessJSON, "json", false, "Print the full run record as JSON")
	_ = cmd.MarkFlagRequired("framework")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func runAssess(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if assessDepth != "" {
		cfg.Scan.Depth = assessDepth
	}

	interactive := isatty.IsTerminal(os.Stdout.Fd())

	// A comprehensive scan invokes every advertised capability and can
	// hammer a production target; make the operator say so.
	if cfg.Scan.Depth == "comprehensive" && interactive {
		proceed := false
		confirm := huh.NewConfirm().
			Title("Run a comprehensive scan?").
			Description(fmt.Sprintf("This invokes every capability %q advertises, including slow ones.", assessTarget)).
			Affirmative("Run it").
			Negative("Cancel").
			Value(&proceed)
		if err := confirm.Run(); err != nil {
			return err
		}
		if !proceed {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	ctx := cmd.Context()
	svc, err := assess.NewService(ctx, assess.ServiceOptions{Config: cfg})
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Shutdown(); err != nil {
			slog.Warn("Service shutdown failed", slog.String("error", err.Error()))
		}
	}()

	req := assess.StartRequest{
		Framework:           assessFramework,
		FrameworkVersion:    assessVersion,
		Target:              assessTarget,
		CompareWithPrevious: assessCompare,
	}

	rec, err := svc.StartRun(ctx, req)
	if err != nil {
		return err
	}
	events, unsub := svc.Subscribe(rec.ID)
	defer unsub()

	if interactive && !assessJSON {
		if err := watchWithTUI(events); err != nil {
			return err
		}
	} else {
		for ev := range events {
			slog.Info("Progress",
				slog.String("phase", ev.Phase),
				slog.Int("current", ev.Current),
				slog.Int("total", ev.Total),
				slog.String("message", ev.Message))
		}
	}

	// The watcher channel closed, so the record is final.
	final, err := svc.GetRun(ctx, rec.ID)
	if err != nil {
		return err
	}

	if assessJSON {
		out, err := json.MarshalIndent(final, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	printSummary(final)
	if final.Status != "completed" {
		return fmt.Errorf("assessment %s %s", final.ID, final.Status)
	}
	return nil
}

// ---- progress TUI ----

type progressMsg progress.Event

type runDoneMsg struct{}

type assessTUI struct {
	bar     progressbar.Model
	events  <-chan progress.Event
	phase   string
	message string
	current int
	total   int
}

func newAssessTUI(events <-chan progress.Event) assessTUI {
	return assessTUI{
		bar:    progressbar.New(progressbar.WithDefaultGradient()),
		events: events,
	}
}

func waitForEvent(events <-chan progress.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return runDoneMsg{}
		}
		return progressMsg(ev)
	}
}

func (m assessTUI) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m assessTUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.phase = msg.Phase
		m.message = msg.Message
		m.current = msg.Current
		m.total = msg.Total
		var cmd tea.Cmd
		if m.total > 0 {
			cmd = m.bar.SetPercent(float64(m.current) / float64(m.total))
		}
		return m, tea.Batch(cmd, waitForEvent(m.events))
	case runDoneMsg:
		return m, tea.Quit
	case progressbar.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progressbar.Model)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = msg.Width - 8
	}
	return m, nil
}

var (
	phaseStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

func (m assessTUI) View() string {
	if m.phase == "" {
		return dimStyle.Render("Starting assessment...") + "\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", phaseStyle.Render(m.phase), dimStyle.Render(fmt.Sprintf("(%d/%d)", m.current, m.total)))
	b.WriteString(m.bar.View())
	b.WriteString("\n")
	if m.message != "" {
		b.WriteString(dimStyle.Render(m.message))
		b.WriteString("\n")
	}
	return b.String()
}

func watchWithTUI(events <-chan progress.Event) error {
	p := tea.NewProgram(newAssessTUI(events))
	_, err := p.Run()
	return err
}

// ---- summary rendering ----

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func printSummary(rec *store.Record) {
	fmt.Println()
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s assessment of %s", rec.Framework, rec.Target)))

	status := okStyle.Render(rec.Status)
	if rec.Status != "completed" {
		status = badStyle.Render(rec.Status)
	}
	fmt.Printf("Run:    %s\nStatus: %s\n", rec.ID, status)

	if rec.Report != nil {
		fmt.Printf("\n%s\n", rec.Report.Summary)
		fmt.Printf("\nRequirements: %d  Gaps: %d  Remediations: %d\n",
			len(rec.Report.Requirements), len(rec.Report.Gaps), len(rec.Report.Remediations))
		for _, gap := range rec.Report.Gaps {
			sev := gap.Severity
			switch sev {
			case "critical", "high":
				sev = badStyle.Render(sev)
			case "medium":
				sev = warnStyle.Render(sev)
			}
			fmt.Printf("  [%s] %s: %s\n", sev, gap.RequirementID, gap.Description)
		}
	}

	if rec.Comparison != nil {
		fmt.Printf("\nSince last run: %s\n", rec.Comparison.Summary)
	}

	if len(rec.Errors) > 0 {
		fmt.Println()
		fmt.Println(warnStyle.Render("Degradations during this run:"))
		for _, e := range rec.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
}

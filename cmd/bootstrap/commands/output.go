package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/stores"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#13B9FD"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F44336"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// progressPrinter prints one line per finished install.
func progressPrinter(w io.Writer) telemetry.EventSubscriber {
	return func(event telemetry.Event) {
		switch event.Type {
		case telemetry.EventTypeInstallSucceeded:
			fmt.Fprintf(w, "%s %s %s\n", successStyle.Render("✓"), event.Identifier, mutedStyle.Render(event.Message))
		case telemetry.EventTypeInstallFailed:
			style := failureStyle
			if event.Level == telemetry.EventLevelWarning {
				style = warnStyle
			}
			fmt.Fprintf(w, "%s %s %s\n", style.Render("✗"), event.Identifier, mutedStyle.Render(event.Message))
		}
	}
}

func printReport(w io.Writer, report *engine.Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Setup "+string(report.Status)))
	if report.ScaffoldError != "" {
		fmt.Fprintf(w, "%s layout: %s\n", failureStyle.Render("✗"), report.ScaffoldError)
	}
	for _, phase := range []*engine.PhaseReport{report.Assets, report.Packages} {
		if phase != nil {
			printPhase(w, phase)
		}
	}
	fmt.Fprintln(w, report.Summary())
}

func printPhase(w io.Writer, phase *engine.PhaseReport) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render(strings.ToUpper(string(phase.Kind))))

	if phase.Skipped {
		fmt.Fprintf(w, "%s skipped: %s\n", warnStyle.Render("!"), phase.SkipReason)
		return
	}

	t := newTable("IDENTIFIER", "STATUS", "DETAIL")
	for _, o := range phase.Succeeded {
		t.Row(o.Identifier, successStyle.Render(string(o.Status)), o.ResolvedName)
	}
	for _, o := range phase.Failed {
		t.Row(o.Identifier, failureStyle.Render(string(o.Status)), o.Message)
	}
	for _, id := range phase.AlreadyInstalled {
		t.Row(id, mutedStyle.Render("installed"), "already installed")
	}
	for _, id := range phase.Denied {
		t.Row(id, warnStyle.Render("denied"), "rejected by policy")
	}

	if phase.Requested == 0 {
		fmt.Fprintln(w, mutedStyle.Render("nothing requested"))
		return
	}
	fmt.Fprintln(w, t.Render())
}

func printPlan(w io.Writer, plan *engine.SetupPlan) {
	for _, phase := range []*engine.PhaseReport{plan.Assets, plan.Packages} {
		fmt.Fprintln(w, titleStyle.Render(strings.ToUpper(string(phase.Kind))))
		if phase.Skipped {
			fmt.Fprintf(w, "%s skipped: %s\n\n", warnStyle.Render("!"), phase.SkipReason)
			continue
		}

		t := newTable("IDENTIFIER", "ACTION")
		for _, id := range phase.Submitted {
			t.Row(id, successStyle.Render("install"))
		}
		for _, id := range phase.AlreadyInstalled {
			t.Row(id, mutedStyle.Render("skip (installed)"))
		}
		for _, id := range phase.Denied {
			t.Row(id, warnStyle.Render("skip (denied)"))
		}
		fmt.Fprintln(w, t.Render())
		fmt.Fprintln(w)
	}
}

func printRuns(w io.Writer, runs []*stores.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no runs recorded"))
		return
	}

	t := newTable("RUN", "COMMAND", "STATUS", "STARTED", "DURATION", "ERROR")
	for _, r := range runs {
		duration := "-"
		if r.CompletedAt != nil {
			duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		errMsg := ""
		if r.Error != nil {
			errMsg = *r.Error
		}
		t.Row(r.ID, r.Command, statusStyle(string(r.Status)).Render(string(r.Status)),
			r.StartedAt.Local().Format(time.DateTime), duration, errMsg)
	}
	fmt.Fprintln(w, t.Render())
}

func printRecords(w io.Writer, records []*stores.InstallRecord) {
	t := newTable("KIND", "IDENTIFIER", "ORIGIN", "STATUS", "DETAIL")
	for _, r := range records {
		detail := ""
		switch {
		case r.Resolved != nil:
			detail = *r.Resolved
		case r.Message != nil:
			detail = *r.Message
		}
		if r.ErrorCode != nil {
			detail = fmt.Sprintf("[%s] %s", *r.ErrorCode, detail)
		}
		t.Row(string(r.Kind), r.Identifier, string(r.Origin),
			statusStyle(string(r.Status)).Render(string(r.Status)), detail)
	}
	fmt.Fprintln(w, t.Render())
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case string(engine.StatusSucceeded), string(engine.RunStatusCompleted):
		return successStyle
	case string(engine.StatusFailed), string(engine.RunStatusCancelled):
		return failureStyle
	case string(engine.StatusSkipped), string(engine.RunStatusPartial):
		return warnStyle
	default:
		return lipgloss.NewStyle()
	}
}

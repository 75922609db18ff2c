package status

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robotdad/amplifier-collection-recipes/internal/session"
)

// FormatOptions controls output formatting.
type FormatOptions struct {
	NoColor bool
	Quiet   bool
}

// FormatDetailedSession formats a single session with full details.
func FormatDetailedSession(summary *SessionSummary, opts FormatOptions) string {
	var b strings.Builder

	b.WriteString(formatHeader(summary, opts))
	b.WriteString("\n\n")

	b.WriteString(formatProgress(summary, opts))
	b.WriteString("\n")

	if len(summary.Approvals) > 0 {
		b.WriteString("\n")
		b.WriteString(formatApprovals(summary, opts))
	}

	if summary.Pending != nil {
		b.WriteString("\n")
		b.WriteString(formatPending(summary, opts))
	}

	if summary.Error != "" {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%sError:%s %s\n",
			getColor("red", opts.NoColor), resetColor(opts.NoColor), summary.Error))
	}

	return b.String()
}

// FormatSessionList formats a list of sessions.
func FormatSessionList(summaries []*SessionSummary, opts FormatOptions) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Found %d session(s):\n\n", len(summaries)))

	// Sort by start time (newest first)
	sorted := make([]*SessionSummary, len(summaries))
	copy(sorted, summaries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartedAt.After(sorted[j].StartedAt)
	})

	for i, summary := range sorted {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(formatListItem(summary, opts))
	}

	return b.String()
}

func formatHeader(summary *SessionSummary, opts FormatOptions) string {
	var b strings.Builder

	statusIcon := getStatusIcon(summary.Status)
	statusColor := getStatusColor(summary.Status, opts.NoColor)

	b.WriteString(fmt.Sprintf("Session:  %s\n", summary.SessionID))
	recipe := summary.Recipe
	if summary.Version != "" {
		recipe += " v" + summary.Version
	}
	b.WriteString(fmt.Sprintf("Recipe:   %s\n", recipe))
	b.WriteString(fmt.Sprintf("Project:  %s\n", summary.ProjectPath))
	b.WriteString(fmt.Sprintf("Status:   %s%s %s%s\n",
		statusColor, statusIcon, summary.Status, resetColor(opts.NoColor)))
	b.WriteString(fmt.Sprintf("Started:  %s", formatTime(summary.StartedAt)))

	if summary.Status == session.StatusCompleted || summary.Status == session.StatusFailed {
		duration := summary.UpdatedAt.Sub(summary.StartedAt)
		b.WriteString(fmt.Sprintf("\nFinished: %s (took %s)",
			formatTime(summary.UpdatedAt), formatDuration(duration)))
	} else {
		elapsed := time.Since(summary.StartedAt)
		b.WriteString(fmt.Sprintf(" (%s ago)", formatDuration(elapsed)))
	}

	return b.String()
}

func formatProgress(summary *SessionSummary, opts FormatOptions) string {
	var b strings.Builder

	stats := summary.StepStats
	completed := stats.Done + stats.Skipped
	total := stats.Total

	var percentage int
	if total > 0 {
		percentage = (completed * 100) / total
	}

	// Progress bar (25 characters wide)
	barWidth := 25
	filled := (percentage * barWidth) / 100
	empty := barWidth - filled

	progressBar := strings.Repeat("█", filled) + strings.Repeat("░", empty)

	b.WriteString(fmt.Sprintf("Progress: %s %d%% (%d/%d steps)\n",
		progressBar, percentage, completed, total))

	parts := []string{}
	if stats.Done > 0 {
		parts = append(parts, fmt.Sprintf("%s✓ %d done%s",
			getColor("green", opts.NoColor), stats.Done, resetColor(opts.NoColor)))
	}
	if stats.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%s⊘ %d skipped%s",
			getColor("gray", opts.NoColor), stats.Skipped, resetColor(opts.NoColor)))
	}
	if stats.Remaining > 0 {
		parts = append(parts, fmt.Sprintf("%s○ %d remaining%s",
			getColor("gray", opts.NoColor), stats.Remaining, resetColor(opts.NoColor)))
	}

	if len(parts) > 0 {
		b.WriteString("\nSteps:    ")
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString("\n")
	}

	return b.String()
}

func formatApprovals(summary *SessionSummary, opts FormatOptions) string {
	var b strings.Builder

	b.WriteString("Approvals:\n")
	for _, gate := range summary.Approvals {
		icon := "?"
		color := ""
		switch gate.Status {
		case session.ApprovalApproved:
			icon, color = "✓", getColor("green", opts.NoColor)
		case session.ApprovalDenied, session.ApprovalTimeout:
			icon, color = "✗", getColor("red", opts.NoColor)
		case session.ApprovalPending:
			icon, color = "●", getColor("yellow", opts.NoColor)
		}
		b.WriteString(fmt.Sprintf("  %s%s %s%s: %s\n",
			color, icon, gate.Stage, resetColor(opts.NoColor), gate.Status))
	}

	return b.String()
}

func formatPending(summary *SessionSummary, opts FormatOptions) string {
	var b strings.Builder

	p := summary.Pending
	b.WriteString(fmt.Sprintf("%sAwaiting approval:%s %s\n",
		getColor("yellow", opts.NoColor), resetColor(opts.NoColor), p.Stage))
	if p.Prompt != "" {
		b.WriteString(fmt.Sprintf("  %s\n", p.Prompt))
	}
	b.WriteString(fmt.Sprintf("  Requested: %s (%s ago)\n",
		formatTime(p.RequestedAt), formatDuration(p.Waiting)))
	if !p.TimeoutAt.IsZero() {
		b.WriteString(fmt.Sprintf("  Timeout:   %s (default: %s)\n",
			formatTime(p.TimeoutAt), p.Default))
	}

	return b.String()
}

func formatListItem(summary *SessionSummary, opts FormatOptions) string {
	var b strings.Builder

	statusIcon := getStatusIcon(summary.Status)
	statusColor := getStatusColor(summary.Status, opts.NoColor)

	completed := summary.StepStats.Done + summary.StepStats.Skipped

	b.WriteString(fmt.Sprintf("%s%s %s%s",
		statusColor, statusIcon, summary.SessionID, resetColor(opts.NoColor)))

	if !opts.Quiet {
		b.WriteString(fmt.Sprintf("\n  Recipe:   %s", summary.Recipe))
		b.WriteString(fmt.Sprintf("\n  Status:   %s%s%s",
			statusColor, summary.Status, resetColor(opts.NoColor)))
		b.WriteString(fmt.Sprintf("\n  Progress: %d/%d steps", completed, summary.StepStats.Total))

		if summary.Pending != nil {
			b.WriteString(fmt.Sprintf("\n  Awaiting: %s", summary.Pending.Stage))
		}

		if summary.Status == session.StatusCompleted || summary.Status == session.StatusFailed {
			duration := summary.UpdatedAt.Sub(summary.StartedAt)
			b.WriteString(fmt.Sprintf("\n  Duration: %s", formatDuration(duration)))
		} else {
			elapsed := time.Since(summary.StartedAt)
			b.WriteString(fmt.Sprintf("\n  Elapsed:  %s", formatDuration(elapsed)))
		}
	}

	return b.String()
}

// Formatting helpers

func getStatusIcon(status string) string {
	switch status {
	case session.StatusRunning:
		return "●"
	case session.StatusPaused:
		return "◐"
	case session.StatusCompleted:
		return "✓"
	case session.StatusFailed:
		return "✗"
	default:
		return "?"
	}
}

func getStatusColor(status string, noColor bool) string {
	if noColor {
		return ""
	}

	switch status {
	case session.StatusRunning:
		return "\033[33m" // Yellow
	case session.StatusPaused:
		return "\033[36m" // Cyan
	case session.StatusCompleted:
		return "\033[32m" // Green
	case session.StatusFailed:
		return "\033[31m" // Red
	default:
		return ""
	}
}

func getColor(name string, noColor bool) string {
	if noColor {
		return ""
	}

	switch name {
	case "red":
		return "\033[31m"
	case "green":
		return "\033[32m"
	case "yellow":
		return "\033[33m"
	case "gray":
		return "\033[90m"
	default:
		return ""
	}
}

func resetColor(noColor bool) string {
	if noColor {
		return ""
	}
	return "\033[0m"
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

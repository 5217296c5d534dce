package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/CodeMonkeyCybersecurity/x9/internal/database"
	"github.com/CodeMonkeyCybersecurity/x9/internal/dispatch"
	"github.com/CodeMonkeyCybersecurity/x9/internal/worker"
	"github.com/fatih/color"
)

func printBanner(w io.Writer) {
	fmt.Fprintln(w, color.New(color.FgCyan, color.Bold).Sprint("x9")+
		color.New(color.FgWhite).Sprintf(" %s  parameter mutation engine", Version))
	fmt.Fprintln(w)
}

func colorStatus(status database.RunStatus) string {
	switch status {
	case database.RunCompleted:
		return color.New(color.FgGreen).Sprint("✓ " + string(status))
	case database.RunRunning:
		return color.New(color.FgYellow).Sprint("⟳ " + string(status))
	case database.RunFailed:
		return color.New(color.FgRed).Sprint("✗ " + string(status))
	case database.RunInterrupted:
		return color.New(color.FgMagenta).Sprint("⏸ " + string(status))
	default:
		return string(status)
	}
}

// runSummary is the end-of-run report printed to stderr.
type runSummary struct {
	Stats    *worker.Stats
	Targets  targetReport
	RunID    string
	Seen     int
	Stored   int
	Dispatch *dispatch.Stats
}

func printSummary(w io.Writer, s runSummary) {
	if s.Stats == nil {
		return
	}
	label := color.New(color.FgWhite).SprintFunc()
	value := color.New(color.FgCyan).SprintFunc()

	fmt.Fprintln(w)
	fmt.Fprintln(w, color.New(color.Bold).Sprint("Summary"))
	fmt.Fprintf(w, "  %s %s\n", label("Targets:   "), value(s.Stats.URLs))
	fmt.Fprintf(w, "  %s %s\n", label("Units:     "), value(fmt.Sprintf("%d/%d", s.Stats.Completed, s.Stats.Units)))
	fmt.Fprintf(w, "  %s %s\n", label("Candidates:"), color.New(color.FgGreen, color.Bold).Sprint(s.Stats.Candidates))
	if s.Stats.Duplicates > 0 {
		fmt.Fprintf(w, "  %s %s\n", label("Duplicates:"), value(s.Stats.Duplicates))
	}
	if s.Seen > 0 {
		fmt.Fprintf(w, "  %s %s\n", label("Seen before:"), value(s.Seen))
	}
	if s.Stats.Empty > 0 {
		fmt.Fprintf(w, "  %s %s\n", label("Empty units:"), color.YellowString("%d", s.Stats.Empty))
	}
	if s.Stats.Failed > 0 {
		fmt.Fprintf(w, "  %s %s\n", label("Failed:    "), color.RedString("%d", s.Stats.Failed))
		for _, f := range firstFailures(s.Stats.Failures, 5) {
			fmt.Fprintf(w, "    %s %s: %s\n", color.RedString("✗"), f.URL, f.Error)
		}
	}

	dropped := s.Targets.Invalid + s.Targets.Assets + s.Targets.OutOfScope
	if dropped > 0 {
		fmt.Fprintf(w, "  %s %s\n", label("Skipped:   "), color.YellowString(
			"%d (invalid %d, assets %d, out of scope %d)",
			dropped, s.Targets.Invalid, s.Targets.Assets, s.Targets.OutOfScope))
	}

	if s.Dispatch != nil {
		fmt.Fprintf(w, "  %s %s\n", label("Requests:  "), value(fmt.Sprintf("%d sent, %d failed, %d retried",
			s.Dispatch.Sent, s.Dispatch.Failed, s.Dispatch.Retried)))
		if codes := formatStatusCounts(s.Dispatch.ByStatus); codes != "" {
			fmt.Fprintf(w, "  %s %s\n", label("Statuses:  "), codes)
		}
	}
	if s.RunID != "" {
		fmt.Fprintf(w, "  %s %s (%d stored)\n", label("Run:       "), value(s.RunID), s.Stored)
	}
	fmt.Fprintf(w, "  %s %s\n", label("Duration:  "), value(s.Stats.Duration.Round(1e6)))
}

func firstFailures(failures []worker.Failure, n int) []worker.Failure {
	if len(failures) <= n {
		return failures
	}
	return failures[:n]
}

func formatStatusCounts(byStatus map[int]int) string {
	codes := make([]int, 0, len(byStatus))
	for code := range byStatus {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	parts := make([]string, 0, len(codes))
	for _, code := range codes {
		parts = append(parts, fmt.Sprintf("%s×%d", colorStatusCode(code), byStatus[code]))
	}
	return strings.Join(parts, " ")
}

func colorStatusCode(code int) string {
	switch {
	case code >= 500:
		return color.RedString("%d", code)
	case code >= 400:
		return color.YellowString("%d", code)
	case code >= 300:
		return color.CyanString("%d", code)
	default:
		return color.GreenString("%d", code)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

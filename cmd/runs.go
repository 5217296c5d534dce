package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/CodeMonkeyCybersecurity/x9/internal/database"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored generation runs",
	Long: `List and inspect runs recorded with --store.

Examples:
  x9 runs list --status failed
  x9 runs show 6f1c0c3e-... --candidates 20
  x9 runs show 6f1c0c3e-... --output json`,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)

	runsListCmd.Flags().String("status", "", "Filter by status (running, completed, failed, interrupted)")
	runsListCmd.Flags().Int("limit", 20, "Maximum runs to list")
	runsListCmd.Flags().Int("offset", 0, "Runs to skip")
	runsListCmd.Flags().String("output", "text", "Output format (text, json)")

	runsShowCmd.Flags().Int("candidates", 10, "Candidates to print (0 for none)")
	runsShowCmd.Flags().Bool("events", true, "Print warnings and errors recorded during the run")
	runsShowCmd.Flags().String("output", "text", "Output format (text, json)")
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		format, _ := cmd.Flags().GetString("output")

		ctx, cancel := signalContext()
		defer cancel()

		store, err := database.NewStore(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()

		runs, err := store.ListRuns(ctx, database.RunFilter{
			Status: database.RunStatus(status),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			log.Errorw("Failed to list runs", "error", err)
			return fmt.Errorf("failed to list runs: %w", err)
		}

		if format == "json" {
			return writeJSON(cmd.OutOrStdout(), runs)
		}
		printRunTable(cmd.OutOrStdout(), runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its candidates and events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("candidates")
		withEvents, _ := cmd.Flags().GetBool("events")
		format, _ := cmd.Flags().GetString("output")

		ctx, cancel := signalContext()
		defer cancel()

		store, err := database.NewStore(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()

		run, err := store.GetRun(ctx, args[0])
		if errors.Is(err, database.ErrRunNotFound) {
			return fmt.Errorf("run %s not found", args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to get run: %w", err)
		}

		var candidates []database.CandidateRecord
		if limit > 0 {
			if candidates, err = store.GetCandidates(ctx, run.ID, limit); err != nil {
				return fmt.Errorf("failed to get candidates: %w", err)
			}
		}

		var events []database.RunEvent
		if withEvents {
			if events, err = store.GetRunEvents(ctx, run.ID); err != nil {
				return fmt.Errorf("failed to get run events: %w", err)
			}
		}

		if format == "json" {
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"run":        run,
				"candidates": candidates,
				"events":     events,
			})
		}
		printRunDetail(cmd.OutOrStdout(), run, candidates, events)
		return nil
	},
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func printRunTable(w io.Writer, runs []*database.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, color.YellowString("No runs recorded yet. Generate with --store to record one."))
		return
	}

	fmt.Fprintf(w, "%-36s  %-16s  %-8s  %6s  %10s  %6s  %s\n",
		"ID", "STATUS", "MODE", "URLS", "CANDIDATES", "FAILED", "CREATED")
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-16s  %-8s  %6d  %10d  %6d  %s\n",
			r.ID,
			colorStatus(r.Status),
			r.Mode,
			r.URLCount,
			r.Candidates,
			r.Failed,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
}

func printRunDetail(w io.Writer, run *database.Run, candidates []database.CandidateRecord, events []database.RunEvent) {
	label := color.New(color.FgWhite).SprintFunc()

	fmt.Fprintln(w, color.New(color.FgCyan, color.Bold).Sprintf("Run %s", run.ID))
	fmt.Fprintf(w, "  %s %s\n", label("Status:    "), colorStatus(run.Status))
	fmt.Fprintf(w, "  %s %s / %s, chunk %d\n", label("Strategy:  "), run.Mode, run.ValueStrategy, run.ChunkSize)
	fmt.Fprintf(w, "  %s %d urls, %d words, %d payloads\n", label("Input:     "), run.URLCount, run.WordCount, run.PayloadCount)
	fmt.Fprintf(w, "  %s %d (%d failed units)\n", label("Candidates:"), run.Candidates, run.Failed)
	fmt.Fprintf(w, "  %s %s\n", label("Started:   "), run.CreatedAt.Format("2006-01-02 15:04:05"))
	if run.CompletedAt.Valid {
		fmt.Fprintf(w, "  %s %s (%s)\n", label("Finished:  "),
			run.CompletedAt.Time.Format("2006-01-02 15:04:05"),
			run.CompletedAt.Time.Sub(run.CreatedAt).Round(1e6))
	}
	if run.ErrorMessage.Valid {
		fmt.Fprintf(w, "  %s %s\n", label("Error:     "), color.RedString(run.ErrorMessage.String))
	}

	if len(candidates) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, color.New(color.Bold).Sprint("Candidates"))
		for _, c := range candidates {
			fmt.Fprintf(w, "  %5d  %-8s  %s\n", c.Seq, c.Origin, truncate(c.URL, 160))
		}
	}

	if len(events) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, color.New(color.Bold).Sprint("Events"))
		for _, e := range events {
			level := color.YellowString(e.Level)
			if e.Level == "error" {
				level = color.RedString(e.Level)
			}
			fmt.Fprintf(w, "  %s  %-7s  %s\n", e.CreatedAt.Format("15:04:05"), level, e.Message)
		}
	}
}

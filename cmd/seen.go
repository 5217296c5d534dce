package cmd

import (
	"fmt"

	"github.com/CodeMonkeyCybersecurity/x9/internal/seen"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var seenCmd = &cobra.Command{
	Use:   "seen",
	Short: "Manage the cross-run seen set in Redis",
	Long: `Runs started with --seen-redis skip candidates whose URL was emitted by
an earlier run. These commands inspect or clear that set.`,
}

var seenCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print how many candidate URLs are remembered",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		filter, err := seen.New(ctx, cfg.Redis, log)
		if err != nil {
			return err
		}
		defer filter.Close()

		n, err := filter.Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to count seen set: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

var seenResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget every remembered candidate URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		filter, err := seen.New(ctx, cfg.Redis, log)
		if err != nil {
			return err
		}
		defer filter.Close()

		if err := filter.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset seen set: %w", err)
		}
		color.Green("✓ Seen set %s cleared", cfg.Redis.Key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seenCmd)
	seenCmd.AddCommand(seenCountCmd)
	seenCmd.AddCommand(seenResetCmd)
}

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/CodeMonkeyCybersecurity/x9/internal/database"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database management commands",
	Long:  `Commands for managing the run history database: migrations and status.`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run pending database migrations",
	Long: `Apply all pending migrations to the run history schema.

Runs started with --store migrate automatically; this command is for
preparing a database ahead of time. The connection comes from --db-dsn,
X9_DATABASE_DSN or DATABASE_URL.`,
	RunE: runDBMigrate,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database migration status",
	RunE:  runDBStatus,
}

var dbRollbackCmd = &cobra.Command{
	Use:   "rollback <version>",
	Short: "Roll back one migration",
	Long: `Roll back a single migration version.

Rolling back the runs or candidates migration drops stored history.`,
	Args: cobra.ExactArgs(1),
	RunE: runDBRollback,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbRollbackCmd)

	dbRollbackCmd.Flags().Bool("yes", false, "Do not ask for confirmation")
}

func migrationRunner(ctx context.Context) (*database.MigrationRunner, func(), error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return database.NewMigrationRunner(db, log), func() { db.Close() }, nil
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	runner, closeDB, err := migrationRunner(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := runner.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	color.Green("✓ Database schema is up to date")
	return nil
}

func runDBStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runner, closeDB, err := migrationRunner(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	status, err := runner.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Database Migration Status")
	fmt.Fprintln(w, "=========================")
	fmt.Fprintf(w, "Current Version:  %d\n", status.CurrentVersion)
	fmt.Fprintf(w, "Latest Version:   %d\n", status.LatestVersion)
	fmt.Fprintf(w, "Pending:          %d migrations\n", status.PendingCount)

	if status.UpToDate {
		fmt.Fprintln(w, color.GreenString("\nStatus: Database is up to date"))
	} else {
		fmt.Fprintln(w, color.YellowString("\nStatus: Pending migrations need to be applied"))
		fmt.Fprintln(w, "Run 'x9 db migrate' to apply them")
	}
	return nil
}

func runDBRollback(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version number: %s", args[0])
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s rolling back migration %d. Press Enter to continue or Ctrl+C to cancel...",
			color.RedString("WARNING:"), version)
		fmt.Scanln()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runner, closeDB, err := migrationRunner(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := runner.RollbackMigration(ctx, version); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	log.Infow("Migration rolled back", "component", "db_rollback", "version", version)
	color.Green("✓ Migration %d rolled back", version)
	return nil
}

package cmd

import (
	"context"
	"fmt"

	"github.com/CodeMonkeyCybersecurity/x9/internal/api"
	"github.com/CodeMonkeyCybersecurity/x9/internal/database"
	"github.com/CodeMonkeyCybersecurity/x9/internal/telemetry"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the x9 HTTP API server",
	Long: `Start the HTTP API server for x9.

Endpoints:
  GET  /health                 liveness and store status
  POST /api/v1/generate        generate candidates for a JSON job
  GET  /api/v1/runs            list stored runs (requires --store)
  GET  /api/v1/runs/:id        one run with its candidates

Example:
  x9 serve --port 8080
  X9_API_KEY=secret x9 serve --auth --store
`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().Bool("auth", false, "Require a bearer API key on /api/v1")
	serveCmd.Flags().Bool("store", false, "Serve stored runs from PostgreSQL")
	serveCmd.Flags().Int("max-candidates", 10000, "Upper bound on candidates returned per request")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("security.enable_auth", serveCmd.Flags().Lookup("auth"))
	viper.BindPFlag("server.max_candidates", serveCmd.Flags().Lookup("max-candidates"))
	viper.BindEnv("server.port", "X9_PORT", "PORT")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	log := log.WithComponent("serve")

	tel, err := telemetry.New(ctx, cfg.Telemetry, Version)
	if err != nil {
		log.Warnw("Telemetry disabled", "error", err)
		tel = telemetry.Noop()
	}
	shutdownHandler.Register("telemetry", func(context.Context) error { return tel.Close() })

	opts := []api.Option{api.WithTelemetry(tel), api.WithVersion(Version)}

	// the generate subcommand binds database.enabled to its own --store flag
	if useStore, _ := cmd.Flags().GetBool("store"); useStore || cfg.Database.Enabled {
		store, err := database.NewStore(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		shutdownHandler.Register("database", func(context.Context) error { return store.Close() })
		opts = append(opts, api.WithStore(store))
	}

	server, err := api.NewServer(cfg, log, opts...)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	color.Cyan("x9 API server starting")
	color.White("  Listening on: http://%s", addr)
	color.White("  Health:       http://%s/health", addr)
	if cfg.Security.EnableAuth {
		color.White("  Auth:         bearer key required on /api/v1")
	}
	color.Green("✓ Ready (Ctrl+C to stop)")

	if err := server.ListenAndServe(ctx); err != nil {
		return err
	}
	color.Green("✓ Server stopped")
	return nil
}

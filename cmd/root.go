package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/CodeMonkeyCybersecurity/x9/internal/config"
	"github.com/CodeMonkeyCybersecurity/x9/internal/logger"
	"github.com/CodeMonkeyCybersecurity/x9/pkg/shutdown"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

var (
	cfg             *config.Config
	log             *logger.Logger
	shutdownHandler *shutdown.Handler
	cfgFile         string
)

var rootCmd = &cobra.Command{
	Use:   "x9 [flags]",
	Short: "Generate parameter-injected URLs for web testing",
	Long: `x9 - URL parameter mutation engine

Takes target URLs, a wordlist of parameter names and one or more payload
values, and emits candidate URLs with the payload placed in existing and
discovered parameters.

USAGE:
  x9 -u "https://example.com/?id=1" -p params.txt -v '"><svg>'
  cat urls.txt | x9 -p id,q,search -v X9 -g combine -s suffix
  x9 -l urls.txt -p params.txt -v X9 -m get --rate-limit 5
  x9 -j job.yaml -f json -o candidates.jsonl --store

STRATEGIES:
  normal   fresh query from each chunk of the wordlist
  ignore   original parameters kept, wordlist chunks appended
  combine  payload placed into each original parameter
  all      normal, ignore and combine in that order

SUBCOMMANDS:
  x9 serve                HTTP API for generation
  x9 runs list|show       Inspect stored runs`,
	SilenceUsage: true,
	RunE:         runGenerate,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		if err := initConfig(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		logger.Version = Version
		var err error
		log, err = logger.New(cfg.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		shutdownHandler = shutdown.NewHandler(log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if shutdownHandler != nil {
			if err := shutdownHandler.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: shutdown: %v\n", err)
			}
		}
		if log != nil {
			// stderr sync returns EINVAL on Linux
			if err := log.Sync(); err != nil && !isStdSyncError(err) {
				fmt.Fprintf(os.Stderr, "Warning: failed to sync logger: %v\n", err)
			}
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (flags and X9_* env vars take precedence)")

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (json, console)")
	viper.BindPFlag("logger.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logger.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindEnv("logger.level", "X9_LOG_LEVEL")
	viper.BindEnv("logger.format", "X9_LOG_FORMAT")

	rootCmd.PersistentFlags().String("db-dsn", "", "PostgreSQL connection string")
	viper.BindPFlag("database.dsn", rootCmd.PersistentFlags().Lookup("db-dsn"))
	viper.BindEnv("database.dsn", "X9_DATABASE_DSN", "DATABASE_URL")
	viper.BindEnv("database.max_connections", "X9_DB_MAX_CONNECTIONS")

	rootCmd.PersistentFlags().String("redis-addr", "", "Redis server address")
	rootCmd.PersistentFlags().String("redis-password", "", "Redis password")
	viper.BindPFlag("redis.addr", rootCmd.PersistentFlags().Lookup("redis-addr"))
	viper.BindPFlag("redis.password", rootCmd.PersistentFlags().Lookup("redis-password"))
	viper.BindEnv("redis.addr", "X9_REDIS_ADDR", "REDIS_URL")
	viper.BindEnv("redis.password", "X9_REDIS_PASSWORD")

	viper.BindEnv("telemetry.enabled", "X9_TELEMETRY_ENABLED")
	viper.BindEnv("telemetry.endpoint", "X9_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	viper.BindEnv("security.api_key", "X9_API_KEY")

	registerGenerateFlags(rootCmd)
	registerDefaults(config.DefaultConfig())
}

// registerDefaults feeds every default into viper so env vars and config
// files without a matching flag still resolve.
func registerDefaults(d *config.Config) {
	viper.SetDefault("logger.output_paths", d.Logger.OutputPaths)

	viper.SetDefault("generator.chunk_size", d.Generator.ChunkSize)
	viper.SetDefault("generator.strategy", d.Generator.Strategy)
	viper.SetDefault("generator.value_strategy", d.Generator.ValueStrategy)
	viper.SetDefault("output.format", d.Output.Format)
	viper.SetDefault("worker.count", d.Worker.Count)

	viper.SetDefault("dispatch.workers", d.Dispatch.Workers)
	viper.SetDefault("dispatch.timeout", d.Dispatch.Timeout)
	viper.SetDefault("dispatch.max_retries", d.Dispatch.MaxRetries)
	viper.SetDefault("dispatch.retry_delay", d.Dispatch.RetryDelay)
	viper.SetDefault("dispatch.rate_limit.requests_per_second", d.Dispatch.RateLimit.RequestsPerSecond)
	viper.SetDefault("dispatch.rate_limit.burst_size", d.Dispatch.RateLimit.BurstSize)

	viper.SetDefault("database.driver", d.Database.Driver)
	viper.SetDefault("database.dsn", d.Database.DSN)
	viper.SetDefault("database.max_connections", d.Database.MaxConnections)
	viper.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	viper.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)

	viper.SetDefault("redis.addr", d.Redis.Addr)
	viper.SetDefault("redis.key", d.Redis.Key)
	viper.SetDefault("redis.ttl", d.Redis.TTL)
	viper.SetDefault("redis.max_retries", d.Redis.MaxRetries)
	viper.SetDefault("redis.dial_timeout", d.Redis.DialTimeout)
	viper.SetDefault("redis.read_timeout", d.Redis.ReadTimeout)
	viper.SetDefault("redis.write_timeout", d.Redis.WriteTimeout)

	viper.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	viper.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
	viper.SetDefault("telemetry.exporter_type", d.Telemetry.ExporterType)
	viper.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	viper.SetDefault("telemetry.sample_rate", d.Telemetry.SampleRate)

	viper.SetDefault("server.host", d.Server.Host)
	viper.SetDefault("server.port", d.Server.Port)
	viper.SetDefault("server.max_candidates", d.Server.MaxCandidates)
	viper.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	viper.SetDefault("security.rate_limit.requests_per_second", d.Security.RateLimit.RequestsPerSecond)
	viper.SetDefault("security.rate_limit.burst_size", d.Security.RateLimit.BurstSize)
}

func initConfig() error {
	viper.SetEnvPrefix("X9")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Output.Silent {
		cfg.Logger.Level = "error"
	}

	return cfg.Validate()
}

func GetConfig() *config.Config {
	return cfg
}

func GetLogger() *logger.Logger {
	return log
}

// signalContext is cancelled on SIGINT/SIGTERM and on shutdown.
func signalContext() (context.Context, context.CancelFunc) {
	return shutdownHandler.SignalContext(context.Background())
}

func isStdSyncError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Path == "/dev/stderr" || pathErr.Path == "/dev/stdout"
	}
	msg := err.Error()
	return strings.Contains(msg, "/dev/stderr: invalid argument") || strings.Contains(msg, "/dev/stdout: invalid argument")
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/CodeMonkeyCybersecurity/x9/internal/config"
	"github.com/CodeMonkeyCybersecurity/x9/internal/database"
	"github.com/CodeMonkeyCybersecurity/x9/internal/dispatch"
	"github.com/CodeMonkeyCybersecurity/x9/internal/input"
	"github.com/CodeMonkeyCybersecurity/x9/internal/logger"
	"github.com/CodeMonkeyCybersecurity/x9/internal/output"
	"github.com/CodeMonkeyCybersecurity/x9/internal/progress"
	"github.com/CodeMonkeyCybersecurity/x9/internal/seen"
	"github.com/CodeMonkeyCybersecurity/x9/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/x9/internal/validation"
	"github.com/CodeMonkeyCybersecurity/x9/internal/worker"
	"github.com/CodeMonkeyCybersecurity/x9/pkg/mutation"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func registerGenerateFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	f.StringP("url", "u", "", "single target URL")
	f.StringP("list", "l", "", "file with target URLs, one per line")
	f.StringP("job", "j", "", "job document: inline JSON or path to a JSON/YAML file")
	f.StringP("parameters", "p", "", "wordlist file or comma-separated parameter names")
	f.StringArrayP("value", "v", nil, "payload value (repeatable)")
	f.String("value-file", "", "file with one payload per line")
	f.String("scope", "", "scope file; targets outside it are dropped")

	f.IntP("chunk", "c", 15, "parameter names per candidate")
	f.StringP("generate-strategy", "g", "all", "normal, ignore, combine or all")
	f.StringP("value-strategy", "s", "replace", "replace or suffix")
	f.Bool("double-encode", false, "percent-encode payloads before placement")
	viper.BindPFlag("generator.chunk_size", f.Lookup("chunk"))
	viper.BindPFlag("generator.strategy", f.Lookup("generate-strategy"))
	viper.BindPFlag("generator.value_strategy", f.Lookup("value-strategy"))
	viper.BindPFlag("generator.double_encode", f.Lookup("double-encode"))

	f.Bool("force-https", false, "rewrite http:// targets to https://")
	f.Bool("skip-assets", false, "drop targets pointing at static assets")
	viper.BindPFlag("input.force_https", f.Lookup("force-https"))
	viper.BindPFlag("input.skip_assets", f.Lookup("skip-assets"))

	f.StringP("output", "o", "", "append candidates to this file instead of stdout")
	f.StringP("format", "f", "text", "output format: text or json (JSON Lines when writing to --output)")
	f.BoolP("silent", "q", false, "print candidates only")
	viper.BindPFlag("output.file", f.Lookup("output"))
	viper.BindPFlag("output.format", f.Lookup("format"))
	viper.BindPFlag("output.silent", f.Lookup("silent"))

	f.IntP("threads", "t", 4, "units generated in parallel")
	viper.BindPFlag("worker.count", f.Lookup("threads"))
	viper.BindEnv("worker.count", "X9_WORKERS")

	f.StringP("method", "m", "", "send candidates with get or post")
	f.StringP("data", "d", "", "POST body (defaults to the candidate query)")
	f.StringArrayP("header", "H", nil, "extra request header 'Name: value' (repeatable)")
	f.Int("rate-limit", 10, "dispatch requests per second")
	f.Bool("allow-private", false, "allow dispatching to private and loopback addresses")
	viper.BindPFlag("dispatch.method", f.Lookup("method"))
	viper.BindPFlag("dispatch.data", f.Lookup("data"))
	viper.BindPFlag("dispatch.headers", f.Lookup("header"))
	viper.BindPFlag("dispatch.rate_limit.requests_per_second", f.Lookup("rate-limit"))
	viper.BindPFlag("dispatch.allow_private", f.Lookup("allow-private"))

	f.Bool("seen-redis", false, "skip candidates emitted by earlier runs (Redis)")
	f.Bool("store", false, "record the run and its candidates in PostgreSQL")
	viper.BindPFlag("redis.enabled", f.Lookup("seen-redis"))
	viper.BindPFlag("database.enabled", f.Lookup("store"))
	viper.BindEnv("database.enabled", "X9_STORE")
}

// targetSources is the raw input gathered from flags.
type targetSources struct {
	URL        string
	List       string
	Job        string
	Parameters string
	Values     []string
	ValueFile  string
}

func sourcesFromFlags(cmd *cobra.Command) targetSources {
	f := cmd.Flags()
	src := targetSources{}
	src.URL, _ = f.GetString("url")
	src.List, _ = f.GetString("list")
	src.Job, _ = f.GetString("job")
	src.Parameters, _ = f.GetString("parameters")
	src.Values, _ = f.GetStringArray("value")
	src.ValueFile, _ = f.GetString("value-file")
	return src
}

// batchInput is everything a run needs before normalization.
type batchInput struct {
	URLs     []string
	Words    []string
	Payloads []string
}

// loadBatch merges flags, the optional job document and stdin. stdin is only
// read when no URL source was given; pass nil when it is a terminal.
func loadBatch(src targetSources, stdin io.Reader) (*batchInput, error) {
	words, err := input.LoadWordlist(src.Parameters)
	if err != nil {
		return nil, err
	}
	values := append([]string(nil), src.Values...)

	var urls []string
	if src.Job != "" {
		job, err := input.LoadJob(src.Job)
		if err != nil {
			return nil, err
		}
		urls = append(urls, job.URLs...)
		words = append(words, job.Params...)
		values = append(values, job.Values...)
	}

	if src.URL != "" || src.List != "" || len(urls) == 0 {
		loaded, err := input.LoadURLs(src.URL, src.List, stdin)
		if err != nil {
			return nil, err
		}
		urls = append(urls, loaded...)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no target URLs: use -u, -l, -j or pipe URLs on stdin")
	}

	payloads, err := input.LoadPayloads(values, src.ValueFile)
	if err != nil {
		return nil, err
	}

	return &batchInput{
		URLs:     urls,
		Words:    input.Dedup(words),
		Payloads: payloads,
	}, nil
}

// targetReport counts what target preparation dropped.
type targetReport struct {
	Invalid    int
	Assets     int
	OutOfScope int
}

// prepareTargets normalizes, deduplicates and filters the raw URLs.
func prepareTargets(raw []string, in config.InputConfig, scope *validation.ScopeFile, log *logger.Logger) ([]string, targetReport) {
	var report targetReport

	urls, invalid := validation.NormalizeAll(raw, validation.NormalizeOptions{ForceHTTPS: in.ForceHTTPS})
	for _, res := range invalid {
		log.Warnw("Skipping invalid target", "input", res.Input, "error", res.Error)
	}
	report.Invalid = len(invalid)

	if in.SkipAssets {
		kept := validation.FilterStaticAssets(urls)
		report.Assets = len(urls) - len(kept)
		urls = kept
	}

	if scope != nil {
		var dropped int
		urls, dropped = scope.Filter(urls)
		report.OutOfScope = dropped
	}

	return urls, report
}

// engineFromConfig builds the engine and rejects an ignore-capable mode
// without a wordlist before any work starts.
func engineFromConfig(gc config.GeneratorConfig, words []string) (*mutation.Engine, error) {
	mode, err := mutation.ParseMode(gc.Strategy)
	if err != nil {
		return nil, err
	}
	vs, err := mutation.ParseValueStrategy(gc.ValueStrategy)
	if err != nil {
		return nil, err
	}

	engine, err := mutation.NewEngine(mutation.Options{
		ChunkSize:     gc.ChunkSize,
		Mode:          mode,
		ValueStrategy: vs,
		DoubleEncode:  gc.DoubleEncode,
	})
	if err != nil {
		return nil, err
	}

	if mode.Includes(mutation.Ignore) && len(words) == 0 {
		return nil, &mutation.InvalidConfigurationError{
			Field:  "wordlist",
			Reason: fmt.Sprintf("strategy %q needs parameter names (-p)", mode),
		}
	}
	return engine, nil
}

// primarySink writes to --output when set and stdout otherwise.
func primarySink(oc config.OutputConfig, stdout io.Writer) (output.Sink, error) {
	if oc.File != "" {
		return output.NewFileSink(oc.File, oc.Format)
	}
	return output.New(oc.Format, stdout)
}

func stdinIfPiped() io.Reader {
	info, err := os.Stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice != 0 {
		return nil
	}
	return os.Stdin
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	log := log.WithComponent("generate")
	silent := cfg.Output.Silent

	if !silent {
		printBanner(cmd.ErrOrStderr())
	}

	tracker := progress.New(!silent, cmd.ErrOrStderr())
	tracker.AddPhase("load", "Loading targets")
	tracker.AddPhase("generate", "Generating candidates")
	if cfg.Dispatch.Method != "" {
		tracker.AddPhase("dispatch", "Sending requests")
	}

	tracker.StartPhase("load")
	batch, err := loadBatch(sourcesFromFlags(cmd), stdinIfPiped())
	if err != nil {
		tracker.FailPhase("load", err)
		return err
	}

	var scope *validation.ScopeFile
	if path, _ := cmd.Flags().GetString("scope"); path != "" {
		if scope, err = validation.LoadScopeFile(path); err != nil {
			tracker.FailPhase("load", err)
			return err
		}
	}

	urls, report := prepareTargets(batch.URLs, cfg.Input, scope, log)
	if len(urls) == 0 {
		err := errors.New("no valid target URLs after normalization and filtering")
		tracker.FailPhase("load", err)
		return err
	}

	engine, err := engineFromConfig(cfg.Generator, batch.Words)
	if err != nil {
		tracker.FailPhase("load", err)
		return err
	}
	tracker.CompletePhase("load")

	tel, err := telemetry.New(ctx, cfg.Telemetry, Version)
	if err != nil {
		log.Warnw("Telemetry disabled", "error", err)
		tel = telemetry.Noop()
	}
	shutdownHandler.Register("telemetry", func(context.Context) error { return tel.Close() })

	primary, err := primarySink(cfg.Output, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	sinks := []output.Sink{primary}

	var warner worker.Warner = log
	var (
		store     *database.Store
		runID     string
		eventLog  *logger.RunEventLogger
		storeSink *database.CandidateSink
	)
	if cfg.Database.Enabled {
		store, err = database.NewStore(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		shutdownHandler.Register("database", func(context.Context) error { return store.Close() })

		run := &database.Run{
			Mode:          cfg.Generator.Strategy,
			ValueStrategy: cfg.Generator.ValueStrategy,
			ChunkSize:     cfg.Generator.ChunkSize,
			URLCount:      len(urls),
			WordCount:     len(batch.Words),
			PayloadCount:  len(batch.Payloads),
		}
		if err := store.CreateRun(ctx, run); err != nil {
			return fmt.Errorf("failed to create run: %w", err)
		}
		runID = run.ID
		log = log.WithRunID(runID)
		eventLog = logger.NewRunEventLogger(log, store, runID)
		warner = eventLog
		storeSink = database.NewCandidateSink(store, runID, 0)
		sinks = append(sinks, storeSink)
	}

	var dispatcher *dispatch.Dispatcher
	if cfg.Dispatch.Method != "" {
		// viper splits array flags on commas, which header values may contain
		if cmd.Flags().Changed("header") {
			cfg.Dispatch.Headers, _ = cmd.Flags().GetStringArray("header")
		}
		dispatcher, err = dispatch.New(ctx, cfg.Dispatch, log, dispatch.WithTelemetry(tel))
		if err != nil {
			return err
		}
		sinks = append(sinks, dispatcher)
	}

	var sink output.Sink = output.NewMulti(sinks...)

	var seenFilter *output.Filtered
	if cfg.Redis.Enabled {
		filter, err := seen.New(ctx, cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("failed to initialize seen filter: %w", err)
		}
		shutdownHandler.Register("redis", func(context.Context) error { return filter.Close() })
		seenFilter = output.NewFiltered(sink, filter.Predicate())
		sink = seenFilter
	}

	pool := worker.NewPool(engine, cfg.Worker.Count, log,
		worker.WithTelemetry(tel),
		worker.WithWarner(warner),
		worker.WithMode(cfg.Generator.Strategy),
		worker.WithProgress(func(done, total int) {
			tracker.UpdateCount("generate", done, total)
		}),
	)

	tracker.StartPhase("generate")
	stats, runErr := pool.Run(ctx, urls, batch.Words, batch.Payloads, sink)
	if runErr != nil {
		tracker.FailPhase("generate", runErr)
	} else {
		tracker.CompletePhase("generate")
	}

	if dispatcher != nil {
		tracker.StartPhase("dispatch")
	}
	closeErr := sink.Close()
	if dispatcher != nil {
		if closeErr != nil {
			tracker.FailPhase("dispatch", closeErr)
		} else {
			tracker.CompletePhase("dispatch")
		}
	}
	tracker.Complete()

	if eventLog != nil {
		eventLog.Flush()
	}
	if store != nil {
		finishRun(store, runID, stats, errors.Join(runErr, closeErr), log)
	}

	if !silent {
		summary := runSummary{
			Stats:   stats,
			Targets: report,
			RunID:   runID,
		}
		if seenFilter != nil {
			summary.Seen = seenFilter.Dropped()
		}
		if storeSink != nil {
			summary.Stored = storeSink.Saved()
		}
		if dispatcher != nil {
			ds := dispatcher.Stats()
			summary.Dispatch = &ds
		}
		printSummary(cmd.ErrOrStderr(), summary)
	}

	if runErr != nil {
		return runErr
	}
	return closeErr
}

// finishRun records the outcome even when ctx is already cancelled.
func finishRun(store *database.Store, runID string, stats *worker.Stats, runErr error, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res := database.RunResult{Status: database.RunCompleted, Err: runErr}
	if stats != nil {
		res.Candidates = stats.Candidates
		res.Failed = stats.Failed
	}
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		res.Status = database.RunInterrupted
	default:
		res.Status = database.RunFailed
	}

	if err := store.FinishRun(ctx, runID, res); err != nil {
		log.LogError(ctx, err, "database.FinishRun", "run_id", runID)
	}
}

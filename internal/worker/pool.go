package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CodeMonkeyCybersecurity/x9/internal/logger"
	"github.com/CodeMonkeyCybersecurity/x9/internal/output"
	"github.com/CodeMonkeyCybersecurity/x9/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/x9/pkg/mutation"
)

// Failure records a unit that could not be generated.
type Failure struct {
	URL     string `json:"url"`
	Payload string `json:"payload"`
	Error   string `json:"error"`
}

// Stats summarizes a batch.
type Stats struct {
	URLs       int           `json:"urls"`
	Units      int           `json:"units"`
	Completed  int           `json:"completed"`
	Failed     int           `json:"failed"`
	Empty      int           `json:"empty"`
	Candidates int           `json:"candidates"`
	Duplicates int           `json:"duplicates"`
	Failures   []Failure     `json:"failures,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Warner receives unit failures and empty results. A run-history event
// logger can be plugged in here.
type Warner interface {
	Warnw(msg string, keysAndValues ...interface{})
}

// ProgressFunc is told how many units have been written so far.
type ProgressFunc func(done, total int)

// Pool generates units in parallel and hands their candidates to a single
// writer, which restores unit order and removes candidates already emitted
// earlier in the batch. Output is identical for any worker count.
type Pool struct {
	gen       Generator
	workers   int
	mode      string
	logger    *logger.Logger
	telemetry telemetry.Telemetry
	progress  ProgressFunc
	warner    Warner
}

// Option configures a Pool.
type Option func(*Pool)

func WithTelemetry(t telemetry.Telemetry) Option {
	return func(p *Pool) { p.telemetry = t }
}

func WithProgress(fn ProgressFunc) Option {
	return func(p *Pool) { p.progress = fn }
}

func WithWarner(w Warner) Option {
	return func(p *Pool) { p.warner = w }
}

// WithMode labels unit metrics with the generation mode.
func WithMode(mode string) Option {
	return func(p *Pool) { p.mode = mode }
}

func NewPool(gen Generator, workers int, log *logger.Logger, opts ...Option) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		gen:       gen,
		workers:   workers,
		mode:      "all",
		logger:    log.WithComponent("worker"),
		telemetry: telemetry.Noop(),
	}
	p.warner = p.logger
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes every (URL, payload) unit and writes candidates to sink.
// Unit failures are logged and counted; only a sink error or cancellation
// stops the batch. The sink is not closed.
func (p *Pool) Run(ctx context.Context, urls, words, payloads []string, sink output.Sink) (*Stats, error) {
	start := time.Now()
	units := Units(urls, payloads)
	stats := &Stats{URLs: len(urls), Units: len(units)}

	p.logger.Infow("Starting generation",
		"urls", len(urls),
		"payloads", len(payloads),
		"words", len(words),
		"units", len(units),
		"workers", p.workers,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan unitResult, p.workers)
	var writeErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		writeErr = p.write(runCtx, cancel, results, sink, stats)
	}()

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(p.workers)

	for _, u := range units {
		if gctx.Err() != nil {
			break
		}
		u := u
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := processUnit(gctx, p.gen, words, u, p.logger, p.telemetry, p.mode)
			select {
			case results <- res:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	genErr := g.Wait()
	close(results)
	wg.Wait()

	stats.Duration = time.Since(start)

	if writeErr != nil {
		return stats, writeErr
	}
	if err := ctx.Err(); err != nil {
		p.logger.Warnw("Generation interrupted",
			"completed", stats.Completed,
			"units", stats.Units,
		)
		return stats, fmt.Errorf("generation cancelled: %w", err)
	}
	if genErr != nil && !errors.Is(genErr, context.Canceled) {
		return stats, genErr
	}

	p.logger.LogDuration(ctx, "worker.Run", start,
		"units", stats.Units,
		"candidates", stats.Candidates,
		"failed", stats.Failed,
		"empty", stats.Empty,
	)
	return stats, nil
}

// write is the only goroutine touching sink. Results arrive in completion
// order and are released in unit order.
func (p *Pool) write(ctx context.Context, cancel context.CancelFunc, results <-chan unitResult, sink output.Sink, stats *Stats) error {
	pending := make(map[int]unitResult)
	seen := make(map[string]struct{})
	next := 0
	var sinkErr error

	emit := func(res unitResult) {
		stats.Completed++
		if sinkErr == nil {
			sinkErr = p.emit(ctx, res, sink, seen, stats)
			if sinkErr != nil {
				cancel()
			}
		}
		if p.progress != nil {
			p.progress(stats.Completed, stats.Units)
		}
	}

	for res := range results {
		pending[res.unit.Index] = res
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			emit(r)
		}
	}

	// Units skipped by cancellation leave gaps; flush the rest in order.
	if len(pending) > 0 {
		indexes := make([]int, 0, len(pending))
		for i := range pending {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		for _, i := range indexes {
			emit(pending[i])
		}
	}

	return sinkErr
}

func (p *Pool) emit(ctx context.Context, res unitResult, sink output.Sink, seen map[string]struct{}, stats *Stats) error {
	u := res.unit
	if res.err != nil {
		stats.Failed++
		stats.Failures = append(stats.Failures, Failure{URL: u.URL, Payload: u.Payload, Error: res.err.Error()})
		p.warner.Warnw("Unit failed",
			"component", "worker",
			"url", u.URL,
			"payload", u.Payload,
			"error", res.err.Error(),
		)
		return nil
	}

	if len(res.candidates) == 0 {
		stats.Empty++
		w := &mutation.EmptyResultWarning{URL: u.URL, Payload: u.Payload}
		p.warner.Warnw("Empty result", "component", "worker", "url", u.URL, "warning", w.Error())
		return nil
	}

	p.logger.LogUnit(ctx, u.URL, u.Payload, len(res.candidates), res.duration)

	for _, c := range res.candidates {
		if _, dup := seen[c.URL]; dup {
			stats.Duplicates++
			continue
		}
		seen[c.URL] = struct{}{}
		if err := sink.Write(ctx, c); err != nil {
			return fmt.Errorf("failed to write candidate: %w", err)
		}
		stats.Candidates++
	}
	return nil
}

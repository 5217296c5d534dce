// Package dispatch sends generated URLs to their targets. A Dispatcher is an
// output.Sink: candidates written to it are queued and sent by a fixed set of
// workers, throttled per host.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CodeMonkeyCybersecurity/x9/internal/config"
	"github.com/CodeMonkeyCybersecurity/x9/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/x9/internal/logger"
	"github.com/CodeMonkeyCybersecurity/x9/internal/ratelimit"
	"github.com/CodeMonkeyCybersecurity/x9/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/x9/pkg/mutation"
)

// Stats counts what was sent. Failed requests never abort a run.
type Stats struct {
	Sent     int         `json:"sent"`
	Failed   int         `json:"failed"`
	Retried  int         `json:"retried"`
	ByStatus map[int]int `json:"by_status"`
}

type Dispatcher struct {
	method     string
	data       string
	headers    http.Header
	client     *http.Client
	limiter    *ratelimit.Limiter
	retries    int
	retryDelay time.Duration
	logger     *logger.Logger
	telemetry  telemetry.Telemetry

	queue chan mutation.Candidate
	group *errgroup.Group
	ctx   context.Context

	mu    sync.Mutex
	stats Stats
	once  sync.Once
}

type Option func(*Dispatcher)

func WithClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

func WithTelemetry(t telemetry.Telemetry) Option {
	return func(d *Dispatcher) { d.telemetry = t }
}

// New starts the dispatch workers. They stop when ctx is cancelled or Close
// is called.
func New(ctx context.Context, cfg config.DispatchConfig, log *logger.Logger, opts ...Option) (*Dispatcher, error) {
	method := strings.ToUpper(cfg.Method)
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("unsupported dispatch method: %q", cfg.Method)
	}

	headers, invalid := ParseHeaders(cfg.Headers)
	log = log.WithComponent("dispatch")
	for _, h := range invalid {
		log.Warnw("Ignoring malformed header", "header", h)
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	d := &Dispatcher{
		method:     method,
		data:       cfg.Data,
		headers:    headers,
		limiter:    ratelimit.NewLimiter(ratelimit.FromConfig(cfg.RateLimit)),
		retries:    cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     log,
		telemetry:  telemetry.Noop(),
		queue:      make(chan mutation.Candidate, workers*2),
		stats:      Stats{ByStatus: make(map[int]int)},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		d.client = httpclient.NewClient(httpclient.FromDispatch(cfg))
	}

	d.group, d.ctx = errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		d.group.Go(d.work)
	}

	log.Infow("Dispatcher started",
		"method", method,
		"workers", workers,
		"rate_limit", cfg.RateLimit.RequestsPerSecond,
	)
	return d, nil
}

// Write queues c for sending. It blocks while the queue is full.
func (d *Dispatcher) Write(ctx context.Context, c mutation.Candidate) error {
	select {
	case d.queue <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.ctx.Done():
		return fmt.Errorf("dispatcher stopped: %w", d.ctx.Err())
	}
}

// Close waits for every queued request to finish.
func (d *Dispatcher) Close() error {
	d.once.Do(func() { close(d.queue) })
	if err := d.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.ByStatus = make(map[int]int, len(d.stats.ByStatus))
	for k, v := range d.stats.ByStatus {
		s.ByStatus[k] = v
	}
	return s
}

func (d *Dispatcher) work() error {
	for {
		select {
		case c, ok := <-d.queue:
			if !ok {
				return nil
			}
			d.send(d.ctx, c)
		case <-d.ctx.Done():
			return d.ctx.Err()
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, c mutation.Candidate) {
	host := ""
	if u, err := url.Parse(c.URL); err == nil {
		host = u.Host
	}

	var (
		status   int
		err      error
		attempts int
	)
	start := time.Now()
	for attempts = 1; attempts <= d.retries+1; attempts++ {
		if err = d.limiter.WaitForHost(ctx, host); err != nil {
			break
		}
		status, err = d.do(ctx, c)
		if !retryable(status, err) || ctx.Err() != nil || attempts > d.retries {
			break
		}
		d.mu.Lock()
		d.stats.Retried++
		d.mu.Unlock()

		select {
		case <-time.After(d.retryDelay * time.Duration(attempts)):
		case <-ctx.Done():
		}
	}
	duration := time.Since(start)

	d.mu.Lock()
	if err != nil {
		d.stats.Failed++
	} else {
		d.stats.Sent++
		d.stats.ByStatus[status]++
	}
	d.mu.Unlock()

	d.telemetry.RecordDispatch(d.method, status, err == nil)
	if err != nil {
		d.logger.LogError(ctx, err, "dispatch.send", "url", c.URL, "attempts", attempts)
		return
	}
	d.logger.LogHTTPRequest(ctx, d.method, c.URL, status, duration, "attempts", attempts)
}

func (d *Dispatcher) do(ctx context.Context, c mutation.Candidate) (int, error) {
	var req *http.Request
	var err error
	if d.method == http.MethodPost {
		body := d.data
		if body == "" {
			body = c.Params.Encode()
		}
		req, err = http.NewRequest(http.MethodPost, c.URL, strings.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequest(http.MethodGet, c.URL, nil)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range d.headers {
		req.Header[k] = v
	}

	resp, err := httpclient.DoWithContext(ctx, d.client, req)
	if err != nil {
		return 0, err
	}
	defer httpclient.CloseBody(resp, d.logger)
	return resp.StatusCode, nil
}

func retryable(status int, err error) bool {
	if err != nil {
		return true
	}
	return status == http.StatusTooManyRequests || status >= 500
}

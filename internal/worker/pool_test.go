package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/x9/internal/logger"
	"github.com/CodeMonkeyCybersecurity/x9/internal/output"
	"github.com/CodeMonkeyCybersecurity/x9/pkg/mutation"
)

func newEngine(t *testing.T, chunk int, mode mutation.Mode) *mutation.Engine {
	t.Helper()
	e, err := mutation.NewEngine(mutation.Options{ChunkSize: chunk, Mode: mode, ValueStrategy: mutation.Replace})
	require.NoError(t, err)
	return e
}

func TestUnitsAreURLMajor(t *testing.T) {
	units := Units([]string{"u1", "u2"}, []string{"p1", "p2"})
	require.Len(t, units, 4)
	assert.Equal(t, Unit{Index: 0, URL: "u1", Payload: "p1"}, units[0])
	assert.Equal(t, Unit{Index: 1, URL: "u1", Payload: "p2"}, units[1])
	assert.Equal(t, Unit{Index: 3, URL: "u2", Payload: "p2"}, units[3])
}

func TestRunMatchesSequentialOutput(t *testing.T) {
	engine := newEngine(t, 2, mutation.ModeAll)
	urls := []string{
		"https://a.example/?id=1",
		"https://b.example/search?q=x&page=2",
		"https://c.example/",
		"https://a.example/?id=1&extra=y",
	}
	words := []string{"q", "r", "s", "debug", "id"}
	payloads := []string{"Z", "<x>"}

	var want []string
	seen := map[string]bool{}
	for _, u := range urls {
		for _, p := range payloads {
			out, err := engine.Generate(u, words, p)
			require.NoError(t, err)
			for _, c := range out {
				if !seen[c.URL] {
					seen[c.URL] = true
					want = append(want, c.URL)
				}
			}
		}
	}

	for _, workers := range []int{1, 3, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			col := &output.Collector{}
			stats, err := NewPool(engine, workers, logger.Nop()).Run(context.Background(), urls, words, payloads, col)
			require.NoError(t, err)

			assert.Equal(t, want, mutation.URLs(col.Candidates()))
			assert.Equal(t, 8, stats.Units)
			assert.Equal(t, 8, stats.Completed)
			assert.Equal(t, len(want), stats.Candidates)
			assert.Zero(t, stats.Failed)
		})
	}
}

func TestRunContinuesPastBadURLs(t *testing.T) {
	engine := newEngine(t, 15, mutation.ModeNormal)
	col := &output.Collector{}

	stats, err := NewPool(engine, 2, logger.Nop()).Run(context.Background(),
		[]string{"not a url", "https://example.com/?id=1"}, []string{"q"}, []string{"Z"}, col)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, "not a url", stats.Failures[0].URL)
	assert.Equal(t, []string{"https://example.com/?q=Z", "https://example.com/?id=Z"}, mutation.URLs(col.Candidates()))
}

func TestRunCountsEmptyResults(t *testing.T) {
	col := &output.Collector{}
	gen := generatorFunc(func(raw string, _ []string, _ string) ([]mutation.Candidate, error) {
		return nil, nil
	})

	stats, err := NewPool(gen, 2, logger.Nop()).Run(context.Background(), []string{"https://example.com/"}, nil, []string{"Z"}, col)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Empty)
	assert.Empty(t, col.Candidates())
}

type generatorFunc func(raw string, words []string, payload string) ([]mutation.Candidate, error)

func (f generatorFunc) Generate(raw string, words []string, payload string) ([]mutation.Candidate, error) {
	return f(raw, words, payload)
}

type recordingWarner struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingWarner) Warnw(msg string, _ ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func TestRunRecoversFromPanics(t *testing.T) {
	gen := generatorFunc(func(raw string, _ []string, payload string) ([]mutation.Candidate, error) {
		if payload == "boom" {
			panic("unexpected")
		}
		return []mutation.Candidate{{URL: raw + "?p=" + payload}}, nil
	})
	warner := &recordingWarner{}
	col := &output.Collector{}

	stats, err := NewPool(gen, 2, logger.Nop(), WithWarner(warner)).Run(context.Background(),
		[]string{"https://example.com/"}, nil, []string{"ok", "boom"}, col)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	assert.Contains(t, stats.Failures[0].Error, "panicked")
	assert.Equal(t, []string{"Unit failed"}, warner.msgs)
	assert.Len(t, col.Candidates(), 1)
}

type brokenSink struct{ writes int }

func (b *brokenSink) Write(context.Context, mutation.Candidate) error {
	b.writes++
	return errors.New("disk full")
}
func (b *brokenSink) Close() error { return nil }

func TestRunStopsOnSinkError(t *testing.T) {
	engine := newEngine(t, 1, mutation.ModeNormal)
	sink := &brokenSink{}

	urls := make([]string, 50)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/%d", i)
	}

	_, err := NewPool(engine, 4, logger.Nop()).Run(context.Background(), urls, []string{"q"}, []string{"Z"}, sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, sink.writes)
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	var mu sync.Mutex
	gen := generatorFunc(func(raw string, _ []string, payload string) ([]mutation.Candidate, error) {
		mu.Lock()
		calls++
		if calls == 3 {
			cancel()
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		return []mutation.Candidate{{URL: raw}}, nil
	})

	urls := make([]string, 200)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/%d", i)
	}

	stats, err := NewPool(gen, 2, logger.Nop()).Run(ctx, urls, nil, []string{"Z"}, &output.Collector{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, stats.Completed, 200)
}

func TestRunReportsProgress(t *testing.T) {
	engine := newEngine(t, 15, mutation.ModeNormal)
	var last, total int

	_, err := NewPool(engine, 2, logger.Nop(), WithProgress(func(done, all int) {
		last, total = done, all
	})).Run(context.Background(), []string{"https://a.example/", "https://b.example/"}, []string{"q"}, []string{"Z"}, &output.Collector{})
	require.NoError(t, err)
	assert.Equal(t, 2, last)
	assert.Equal(t, 2, total)
}

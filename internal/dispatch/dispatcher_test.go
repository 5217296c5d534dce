package dispatch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/x9/internal/config"
	"github.com/CodeMonkeyCybersecurity/x9/internal/logger"
	"github.com/CodeMonkeyCybersecurity/x9/pkg/mutation"
)

type captured struct {
	method string
	query  string
	body   string
	header http.Header
}

func recordingServer(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()
	var mu sync.Mutex
	var reqs []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, captured{method: r.Method, query: r.URL.RawQuery, body: string(body), header: r.Header.Clone()})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), reqs...)
	}
}

func testConfig(method string) config.DispatchConfig {
	return config.DispatchConfig{
		Method:       method,
		Workers:      2,
		Timeout:      5 * time.Second,
		AllowPrivate: true,
		RetryDelay:   time.Millisecond,
	}
}

func candidate(t *testing.T, raw string) mutation.Candidate {
	t.Helper()
	u, err := mutation.Parse(raw)
	require.NoError(t, err)
	return mutation.Candidate{URL: raw, Base: u.Base(), Params: u.Query()}
}

func TestParseHeaders(t *testing.T) {
	h, invalid := ParseHeaders([]string{"User-Agent: custom/1.0", "X-Test:  yes ", "broken"})

	assert.Equal(t, "custom/1.0", h.Get("User-Agent"))
	assert.Equal(t, "yes", h.Get("X-Test"))
	assert.Equal(t, "127.0.0.1", h.Get("X-Forwarded-For"))
	assert.Equal(t, "*/*", h.Get("Accept"))
	assert.Equal(t, []string{"broken"}, invalid)
}

func TestDispatchGet(t *testing.T) {
	srv, requests := recordingServer(t, http.StatusOK)
	cfg := testConfig("get")
	cfg.Headers = []string{"Authorization: Bearer t"}

	d, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)

	for _, q := range []string{"?q=1", "?q=2", "?q=3"} {
		require.NoError(t, d.Write(context.Background(), candidate(t, srv.URL+"/"+q)))
	}
	require.NoError(t, d.Close())

	reqs := requests()
	require.Len(t, reqs, 3)
	for _, r := range reqs {
		assert.Equal(t, http.MethodGet, r.method)
		assert.Equal(t, "Bearer t", r.header.Get("Authorization"))
		assert.Contains(t, r.header.Get("User-Agent"), "Firefox/108.0")
	}

	stats := d.Stats()
	assert.Equal(t, 3, stats.Sent)
	assert.Equal(t, 3, stats.ByStatus[http.StatusOK])
}

func TestDispatchPostUsesQueryAsBody(t *testing.T) {
	srv, requests := recordingServer(t, http.StatusCreated)

	d, err := New(context.Background(), testConfig("post"), logger.Nop())
	require.NoError(t, err)
	require.NoError(t, d.Write(context.Background(), candidate(t, srv.URL+"/?a=1&b=%3Cx%3E")))
	require.NoError(t, d.Close())

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].method)
	assert.Equal(t, "a=1&b=%3Cx%3E", reqs[0].body)
	assert.Equal(t, "application/x-www-form-urlencoded", reqs[0].header.Get("Content-Type"))
}

func TestDispatchPostWithExplicitData(t *testing.T) {
	srv, requests := recordingServer(t, http.StatusOK)
	cfg := testConfig("post")
	cfg.Data = "token=abc"

	d, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, d.Write(context.Background(), candidate(t, srv.URL+"/?a=1")))
	require.NoError(t, d.Close())

	assert.Equal(t, "token=abc", requests()[0].body)
}

func TestDispatchRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig("get")
	cfg.Workers = 1
	cfg.MaxRetries = 2

	d, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, d.Write(context.Background(), candidate(t, srv.URL+"/?q=1")))
	require.NoError(t, d.Close())

	stats := d.Stats()
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	assert.Equal(t, 2, stats.Retried)
	assert.Equal(t, 1, stats.ByStatus[http.StatusOK])
}

func TestDispatchCountsTransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := srv.URL
	srv.Close()

	d, err := New(context.Background(), testConfig("get"), logger.Nop())
	require.NoError(t, err)
	require.NoError(t, d.Write(context.Background(), candidate(t, target+"/?q=1")))
	require.NoError(t, d.Close())

	assert.Equal(t, 1, d.Stats().Failed)
	assert.Equal(t, 0, d.Stats().Sent)
}

func TestNewRejectsUnknownMethod(t *testing.T) {
	_, err := New(context.Background(), config.DispatchConfig{Method: "put"}, logger.Nop())
	assert.Error(t, err)
}

package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/x9/internal/config"
	"github.com/CodeMonkeyCybersecurity/x9/internal/database"
	"github.com/CodeMonkeyCybersecurity/x9/internal/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStore struct {
	runs       map[string]*database.Run
	candidates map[string][]database.CandidateRecord
	pingErr    error
}

func (f *fakeStore) ListRuns(_ context.Context, filter database.RunFilter) ([]*database.Run, error) {
	var out []*database.Run
	for _, r := range f.runs {
		if filter.Status == "" || r.Status == filter.Status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetRun(_ context.Context, id string) (*database.Run, error) {
	r, ok := f.runs[id]
	if !ok {
		return nil, database.ErrRunNotFound
	}
	return r, nil
}

func (f *fakeStore) GetCandidates(_ context.Context, runID string, _ int) ([]database.CandidateRecord, error) {
	return f.candidates[runID], nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func newTestServer(t *testing.T, mutate func(*config.Config), opts ...Option) http.Handler {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := NewServer(cfg, logger.Nop(), opts...)
	require.NoError(t, err)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, nil)
	w := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy":true`)

	h = newTestServer(t, nil, WithStore(&fakeStore{pingErr: errors.New("down")}))
	w = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGenerate(t *testing.T) {
	h := newTestServer(t, nil)

	w := do(t, h, http.MethodPost, "/api/v1/generate", GenerateRequest{
		URLs:     []string{"https://example.com/?id=1", "ftp://bad", "https://example.com/?id=1"},
		Params:   []string{"q", "r"},
		Values:   []string{"Z"},
		Strategy: "normal",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	urls := make([]string, 0, len(resp.Candidates))
	for _, c := range resp.Candidates {
		urls = append(urls, c.URL)
	}
	assert.Equal(t, []string{"https://example.com/?q=Z&r=Z", "https://example.com/?id=Z"}, urls)
	require.Len(t, resp.Invalid, 1)
	assert.Equal(t, "ftp://bad", resp.Invalid[0].Input)
	assert.False(t, resp.Truncated)
	assert.Equal(t, 1, resp.Stats.Units)
}

func TestGenerateTruncates(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) { c.Server.MaxCandidates = 2 })

	w := do(t, h, http.MethodPost, "/api/v1/generate", GenerateRequest{
		URLs:      []string{"https://example.com/"},
		Params:    []string{"a", "b", "c", "d"},
		Values:    []string{"Z"},
		Strategy:  "normal",
		ChunkSize: 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Truncated)
	assert.Len(t, resp.Candidates, 2)
}

func TestGenerateRejectsBadRequests(t *testing.T) {
	h := newTestServer(t, nil)

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing urls", GenerateRequest{Values: []string{"Z"}}},
		{"missing values", GenerateRequest{URLs: []string{"https://example.com/"}}},
		{"unknown strategy", GenerateRequest{URLs: []string{"https://example.com/"}, Values: []string{"Z"}, Strategy: "pitchfork"}},
		{"ignore without params", GenerateRequest{URLs: []string{"https://example.com/"}, Values: []string{"Z"}, Strategy: "ignore"}},
		{"negative chunk", GenerateRequest{URLs: []string{"https://example.com/"}, Values: []string{"Z"}, ChunkSize: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/generate", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAuth(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) {
		c.Security.EnableAuth = true
		c.Security.APIKey = "secret"
	})
	body := GenerateRequest{URLs: []string{"https://example.com/"}, Params: []string{"q"}, Values: []string{"Z"}}

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/v1/generate", body).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/v1/generate", body, "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/generate", body, "Authorization", "Bearer secret").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", nil).Code, "health stays public")
}

func TestNewServerRequiresKeyWhenAuthEnabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Security.EnableAuth = true
	_, err := NewServer(cfg, logger.Nop())
	assert.Error(t, err)
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) {
		c.Security.RateLimit = config.RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1}
	})

	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/v1/runs", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/api/v1/runs", nil).Code)
}

func TestRuns(t *testing.T) {
	store := &fakeStore{
		runs: map[string]*database.Run{
			"r1": {
				ID:           "r1",
				Status:       database.RunFailed,
				Mode:         "all",
				ErrorMessage: sql.NullString{String: "disk full", Valid: true},
				CompletedAt:  sql.NullTime{Time: time.Unix(0, 0).UTC(), Valid: true},
			},
		},
		candidates: map[string][]database.CandidateRecord{
			"r1": {{RunID: "r1", Seq: 0, URL: "https://example.com/?q=Z"}},
		},
	}
	h := newTestServer(t, nil, WithStore(store))

	w := do(t, h, http.MethodGet, "/api/v1/runs?status=failed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"disk full"`)

	w = do(t, h, http.MethodGet, "/api/v1/runs/r1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://example.com/?q=Z")

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/runs/missing", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/runs?limit=0", nil).Code)
}

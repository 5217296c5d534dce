package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/x9/internal/config"
	"github.com/CodeMonkeyCybersecurity/x9/internal/dispatch"
	"github.com/CodeMonkeyCybersecurity/x9/internal/input"
	"github.com/CodeMonkeyCybersecurity/x9/internal/logger"
	"github.com/CodeMonkeyCybersecurity/x9/internal/validation"
	"github.com/CodeMonkeyCybersecurity/x9/internal/worker"
	"github.com/CodeMonkeyCybersecurity/x9/pkg/mutation"
	"github.com/CodeMonkeyCybersecurity/x9/pkg/shutdown"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	l, err := logger.New(config.LoggerConfig{
		Level:  "error",
		Format: "json",
	})
	if err != nil {
		panic("failed to initialize test logger: " + err.Error())
	}
	log = l
	cfg = config.DefaultConfig()
	shutdownHandler = shutdown.NewHandler(log)
	color.NoColor = true

	os.Exit(m.Run())
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadBatch(t *testing.T) {
	t.Run("flags only", func(t *testing.T) {
		batch, err := loadBatch(targetSources{
			URL:        "https://example.com/?id=1",
			Parameters: "q, r,q",
			Values:     []string{"Z", "Z", "<b>"},
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://example.com/?id=1"}, batch.URLs)
		assert.Equal(t, []string{"q", "r"}, batch.Words)
		assert.Equal(t, []string{"Z", "<b>"}, batch.Payloads)
	})

	t.Run("job merges with flags", func(t *testing.T) {
		job := writeTemp(t, "job.yaml", "urls:\n  - https://a.example/\n  - https://b.example/?x=1\nparams: [id, q]\nvalues: J\n")
		batch, err := loadBatch(targetSources{
			Job:        job,
			Parameters: "q,s",
			Values:     []string{"F"},
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.example/", "https://b.example/?x=1"}, batch.URLs)
		assert.Equal(t, []string{"q", "s", "id"}, batch.Words)
		assert.Equal(t, []string{"F", "J"}, batch.Payloads)
	})

	t.Run("url and list combine", func(t *testing.T) {
		list := writeTemp(t, "urls.txt", "https://b.example/\n")
		batch, err := loadBatch(targetSources{
			URL:    "https://a.example/",
			List:   list,
			Values: []string{"Z"},
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.example/", "https://b.example/"}, batch.URLs)
	})

	t.Run("stdin when nothing else", func(t *testing.T) {
		batch, err := loadBatch(targetSources{Values: []string{"Z"}},
			strings.NewReader("https://a.example/\n\nhttps://b.example/\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.example/", "https://b.example/"}, batch.URLs)
		assert.Empty(t, batch.Words)
	})

	t.Run("job skips stdin", func(t *testing.T) {
		batch, err := loadBatch(targetSources{
			Job:    `{"urls": ["https://a.example/"], "values": ["Z"]}`,
		}, strings.NewReader("https://ignored.example/\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.example/"}, batch.URLs)
	})

	t.Run("no urls", func(t *testing.T) {
		_, err := loadBatch(targetSources{Values: []string{"Z"}}, nil)
		assert.ErrorContains(t, err, "no target URLs")
	})

	t.Run("no payloads", func(t *testing.T) {
		_, err := loadBatch(targetSources{URL: "https://example.com/"}, nil)
		assert.True(t, errors.Is(err, input.ErrNoPayloads))
	})
}

func TestPrepareTargets(t *testing.T) {
	raw := []string{
		"example.com",
		"http://example.com/app?id=1",
		"https://example.com/static/app.js",
		"https://other.test/?a=1",
		"ftp://example.com/file",
		"example.com",
	}

	scope, err := validation.ParseScope(strings.NewReader("*.example.com\nexample.com\n"))
	require.NoError(t, err)

	urls, report := prepareTargets(raw, config.InputConfig{ForceHTTPS: true, SkipAssets: true}, scope, logger.Nop())

	assert.Equal(t, []string{"https://example.com/", "https://example.com/app?id=1"}, urls)
	assert.Equal(t, 1, report.Invalid)
	assert.Equal(t, 1, report.Assets)
	assert.Equal(t, 1, report.OutOfScope)
}

func TestEngineFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		gc        config.GeneratorConfig
		words     []string
		wantField string
	}{
		{
			name:  "defaults with words",
			gc:    config.GeneratorConfig{ChunkSize: 15, Strategy: "all", ValueStrategy: "replace"},
			words: []string{"q"},
		},
		{
			name: "combine needs no words",
			gc:   config.GeneratorConfig{ChunkSize: 15, Strategy: "combine", ValueStrategy: "suffix"},
		},
		{
			name:      "all without words",
			gc:        config.GeneratorConfig{ChunkSize: 15, Strategy: "all", ValueStrategy: "replace"},
			wantField: "wordlist",
		},
		{
			name:      "ignore without words",
			gc:        config.GeneratorConfig{ChunkSize: 15, Strategy: "ignore", ValueStrategy: "replace"},
			wantField: "wordlist",
		},
		{
			name:      "unknown strategy",
			gc:        config.GeneratorConfig{ChunkSize: 15, Strategy: "pitchfork", ValueStrategy: "replace"},
			words:     []string{"q"},
			wantField: "generate strategy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := engineFromConfig(tt.gc, tt.words)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.NotNil(t, engine)
				return
			}
			var cfgErr *mutation.InvalidConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, runSummary{
		Stats: &worker.Stats{
			URLs:       2,
			Units:      4,
			Completed:  3,
			Failed:     1,
			Candidates: 12,
			Failures:   []worker.Failure{{URL: "https://bad/", Payload: "Z", Error: "malformed"}},
			Duration:   1500 * time.Millisecond,
		},
		Targets:  targetReport{Invalid: 1, OutOfScope: 2},
		Seen:     3,
		Dispatch: &dispatch.Stats{Sent: 12, ByStatus: map[int]int{404: 2, 200: 10}},
	})

	out := buf.String()
	assert.Contains(t, out, "3/4")
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "https://bad/: malformed")
	assert.Contains(t, out, "3 (invalid 1, assets 0, out of scope 2)")
	assert.Contains(t, out, "200×10 404×2")
	assert.NotContains(t, out, "Run:")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestRootCommandWritesCandidates(t *testing.T) {
	out := filepath.Join(t.TempDir(), "candidates.txt")

	rootCmd.SetArgs([]string{
		"-u", "https://example.com/?id=1",
		"-p", "q,r",
		"-v", "Z",
		"-g", "normal",
		"-c", "1",
		"-t", "2",
		"-q",
		"-o", out,
	})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t,
		"https://example.com/?q=Z\nhttps://example.com/?r=Z\nhttps://example.com/?id=Z\n",
		string(data))
}

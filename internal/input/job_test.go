package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJobInlineJSON(t *testing.T) {
	job, err := LoadJob(`{"urls": "https://example.com/?id=1", "params": ["q", "r"]}`)
	require.NoError(t, err)

	assert.Equal(t, StringList{"https://example.com/?id=1"}, job.URLs)
	assert.Equal(t, StringList{"q", "r"}, job.Params)
	assert.Empty(t, job.Values)
}

func TestLoadJobYAMLFile(t *testing.T) {
	path := writeFile(t, "job.yaml", `
urls:
  - https://a.example/
  - https://b.example/?x=1
params: debug
values:
  - Z
`)

	job, err := LoadJob(path)
	require.NoError(t, err)
	assert.Equal(t, StringList{"https://a.example/", "https://b.example/?x=1"}, job.URLs)
	assert.Equal(t, StringList{"debug"}, job.Params)
	assert.Equal(t, StringList{"Z"}, job.Values)
}

func TestLoadJobErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"empty", ""},
		{"no urls", `{"params": ["q"]}`},
		{"bad json", `{"urls": [`},
		{"wrong type", `{"urls": {"a": 1}}`},
		{"missing file", "/nonexistent/job.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadJob(tt.source)
			assert.Error(t, err)
		})
	}
}

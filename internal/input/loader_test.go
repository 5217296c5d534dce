package input

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadWordlist(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		path := writeFile(t, "params.txt", "id\n# comment\n\n  q  \nid\nredirect\n")
		words, err := LoadWordlist(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "q", "redirect"}, words)
	})

	t.Run("inline list", func(t *testing.T) {
		words, err := LoadWordlist("id, q,,redirect,q")
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "q", "redirect"}, words)
	})

	t.Run("empty", func(t *testing.T) {
		words, err := LoadWordlist("  ")
		require.NoError(t, err)
		assert.Empty(t, words)
	})
}

func TestLoadPayloads(t *testing.T) {
	path := writeFile(t, "values.txt", "\"><svg>\r\n\n # leading space\n")

	payloads, err := LoadPayloads([]string{"Z", "\"><svg>"}, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"\"><svg>", " # leading space", "Z"}, payloads)

	_, err = LoadPayloads(nil, "")
	assert.True(t, errors.Is(err, ErrNoPayloads))

	_, err = LoadPayloads(nil, filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLoadURLs(t *testing.T) {
	t.Run("single skips stdin", func(t *testing.T) {
		urls, err := LoadURLs(" https://a.example/ ", "", strings.NewReader("https://b.example/"))
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.example/"}, urls)
	})

	t.Run("single and list are merged in order", func(t *testing.T) {
		path := writeFile(t, "urls.txt", "https://b.example/\nhttps://c.example/?x=1\n")
		urls, err := LoadURLs("https://a.example/", path, strings.NewReader("https://ignored.example/"))
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.example/", "https://b.example/", "https://c.example/?x=1"}, urls)
	})

	t.Run("list file", func(t *testing.T) {
		path := writeFile(t, "urls.txt", "https://a.example/\n\nhttps://b.example/?x=1\n")
		urls, err := LoadURLs("", path, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.example/", "https://b.example/?x=1"}, urls)
	})

	t.Run("single stdin line is cut at comma", func(t *testing.T) {
		urls, err := LoadURLs("", "", strings.NewReader("https://a.example/?id=1,200,OK\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.example/?id=1"}, urls)
	})

	t.Run("multi line stdin kept whole", func(t *testing.T) {
		urls, err := LoadURLs("", "", strings.NewReader("https://a.example/\nhttps://b.example/?a=1,2\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.example/", "https://b.example/?a=1,2"}, urls)
	})

	t.Run("missing list", func(t *testing.T) {
		_, err := LoadURLs("", filepath.Join(t.TempDir(), "nope.txt"), nil)
		assert.Error(t, err)
	})
}

func TestDedup(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, Dedup([]string{"b", "a", "b", "c", "a"}))
	assert.Empty(t, Dedup(nil))
}

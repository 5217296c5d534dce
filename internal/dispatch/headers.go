package dispatch

import (
	"net/http"
	"strings"
)

// defaultHeaders are sent with every request unless overridden.
var defaultHeaders = []struct{ key, value string }{
	{"User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:108.0) Gecko/20100101 Firefox/108.0"},
	{"Accept", "*/*"},
	{"Accept-Language", "en-US,en;q=0.9"},
	{"Accept-Encoding", "gzip, deflate, br"},
	{"X-Forwarded-For", "127.0.0.1"},
}

// ParseHeaders layers "Key: value" entries over the defaults. Entries
// without a colon are returned as invalid and otherwise ignored.
func ParseHeaders(entries []string) (http.Header, []string) {
	h := make(http.Header, len(defaultHeaders)+len(entries))
	for _, d := range defaultHeaders {
		h.Set(d.key, d.value)
	}

	var invalid []string
	for _, e := range entries {
		key, value, ok := strings.Cut(e, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			invalid = append(invalid, e)
			continue
		}
		h.Set(key, strings.TrimSpace(value))
	}
	return h, invalid
}

package mutation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		scheme    string
		authority string
		path      string
		keys      []string
		fragment  string
	}{
		{
			name:      "bare root",
			raw:       "https://example.com/",
			scheme:    "https",
			authority: "example.com",
			path:      "/",
		},
		{
			name:      "userinfo and port",
			raw:       "http://user:pw@host.local:8080/a/b?x=1#frag",
			scheme:    "http",
			authority: "user:pw@host.local:8080",
			path:      "/a/b",
			keys:      []string{"x"},
			fragment:  "frag",
		},
		{
			name:      "repeated and blank params",
			raw:       "https://example.com/search?q=hello+world&x=1&x=2&flag&empty=",
			scheme:    "https",
			authority: "example.com",
			path:      "/search",
			keys:      []string{"q", "x", "flag", "empty"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, u.Scheme())
			assert.Equal(t, tt.authority, u.Authority())
			assert.Equal(t, tt.path, u.Path())
			assert.Equal(t, tt.fragment, u.Fragment())
			if tt.keys == nil {
				assert.Equal(t, 0, u.Query().Len())
			} else {
				assert.Equal(t, tt.keys, u.Query().Keys())
			}
		})
	}
}

func TestParseDecodesQuery(t *testing.T) {
	u := MustParse("https://example.com/search?q=hello+world&x=1&x=2&flag&bad=%zz")

	assert.Equal(t, []string{"hello world"}, u.Query().Get("q"))
	assert.Equal(t, []string{"1", "2"}, u.Query().Get("x"))
	assert.Equal(t, []string{""}, u.Query().Get("flag"))
	assert.Equal(t, []string{"%zz"}, u.Query().Get("bad"))
}

func TestParseMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"   ",
		"example.com/path",
		"example.com:8080",
		"/relative/path?x=1",
		"https:///nohost",
		"http://[::1",
	} {
		t.Run(raw, func(t *testing.T) {
			u, err := Parse(raw)
			assert.Nil(t, u)
			var malformed *MalformedURLError
			require.True(t, errors.As(err, &malformed), "expected MalformedURLError, got %v", err)
			assert.Equal(t, raw, malformed.URL)
		})
	}
}

func TestRoundTripWithoutQuery(t *testing.T) {
	for _, raw := range []string{
		"https://example.com",
		"https://example.com/",
		"https://example.com/a/b",
		"http://user:pw@host.local:8080/p#frag",
		"https://example.com/a%20b",
		"https://example.com/#",
		"https://example.com/p#",
	} {
		t.Run(raw, func(t *testing.T) {
			assert.Equal(t, raw, MustParse(raw).String())
		})
	}
}

func TestEmptyFragmentSurvivesMutation(t *testing.T) {
	u := MustParse("https://example.com/?id=1#")
	assert.Equal(t, "https://example.com/?id=1#", u.String())
	assert.Equal(t, "https://example.com/?id=Z#", u.WithQuery(ParseQuery("id=Z")).String())
	assert.Equal(t, "https://example.com/", MustParse("https://example.com/").String())
}

func TestParseIsIdempotent(t *testing.T) {
	for _, raw := range []string{
		"https://example.com/search?q=hello+world&x=1&x=2&flag&empty=",
		"https://example.com/?a=%3Cscript%3E&b=a%20b",
		"http://host.local:8080/p/?k=v#section",
	} {
		t.Run(raw, func(t *testing.T) {
			first := MustParse(raw)
			second, err := Parse(first.String())
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestStringDropsEmptyQuery(t *testing.T) {
	u := MustParse("https://example.com/p?")
	assert.Equal(t, "https://example.com/p", u.String())
	assert.Equal(t, "https://example.com/p", u.Base())
}

func TestWithQueryDoesNotTouchOriginal(t *testing.T) {
	u := MustParse("https://example.com/?id=1")
	changed := u.WithQuery(NewParams("q", "x"))

	assert.Equal(t, "https://example.com/?id=1", u.String())
	assert.Equal(t, "https://example.com/?q=x", changed.String())
}

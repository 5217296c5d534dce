package mutation

import (
	"net/url"
	"strings"
)

// ParsedURL is the read-only decomposition of a fully qualified URL. Path and
// fragment are stored escaped; the query is decoded into Params.
type ParsedURL struct {
	scheme      string
	authority   string
	path        string
	query       Params
	fragment    string
	hasFragment bool // keeps an empty trailing '#' through String
}

// Parse splits raw into its components. Scheme and host are required.
func Parse(raw string) (*ParsedURL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &MalformedURLError{URL: raw, Reason: "empty url"}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, &MalformedURLError{URL: raw, Reason: "parse failed", Err: err}
	}
	if u.Scheme == "" {
		return nil, &MalformedURLError{URL: raw, Reason: "missing scheme"}
	}
	if u.Opaque != "" || u.Host == "" {
		return nil, &MalformedURLError{URL: raw, Reason: "missing host"}
	}

	authority := u.Host
	if u.User != nil {
		authority = u.User.String() + "@" + u.Host
	}

	// url.Parse cuts at the first '#', so any '#' in raw opens the fragment.
	return &ParsedURL{
		scheme:      u.Scheme,
		authority:   authority,
		path:        u.EscapedPath(),
		query:       ParseQuery(u.RawQuery),
		fragment:    u.EscapedFragment(),
		hasFragment: strings.Contains(raw, "#"),
	}, nil
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(raw string) *ParsedURL {
	u, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

func (u *ParsedURL) Scheme() string    { return u.scheme }
func (u *ParsedURL) Authority() string { return u.authority }
func (u *ParsedURL) Path() string      { return u.path }
func (u *ParsedURL) Query() Params     { return u.query }
func (u *ParsedURL) Fragment() string  { return u.fragment }

// WithQuery returns a copy of u carrying q as its query.
func (u *ParsedURL) WithQuery(q Params) *ParsedURL {
	c := *u
	c.query = q
	return &c
}

// Base is the URL without query and fragment.
func (u *ParsedURL) Base() string {
	return u.scheme + "://" + u.authority + u.path
}

// String reassembles the URL. The '?' is dropped when there are no params;
// a '#' present at parse time is kept even when the fragment is empty.
func (u *ParsedURL) String() string {
	var b strings.Builder
	b.WriteString(u.Base())
	if q := u.query.Encode(); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	if u.fragment != "" || u.hasFragment {
		b.WriteByte('#')
		b.WriteString(u.fragment)
	}
	return b.String()
}

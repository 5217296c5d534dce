package mutation

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"
)

// Params is an ordered multimap of query parameters. Keys keep the position
// of their first appearance. A Params value is never modified after it is
// built; every mutating method returns a new value.
type Params struct {
	keys   []string
	values map[string][]string
}

// ParseQuery decodes a raw query string. Blank values are kept, '+' decodes
// to a space and pairs with invalid escapes are kept verbatim.
func ParseQuery(raw string) Params {
	var p Params
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		p.add(unescapeLenient(key), unescapeLenient(value))
	}
	return p
}

func unescapeLenient(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// NewParams builds a Params from alternating name/value pairs.
func NewParams(pairs ...string) Params {
	var p Params
	for i := 0; i+1 < len(pairs); i += 2 {
		p.add(pairs[i], pairs[i+1])
	}
	return p
}

func (p *Params) add(key, value string) {
	if p.values == nil {
		p.values = make(map[string][]string)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = append(p.values[key], value)
}

func (p *Params) put(key string, values []string) {
	if len(values) == 0 {
		values = []string{""}
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = values
}

func (p Params) clone(extra int) Params {
	c := Params{
		keys:   make([]string, len(p.keys), len(p.keys)+extra),
		values: make(map[string][]string, len(p.keys)+extra),
	}
	copy(c.keys, p.keys)
	for k, v := range p.values {
		c.values[k] = v
	}
	return c
}

// Len returns the number of distinct keys.
func (p Params) Len() int { return len(p.keys) }

// Keys returns the keys in order of first appearance.
func (p Params) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Get returns a copy of the values stored under key.
func (p Params) Get(key string) []string {
	return append([]string(nil), p.values[key]...)
}

// Set returns a copy of p with key holding exactly values. An existing key
// keeps its position; a new key goes last.
func (p Params) Set(key string, values ...string) Params {
	c := p.clone(1)
	c.put(key, append([]string(nil), values...))
	return c
}

// SetEach returns a copy of p where every name in names holds value.
func (p Params) SetEach(names []string, value string) Params {
	c := p.clone(len(names))
	for _, name := range names {
		c.put(name, []string{value})
	}
	return c
}

// Without returns a copy of p minus the given keys.
func (p Params) Without(keys ...string) Params {
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	c := Params{values: make(map[string][]string, len(p.keys))}
	for _, k := range p.keys {
		if _, ok := drop[k]; ok {
			continue
		}
		c.keys = append(c.keys, k)
		c.values[k] = p.values[k]
	}
	return c
}

// Map returns a copy of p with fn applied to every value of key.
func (p Params) Map(key string, fn func(string) string) Params {
	old := p.values[key]
	mapped := make([]string, len(old))
	for i, v := range old {
		mapped[i] = fn(v)
	}
	return p.Set(key, mapped...)
}

// Encode serializes p with form encoding: space becomes '+' and everything
// outside [A-Za-z0-9-_.~] is percent-encoded. Repeated keys are written as
// consecutive pairs in their original relative order.
func (p Params) Encode() string {
	var b strings.Builder
	for _, k := range p.keys {
		ek := url.QueryEscape(k)
		for _, v := range p.values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(ek)
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// MarshalJSON writes an object whose keys follow parameter order and whose
// values are the value lists. Payload characters such as '<' are kept literal.
func (p Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(k); err != nil {
			return nil, err
		}
		trimNewline(&buf)
		buf.WriteByte(':')
		if err := enc.Encode(p.values[k]); err != nil {
			return nil, err
		}
		trimNewline(&buf)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func trimNewline(buf *bytes.Buffer) {
	if n := buf.Len(); n > 0 && buf.Bytes()[n-1] == '\n' {
		buf.Truncate(n - 1)
	}
}

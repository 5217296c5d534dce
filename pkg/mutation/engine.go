// Package mutation derives candidate URLs from a base URL, a wordlist of
// parameter names and payload values.
//
// Generation is pure and deterministic: the selected strategies run in the
// fixed order normal, ignore, combine, followed by value placement over the
// existing parameters, and the union is deduplicated in first-seen order.
package mutation

import "net/url"

// Engine generates candidates for (URL, payload) units. It is safe for
// concurrent use.
type Engine struct {
	opts       Options
	strategies []Strategy
}

// NewEngine validates opts and returns an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{opts: opts, strategies: Select(opts.Mode)}, nil
}

// Options returns the engine configuration.
func (e *Engine) Options() Options { return e.opts }

// Strategies returns the strategies this engine runs, in order.
func (e *Engine) Strategies() []Strategy {
	return append([]Strategy(nil), e.strategies...)
}

// Generate parses raw and runs one (URL, payload) unit.
func (e *Engine) Generate(raw string, words []string, payload string) ([]Candidate, error) {
	u, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return e.GenerateParsed(u, words, payload)
}

// GenerateParsed runs one (URL, payload) unit over an already parsed URL.
func (e *Engine) GenerateParsed(u *ParsedURL, words []string, payload string) ([]Candidate, error) {
	if e.opts.DoubleEncode {
		payload = url.QueryEscape(payload)
	}

	var all []Candidate
	for _, s := range e.strategies {
		out, err := strategyTable[s](u, words, payload, e.opts)
		if err != nil {
			return nil, err
		}
		all = append(all, out...)
	}
	all = append(all, placeValues(u, payload, e.opts.ValueStrategy)...)

	return Assemble(all), nil
}

// GenerateAll runs every payload against raw and assembles the union.
func (e *Engine) GenerateAll(raw string, words, payloads []string) ([]Candidate, error) {
	u, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	var all []Candidate
	for _, payload := range payloads {
		out, err := e.GenerateParsed(u, words, payload)
		if err != nil {
			return nil, err
		}
		all = append(all, out...)
	}
	return Assemble(all), nil
}

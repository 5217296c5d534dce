package mutation

// Origin names what produced a candidate.
type Origin string

const (
	OriginNormal  Origin = "normal"
	OriginIgnore  Origin = "ignore"
	OriginCombine Origin = "combine"
	OriginReplace Origin = "replace"
	OriginSuffix  Origin = "suffix"
)

// Candidate is one generated URL.
type Candidate struct {
	URL     string `json:"url"`
	Base    string `json:"base"`
	Params  Params `json:"params"`
	Origin  Origin `json:"origin"`
	Payload string `json:"payload"`
}

func newCandidate(u *ParsedURL, q Params, origin Origin, payload string) Candidate {
	mutated := u.WithQuery(q)
	return Candidate{
		URL:     mutated.String(),
		Base:    mutated.Base(),
		Params:  q,
		Origin:  origin,
		Payload: payload,
	}
}

// Chunks splits words into consecutive slices of at most size entries.
func Chunks(words []string, size int) [][]string {
	if size <= 0 || len(words) == 0 {
		return nil
	}
	out := make([][]string, 0, (len(words)+size-1)/size)
	for start := 0; start < len(words); start += size {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		out = append(out, words[start:end])
	}
	return out
}

type generateFunc func(u *ParsedURL, words []string, payload string, opts Options) ([]Candidate, error)

var strategyTable = [...]generateFunc{
	Normal:  generateNormal,
	Ignore:  generateIgnore,
	Combine: generateCombine,
}

// generateNormal drops the existing query and emits one candidate per chunk.
// Without a wordlist it rewrites every existing parameter to the payload.
func generateNormal(u *ParsedURL, words []string, payload string, opts Options) ([]Candidate, error) {
	if len(words) == 0 {
		return []Candidate{newCandidate(u, u.Query().SetEach(u.Query().Keys(), payload), OriginNormal, payload)}, nil
	}
	var out []Candidate
	for _, chunk := range Chunks(words, opts.ChunkSize) {
		out = append(out, newCandidate(u, Params{}.SetEach(chunk, payload), OriginNormal, payload))
	}
	return out, nil
}

// generateIgnore keeps the parameters the wordlist does not name and appends
// each chunk after them.
func generateIgnore(u *ParsedURL, words []string, payload string, opts Options) ([]Candidate, error) {
	if len(words) == 0 {
		return nil, &InvalidConfigurationError{Field: "wordlist", Reason: "ignore strategy needs at least one parameter name"}
	}
	kept := u.Query().Without(words...)
	var out []Candidate
	for _, chunk := range Chunks(words, opts.ChunkSize) {
		out = append(out, newCandidate(u, kept.SetEach(chunk, payload), OriginIgnore, payload))
	}
	return out, nil
}

// generateCombine places the payload into each existing parameter, then
// overlays every chunk onto the untouched original query. Colliding keys
// take the payload and keep their position.
func generateCombine(u *ParsedURL, words []string, payload string, opts Options) ([]Candidate, error) {
	out := placeValues(u, payload, opts.ValueStrategy)
	for _, chunk := range Chunks(words, opts.ChunkSize) {
		out = append(out, newCandidate(u, u.Query().SetEach(chunk, payload), OriginCombine, payload))
	}
	return out, nil
}

// placeValues mutates one existing parameter at a time. Every value of a
// repeated key is rewritten.
func placeValues(u *ParsedURL, payload string, vs ValueStrategy) []Candidate {
	q := u.Query()
	origin := OriginReplace
	if vs == Suffix {
		origin = OriginSuffix
	}
	out := make([]Candidate, 0, q.Len())
	for _, key := range q.Keys() {
		mutated := q.Map(key, func(current string) string {
			return vs.apply(current, payload)
		})
		out = append(out, newCandidate(u, mutated, origin, payload))
	}
	return out
}

// Assemble drops repeated URLs, keeping the first occurrence.
func Assemble(candidates []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.URL]; dup {
			continue
		}
		seen[c.URL] = struct{}{}
		out = append(out, c)
	}
	return out
}

// URLs extracts the serialized URLs.
func URLs(candidates []Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.URL
	}
	return out
}

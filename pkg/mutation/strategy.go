package mutation

import "strings"

// Strategy is one of the candidate generation algorithms.
type Strategy int

const (
	Normal Strategy = iota
	Ignore
	Combine
)

func (s Strategy) String() string {
	switch s {
	case Normal:
		return "normal"
	case Ignore:
		return "ignore"
	case Combine:
		return "combine"
	default:
		return "unknown"
	}
}

// Mode is the user-facing strategy selection.
type Mode int

const (
	ModeAll Mode = iota
	ModeNormal
	ModeIgnore
	ModeCombine
)

var modeNames = map[string]Mode{
	"all":     ModeAll,
	"normal":  ModeNormal,
	"ignore":  ModeIgnore,
	"combine": ModeCombine,
}

var modeStrategies = map[Mode][]Strategy{
	ModeAll:     {Normal, Ignore, Combine},
	ModeNormal:  {Normal},
	ModeIgnore:  {Ignore},
	ModeCombine: {Combine},
}

// ParseMode maps a name such as "combine" to its Mode.
func ParseMode(name string) (Mode, error) {
	m, ok := modeNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, &InvalidConfigurationError{Field: "generate strategy", Value: name, Reason: "expected normal, ignore, combine or all"}
	}
	return m, nil
}

func (m Mode) String() string {
	for name, mode := range modeNames {
		if mode == m {
			return name
		}
	}
	return "unknown"
}

// Select returns the strategies a mode runs, in execution order.
func Select(m Mode) []Strategy {
	return append([]Strategy(nil), modeStrategies[m]...)
}

// Includes reports whether the mode runs s.
func (m Mode) Includes(s Strategy) bool {
	for _, candidate := range modeStrategies[m] {
		if candidate == s {
			return true
		}
	}
	return false
}

// ValueStrategy decides how a payload lands in an existing parameter.
type ValueStrategy int

const (
	Replace ValueStrategy = iota
	Suffix
)

var valueStrategyNames = map[string]ValueStrategy{
	"replace": Replace,
	"suffix":  Suffix,
}

// ParseValueStrategy maps "replace" or "suffix" to its ValueStrategy.
func ParseValueStrategy(name string) (ValueStrategy, error) {
	vs, ok := valueStrategyNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, &InvalidConfigurationError{Field: "value strategy", Value: name, Reason: "expected replace or suffix"}
	}
	return vs, nil
}

func (vs ValueStrategy) String() string {
	if vs == Suffix {
		return "suffix"
	}
	return "replace"
}

func (vs ValueStrategy) apply(current, payload string) string {
	if vs == Suffix {
		return current + payload
	}
	return payload
}

// DefaultChunkSize is the number of wordlist names packed into one candidate.
const DefaultChunkSize = 15

// Options configures an Engine.
type Options struct {
	ChunkSize     int
	Mode          Mode
	ValueStrategy ValueStrategy
	// DoubleEncode escapes the payload once before it is placed, so the
	// serialized candidate carries it encoded twice.
	DoubleEncode bool
}

// DefaultOptions mirrors the command line defaults.
func DefaultOptions() Options {
	return Options{
		ChunkSize:     DefaultChunkSize,
		Mode:          ModeAll,
		ValueStrategy: Replace,
	}
}

// Validate fails fast on settings no run could use.
func (o Options) Validate() error {
	if o.ChunkSize <= 0 {
		return &InvalidConfigurationError{Field: "chunk size", Reason: "must be at least 1"}
	}
	if _, ok := modeStrategies[o.Mode]; !ok {
		return &InvalidConfigurationError{Field: "generate strategy", Reason: "unknown mode"}
	}
	if o.ValueStrategy != Replace && o.ValueStrategy != Suffix {
		return &InvalidConfigurationError{Field: "value strategy", Reason: "unknown value strategy"}
	}
	return nil
}

package mutation

import "fmt"

// MalformedURLError is returned when an input cannot be split into
// scheme, authority and path.
type MalformedURLError struct {
	URL    string
	Reason string
	Err    error
}

func (e *MalformedURLError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed url %q: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed url %q: %s", e.URL, e.Reason)
}

func (e *MalformedURLError) Unwrap() error { return e.Err }

// InvalidConfigurationError covers bad chunk sizes, unknown mode or value
// strategy names, and an Ignore run without a wordlist.
type InvalidConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// EmptyResultWarning describes a unit that produced no candidates. It is
// reported, never returned as a failure.
type EmptyResultWarning struct {
	URL     string
	Payload string
}

func (w *EmptyResultWarning) Error() string {
	return fmt.Sprintf("no candidates for %s with payload %q", w.URL, w.Payload)
}

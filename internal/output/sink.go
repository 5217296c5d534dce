// Package output writes generated candidates to their destinations.
package output

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/CodeMonkeyCybersecurity/x9/pkg/mutation"
)

// Sink consumes candidates. Write is called from a single goroutine.
type Sink interface {
	Write(ctx context.Context, c mutation.Candidate) error
	Close() error
}

// Entry is the structured form of a candidate.
type Entry struct {
	URL    string          `json:"url"`
	Params mutation.Params `json:"params"`
}

// TextSink writes one URL per line.
type TextSink struct {
	w      *bufio.Writer
	closer io.Closer
}

func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: bufio.NewWriter(w)}
}

func (s *TextSink) Write(_ context.Context, c mutation.Candidate) error {
	if _, err := s.w.WriteString(c.URL); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

func (s *TextSink) Close() error {
	err := s.w.Flush()
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
	}
	return err
}

// JSONSink buffers entries and writes them as one indented array on Close.
type JSONSink struct {
	w       io.Writer
	closer  io.Closer
	entries []Entry
}

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w, entries: []Entry{}}
}

func (s *JSONSink) Write(_ context.Context, c mutation.Candidate) error {
	s.entries = append(s.entries, Entry{URL: c.Base, Params: c.Params})
	return nil
}

func (s *JSONSink) Close() error {
	enc := json.NewEncoder(s.w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	err := enc.Encode(s.entries)
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
	}
	return err
}

// JSONLinesSink writes one compact Entry per line, so appending runs to
// the same file keeps every line valid JSON.
type JSONLinesSink struct {
	w      *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
}

func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &JSONLinesSink{w: bw, enc: enc}
}

func (s *JSONLinesSink) Write(_ context.Context, c mutation.Candidate) error {
	return s.enc.Encode(Entry{URL: c.Base, Params: c.Params})
}

func (s *JSONLinesSink) Close() error {
	err := s.w.Flush()
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
	}
	return err
}

// New returns a sink for format ("text" or "json") writing to w.
func New(format string, w io.Writer) (Sink, error) {
	switch format {
	case "", "text":
		return NewTextSink(w), nil
	case "json":
		return NewJSONSink(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// NewFileSink appends to path, creating it if needed. The json format is
// written as JSON Lines since a file may collect several runs.
func NewFileSink(path, format string) (Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	switch format {
	case "", "text":
		s := NewTextSink(f)
		s.closer = f
		return s, nil
	case "json":
		s := NewJSONLinesSink(f)
		s.closer = f
		return s, nil
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// Multi fans each candidate out to every sink.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Write(ctx context.Context, c mutation.Candidate) error {
	for _, s := range m.sinks {
		if err := s.Write(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Predicate decides whether a candidate reaches the wrapped sink.
type Predicate func(ctx context.Context, c mutation.Candidate) (bool, error)

// Filtered forwards only the candidates keep accepts.
type Filtered struct {
	next    Sink
	keep    Predicate
	dropped int
}

func NewFiltered(next Sink, keep Predicate) *Filtered {
	return &Filtered{next: next, keep: keep}
}

func (f *Filtered) Write(ctx context.Context, c mutation.Candidate) error {
	ok, err := f.keep(ctx, c)
	if err != nil {
		return err
	}
	if !ok {
		f.dropped++
		return nil
	}
	return f.next.Write(ctx, c)
}

// Dropped returns how many candidates were filtered out.
func (f *Filtered) Dropped() int { return f.dropped }

func (f *Filtered) Close() error { return f.next.Close() }

// Collector keeps candidates in memory. It is safe for concurrent use.
type Collector struct {
	mu         sync.Mutex
	candidates []mutation.Candidate
}

func (c *Collector) Write(_ context.Context, cand mutation.Candidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append(c.candidates, cand)
	return nil
}

func (c *Collector) Close() error { return nil }

// Candidates returns a copy of everything written so far.
func (c *Collector) Candidates() []mutation.Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]mutation.Candidate(nil), c.candidates...)
}

package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// State of one stage of a generation run.
type State int

const (
	Pending State = iota
	Running
	Done
	Failed
)

// outcome is how a stage in state s is reported once the run is over.
func (s State) outcome() string {
	switch s {
	case Running:
		return "interrupted"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "skipped"
	}
}

type stage struct {
	name    string
	label   string
	state   State
	done    int
	total   int
	started time.Time
	ended   time.Time
}

// Tracker draws a status line on stderr while a run moves through its
// stages and prints a short report once it finishes. A disabled tracker
// still records state but never writes.
type Tracker struct {
	mu       sync.Mutex
	out      io.Writer
	enabled  bool
	begun    time.Time
	stages   []*stage
	active   *stage
	lastDraw time.Time
	interval time.Duration
}

// New returns a tracker writing to out.
func New(enabled bool, out io.Writer) *Tracker {
	return &Tracker{
		out:      out,
		enabled:  enabled,
		begun:    time.Now(),
		interval: 100 * time.Millisecond,
	}
}

// AddPhase registers a stage. Stages are reported in registration order.
func (t *Tracker) AddPhase(name, label string) {
	t.mu.Lock()
	t.stages = append(t.stages, &stage{name: name, label: label})
	t.mu.Unlock()
}

func (t *Tracker) lookup(name string) *stage {
	for _, s := range t.stages {
		if s.name == name {
			return s
		}
	}
	return nil
}

// StartPhase makes name the stage shown on the status line.
func (t *Tracker) StartPhase(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.lookup(name)
	if s == nil {
		return
	}
	s.state = Running
	s.started = time.Now()
	t.active = s
	t.draw(true)
}

// UpdateCount records that done of total units of a stage have finished.
// Redraws are rate limited except for the last unit.
func (t *Tracker) UpdateCount(name string, done, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.lookup(name)
	if s == nil || total <= 0 {
		return
	}
	s.done, s.total = done, total
	t.draw(done >= total)
}

// CompletePhase marks a stage finished.
func (t *Tracker) CompletePhase(name string) {
	t.finish(name, Done, nil)
}

// FailPhase marks a stage failed and prints err under the status line.
func (t *Tracker) FailPhase(name string, err error) {
	t.finish(name, Failed, err)
}

func (t *Tracker) finish(name string, state State, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.lookup(name)
	if s == nil {
		return
	}
	s.state = state
	s.ended = time.Now()
	if state == Done && s.total > 0 {
		s.done = s.total
	}
	t.draw(true)
	if err != nil && t.enabled {
		fmt.Fprintf(t.out, "\nphase %s failed: %v\n", name, err)
	}
}

// draw rewrites the status line. Callers hold mu.
func (t *Tracker) draw(force bool) {
	if !t.enabled || t.active == nil {
		return
	}
	now := time.Now()
	if !force && now.Sub(t.lastDraw) < t.interval {
		return
	}
	t.lastDraw = now

	s := t.active
	line := fmt.Sprintf("[%d/%d] %s", t.position(s), len(t.stages), s.label)
	if s.total > 0 {
		pct := s.done * 100 / s.total
		line += fmt.Sprintf(" (%d%%) %s %d/%d", pct, bar(pct, 24), s.done, s.total)
		if eta, ok := estimate(now.Sub(s.started), s.done, s.total); ok {
			line += " eta " + formatDuration(eta)
		}
	}
	fmt.Fprint(t.out, "\r\033[K"+line)
}

func (t *Tracker) position(s *stage) int {
	for i, st := range t.stages {
		if st == s {
			return i + 1
		}
	}
	return 0
}

// Complete clears the status line and reports how each stage ended.
func (t *Tracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		return
	}

	fmt.Fprint(t.out, "\r\033[K")
	fmt.Fprintf(t.out, "Run completed in %s\n", formatDuration(time.Since(t.begun)))
	for _, s := range t.stages {
		took := ""
		if !s.ended.IsZero() {
			took = " (" + formatDuration(s.ended.Sub(s.started)) + ")"
		}
		fmt.Fprintf(t.out, "  %-9s %s%s\n", s.name, s.state.outcome(), took)
	}
}

func bar(pct, width int) string {
	filled := min(max(pct, 0), 100) * width / 100
	return strings.Repeat("=", filled) + strings.Repeat(".", width-filled)
}

// estimate projects the remaining time from the rate so far.
func estimate(elapsed time.Duration, done, total int) (time.Duration, bool) {
	if done <= 0 || done >= total {
		return 0, false
	}
	perUnit := elapsed / time.Duration(done)
	return perUnit * time.Duration(total-done), true
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return "< 1s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

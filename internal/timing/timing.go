// Package timing records per-file stage timers and a bounded history of
// processing samples.
package timing

import (
	"sync"
	"time"
)

// Stage labels recorded by the pipeline.
const (
	Total = "total"
	Match = "match"
)

// Timing is one labelled duration.
type Timing struct {
	Label    string        `json:"label"`
	Duration time.Duration `json:"duration"`
}

// Timers records labelled durations for one unit of work. A nil *Timers is
// valid and records nothing.
type Timers struct {
	mu        sync.Mutex
	now       func() time.Time
	starts    map[string]time.Time
	durations map[string]time.Duration
	order     []string
}

// NewTimers creates an empty timer set.
func NewTimers() *Timers {
	return &Timers{
		now:       time.Now,
		starts:    make(map[string]time.Time),
		durations: make(map[string]time.Duration),
	}
}

// Start begins timing label. Restarting a label discards its earlier start.
func (t *Timers) Start(label string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, seen := t.starts[label]; !seen {
		if _, done := t.durations[label]; !done {
			t.order = append(t.order, label)
		}
	}
	t.starts[label] = t.now()
}

// End stops timing label and returns its duration. Ending a label that was
// never started returns zero.
func (t *Timers) End(label string) time.Duration {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	start, ok := t.starts[label]
	if !ok {
		return 0
	}
	delete(t.starts, label)
	d := t.now().Sub(start)
	t.durations[label] = d
	return d
}

// Get returns the recorded duration for label.
func (t *Timers) Get(label string) time.Duration {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.durations[label]
}

// All returns completed timings in the order they were first started.
func (t *Timers) All() []Timing {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Timing, 0, len(t.durations))
	for _, label := range t.order {
		if d, ok := t.durations[label]; ok {
			out = append(out, Timing{Label: label, Duration: d})
		}
	}
	return out
}

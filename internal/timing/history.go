package timing

import (
	"sync"
	"time"

	"github.com/panbanda/clonestream/pkg/stats"
)

// DefaultHistorySize is the number of samples kept when no size is given.
const DefaultHistorySize = 5000

// Sample is the timing record of one processed file.
type Sample struct {
	Name     string    `json:"name"`
	LOC      int       `json:"loc"`
	TotalUS  float64   `json:"total_us"`
	MatchUS  float64   `json:"match_us"`
	USPerLOC float64   `json:"us_per_loc"`
	At       time.Time `json:"at"`
}

// NewSample builds a sample from a file's timers.
func NewSample(name string, loc int, t *Timers) Sample {
	s := Sample{
		Name:    name,
		LOC:     loc,
		TotalUS: micros(t.Get(Total)),
		MatchUS: micros(t.Get(Match)),
		At:      time.Now(),
	}
	if loc > 0 {
		s.USPerLOC = s.MatchUS / float64(loc)
	}
	return s
}

func micros(d time.Duration) float64 {
	return float64(d) / float64(time.Microsecond)
}

// History is a bounded, concurrency-safe list of samples. The oldest sample
// is dropped once the bound is reached.
type History struct {
	mu      sync.RWMutex
	max     int
	samples []Sample
}

// NewHistory creates a history keeping at most max samples.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &History{max: max}
}

// Add appends a sample.
func (h *History) Add(s Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = append(h.samples, s)
	if over := len(h.samples) - h.max; over > 0 {
		h.samples = append(h.samples[:0:0], h.samples[over:]...)
	}
}

// Len returns the number of samples held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples)
}

// Samples returns a copy of all samples, oldest first.
func (h *History) Samples() []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Sample(nil), h.samples...)
}

// Latest returns up to n of the most recent samples, oldest first.
func (h *History) Latest(n int) []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > len(h.samples) {
		n = len(h.samples)
	}
	return append([]Sample(nil), h.samples[len(h.samples)-n:]...)
}

// Summary aggregates the history.
type Summary struct {
	Samples int           `json:"samples"`
	Total   stats.Summary `json:"total_us"`
	Match   stats.Summary `json:"match_us"`
	PerLOC  stats.Summary `json:"us_per_loc"`
}

// Summary computes statistics over every held sample.
func (h *History) Summary() Summary {
	samples := h.Samples()
	total := make([]float64, len(samples))
	match := make([]float64, len(samples))
	perLOC := make([]float64, len(samples))
	for i, s := range samples {
		total[i] = s.TotalUS
		match[i] = s.MatchUS
		perLOC[i] = s.USPerLOC
	}
	return Summary{
		Samples: len(samples),
		Total:   stats.Summarize(total),
		Match:   stats.Summarize(match),
		PerLOC:  stats.Summarize(perLOC),
	}
}

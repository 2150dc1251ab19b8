// Package monitor samples corpus counts at a fixed interval.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/panbanda/clonestream/internal/store"
	"github.com/panbanda/clonestream/pkg/pipeline"
)

// Defaults.
const (
	DefaultInterval   = 5 * time.Second
	DefaultMaxSamples = 1000
)

// Sample is one snapshot of corpus counts. Chunks and Candidates are
// cumulative over the accepted files observed by this process.
type Sample struct {
	TS         time.Time `json:"ts"`
	Files      int       `json:"files"`
	Chunks     int64     `json:"chunks"`
	Candidates int64     `json:"candidates"`
	Clones     int       `json:"clones"`
}

// Monitor keeps a bounded list of samples.
type Monitor struct {
	files    store.FileStore
	clones   store.CloneStore
	interval time.Duration
	max      int
	logger   zerolog.Logger
	now      func() time.Time

	chunks     atomic.Int64
	candidates atomic.Int64

	mu      sync.RWMutex
	samples []Sample
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the sampling interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithMaxSamples bounds the number of samples kept.
func WithMaxSamples(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.max = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// New creates a monitor over the given stores.
func New(files store.FileStore, clones store.CloneStore, opts ...Option) *Monitor {
	m := &Monitor{
		files:    files,
		clones:   clones,
		interval: DefaultInterval,
		max:      DefaultMaxSamples,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observe feeds a pipeline outcome into the cumulative counters. It has
// the pipeline.Observer signature.
func (m *Monitor) Observe(o *pipeline.Outcome) {
	if o == nil || !o.Accepted() {
		return
	}
	m.chunks.Add(int64(o.Chunks))
	m.candidates.Add(int64(o.Candidates))
}

// SampleOnce records and returns one sample.
func (m *Monitor) SampleOnce(ctx context.Context) (Sample, error) {
	files, err := m.files.NumberOfFiles(ctx)
	if err != nil {
		return Sample{}, err
	}
	clones, err := m.clones.NumberOfClones(ctx)
	if err != nil {
		return Sample{}, err
	}

	s := Sample{
		TS:         m.now(),
		Files:      files,
		Chunks:     m.chunks.Load(),
		Candidates: m.candidates.Load(),
		Clones:     clones,
	}

	m.mu.Lock()
	m.samples = append(m.samples, s)
	if over := len(m.samples) - m.max; over > 0 {
		m.samples = append(m.samples[:0:0], m.samples[over:]...)
	}
	m.mu.Unlock()

	m.logger.Info().
		Int("files", s.Files).
		Int64("chunks", s.Chunks).
		Int64("candidates", s.Candidates).
		Int("clones", s.Clones).
		Msg("sample")
	return s, nil
}

// Run samples immediately and then every interval until ctx is done.
// Sampling errors are logged and do not stop the loop.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.SampleOnce(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error().Err(err).Msg("sampling failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Samples returns up to limit of the oldest samples in chronological
// order. A non-positive limit returns all of them.
func (m *Monitor) Samples(limit int) []Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.samples) {
		limit = len(m.samples)
	}
	return append([]Sample(nil), m.samples[:limit]...)
}

// Summary is the current corpus state plus throughput over the sampled
// window.
type Summary struct {
	Counts         Sample  `json:"counts"`
	Samples        int     `json:"samples"`
	WindowSeconds  float64 `json:"window_seconds"`
	FilesPerMinute float64 `json:"files_per_minute"`
}

// Summary takes a fresh reading of the stores and computes throughput from
// the oldest held sample.
func (m *Monitor) Summary(ctx context.Context) (Summary, error) {
	files, err := m.files.NumberOfFiles(ctx)
	if err != nil {
		return Summary{}, err
	}
	clones, err := m.clones.NumberOfClones(ctx)
	if err != nil {
		return Summary{}, err
	}

	now := m.now()
	sum := Summary{Counts: Sample{
		TS:         now,
		Files:      files,
		Chunks:     m.chunks.Load(),
		Candidates: m.candidates.Load(),
		Clones:     clones,
	}}

	m.mu.RLock()
	sum.Samples = len(m.samples)
	var oldest Sample
	if len(m.samples) > 0 {
		oldest = m.samples[0]
	}
	m.mu.RUnlock()

	if sum.Samples > 0 {
		window := now.Sub(oldest.TS)
		sum.WindowSeconds = window.Seconds()
		if window > 0 {
			sum.FilesPerMinute = float64(files-oldest.Files) / window.Minutes()
		}
	}
	return sum, nil
}

// Package pipeline runs clone detection for one incoming file at a time:
// validate, normalize, chunk, detect against the corpus and persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/panbanda/clonestream/internal/cache"
	"github.com/panbanda/clonestream/internal/store"
	"github.com/panbanda/clonestream/internal/timing"
	"github.com/panbanda/clonestream/pkg/detector"
	"github.com/panbanda/clonestream/pkg/models"
)

// Observer is called with every outcome, accepted or rejected.
type Observer func(*Outcome)

// Pipeline is safe for concurrent use. Independent files may be processed
// in parallel; they coordinate only through the stores.
type Pipeline struct {
	files     store.FileStore
	clones    store.CloneStore
	detector  *detector.Detector
	policy    *Policy
	logger    zerolog.Logger
	prepared  *cache.Cache[*detector.PreparedFile]
	observers []Observer
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDetector replaces the default detector.
func WithDetector(d *detector.Detector) Option {
	return func(p *Pipeline) {
		p.detector = d
	}
}

// WithChunkSize builds the default detector with chunk size k.
func WithChunkSize(k int) Option {
	return func(p *Pipeline) {
		p.detector = detector.New(detector.WithChunkSize(k), detector.WithErrorHandler(p.detectionError))
	}
}

// WithPolicy sets the accepted-file policy.
func WithPolicy(policy *Policy) Option {
	return func(p *Pipeline) {
		p.policy = policy
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithCache caches prepared corpus files between runs.
func WithCache(c *cache.Cache[*detector.PreparedFile]) Option {
	return func(p *Pipeline) {
		p.prepared = c
	}
}

// WithObserver registers a callback for every outcome.
func WithObserver(fn Observer) Option {
	return func(p *Pipeline) {
		p.observers = append(p.observers, fn)
	}
}

// New creates a pipeline over the given stores.
func New(files store.FileStore, clones store.CloneStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		files:  files,
		clones: clones,
		policy: DefaultPolicy(),
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	p.detector = detector.New(detector.WithErrorHandler(p.detectionError))
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Detector returns the detector in use.
func (p *Pipeline) Detector() *detector.Detector {
	return p.detector
}

// Policy returns the accepted-file policy.
func (p *Pipeline) Policy() *Policy {
	return p.policy
}

func (p *Pipeline) detectionError(err error) {
	p.logger.Warn().Err(err).Msg("skipping clone candidate")
}

// Process runs one file through the pipeline. Rejections are reported in
// the outcome; the error is non-nil only for storage failures and context
// cancellation, in which case nothing was persisted.
func (p *Pipeline) Process(ctx context.Context, name, contents string) (*Outcome, error) {
	timers := timing.NewTimers()
	timers.Start(timing.Total)

	if !p.policy.Accepts(name) {
		return p.reject(name, UnsupportedFileType, timers), nil
	}

	processed, err := p.files.IsFileProcessed(ctx, name)
	if err != nil {
		return nil, p.storageFailure(name, "check file", err)
	}
	if processed {
		return p.reject(name, AlreadyProcessed, timers), nil
	}

	target := p.detector.Prepare(name, contents)

	timers.Start(timing.Match)
	records, err := p.files.AllFiles(ctx)
	if err != nil {
		return nil, p.storageFailure(name, "load corpus", err)
	}
	corpus := p.prepareCorpus(records)

	res, err := p.detector.Detect(ctx, target, corpus)
	if err != nil {
		return nil, err
	}
	attachOriginalCode(res.Clones, records)

	hash := cache.HashString(contents)
	rec := models.FileRecord{
		Name:        name,
		Contents:    contents,
		ContentHash: hash,
		StoredAt:    p.now(),
	}
	if err := p.persist(ctx, rec, res.Clones); err != nil {
		if errors.Is(err, store.ErrExists) {
			return p.reject(name, AlreadyProcessed, timers), nil
		}
		return nil, p.storageFailure(name, "persist", err)
	}
	timers.End(timing.Match)

	if p.prepared != nil {
		p.prepared.SetWithHash(name, hash, target)
	}
	timers.End(timing.Total)

	out := &Outcome{
		Name:       name,
		Status:     Accepted,
		Clones:     res.Clones,
		LOC:        rec.LOC(),
		Chunks:     len(target.Chunks),
		Candidates: res.Candidates,
		Compared:   res.Compared,
		Timers:     timers,
	}
	p.logger.Debug().
		Str("file", name).
		Int("chunks", out.Chunks).
		Int("candidates", out.Candidates).
		Int("clones", len(out.Clones)).
		Dur("total", timers.Get(timing.Total)).
		Msg("file accepted")
	p.notify(out)
	return out, nil
}

// persist hands the file and its clones to the stores, atomically when both
// are the same Committer.
func (p *Pipeline) persist(ctx context.Context, rec models.FileRecord, clones []models.Clone) error {
	if c, ok := p.files.(store.Committer); ok && any(p.files) == any(p.clones) {
		return c.Commit(ctx, rec, clones)
	}
	if err := p.clones.StoreClones(ctx, rec.Name, clones); err != nil {
		return err
	}
	return p.files.StoreFile(ctx, rec)
}

func (p *Pipeline) prepareCorpus(records []models.FileRecord) []*detector.PreparedFile {
	corpus := make([]*detector.PreparedFile, 0, len(records))
	for _, rec := range records {
		corpus = append(corpus, p.prepare(rec))
	}
	return corpus
}

func (p *Pipeline) prepare(rec models.FileRecord) *detector.PreparedFile {
	if p.prepared == nil {
		return p.detector.Prepare(rec.Name, rec.Contents)
	}
	hash := rec.ContentHash
	if hash == "" {
		hash = cache.HashString(rec.Contents)
	}
	if pf, ok := p.prepared.GetWithHash(rec.Name, hash); ok && pf != nil {
		return pf
	}
	pf := p.detector.Prepare(rec.Name, rec.Contents)
	p.prepared.SetWithHash(rec.Name, hash, pf)
	return pf
}

// attachOriginalCode fills each clone's OriginalCode with the raw source
// span from the corpus snapshot.
func attachOriginalCode(clones []models.Clone, records []models.FileRecord) {
	if len(clones) == 0 {
		return
	}
	byName := make(map[string]int, len(records))
	for i, rec := range records {
		byName[rec.Name] = i
	}
	for i := range clones {
		idx, ok := byName[clones[i].SourceFile]
		if !ok {
			continue
		}
		clones[i].OriginalCode = records[idx].Excerpt(clones[i].SourceStart, clones[i].SourceEnd)
	}
}

func (p *Pipeline) reject(name string, reason Reason, timers *timing.Timers) *Outcome {
	timers.End(timing.Total)
	out := rejected(name, reason, timers)
	p.logger.Info().Str("file", name).Str("reason", reason.String()).Msg("file rejected")
	p.notify(out)
	return out
}

func (p *Pipeline) storageFailure(name, op string, err error) error {
	p.logger.Error().Err(err).Str("file", name).Str("op", op).Msg("storage failure")
	if errors.Is(err, store.ErrStorage) {
		return fmt.Errorf("%s %s: %w", op, name, err)
	}
	return fmt.Errorf("%w: %s %s: %v", store.ErrStorage, op, name, err)
}

func (p *Pipeline) notify(out *Outcome) {
	for _, fn := range p.observers {
		fn(out)
	}
}

// Package detector finds exact-chunk code clones between an incoming file
// and the files already in a corpus.
package detector

import (
	"context"
	"fmt"

	"github.com/panbanda/clonestream/pkg/models"
)

// DefaultChunkSize is the number of content lines per chunk.
const DefaultChunkSize = 5

// ErrorFunc receives errors that were recovered during detection.
type ErrorFunc func(err error)

// Detector runs normalization, chunking, candidate generation, expansion
// and consolidation. It holds no corpus state and is safe for concurrent use.
type Detector struct {
	chunkSize int
	onError   ErrorFunc
}

// Option is a functional option for configuring Detector.
type Option func(*Detector)

// WithChunkSize sets the chunk size. Values below 1 are ignored.
func WithChunkSize(k int) Option {
	return func(d *Detector) {
		if k > 0 {
			d.chunkSize = k
		}
	}
}

// WithErrorHandler sets the callback for recovered per-candidate and
// per-file errors.
func WithErrorHandler(fn ErrorFunc) Option {
	return func(d *Detector) {
		d.onError = fn
	}
}

// New creates a detector with the default chunk size.
func New(opts ...Option) *Detector {
	d := &Detector{chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ChunkSize returns the configured chunk size.
func (d *Detector) ChunkSize() int {
	return d.chunkSize
}

func (d *Detector) reportError(err error) {
	if d.onError != nil {
		d.onError(err)
	}
}

// Prepare normalizes and chunks a file.
func (d *Detector) Prepare(name, contents string) *PreparedFile {
	lines := Normalize(contents)
	return newPreparedFile(name, lines, Chunkify(lines, d.chunkSize))
}

// Compare runs candidate generation, expansion and consolidation of target
// against one corpus file.
func (d *Detector) Compare(source, target *PreparedFile) ([]models.Clone, int) {
	cands := d.Candidates(source, target)
	return Consolidate(toClones(Expand(cands))), len(cands)
}

// Result is the outcome of detecting one incoming file against a corpus.
type Result struct {
	Clones     []models.Clone
	Candidates int
	Compared   int
}

// Detect compares target against every corpus file in order, consolidating
// after each comparison. A panic while comparing one corpus file is
// recovered, reported, and the remaining files are still compared.
func (d *Detector) Detect(ctx context.Context, target *PreparedFile, corpus []*PreparedFile) (Result, error) {
	var res Result

	for _, source := range corpus {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if source == nil || source.Name == target.Name {
			continue
		}

		clones, n, err := d.safeCompare(source, target)
		if err != nil {
			d.reportError(err)
			continue
		}
		res.Compared++
		res.Candidates += n
		res.Clones = Consolidate(append(res.Clones, clones...))
	}

	return res, nil
}

func (d *Detector) safeCompare(source, target *PreparedFile) (clones []models.Clone, n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("comparing %s against %s: %v", target.Name, source.Name, r)
		}
	}()
	clones, n = d.Compare(source, target)
	return clones, n, nil
}

package fileproc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panbanda/clonestream/internal/scanner"
	"github.com/panbanda/clonestream/pkg/pipeline"
	"github.com/panbanda/clonestream/pkg/source"
)

// Processor runs one file through clone detection.
type Processor interface {
	Process(ctx context.Context, name, contents string) (*pipeline.Outcome, error)
}

// IngestOptions configures a batch ingestion.
type IngestOptions struct {
	// Workers bounds concurrent Process calls. Values below 1 mean 1, which
	// ingests files strictly in the given order.
	Workers int
	// MaxFileSize skips larger files when positive.
	MaxFileSize int64
	OnProgress  ProgressFunc
}

// Summary aggregates the outcomes of a batch.
type Summary struct {
	Files      int                     `json:"files"`
	Accepted   int                     `json:"accepted"`
	Rejected   map[pipeline.Reason]int `json:"-"`
	Skipped    int                     `json:"skipped"`
	Failed     int                     `json:"failed"`
	Clones     int                     `json:"clones"`
	Chunks     int                     `json:"chunks"`
	Candidates int                     `json:"candidates"`
	Elapsed    time.Duration           `json:"elapsed"`
	Outcomes   []*pipeline.Outcome     `json:"-"`
	Errors     *ProcessingErrors       `json:"-"`
}

// RejectedTotal sums rejections over all reasons.
func (s *Summary) RejectedTotal() int {
	n := 0
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

// Ingest reads each file from src and processes it. Per-file read and
// storage failures are collected in Summary.Errors and do not stop the batch.
func Ingest(ctx context.Context, proc Processor, src source.ContentSource, files []scanner.File, opts IngestOptions) *Summary {
	start := time.Now()
	sum := &Summary{Files: len(files), Rejected: make(map[pipeline.Reason]int)}

	src = source.Limit(src, opts.MaxFileSize)

	outcomes, errs := Map(ctx, files, opts.Workers,
		func(f scanner.File) string { return f.Name },
		func(ctx context.Context, f scanner.File) (*pipeline.Outcome, error) {
			data, err := src.Read(f.Path)
			if err != nil {
				return nil, fmt.Errorf("read: %w", err)
			}
			return proc.Process(ctx, f.Name, string(data))
		},
		opts.OnProgress,
	)

	for _, out := range outcomes {
		if out.Accepted() {
			sum.Accepted++
			sum.Clones += len(out.Clones)
			sum.Chunks += out.Chunks
			sum.Candidates += out.Candidates
		} else {
			sum.Rejected[out.Reason]++
		}
	}
	sum.Outcomes = outcomes

	// Oversized files are counted as skipped, not reported.
	if errs != nil {
		reported := &ProcessingErrors{}
		for _, pe := range errs.Errors {
			var tooLarge *source.TooLargeError
			if errors.As(pe.Err, &tooLarge) {
				sum.Skipped++
				continue
			}
			reported.Add(pe.Path, pe.Err)
		}
		if reported.HasErrors() {
			sum.Errors = reported
			sum.Failed = reported.Len()
		}
	}
	sum.Elapsed = time.Since(start)
	return sum
}

// Package fileproc provides concurrent file processing utilities.
package fileproc

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// ProcessingError represents an error that occurred while processing a file.
type ProcessingError struct {
	Path string
	Err  error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e ProcessingError) Unwrap() error {
	return e.Err
}

// ProcessingErrors collects multiple file processing errors.
type ProcessingErrors struct {
	Errors []ProcessingError
	mu     sync.Mutex
}

// Add appends an error to the collection (thread-safe).
func (e *ProcessingErrors) Add(path string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ProcessingError{Path: path, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any errors were collected.
func (e *ProcessingErrors) HasErrors() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

// Len returns the number of collected errors.
func (e *ProcessingErrors) Len() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors)
}

// Error implements the error interface.
func (e *ProcessingErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d files failed to process (first: %v)", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e *ProcessingErrors) Unwrap() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]error, len(e.Errors))
	for i, pe := range e.Errors {
		out[i] = pe
	}
	return out
}

// ProgressFunc is called after each item is processed.
type ProgressFunc func()

// Map runs fn over items with at most workers goroutines and returns the
// successful results in input order. Failures are collected under the name
// the key function gives the item; they never stop the batch. Items not yet
// started when ctx is cancelled fail with the context error. The returned
// errors are nil when every item succeeded.
func Map[T, R any](
	ctx context.Context,
	items []T,
	workers int,
	key func(T) string,
	fn func(context.Context, T) (R, error),
	onProgress ProgressFunc,
) ([]R, *ProcessingErrors) {
	if len(items) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = 1
	}

	type slot struct {
		value R
		ok    bool
	}
	slots := make([]slot, len(items))
	errs := &ProcessingErrors{}

	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx)
	for i, item := range items {
		p.Go(func(ctx context.Context) error {
			defer func() {
				if onProgress != nil {
					onProgress()
				}
			}()

			if err := ctx.Err(); err != nil {
				errs.Add(key(item), err)
				return nil
			}

			result, err := fn(ctx, item)
			if err != nil {
				errs.Add(key(item), err)
				return nil
			}
			slots[i] = slot{value: result, ok: true}
			return nil
		})
	}
	_ = p.Wait()

	results := make([]R, 0, len(items))
	for _, s := range slots {
		if s.ok {
			results = append(results, s.value)
		}
	}
	if !errs.HasErrors() {
		return results, nil
	}
	return results, errs
}

// Package store persists the corpus: accepted files and the clones found
// between them.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/panbanda/clonestream/pkg/models"
)

var (
	// ErrStorage wraps every backend failure.
	ErrStorage = errors.New("storage failure")

	// ErrNotFound is returned when a requested file is not stored.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when a file with the same name is already stored.
	ErrExists = errors.New("file already stored")
)

// FileStore holds the append-only set of accepted files.
type FileStore interface {
	IsFileProcessed(ctx context.Context, name string) (bool, error)
	StoreFile(ctx context.Context, rec models.FileRecord) error
	// AllFiles returns every stored file in insertion order.
	AllFiles(ctx context.Context) ([]models.FileRecord, error)
	NumberOfFiles(ctx context.Context) (int, error)
}

// CloneStore holds the corpus-wide clone set. Clones sharing a source span
// are merged, never overwritten.
type CloneStore interface {
	StoreClones(ctx context.Context, file string, clones []models.Clone) error
	NumberOfClones(ctx context.Context) (int, error)
	Clones(ctx context.Context) ([]models.Clone, error)
}

// Committer persists a file and its clones atomically.
type Committer interface {
	Commit(ctx context.Context, rec models.FileRecord, clones []models.Clone) error
}

// Store is a complete corpus backend.
type Store interface {
	FileStore
	CloneStore
	Committer

	// File returns a stored file by name or ErrNotFound.
	File(ctx context.Context, name string) (models.FileRecord, error)
	Close() error
}

// Supported drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Open creates a store for the given driver.
func Open(driver, path string, logger zerolog.Logger) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		return NewSQLiteStore(path, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

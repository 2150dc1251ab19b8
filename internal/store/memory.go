package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/panbanda/clonestream/pkg/models"
)

// MemoryStore is an in-process store. All operations are serialized by a
// single mutex, which also makes Commit atomic.
type MemoryStore struct {
	mu       sync.RWMutex
	files    []models.FileRecord
	byName   map[string]int
	clones   []models.Clone
	cloneIdx map[models.CloneKey]int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byName:   make(map[string]int),
		cloneIdx: make(map[models.CloneKey]int),
	}
}

func (s *MemoryStore) IsFileProcessed(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byName[name]
	return ok, nil
}

func (s *MemoryStore) StoreFile(_ context.Context, rec models.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeFileLocked(rec)
}

func (s *MemoryStore) storeFileLocked(rec models.FileRecord) error {
	if _, ok := s.byName[rec.Name]; ok {
		return fmt.Errorf("%w: %s", ErrExists, rec.Name)
	}
	s.byName[rec.Name] = len(s.files)
	s.files = append(s.files, rec)
	return nil
}

func (s *MemoryStore) File(_ context.Context, name string) (models.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byName[name]
	if !ok {
		return models.FileRecord{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.files[idx], nil
}

func (s *MemoryStore) AllFiles(_ context.Context) ([]models.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.FileRecord(nil), s.files...), nil
}

func (s *MemoryStore) NumberOfFiles(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files), nil
}

func (s *MemoryStore) StoreClones(_ context.Context, _ string, clones []models.Clone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeClonesLocked(clones)
	return nil
}

func (s *MemoryStore) mergeClonesLocked(clones []models.Clone) {
	for _, c := range clones {
		key := c.Key()
		if idx, ok := s.cloneIdx[key]; ok {
			_ = s.clones[idx].Merge(c)
			continue
		}
		s.cloneIdx[key] = len(s.clones)
		s.clones = append(s.clones, c.Clone())
	}
}

func (s *MemoryStore) NumberOfClones(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clones), nil
}

func (s *MemoryStore) Clones(_ context.Context) ([]models.Clone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Clone, len(s.clones))
	for i, c := range s.clones {
		out[i] = c.Clone()
	}
	return out, nil
}

// Commit stores rec and merges clones under one lock. Nothing is written if
// rec is already stored.
func (s *MemoryStore) Commit(_ context.Context, rec models.FileRecord, clones []models.Clone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storeFileLocked(rec); err != nil {
		return err
	}
	s.mergeClonesLocked(clones)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

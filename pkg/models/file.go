package models

import (
	"strings"
	"time"
)

// FileRecord is a file accepted into the corpus. Records are immutable once
// stored; content lines and chunks are recomputed from Contents on demand.
type FileRecord struct {
	Name        string    `json:"name"`
	Contents    string    `json:"contents"`
	ContentHash string    `json:"content_hash,omitempty"`
	StoredAt    time.Time `json:"stored_at"`
}

// LOC returns the number of physical lines in the file.
func (f *FileRecord) LOC() int {
	return strings.Count(f.Contents, "\n") + 1
}

// Excerpt returns original lines start..end (1-based, inclusive).
func (f *FileRecord) Excerpt(start, end int) string {
	lines := strings.Split(f.Contents, "\n")
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

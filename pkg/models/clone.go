package models

import "fmt"

// CloneTarget is one occurrence of a clone outside its source span.
type CloneTarget struct {
	File      string `json:"name"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// String returns "file:start-end".
func (t CloneTarget) String() string {
	return fmt.Sprintf("%s:%d-%d", t.File, t.StartLine, t.EndLine)
}

// CloneKey identifies a clone by its source span. Two clones with the same
// key are the same clone and their targets are unioned.
type CloneKey struct {
	File  string
	Start int
	End   int
}

// String returns "file:start-end".
func (k CloneKey) String() string {
	return fmt.Sprintf("%s:%d-%d", k.File, k.Start, k.End)
}

// Clone is a maximal matched source span together with every place it was
// found in files ingested after the source file.
type Clone struct {
	SourceFile   string        `json:"source_name"`
	SourceStart  int           `json:"source_start"`
	SourceEnd    int           `json:"source_end"`
	Targets      []CloneTarget `json:"targets"`
	OriginalCode string        `json:"original_code,omitempty"`
}

// Key returns the source-span key of the clone.
func (c *Clone) Key() CloneKey {
	return CloneKey{File: c.SourceFile, Start: c.SourceStart, End: c.SourceEnd}
}

// Lines returns the number of original lines spanned by the source.
func (c *Clone) Lines() int {
	return c.SourceEnd - c.SourceStart + 1
}

// HasTarget reports whether t is already one of the clone's targets.
func (c *Clone) HasTarget(t CloneTarget) bool {
	for _, existing := range c.Targets {
		if existing == t {
			return true
		}
	}
	return false
}

// AddTarget appends t unless it is already present. Returns true if added.
func (c *Clone) AddTarget(t CloneTarget) bool {
	if c.HasTarget(t) {
		return false
	}
	c.Targets = append(c.Targets, t)
	return true
}

// Merge unions the targets of other into c. Both clones must share a key.
func (c *Clone) Merge(other Clone) error {
	if c.Key() != other.Key() {
		return fmt.Errorf("cannot merge clone %s into %s", other.Key(), c.Key())
	}
	for _, t := range other.Targets {
		c.AddTarget(t)
	}
	if c.OriginalCode == "" {
		c.OriginalCode = other.OriginalCode
	}
	return nil
}

// Clone returns a deep copy.
func (c Clone) Clone() Clone {
	out := c
	out.Targets = append([]CloneTarget(nil), c.Targets...)
	return out
}

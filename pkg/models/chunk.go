package models

// ContentLine is a source line that survived comment and blank stripping.
// Number is 1-based and refers to the original file.
type ContentLine struct {
	Number int    `json:"line_number"`
	Text   string `json:"text"`
}

// Chunk is a window of consecutive content lines. Offset is the position of
// the first line in the file's content-line sequence. Equality for matching
// purposes is the sequence of line texts only.
type Chunk struct {
	Offset      int
	Lines       []ContentLine
	Fingerprint uint64
}

// StartLine returns the original line number of the first line.
func (c Chunk) StartLine() int {
	if len(c.Lines) == 0 {
		return 0
	}
	return c.Lines[0].Number
}

// EndLine returns the original line number of the last line.
func (c Chunk) EndLine() int {
	if len(c.Lines) == 0 {
		return 0
	}
	return c.Lines[len(c.Lines)-1].Number
}

// TextEqual reports whether both chunks hold the same line texts in order.
func (c Chunk) TextEqual(other Chunk) bool {
	if len(c.Lines) != len(other.Lines) {
		return false
	}
	for i := range c.Lines {
		if c.Lines[i].Text != other.Lines[i].Text {
			return false
		}
	}
	return true
}

// Candidate is a transient clone candidate. A freshly generated candidate
// is one exact chunk-to-chunk match; after expansion it spans a run of
// window-adjacent matches.
//
// Start/End fields are original line numbers. First/Last fields are the
// content-line offsets of the first and last matched windows.
type Candidate struct {
	SourceFile  string
	SourceStart int
	SourceEnd   int
	TargetFile  string
	TargetStart int
	TargetEnd   int

	SourceFirst int
	SourceLast  int
	TargetFirst int
	TargetLast  int
}

// ToClone converts the candidate into a single-target clone.
func (c Candidate) ToClone() Clone {
	return Clone{
		SourceFile:  c.SourceFile,
		SourceStart: c.SourceStart,
		SourceEnd:   c.SourceEnd,
		Targets: []CloneTarget{{
			File:      c.TargetFile,
			StartLine: c.TargetStart,
			EndLine:   c.TargetEnd,
		}},
	}
}

package detector

import (
	"errors"
	"fmt"

	"github.com/panbanda/clonestream/pkg/models"
)

// ErrCloneConstruction is reported when a candidate cannot be built from a
// pair of chunks. The pair is skipped and detection continues.
var ErrCloneConstruction = errors.New("clone construction failed")

// newCandidate builds a candidate from a source chunk and a target chunk.
func newCandidate(sourceFile string, src models.Chunk, targetFile string, tgt models.Chunk) (models.Candidate, error) {
	if len(src.Lines) == 0 || len(tgt.Lines) == 0 {
		return models.Candidate{}, fmt.Errorf("%w: empty chunk %s@%d / %s@%d",
			ErrCloneConstruction, sourceFile, src.Offset, targetFile, tgt.Offset)
	}
	if len(src.Lines) != len(tgt.Lines) {
		return models.Candidate{}, fmt.Errorf("%w: chunk length %d != %d (%s@%d / %s@%d)",
			ErrCloneConstruction, len(src.Lines), len(tgt.Lines), sourceFile, src.Offset, targetFile, tgt.Offset)
	}

	return models.Candidate{
		SourceFile:  sourceFile,
		SourceStart: src.StartLine(),
		SourceEnd:   src.EndLine(),
		TargetFile:  targetFile,
		TargetStart: tgt.StartLine(),
		TargetEnd:   tgt.EndLine(),
		SourceFirst: src.Offset,
		SourceLast:  src.Offset,
		TargetFirst: tgt.Offset,
		TargetLast:  tgt.Offset,
	}, nil
}

// Candidates emits one candidate per pair (source chunk, target chunk) whose
// line texts are equal. source is a file already in the corpus, target is
// the incoming file. Candidates are ordered by target chunk, then by source
// chunk.
func (d *Detector) Candidates(source, target *PreparedFile) []models.Candidate {
	var out []models.Candidate

	for _, tgt := range target.Chunks {
		offsets := source.Offsets(tgt.Fingerprint)
		if offsets == nil {
			continue
		}
		it := offsets.Iterator()
		for it.HasNext() {
			src := source.Chunks[it.Next()]

			cand, err := newCandidate(source.Name, src, target.Name, tgt)
			if err != nil {
				d.reportError(err)
				continue
			}
			if !src.TextEqual(tgt) {
				continue // fingerprint collision
			}
			out = append(out, cand)
		}
	}

	return out
}

package detector

import (
	"sort"

	"github.com/panbanda/clonestream/pkg/models"
)

type filePair struct {
	source string
	target string
}

type windowPos struct {
	source int
	target int
}

// Expand merges window-adjacent candidates into maximal contiguous spans.
//
// Candidates are grouped by (source file, target file); groups never mix.
// Within a group, candidates are visited in (SourceFirst, TargetFirst)
// order and a candidate extends the run whose last windows sit exactly one
// content line before its own on both sides. Runs that are fully enclosed,
// on both sides, by another run of the same group are dropped.
//
// Expand is idempotent: expanding its own output returns the same spans.
func Expand(cands []models.Candidate) []models.Candidate {
	if len(cands) == 0 {
		return nil
	}

	var order []filePair
	groups := make(map[filePair][]models.Candidate)
	for _, c := range cands {
		key := filePair{source: c.SourceFile, target: c.TargetFile}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}

	out := make([]models.Candidate, 0, len(cands))
	for _, key := range order {
		out = append(out, expandGroup(groups[key])...)
	}
	return out
}

func expandGroup(group []models.Candidate) []models.Candidate {
	sorted := append([]models.Candidate(nil), group...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SourceFirst != sorted[j].SourceFirst {
			return sorted[i].SourceFirst < sorted[j].SourceFirst
		}
		return sorted[i].TargetFirst < sorted[j].TargetFirst
	})

	var runs []models.Candidate
	open := make(map[windowPos]int)

	for _, c := range sorted {
		at := windowPos{source: c.SourceFirst, target: c.TargetFirst}
		if idx, ok := open[at]; ok {
			delete(open, at)
			extend(&runs[idx], c)
			open[windowPos{source: runs[idx].SourceLast + 1, target: runs[idx].TargetLast + 1}] = idx
			continue
		}
		runs = append(runs, c)
		open[windowPos{source: c.SourceLast + 1, target: c.TargetLast + 1}] = len(runs) - 1
	}

	return dropSubsumed(runs)
}

// extend widens cur to cover c. Ends only ever grow.
func extend(cur *models.Candidate, c models.Candidate) {
	if c.SourceEnd > cur.SourceEnd {
		cur.SourceEnd = c.SourceEnd
	}
	if c.TargetEnd > cur.TargetEnd {
		cur.TargetEnd = c.TargetEnd
	}
	if c.SourceLast > cur.SourceLast {
		cur.SourceLast = c.SourceLast
	}
	if c.TargetLast > cur.TargetLast {
		cur.TargetLast = c.TargetLast
	}
}

func encloses(outer, inner models.Candidate) bool {
	return outer.SourceFirst <= inner.SourceFirst && inner.SourceLast <= outer.SourceLast &&
		outer.TargetFirst <= inner.TargetFirst && inner.TargetLast <= outer.TargetLast
}

// dropSubsumed removes runs enclosed by another run. Of two identical runs
// the first is kept.
func dropSubsumed(runs []models.Candidate) []models.Candidate {
	if len(runs) < 2 {
		return runs
	}

	kept := make([]models.Candidate, 0, len(runs))
	for i, r := range runs {
		subsumed := false
		for j, o := range runs {
			if i == j || !encloses(o, r) {
				continue
			}
			if encloses(r, o) && i < j {
				continue // identical span, keep the earlier one
			}
			subsumed = true
			break
		}
		if !subsumed {
			kept = append(kept, r)
		}
	}
	return kept
}

package detector

import "github.com/panbanda/clonestream/pkg/models"

// Consolidate merges clones sharing a source span into one clone whose
// targets are the union of the group's targets. Order of first appearance
// is preserved for both clones and targets. The input is not modified.
func Consolidate(clones []models.Clone) []models.Clone {
	if len(clones) == 0 {
		return nil
	}

	out := make([]models.Clone, 0, len(clones))
	index := make(map[models.CloneKey]int, len(clones))

	for _, c := range clones {
		key := c.Key()
		if idx, ok := index[key]; ok {
			// Keys are equal, Merge cannot fail.
			_ = out[idx].Merge(c)
			continue
		}
		merged := c.Clone()
		merged.Targets = nil
		for _, t := range c.Targets {
			merged.AddTarget(t)
		}
		index[key] = len(out)
		out = append(out, merged)
	}

	return out
}

// toClones converts expanded candidates into single-target clones.
func toClones(cands []models.Candidate) []models.Clone {
	if len(cands) == 0 {
		return nil
	}
	clones := make([]models.Clone, len(cands))
	for i, c := range cands {
		clones[i] = c.ToClone()
	}
	return clones
}

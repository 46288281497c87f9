package fix

import (
	"cmp"
	"slices"
)

// Rank orders the candidates of one target: higher confidence first, then
// safer, then smaller, then by ID.
func Rank(cands []Candidate) {
	slices.SortStableFunc(cands, compareCandidates)
}

func compareCandidates(a, b Candidate) int {
	if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Safety, b.Safety); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Scope.NodeCount, b.Scope.NodeCount); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

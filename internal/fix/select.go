package fix

import (
	"fmt"
	"slices"

	"refine/internal/patch"
)

// SelectMode determines the selection strategy.
type SelectMode uint8

const (
	// SelectOnce picks the first behavior-preserving candidate, or the
	// first candidate at all when none is.
	SelectOnce SelectMode = iota
	// SelectSafe picks every candidate up to MaxSafety that fits with the
	// ones picked before it.
	SelectSafe
	// SelectIDs picks the candidates named in IDs.
	SelectIDs
)

// SelectOptions configures how candidates are selected.
type SelectOptions struct {
	Mode SelectMode
	IDs  []string
	// MaxSafety bounds SelectSafe; the zero value admits only
	// behavior-preserving candidates.
	MaxSafety Safety
}

// Skipped records a candidate that was passed over, with the reason.
type Skipped struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

// Selection is the outcome of Select.
type Selection struct {
	Selected []Candidate `json:"selected"`
	Skipped  []Skipped   `json:"skipped"`
}

// Edits concatenates the edits of the selected candidates.
func (s *Selection) Edits() []patch.Op {
	var out []patch.Op
	for _, c := range s.Selected {
		out = append(out, c.Edits...)
	}
	return out
}

// Select picks a mutually compatible subset of analyzed candidates. The
// candidates are visited in slice order. It returns ErrNoCandidates when
// nothing is selected.
func Select(cands []Candidate, opts SelectOptions) (*Selection, error) {
	sel := &Selection{Selected: make([]Candidate, 0), Skipped: make([]Skipped, 0)}
	picked := make(map[string]bool)

	// fits reports why c cannot join the selection, or "".
	fits := func(c Candidate) string {
		for _, other := range c.Compatibility.ConflictsWith {
			if picked[other] {
				return "conflicts with " + other
			}
		}
		for _, need := range c.Compatibility.Requires {
			if !picked[need] {
				return "requires " + need
			}
		}
		return ""
	}
	take := func(c Candidate) {
		sel.Selected = append(sel.Selected, c)
		picked[c.ID] = true
	}
	skip := func(c Candidate, reason string) {
		sel.Skipped = append(sel.Skipped, Skipped{ID: c.ID, Title: c.Title, Reason: reason})
	}

	switch opts.Mode {
	case SelectIDs:
		byID := make(map[string]Candidate, len(cands))
		for _, c := range cands {
			byID[c.ID] = c
		}
		for _, id := range opts.IDs {
			c, ok := byID[id]
			if !ok {
				sel.Skipped = append(sel.Skipped, Skipped{ID: id, Reason: "candidate id not found"})
				continue
			}
			if picked[id] {
				continue
			}
			// requested candidates may depend on each other in any order
			reason := ""
			for _, other := range c.Compatibility.ConflictsWith {
				if picked[other] {
					reason = "conflicts with " + other
				}
			}
			for _, need := range c.Compatibility.Requires {
				if !slices.Contains(opts.IDs, need) {
					reason = "requires " + need
				}
			}
			if reason != "" {
				skip(c, reason)
				continue
			}
			take(c)
		}

	case SelectSafe:
		for _, c := range cands {
			if c.Safety > opts.MaxSafety {
				skip(c, fmt.Sprintf("safety is %s", c.Safety))
				continue
			}
			if reason := fits(c); reason != "" {
				skip(c, reason)
				continue
			}
			take(c)
		}

	case SelectOnce:
		var fallback *Candidate
		for i := range cands {
			c := cands[i]
			if len(c.Compatibility.Requires) > 0 {
				skip(c, "requires other candidates")
				continue
			}
			if c.Safety == SafetyBehaviorPreserving {
				take(c)
				break
			}
			if fallback == nil {
				fallback = &cands[i]
			}
		}
		if len(sel.Selected) == 0 && fallback != nil {
			take(*fallback)
		}

	default:
		return sel, fmt.Errorf("unknown select mode %d", opts.Mode)
	}

	if len(sel.Selected) == 0 {
		return sel, ErrNoCandidates
	}
	return sel, nil
}

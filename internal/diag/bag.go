package diag

import (
	"slices"

	"fortio.org/safecast"
)

// Bag collects the diagnostics of one pass up to a limit.
type Bag struct {
	items   []Diagnostic
	limit   uint16
	dropped int
}

// NewBag returns a bag holding at most limit diagnostics. Limits beyond the
// uint16 range saturate.
func NewBag(limit int) *Bag {
	l, err := safecast.Conv[uint16](limit)
	if err != nil {
		l = ^uint16(0)
	}
	return &Bag{items: make([]Diagnostic, 0, min(int(l), 64)), limit: l}
}

// Add keeps d unless the bag is full, and reports whether it did.
func (b *Bag) Add(d Diagnostic) bool {
	if len(b.items) >= int(b.limit) {
		b.dropped++
		return false
	}
	b.items = append(b.items, d)
	return true
}

func (b *Bag) Len() int { return len(b.items) }

// Dropped counts the diagnostics refused because the bag was full.
func (b *Bag) Dropped() int { return b.dropped }

// Items returns the diagnostics in insertion order. The slice aliases the
// bag.
func (b *Bag) Items() []Diagnostic { return b.items }

// Sorted returns a copy ordered by span, then ID.
func (b *Bag) Sorted() []Diagnostic {
	out := slices.Clone(b.items)
	slices.SortStableFunc(out, Compare)
	return out
}

// Compare orders diagnostics by span, then ID.
func Compare(a, b Diagnostic) int {
	if c := a.Span.Compare(b.Span); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

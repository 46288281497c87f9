package fix

import (
	"cmp"
	"slices"

	"golang.org/x/text/unicode/norm"
)

// distance is the Levenshtein distance between the NFC forms of a and b,
// counted in runes.
func distance(a, b string) int {
	ra := []rune(norm.NFC.String(a))
	rb := []rune(norm.NFC.String(b))
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

type suggestion struct {
	name string
	dist int
}

// nearest returns the names within max edits of want, closest first and
// alphabetical among equals. want itself is never suggested.
func nearest(want string, names []string, max int) []suggestion {
	var out []suggestion
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == want || seen[n] {
			continue
		}
		seen[n] = true
		if d := distance(want, n); d <= max {
			out = append(out, suggestion{name: n, dist: d})
		}
	}
	slices.SortFunc(out, func(a, b suggestion) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})
	return out
}

package fix

import (
	"fmt"
	"slices"

	"refine/internal/ast"
	"refine/internal/patch"
)

// footprint is what a candidate's edits read or rewrite.
type footprint struct {
	touched map[ast.NodeID]bool
	created map[ast.NodeID]bool
	uses    []string        // names the new code mentions
	adds    map[string]bool // names the edits introduce
	widens  map[ast.NodeID]bool
}

func footprintOf(t *ast.Tree, c *Candidate) footprint {
	fp := footprint{
		touched: make(map[ast.NodeID]bool),
		created: make(map[ast.NodeID]bool),
		adds:    make(map[string]bool),
		widens:  make(map[ast.NodeID]bool),
	}
	cover := func(id ast.NodeID) {
		for _, n := range t.Subtree(id) {
			fp.touched[n] = true
		}
	}
	for _, op := range c.Edits {
		fp.touched[op.Target] = true
		switch op.Kind {
		case patch.OpReplaceNode, patch.OpWrap, patch.OpDeleteNode:
			cover(op.Target)
		case patch.OpWidenEffect:
			fp.widens[op.Target] = true
		case patch.OpRename, patch.OpAddParam:
			fp.adds[op.Name] = true
		}
		for _, ref := range op.Refs() {
			cover(ref)
		}
		if id := op.Created(t); id.IsValid() {
			fp.created[id] = true
		}
		fp.uses = append(fp.uses, op.Names()...)
	}
	return fp
}

func (a footprint) overlaps(b footprint) bool {
	small, large := a.touched, b.touched
	if len(small) > len(large) {
		small, large = large, small
	}
	for id := range small {
		if large[id] {
			return true
		}
	}
	return false
}

func (a footprint) widensWith(b footprint) bool {
	for fn := range a.widens {
		if b.widens[fn] {
			return true
		}
	}
	return false
}

// needs reports whether a can only apply once b has: a addresses a node b
// creates, or mentions a name only b introduces.
func (a footprint) needs(b footprint, declared map[string]bool) bool {
	for id := range a.touched {
		if b.created[id] {
			return true
		}
	}
	for _, name := range a.uses {
		if b.adds[name] && !declared[name] {
			return true
		}
	}
	return false
}

// declaredNames collects every name the tree declares.
func declaredNames(t *ast.Tree) map[string]bool {
	out := make(map[string]bool)
	for _, id := range t.PreOrder() {
		switch n := t.Node(id); n.Kind {
		case ast.KindFn, ast.KindParam, ast.KindLet, ast.KindFor, ast.KindPatBind,
			ast.KindRecord, ast.KindEnum, ast.KindVariant, ast.KindFieldDecl:
			out[n.Name] = true
		}
	}
	return out
}

// Analyze fills the compatibility of every candidate over t. Candidates
// conflict when their edits overlap, when they are alternatives for the same
// problem, or when both widen the effects of one function. Batches are
// assigned greedily in slice order; members of a batch are pairwise free of
// conflicts and of direct or transitive dependencies.
func Analyze(t *ast.Tree, cands []Candidate) {
	fps := make([]footprint, len(cands))
	for i := range cands {
		fps[i] = footprintOf(t, &cands[i])
	}
	declared := declaredNames(t)

	conflict := make([][]bool, len(cands))
	needs := make([][]bool, len(cands))
	for i := range cands {
		conflict[i] = make([]bool, len(cands))
		needs[i] = make([]bool, len(cands))
	}
	for i := range cands {
		var conflicts, requires []string
		for j := range cands {
			if i == j {
				continue
			}
			if (cands[i].target != "" && cands[i].target == cands[j].target) ||
				fps[i].overlaps(fps[j]) || fps[i].widensWith(fps[j]) {
				conflict[i][j] = true
				conflicts = append(conflicts, cands[j].ID)
			}
			if fps[i].needs(fps[j], declared) {
				needs[i][j] = true
				requires = append(requires, cands[j].ID)
			}
		}
		slices.Sort(conflicts)
		slices.Sort(requires)
		cands[i].Compatibility = Compatibility{
			ConflictsWith: slices.Compact(conflicts),
			Requires:      slices.Compact(requires),
		}
	}

	closeOver(needs)
	var batches [][]int
	for i := range cands {
		placed := false
		for b, members := range batches {
			fits := true
			for _, j := range members {
				if conflict[i][j] || conflict[j][i] || needs[i][j] || needs[j][i] {
					fits = false
					break
				}
			}
			if fits {
				batches[b] = append(members, i)
				cands[i].Compatibility.BatchKey = batchKey(b)
				placed = true
				break
			}
		}
		if !placed {
			batches = append(batches, []int{i})
			cands[i].Compatibility.BatchKey = batchKey(len(batches) - 1)
		}
	}
}

// closeOver extends needs to its transitive closure in place.
func closeOver(needs [][]bool) {
	for k := range needs {
		for i := range needs {
			if !needs[i][k] {
				continue
			}
			for j := range needs {
				if needs[k][j] {
					needs[i][j] = true
				}
			}
		}
	}
}

func batchKey(i int) string { return fmt.Sprintf("batch-%d", i+1) }

package diagfmt

import (
	"fmt"
	"strings"

	"refine/internal/ast"
	"refine/internal/fix"
	"refine/internal/patch"
)

type repairPreview struct {
	before []string
	after  []string
}

// buildRepairPreview applies the candidate alone and returns the rendered
// lines that differ, without the common head and tail.
func buildRepairPreview(tree *ast.Tree, c fix.Candidate) (repairPreview, error) {
	if tree == nil {
		return repairPreview{}, fmt.Errorf("nil tree")
	}
	next, err := patch.Apply(tree, c.Edits)
	if err != nil {
		return repairPreview{}, err
	}
	before := splitPreviewLines(ast.Render(tree, tree.Root()))
	after := splitPreviewLines(ast.Render(next, next.Root()))

	head := 0
	for head < len(before) && head < len(after) && before[head] == after[head] {
		head++
	}
	tail := 0
	for tail < len(before)-head && tail < len(after)-head &&
		before[len(before)-1-tail] == after[len(after)-1-tail] {
		tail++
	}
	return repairPreview{
		before: before[head : len(before)-tail],
		after:  after[head : len(after)-tail],
	}, nil
}

func splitPreviewLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(text, "\n"), "\n")
}

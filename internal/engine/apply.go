package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"refine/internal/ast"
	"refine/internal/fix"
	"refine/internal/patch"
	"refine/internal/trace"
)

// ApplyRepairs applies ops to tree and returns the next canonical tree. The
// ops must already be known to fit together; tree is not modified.
func ApplyRepairs(tree *ast.Tree, ops []patch.Op) (*ast.Tree, error) {
	if tree == nil {
		return nil, fmt.Errorf("%w: nil tree", ast.ErrStructure)
	}
	if len(ops) == 0 {
		return patch.Canonicalize(tree)
	}
	return patch.Apply(tree, ops)
}

// ApplyCandidates applies the repairs of res named by ids to its canonical
// tree. Candidates that conflict with an earlier one or need one that was
// not named are skipped and listed in the selection.
func ApplyCandidates(res *Result, ids []string) (*ast.Tree, *fix.Selection, error) {
	sel, err := fix.Select(res.Repairs, fix.SelectOptions{Mode: fix.SelectIDs, IDs: ids})
	if err != nil {
		return nil, sel, err
	}
	next, err := ApplyRepairs(res.CanonicalAST, sel.Edits())
	if err != nil {
		return nil, sel, err
	}
	return next, sel, nil
}

// DefaultMaxPasses bounds Converge when ConvergeOptions.MaxPasses is zero.
const DefaultMaxPasses = 8

// ConvergeOptions drive the repair loop.
type ConvergeOptions struct {
	MaxPasses int
	Select    fix.SelectOptions
}

// Step records one pass of Converge.
type Step struct {
	Pass    int           `json:"pass"`
	Status  Status        `json:"status"`
	Applied []string      `json:"applied"`
	Skipped []fix.Skipped `json:"skipped"`
}

// Converge alternates passes and repair batches until a pass succeeds,
// nothing more can be selected, a batch changes nothing or MaxPasses
// passes ran. It returns the last pass and the history. The context is
// checked before every pass.
func Converge(ctx context.Context, tree *ast.Tree, opts Options, copts ConvergeOptions) (_ *Result, steps []Step, _ error) {
	maxPasses := copts.MaxPasses
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.FromContext(ctx)
	}
	span := trace.Begin(opts.Tracer, trace.ScopeDriver, "converge", trace.ParentID(ctx))
	defer func() { span.End(fmt.Sprintf("%d passes", len(steps))) }()
	ctx = trace.WithSpan(ctx, span)

	steps = make([]Step, 0, maxPasses)
	for n := 1; ; n++ {
		res, err := Compile(ctx, tree, opts)
		if err != nil {
			return nil, steps, fmt.Errorf("pass %d: %w", n, err)
		}
		step := Step{Pass: n, Status: res.Status, Applied: []string{}, Skipped: []fix.Skipped{}}
		if res.Status == StatusSuccess || n >= maxPasses {
			return res, append(steps, step), nil
		}

		sel, err := fix.Select(res.Repairs, copts.Select)
		if errors.Is(err, fix.ErrNoCandidates) {
			return res, append(steps, step), nil
		}
		if err != nil {
			return res, steps, err
		}
		next, err := ApplyRepairs(res.CanonicalAST, sel.Edits())
		if err != nil {
			return res, steps, fmt.Errorf("pass %d: %w", n, err)
		}
		for _, c := range sel.Selected {
			step.Applied = append(step.Applied, c.ID)
		}
		step.Skipped = sel.Skipped
		steps = append(steps, step)
		log.Debug("applied repairs", zap.Int("pass", n), zap.Strings("repairs", step.Applied))

		if next.Equal(res.CanonicalAST) {
			return res, steps, nil
		}
		tree = next
	}
}

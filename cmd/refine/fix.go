package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"refine/internal/ast"
	"refine/internal/diagfmt"
	"refine/internal/engine"
	"refine/internal/fix"
)

var fixCmd = &cobra.Command{
	Use:   "fix [flags] <program>",
	Short: "Apply repairs and re-check until the program converges",
	Long: `Run passes and apply repair batches until a pass succeeds, nothing more can
be selected, or the pass limit is reached. With --apply, apply exactly the
named repairs of the first pass and re-check once.`,
	Args: cobra.ExactArgs(1),
	RunE: runFix,
}

func init() {
	addReportFlags(fixCmd)
	fixCmd.Flags().Uint64("seed", 1, "node ID seed for fragment input")
	fixCmd.Flags().StringSlice("apply", nil, "apply the repairs with these IDs")
	fixCmd.Flags().String("mode", "", "selection strategy (once|safe); default from config")
	fixCmd.Flags().String("max-safety", "", "least safe class safe mode applies (behavior_preserving|likely_preserving|behavior_changing)")
	fixCmd.Flags().Int("max-passes", 0, "pass limit (0 = config)")
	fixCmd.Flags().StringP("output", "o", "", "write the final tree to this path (.json or .msgpack)")
}

type fixOutput struct {
	Steps  []engine.Step       `json:"steps"`
	Result diagfmt.ResultJSON `json:"result"`
}

func runFix(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { s.cleanup(err) }()

	ro, err := readReportOptions(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	seed, err := f.GetUint64("seed")
	if err != nil {
		return fmt.Errorf("failed to get seed flag: %w", err)
	}
	ids, err := f.GetStringSlice("apply")
	if err != nil {
		return fmt.Errorf("failed to get apply flag: %w", err)
	}
	output, err := f.GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	for flag, dst := range map[string]*string{"mode": &s.cfg.Fix.Select, "max-safety": &s.cfg.Fix.MaxSafety} {
		if !f.Changed(flag) {
			continue
		}
		if *dst, err = f.GetString(flag); err != nil {
			return err
		}
	}
	if f.Changed("max-passes") {
		if s.cfg.Fix.MaxPasses, err = f.GetInt("max-passes"); err != nil {
			return err
		}
	}
	if len(ids) > 0 && (f.Changed("mode") || f.Changed("max-passes")) {
		return fmt.Errorf("--apply cannot be combined with --mode or --max-passes")
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	tree, err := readProgram(args[0], cmd.InOrStdin(), seed)
	if err != nil {
		return err
	}
	opts, err := s.engineOptions()
	if err != nil {
		return err
	}

	var (
		res   *engine.Result
		steps []engine.Step
		final *ast.Tree
	)
	if len(ids) > 0 {
		res, steps, err = applyOnce(cmd, opts, tree, ids)
	} else {
		var copts engine.ConvergeOptions
		if copts, err = s.cfg.ConvergeOptions(); err == nil {
			res, steps, err = engine.Converge(cmd.Context(), tree, opts, copts)
		}
	}
	if err != nil {
		return err
	}
	final = res.CanonicalAST
	s.log.Info("fix finished",
		zap.String("program", args[0]),
		zap.Int("passes", len(steps)),
		zap.Stringer("status", res.Status))

	if output != "" {
		if err := writeTree(output, cmd.OutOrStdout(), final); err != nil {
			return fmt.Errorf("failed to write tree: %w", err)
		}
	}
	if ro.format == "json" {
		fs, err := ro.loadSource()
		if err != nil {
			return err
		}
		mode := diagfmt.PathModeAuto
		if ro.fullPath {
			mode = diagfmt.PathModeAbsolute
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(fixOutput{
			Steps: steps,
			Result: diagfmt.BuildResultJSON(res, fs, diagfmt.JSONOpts{
				IncludePositions: fs != nil, PathMode: mode, OmitAST: ro.noAST,
			}),
		}); err != nil {
			return err
		}
	} else {
		writeSteps(cmd.OutOrStdout(), steps)
		if err := writeReport(cmd, s, res, ro); err != nil {
			return err
		}
	}
	return statusError(res.Status, false)
}

// applyOnce applies the named repairs of the first pass and checks the
// result. The returned steps describe the two passes.
func applyOnce(cmd *cobra.Command, opts engine.Options, tree *ast.Tree, ids []string) (*engine.Result, []engine.Step, error) {
	first, err := engine.Compile(cmd.Context(), tree, opts)
	if err != nil {
		return nil, nil, err
	}
	next, sel, err := engine.ApplyCandidates(first, ids)
	if err != nil {
		return nil, nil, err
	}
	step := engine.Step{Pass: 1, Status: first.Status, Applied: []string{}, Skipped: sel.Skipped}
	for _, c := range sel.Selected {
		step.Applied = append(step.Applied, c.ID)
	}
	res, err := engine.Compile(cmd.Context(), next, opts)
	if err != nil {
		return nil, nil, err
	}
	last := engine.Step{Pass: 2, Status: res.Status, Applied: []string{}, Skipped: []fix.Skipped{}}
	return res, []engine.Step{step, last}, nil
}

func writeSteps(w io.Writer, steps []engine.Step) {
	for _, st := range steps {
		fmt.Fprintf(w, "pass %d: %s", st.Pass, st.Status)
		if len(st.Applied) > 0 {
			fmt.Fprintf(w, ", applied %v", st.Applied)
		}
		fmt.Fprintln(w)
		for _, sk := range st.Skipped {
			fmt.Fprintf(w, "  skipped %s: %s\n", sk.ID, sk.Reason)
		}
	}
	fmt.Fprintln(w)
}

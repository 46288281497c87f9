package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"refine/internal/diag"
	"refine/internal/diagfmt"
	"refine/internal/engine"
	"refine/internal/source"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] <program>",
	Short: "Run one pass and report obligations, diagnostics and repairs",
	Long: `Run one engine pass over a program (a fragment or snapshot in JSON, or a
msgpack snapshot) and report the result. The exit status is 0 on success,
1 when diagnostics were reported and 2 when obligations or holes remain.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	addReportFlags(checkCmd)
	checkCmd.Flags().Uint64("seed", 1, "node ID seed for fragment input")
	checkCmd.Flags().String("emit-ast", "", "also write the canonical tree to this path (.json or .msgpack)")
	checkCmd.Flags().Bool("allow-incomplete", false, "exit 0 when the only problems are open obligations or holes")
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", "pretty", "output format (pretty|json|short)")
	cmd.Flags().String("source", "", "source text the tree spans point into, for line:col locations")
	cmd.Flags().Bool("repairs", true, "list repairs under each item (pretty)")
	cmd.Flags().Bool("preview", false, "show the lines each repair changes (pretty)")
	cmd.Flags().Bool("discharged", false, "also list discharged obligations (pretty)")
	cmd.Flags().Bool("fullpath", false, "emit absolute file paths")
	cmd.Flags().Int("width", 0, "truncate messages to this many columns (pretty)")
	cmd.Flags().Bool("no-ast", false, "leave canonical_ast out of JSON output")
}

// reportOptions are the output flags shared by check and fix.
type reportOptions struct {
	format     string
	source     string
	repairs    bool
	preview    bool
	discharged bool
	fullPath   bool
	width      int
	noAST      bool
}

func readReportOptions(cmd *cobra.Command) (reportOptions, error) {
	var (
		ro  reportOptions
		err error
	)
	f := cmd.Flags()
	if ro.format, err = f.GetString("format"); err != nil {
		return ro, fmt.Errorf("failed to get format flag: %w", err)
	}
	switch ro.format {
	case "pretty", "json", "short":
	default:
		return ro, fmt.Errorf("unknown format %q (expected pretty|json|short)", ro.format)
	}
	if ro.source, err = f.GetString("source"); err != nil {
		return ro, fmt.Errorf("failed to get source flag: %w", err)
	}
	if ro.repairs, err = f.GetBool("repairs"); err != nil {
		return ro, fmt.Errorf("failed to get repairs flag: %w", err)
	}
	if ro.preview, err = f.GetBool("preview"); err != nil {
		return ro, fmt.Errorf("failed to get preview flag: %w", err)
	}
	if ro.discharged, err = f.GetBool("discharged"); err != nil {
		return ro, fmt.Errorf("failed to get discharged flag: %w", err)
	}
	if ro.fullPath, err = f.GetBool("fullpath"); err != nil {
		return ro, fmt.Errorf("failed to get fullpath flag: %w", err)
	}
	if ro.width, err = f.GetInt("width"); err != nil {
		return ro, fmt.Errorf("failed to get width flag: %w", err)
	}
	if ro.noAST, err = f.GetBool("no-ast"); err != nil {
		return ro, fmt.Errorf("failed to get no-ast flag: %w", err)
	}
	return ro, nil
}

// loadSource reads the --source file into a FileSet as file 0, the file ID
// fragment spans use.
func (ro reportOptions) loadSource() (*source.FileSet, error) {
	if ro.source == "" {
		return nil, nil
	}
	fs := source.NewFileSet()
	if _, err := fs.Load(ro.source); err != nil {
		return nil, fmt.Errorf("failed to load source: %w", err)
	}
	return fs, nil
}

func writeReport(cmd *cobra.Command, s *session, res *engine.Result, ro reportOptions) error {
	fs, err := ro.loadSource()
	if err != nil {
		return err
	}
	mode := diagfmt.PathModeAuto
	if ro.fullPath {
		mode = diagfmt.PathModeAbsolute
	}
	out := cmd.OutOrStdout()
	switch ro.format {
	case "short":
		if len(res.Diagnostics) > 0 {
			fmt.Fprintln(out, diag.FormatShort(res.Diagnostics))
		}
		fmt.Fprintf(out, "%s %d/%d discharged\n", res.Status, res.Stats.Discharged, res.Stats.Obligations)
		return nil
	case "json":
		return diagfmt.JSON(out, res, fs, diagfmt.JSONOpts{
			Indent:           true,
			IncludePositions: fs != nil,
			PathMode:         mode,
			OmitAST:          ro.noAST,
		})
	}
	diagfmt.Pretty(out, res, fs, diagfmt.PrettyOpts{
		Color:      s.color,
		PathMode:   mode,
		Width:      ro.width,
		Repairs:    ro.repairs,
		Preview:    ro.preview,
		Discharged: ro.discharged,
		Timings:    s.cfg.Engine.Timings,
	})
	return nil
}

// statusError maps a pass status to the process exit code.
func statusError(st engine.Status, allowIncomplete bool) error {
	switch st {
	case engine.StatusError:
		return exitError{code: 1}
	case engine.StatusIncomplete:
		if !allowIncomplete {
			return exitError{code: 2}
		}
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { s.cleanup(err) }()

	ro, err := readReportOptions(cmd)
	if err != nil {
		return err
	}
	seed, err := cmd.Flags().GetUint64("seed")
	if err != nil {
		return fmt.Errorf("failed to get seed flag: %w", err)
	}
	emitAST, err := cmd.Flags().GetString("emit-ast")
	if err != nil {
		return fmt.Errorf("failed to get emit-ast flag: %w", err)
	}
	allowIncomplete, err := cmd.Flags().GetBool("allow-incomplete")
	if err != nil {
		return fmt.Errorf("failed to get allow-incomplete flag: %w", err)
	}

	tree, err := readProgram(args[0], cmd.InOrStdin(), seed)
	if err != nil {
		return err
	}
	opts, err := s.engineOptions()
	if err != nil {
		return err
	}
	res, err := engine.Compile(cmd.Context(), tree, opts)
	if err != nil {
		return err
	}
	s.log.Info("checked",
		zap.String("program", args[0]),
		zap.Stringer("status", res.Status),
		zap.Int("repairs", len(res.Repairs)))

	if emitAST != "" {
		if err := writeTree(emitAST, cmd.OutOrStdout(), res.CanonicalAST); err != nil {
			return fmt.Errorf("failed to write canonical tree: %w", err)
		}
	}
	if err := writeReport(cmd, s, res, ro); err != nil {
		return err
	}
	return statusError(res.Status, allowIncomplete)
}

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"refine/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "refine",
	Short: "Refinement obligation checker and repair engine",
	Long: `refine checks a program tree for refinement, effect, linearity and name
obligations, proves what it can, and proposes ranked repairs for the rest.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries a process exit code for a command that ran correctly
// but whose result is not a success.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(canonCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(versionCmd)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "path to refine.toml (default: nearest one above the working directory)")
	pf.String("color", "auto", "colorize output (auto|on|off)")
	pf.Int("workers", 0, "solver workers (0 = config or one per CPU)")
	pf.Bool("timings", false, "show phase timings")
	pf.String("log-level", "", "log level override (debug|info|warn|error)")
	pf.String("trace", "", "trace output file (- for stderr)")
	pf.String("trace-level", "", "trace level (off|error|phase|detail|debug)")
	pf.String("trace-mode", "", "trace storage mode (stream|ring|both)")
	pf.Duration("trace-heartbeat", 0, "trace heartbeat interval (0 = config)")
	pf.String("cpu-profile", "", "write a CPU profile to this file")
	pf.String("mem-profile", "", "write a heap profile to this file on exit")
	pf.String("runtime-trace", "", "write a Go runtime trace to this file")

	if err := rootCmd.Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "refine: %v\n", err)
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

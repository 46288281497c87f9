package main

import (
	"fmt"
	"io"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"refine/internal/diag"
)

var explainCmd = &cobra.Command{
	Use:   "explain [code]",
	Short: "Describe a diagnostic code, or list them all",
	Long: `Describe a diagnostic code given as an ID (SEM3001) or a kind
(unresolved_name). Without an argument every code is listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			listCodes(out, diag.Codes())
			return nil
		}
		c, ok := diag.ParseCode(args[0])
		if !ok {
			return fmt.Errorf("unknown diagnostic code %q", args[0])
		}
		fmt.Fprintf(out, "%s (%s)\n  %s\n", c.ID(), c.Kind(), c.Title())
		return nil
	},
}

func listCodes(w io.Writer, codes []diag.Code) {
	width := 0
	for _, c := range codes {
		width = max(width, runewidth.StringWidth(c.Kind()))
	}
	for _, c := range codes {
		fmt.Fprintf(w, "%s  %s  %s\n", c.ID(), runewidth.FillRight(c.Kind(), width), c.Title())
	}
}

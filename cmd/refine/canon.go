package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"refine/internal/ast"
	"refine/internal/patch"
)

var canonCmd = &cobra.Command{
	Use:   "canon [flags] <program>",
	Short: "Canonicalize a program tree",
	Long:  "Bring a program into canonical form and write the resulting snapshot, or render it as text.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCanon,
}

func init() {
	canonCmd.Flags().StringP("output", "o", "-", "where to write the snapshot (.json or .msgpack, - for stdout)")
	canonCmd.Flags().Bool("render", false, "print the canonical program as text instead")
	canonCmd.Flags().Uint64("seed", 1, "node ID seed for fragment input")
}

func runCanon(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { s.cleanup(err) }()

	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	render, err := cmd.Flags().GetBool("render")
	if err != nil {
		return fmt.Errorf("failed to get render flag: %w", err)
	}
	seed, err := cmd.Flags().GetUint64("seed")
	if err != nil {
		return fmt.Errorf("failed to get seed flag: %w", err)
	}

	tree, err := readProgram(args[0], cmd.InOrStdin(), seed)
	if err != nil {
		return err
	}
	canon, err := patch.Canonicalize(tree)
	if err != nil {
		return err
	}
	s.log.Debug("canonicalized", zap.Int("nodes", canon.Len()), zap.Bool("changed", !canon.Equal(tree)))

	if render {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), ast.Render(canon, canon.Root()))
		return err
	}
	return writeTree(output, cmd.OutOrStdout(), canon)
}

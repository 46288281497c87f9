package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"refine/internal/version"
)

// buildInfo is the version report; empty fields are left out of JSON and
// printed as "unknown" otherwise.
type buildInfo struct {
	Tool       string `json:"tool"`
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit,omitempty"`
	GitMessage string `json:"git_message,omitempty"`
	BuildDate  string `json:"build_date,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show refine build metadata",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	f := versionCmd.Flags()
	f.Bool("hash", false, "include git commit hash")
	f.Bool("message", false, "include git commit message")
	f.Bool("date", false, "include build timestamp")
	f.Bool("full", false, "show all build metadata")
	f.String("format", "pretty", "output format (pretty|json)")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	format, err := f.GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	show := make(map[string]bool, 4)
	for _, name := range []string{"hash", "message", "date", "full"} {
		if show[name], err = f.GetBool(name); err != nil {
			return fmt.Errorf("failed to get %s flag: %w", name, err)
		}
	}
	if show["full"] {
		show["hash"], show["message"], show["date"] = true, true, true
	}

	info := buildInfo{Tool: "refine", Version: strings.TrimSpace(version.Version)}
	if info.Version == "" {
		info.Version = "dev"
	}
	if show["hash"] {
		info.GitCommit = orUnknown(version.GitCommit)
	}
	if show["message"] {
		info.GitMessage = orUnknown(version.GitMessage)
	}
	if show["date"] {
		info.BuildDate = orUnknown(version.BuildDate)
	}

	out := cmd.OutOrStdout()
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "pretty":
		mode, err := cmd.Root().PersistentFlags().GetString("color")
		if err != nil {
			return fmt.Errorf("failed to get color flag: %w", err)
		}
		colored, err := useColor(mode)
		if err != nil {
			return err
		}
		writeVersion(out, info, colored && out == io.Writer(os.Stdout))
		return nil
	}
	return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
}

func writeVersion(w io.Writer, info buildInfo, colored bool) {
	v := info.Version
	if v == strings.TrimSpace(version.Version) {
		v = version.Banner(colored)
	}
	fmt.Fprintf(w, "refine %s\n", v)
	for _, row := range [][2]string{
		{"commit: ", info.GitCommit},
		{"message:", info.GitMessage},
		{"built:  ", info.BuildDate},
	} {
		if row[1] != "" {
			fmt.Fprintf(w, "%s %s\n", row[0], row[1])
		}
	}
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unknown"
	}
	return s
}

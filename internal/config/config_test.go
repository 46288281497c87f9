package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"refine/internal/fix"
	"refine/internal/solver"
	"refine/internal/trace"
)

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
[engine]
workers = 3
solver_timeout = "250ms"

[solver]
cache = "off"

[fix]
max_distance = 2
select = "once"

[trace]
level = "phase"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	want.Path = path
	want.Engine.Workers = 3
	want.Engine.SolverTimeout = Duration(250 * time.Millisecond)
	want.Solver.Cache = "off"
	want.Fix.MaxDistance = 2
	want.Fix.Select = "once"
	want.Trace.Level = "phase"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}

	opts, err := cfg.EngineOptions(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Workers != 3 || opts.SolverTimeout != 250*time.Millisecond || opts.Cache != nil {
		t.Errorf("engine options = %+v", opts)
	}
	if opts.Fix != (fix.Options{HighDistance: 1, MaxDistance: 2}) {
		t.Errorf("fix options = %+v", opts.Fix)
	}
	conv, err := cfg.ConvergeOptions()
	if err != nil {
		t.Fatal(err)
	}
	if conv.Select.Mode != fix.SelectOnce || conv.MaxPasses != 8 {
		t.Errorf("converge options = %+v", conv)
	}
	tc, err := cfg.TraceConfig()
	if err != nil {
		t.Fatal(err)
	}
	if tc.Level != trace.LevelPhase || tc.Mode != trace.ModeRing {
		t.Errorf("trace config = %+v", tc)
	}
}

func TestMaxDistanceLowersHighDistance(t *testing.T) {
	path := writeFile(t, t.TempDir(), "[fix]\nmax_distance = 0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Fix.HighDistance != 0 {
		t.Errorf("high_distance = %d", cfg.Fix.HighDistance)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "[engine]\nthreads = 2\n", "engine.threads"},
		{"bad enum", "[solver]\ncache = \"redis\"\n", "solver.cache"},
		{"high above max", "[fix]\nhigh_distance = 3\nmax_distance = 2\n", "fix.high_distance"},
		{"negative duration", "[engine]\nsolver_timeout = \"-1s\"\n", "engine.solver_timeout"},
		{"bad duration", "[engine]\nsolver_timeout = \"soon\"\n", "invalid duration"},
		{"syntax", "[engine\n", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.body)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}

	_, err := Load(writeFile(t, t.TempDir(), "[log]\ncolor = true\n"))
	if !errors.Is(err, ErrUnknownKey) {
		t.Errorf("err = %v, want ErrUnknownKey", err)
	}
}

func TestDiscoverWalksUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "[engine]\nworkers = 7\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg, err := Discover(nested)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.Workers != 7 || cfg.Path != filepath.Join(root, FileName) {
		t.Errorf("config = %+v", cfg)
	}
}

func TestDiskCacheOption(t *testing.T) {
	cfg := Default()
	cfg.Solver.Cache = "disk"
	cfg.Solver.CacheDir = t.TempDir()
	opts, err := cfg.EngineOptions(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := opts.Cache.(*solver.DiskCache); !ok {
		t.Errorf("cache = %T", opts.Cache)
	}
}

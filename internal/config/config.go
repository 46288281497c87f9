// Package config loads refine.toml, the settings shared by the refine
// commands: worker pool and solver budgets, repair selection, tracing and
// logging.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"refine/internal/fix"
)

// FileName is the name Find looks for.
const FileName = "refine.toml"

// ErrUnknownKey reports keys in the file that no setting uses.
var ErrUnknownKey = errors.New("unknown configuration key")

// Duration is a time.Duration written as a string such as "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

type Engine struct {
	// Workers bounds the solving pool; zero means one per CPU.
	Workers       int      `toml:"workers" validate:"gte=0,lte=1024"`
	SolverTimeout Duration `toml:"solver_timeout" validate:"gte=0"`
	// MaxDiagnostics caps the diagnostics of one pass; zero means 1000.
	MaxDiagnostics int  `toml:"max_diagnostics" validate:"gte=0"`
	Timings        bool `toml:"timings"`
}

type Solver struct {
	MaxSteps     int `toml:"max_steps" validate:"gte=0"`
	MaxDisjuncts int `toml:"max_disjuncts" validate:"gte=0"`
	// Cache is "off", "memory" or "disk".
	Cache    string `toml:"cache" validate:"oneof=off memory disk"`
	CacheDir string `toml:"cache_dir"`
}

type Fix struct {
	fix.Options
	// Select is the strategy of `refine fix`: "once" or "safe".
	Select    string `toml:"select" validate:"oneof=once safe"`
	MaxSafety string `toml:"max_safety" validate:"oneof=behavior_preserving likely_preserving behavior_changing"`
	MaxPasses int    `toml:"max_passes" validate:"gte=1,lte=64"`
}

type Trace struct {
	Level     string   `toml:"level" validate:"oneof=off error phase detail debug"`
	Mode      string   `toml:"mode" validate:"oneof=stream ring both"`
	Output    string   `toml:"output"`
	Heartbeat Duration `toml:"heartbeat" validate:"gte=0"`
}

type Log struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=console json"`
}

// Config is the content of refine.toml.
type Config struct {
	Engine Engine `toml:"engine"`
	Solver Solver `toml:"solver"`
	Fix    Fix    `toml:"fix"`
	Trace  Trace  `toml:"trace"`
	Log    Log    `toml:"log"`

	// Path is the file the settings came from; empty for defaults.
	Path string `toml:"-"`
}

// Default returns the settings used when no file is found. Keys missing
// from a file keep these values.
func Default() Config {
	return Config{
		Engine: Engine{SolverTimeout: Duration(2 * time.Second)},
		Solver: Solver{Cache: "memory"},
		Fix: Fix{
			Options:   fix.DefaultOptions,
			Select:    "safe",
			MaxSafety: "likely_preserving",
			MaxPasses: 8,
		},
		Trace: Trace{Level: "off", Mode: "ring", Output: "-"},
		Log:   Log{Level: "warn", Format: "console"},
	}
}

var validate = validator.New()

// Validate checks every setting against its allowed range.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails %q", keyOf(fe.Namespace()), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// keyOf turns a validator namespace such as "Config.Fix.Options.MaxDistance"
// into the TOML key "fix.max_distance".
func keyOf(ns string) string {
	parts := strings.Split(ns, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts[1:] {
		if p == "Options" {
			continue
		}
		out = append(out, snake(p))
	}
	return strings.Join(out, ".")
}

func snake(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				sb.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Load reads path over the defaults and validates the result. Keys that no
// setting uses are an error wrapping ErrUnknownKey.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		slices.Sort(keys)
		return Config{}, fmt.Errorf("%s: %w: %s", path, ErrUnknownKey, strings.Join(keys, ", "))
	}
	// A [fix] table that sets only max_distance lowers the high threshold
	// along with it.
	if meta.IsDefined("fix", "max_distance") && !meta.IsDefined("fix", "high_distance") {
		cfg.Fix.HighDistance = min(cfg.Fix.HighDistance, cfg.Fix.MaxDistance)
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Find walks up from startDir to locate refine.toml.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover loads the nearest refine.toml above startDir, or the defaults
// when there is none.
func Discover(startDir string) (Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

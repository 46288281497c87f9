package config

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"refine/internal/engine"
	"refine/internal/fix"
	"refine/internal/solver"
	"refine/internal/trace"
)

// EngineOptions turns the settings into pass options. The disk cache is
// opened here, so it can fail.
func (c *Config) EngineOptions(log *zap.Logger, tracer trace.Tracer) (engine.Options, error) {
	opts := engine.Options{
		Workers:       c.Engine.Workers,
		SolverTimeout: time.Duration(c.Engine.SolverTimeout),
		Solver: solver.Options{
			MaxSteps:     c.Solver.MaxSteps,
			MaxDisjuncts: c.Solver.MaxDisjuncts,
		},
		Fix:            c.Fix.Options,
		Logger:         log,
		Tracer:         tracer,
		EnableTimings:  c.Engine.Timings,
		MaxDiagnostics: c.Engine.MaxDiagnostics,
	}
	switch c.Solver.Cache {
	case "memory":
		opts.Cache = solver.NewMemoryCache()
	case "disk":
		dc, err := solver.OpenDiskCache(c.Solver.CacheDir, "refine")
		if err != nil {
			return engine.Options{}, fmt.Errorf("open verdict cache: %w", err)
		}
		opts.Cache = dc
	}
	return opts, nil
}

// ConvergeOptions returns the repair loop settings of `refine fix`.
func (c *Config) ConvergeOptions() (engine.ConvergeOptions, error) {
	var safety fix.Safety
	if err := safety.UnmarshalText([]byte(c.Fix.MaxSafety)); err != nil {
		return engine.ConvergeOptions{}, err
	}
	mode := fix.SelectSafe
	if c.Fix.Select == "once" {
		mode = fix.SelectOnce
	}
	return engine.ConvergeOptions{
		MaxPasses: c.Fix.MaxPasses,
		Select:    fix.SelectOptions{Mode: mode, MaxSafety: safety},
	}, nil
}

// TraceConfig returns the tracer settings.
func (c *Config) TraceConfig() (trace.Config, error) {
	level, err := trace.ParseLevel(c.Trace.Level)
	if err != nil {
		return trace.Config{}, err
	}
	mode, err := trace.ParseMode(c.Trace.Mode)
	if err != nil {
		return trace.Config{}, err
	}
	return trace.Config{
		Level:      level,
		Mode:       mode,
		OutputPath: c.Trace.Output,
		Heartbeat:  time.Duration(c.Trace.Heartbeat),
	}, nil
}

// Logger builds the zap logger. Logs go to stderr so command output on
// stdout stays machine-readable.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Log.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

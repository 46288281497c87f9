package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"refine/internal/config"
	"refine/internal/engine"
	"refine/internal/prof"
	"refine/internal/trace"
)

// session holds what every command needs: settings, logger and tracer.
type session struct {
	cfg     config.Config
	log     *zap.Logger
	tracer  trace.Tracer
	color   bool
	// cleanup stops tracing and profiling. Given the command's error, it
	// first dumps the events the tracer kept in memory.
	cleanup func(failed error)
}

// openSession loads the configuration, applies flag overrides and starts
// logging, profiling and tracing. The caller must run cleanup.
func openSession(cmd *cobra.Command) (*session, error) {
	pf := cmd.Root().PersistentFlags()

	cfgPath, err := pf.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	var cfg config.Config
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg, err = config.Discover(".")
	}
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd, &cfg); err != nil {
		return nil, err
	}

	colorMode, err := pf.GetString("color")
	if err != nil {
		return nil, fmt.Errorf("failed to get color flag: %w", err)
	}
	color, err := useColor(colorMode)
	if err != nil {
		return nil, err
	}

	log, err := cfg.Logger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if cfg.Path != "" {
		log.Debug("loaded configuration", zap.String("path", cfg.Path))
	}

	profile, err := setupProfiling(cmd)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	tracer, stopTrace, err := setupTracing(cmd, cfg)
	if err != nil {
		_ = profile.Stop()
		_ = log.Sync()
		return nil, err
	}
	return &session{
		cfg:    cfg,
		log:    log,
		tracer: tracer,
		color:  color,
		cleanup: func(failed error) {
			var ee exitError
			if failed != nil && !errors.As(failed, &ee) {
				if err := trace.Dump(tracer, cmd.ErrOrStderr(), trace.FormatText); err != nil {
					log.Warn("trace dump", zap.Error(err))
				}
			}
			stopTrace()
			if err := profile.Stop(); err != nil {
				log.Warn("profiling", zap.Error(err))
			}
			_ = log.Sync()
		},
	}, nil
}

// setupProfiling starts the profilers named by the profiling flags.
func setupProfiling(cmd *cobra.Command) (*prof.Profile, error) {
	pf := cmd.Root().PersistentFlags()
	var (
		opts prof.Options
		err  error
	)
	if opts.CPU, err = pf.GetString("cpu-profile"); err != nil {
		return nil, fmt.Errorf("failed to get cpu-profile flag: %w", err)
	}
	if opts.Mem, err = pf.GetString("mem-profile"); err != nil {
		return nil, fmt.Errorf("failed to get mem-profile flag: %w", err)
	}
	if opts.Trace, err = pf.GetString("runtime-trace"); err != nil {
		return nil, fmt.Errorf("failed to get runtime-trace flag: %w", err)
	}
	p, err := prof.Start(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start profiling: %w", err)
	}
	return p, nil
}

// engineOptions returns the pass options of the session.
func (s *session) engineOptions() (engine.Options, error) {
	return s.cfg.EngineOptions(s.log, s.tracer)
}

// applyFlags overrides settings with the global flags the user set.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	pf := cmd.Root().PersistentFlags()
	if pf.Changed("workers") {
		n, err := pf.GetInt("workers")
		if err != nil {
			return err
		}
		cfg.Engine.Workers = n
	}
	if pf.Changed("timings") {
		on, err := pf.GetBool("timings")
		if err != nil {
			return err
		}
		cfg.Engine.Timings = on
	}
	for flag, dst := range map[string]*string{
		"log-level":   &cfg.Log.Level,
		"trace":       &cfg.Trace.Output,
		"trace-level": &cfg.Trace.Level,
		"trace-mode":  &cfg.Trace.Mode,
	} {
		if !pf.Changed(flag) {
			continue
		}
		v, err := pf.GetString(flag)
		if err != nil {
			return err
		}
		*dst = v
	}
	// an output file without a level means the user wants phase events
	if pf.Changed("trace") && !pf.Changed("trace-level") && cfg.Trace.Level == "off" {
		cfg.Trace.Level = "phase"
		if !pf.Changed("trace-mode") && cfg.Trace.Mode == "ring" {
			cfg.Trace.Mode = "stream"
		}
	}
	if pf.Changed("trace-heartbeat") {
		d, err := pf.GetDuration("trace-heartbeat")
		if err != nil {
			return err
		}
		cfg.Trace.Heartbeat = config.Duration(d)
	}
	return cfg.Validate()
}

func useColor(mode string) (bool, error) {
	switch strings.TrimSpace(strings.ToLower(mode)) {
	case "", "auto":
		return isTerminal(os.Stdout), nil
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}
}

// setupTracing creates the tracer described by the settings and attaches it
// to the command context. The returned function stops the heartbeat and
// flushes the tracer.
func setupTracing(cmd *cobra.Command, cfg config.Config) (trace.Tracer, func(), error) {
	tc, err := cfg.TraceConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid trace settings: %w", err)
	}
	tracer, err := trace.New(tc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))

	heartbeat := trace.StartHeartbeat(tracer, tc.Heartbeat)
	cleanup := func() {
		if heartbeat != nil {
			heartbeat.Stop()
		}
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
	}
	return tracer, cleanup, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/SindhuVenna/catalyst/internal/bootstrap"
	"github.com/SindhuVenna/catalyst/internal/config"
	"github.com/SindhuVenna/catalyst/internal/logging"
	"github.com/SindhuVenna/catalyst/internal/observability"
	"github.com/SindhuVenna/catalyst/internal/rl/builtin"
	"github.com/SindhuVenna/catalyst/internal/runplan"
	"github.com/SindhuVenna/catalyst/internal/supervisor"
)

// resolvedRun is the launch after explicit flags and the config's args
// section have been reconciled.
type resolvedRun struct {
	logDir string
	expDir string
	resume string
	seed   int64
	counts runplan.Counts
}

func resolveRun(cmd *cobra.Command, opts *launchOptions, cfg config.Config) (resolvedRun, error) {
	flags := cmd.Flags()
	r := resolvedRun{
		logDir: opts.logdir,
		expDir: opts.expdir,
		resume: opts.resume,
		seed:   opts.seed,
		counts: runplan.Counts{Check: opts.check, Vis: opts.vis, Infer: opts.infer, Train: opts.train},
	}
	if !flags.Changed("logdir") {
		r.logDir = cfg.Args.Logdir
	}
	if !flags.Changed("expdir") {
		r.expDir = cfg.Args.Expdir
	}
	if !flags.Changed("seed") && cfg.Args.Seed != nil {
		r.seed = *cfg.Args.Seed
	}
	if !flags.Changed("vis") && cfg.Args.Vis != nil {
		r.counts.Vis = *cfg.Args.Vis
	}
	if !flags.Changed("infer") && cfg.Args.Infer != nil {
		r.counts.Infer = *cfg.Args.Infer
	}
	if !flags.Changed("train") && cfg.Args.Train != nil {
		r.counts.Train = *cfg.Args.Train
	}

	var err error
	if r.logDir, err = absOrEmpty(r.logDir); err != nil {
		return resolvedRun{}, err
	}
	if r.expDir, err = absOrEmpty(r.expDir); err != nil {
		return resolvedRun{}, err
	}
	if r.resume, err = absOrEmpty(r.resume); err != nil {
		return resolvedRun{}, err
	}
	return r, nil
}

func absOrEmpty(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", path, err)
	}
	return abs, nil
}

// loadLaunch does everything that can fail before a process is spawned.
func loadLaunch(cmd *cobra.Command, opts *launchOptions) (config.Config, resolvedRun, runplan.RunPlan, error) {
	cfg, _, err := config.Load(opts.configs, opts.sets...)
	if err != nil {
		return config.Config{}, resolvedRun{}, runplan.RunPlan{}, failuref("config failed: %v", err)
	}
	resolved, err := resolveRun(cmd, opts, cfg)
	if err != nil {
		return config.Config{}, resolvedRun{}, runplan.RunPlan{}, failuref("config failed: %v", err)
	}
	if err := builtin.Catalog().Validate(cfg.Args.Algorithm, cfg.Args.Environment); err != nil {
		return config.Config{}, resolvedRun{}, runplan.RunPlan{}, failuref("config failed: %v", err)
	}
	plan, err := runplan.Resolve(resolved.seed, resolved.counts)
	if err != nil {
		return config.Config{}, resolvedRun{}, runplan.RunPlan{}, usageErrorf("invalid run plan: %v", err)
	}

	cfg.Args.Logdir = resolved.logDir
	cfg.Args.Expdir = resolved.expDir
	cfg.Args.Seed = &resolved.seed
	cfg.Args.Vis = &resolved.counts.Vis
	cfg.Args.Infer = &resolved.counts.Infer
	cfg.Args.Train = &resolved.counts.Train
	return cfg, resolved, plan, nil
}

// newWorkerEnv hands workers the config exactly as resolved and dumped:
// the dump under the log directory when there is one, inline otherwise.
func newWorkerEnv(cfg config.Config, resolved resolvedRun, opts *launchOptions, runID string) (bootstrap.WorkerEnv, error) {
	env := bootstrap.WorkerEnv{
		LogDir:    resolved.logDir,
		Resume:    resolved.resume,
		Redis:     opts.redis,
		BaseSeed:  resolved.seed,
		ParentPID: os.Getpid(),
		RunID:     runID,
		LogLevel:  opts.logLevel,
	}
	if resolved.logDir != "" {
		env.ConfigPath = config.DumpPath(resolved.logDir)
		return env, nil
	}
	data, err := config.Encode(cfg)
	if err != nil {
		return bootstrap.WorkerEnv{}, err
	}
	env.RunConfig = string(data)
	return env, nil
}

func runLaunch(cmd *cobra.Command, opts *launchOptions, stdout, stderr io.Writer) error {
	logger, err := logging.New(stderr, logging.Options{Level: opts.logLevel, Format: opts.logFormat})
	if err != nil {
		return usageErrorf("%v", err)
	}
	if opts.stopGrace < 0 {
		return usageErrorf("--stop-grace must be >= 0")
	}
	cfg, resolved, plan, err := loadLaunch(cmd, opts)
	if err != nil {
		return err
	}

	shutdown, err := observability.InitTracingFromEnv("run-samplers", stderr)
	if err != nil {
		return failuref("init tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	if resolved.expDir != "" {
		if err := os.MkdirAll(resolved.expDir, 0o755); err != nil {
			return failuref("create expdir: %v", err)
		}
	}
	exe, err := os.Executable()
	if err != nil {
		return failuref("resolve executable: %v", err)
	}
	runID := uuid.NewString()
	base, err := newWorkerEnv(cfg, resolved, opts, runID)
	if err != nil {
		return failuref("worker env: %v", err)
	}
	command := func(spec runplan.WorkerSpec) (supervisor.WorkerCommand, error) {
		env := base
		env.Role = spec.Role
		env.WorkerID = spec.ID
		vars, err := env.Environ()
		if err != nil {
			return supervisor.WorkerCommand{}, err
		}
		return supervisor.WorkerCommand{
			Path: exe,
			Args: []string{"worker"},
			Env:  append(os.Environ(), vars...),
			Dir:  resolved.expDir,
		}, nil
	}

	sup, err := supervisor.New(supervisor.Config{
		Command:   command,
		Logger:    logger,
		LogDir:    resolved.logDir,
		RunID:     runID,
		StopGrace: opts.stopGrace,
		Output:    stderr,
	})
	if err != nil {
		return failuref("create supervisor: %v", err)
	}
	defer sup.Close()

	if resolved.logDir != "" {
		if err := config.Save(config.DumpPath(resolved.logDir), cfg); err != nil {
			return failuref("dump config: %v", err)
		}
	}
	logger.Info("run configured",
		"run_id", runID,
		"algorithm", cfg.Args.Algorithm,
		"environment", cfg.Args.Environment,
		"seed", resolved.seed,
		"redis", opts.redis,
		"logdir", resolved.logDir,
		"expdir", resolved.expDir,
	)

	ctx, stop := bootstrap.WithSignalContext(cmd.Context())
	defer stop()
	summary, err := sup.Run(ctx, plan)
	if err != nil {
		var checkErr *supervisor.CheckFailedError
		if errors.As(err, &checkErr) {
			return failuref("check failed: %v", checkErr)
		}
		return failuref("run failed: %v", err)
	}
	if summary.Stopped {
		fmt.Fprintf(stderr, "run interrupted: %s\n", runID)
	}
	fmt.Fprintf(stdout, "fleet %s: state=%s spawned=%d finished=%d terminated=%d crashed=%d\n",
		summary.RunID, summary.State, summary.Spawned, summary.Finished, summary.Terminated, len(summary.Crashes))
	return nil
}

package main

import (
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/SindhuVenna/catalyst/internal/bootstrap"
	"github.com/SindhuVenna/catalyst/internal/coord"
	"github.com/SindhuVenna/catalyst/internal/logging"
	"github.com/SindhuVenna/catalyst/internal/rl/builtin"
	"github.com/SindhuVenna/catalyst/internal/supervisor"
)

const parentWatchInterval = time.Second

func newWorkerCommand(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run one sampler process (started by the launcher)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd, os.Getenv, stdout, stderr)
		},
	}
}

func runWorker(cmd *cobra.Command, getenv func(string) string, stdout, stderr io.Writer) error {
	env, err := bootstrap.ParseWorkerEnv(getenv)
	if err != nil {
		return failuref("worker env: %v", err)
	}
	logger, err := logging.New(stderr, logging.Options{Level: env.LogLevel, Format: logging.FormatJSON})
	if err != nil {
		return failuref("worker logger: %v", err)
	}
	spec := env.Spec()
	logger = logger.With("run_id", env.RunID)

	cfg, err := env.LoadConfig()
	if err != nil {
		logger.Error("worker config failed", "worker", spec.Name(), "error", err)
		return &exitError{code: bootstrap.ExitFailure}
	}
	logDir := ""
	if env.LogDir != "" {
		logDir = supervisor.BuildRunPaths(env.LogDir).WorkerDir(spec.Name())
	}

	ctx, stop := bootstrap.WithSignalContext(cmd.Context())
	defer stop()
	ctx, unwatch := bootstrap.WatchParent(ctx, env.ParentPID, parentWatchInterval)
	defer unwatch()

	err = bootstrap.Run(ctx, bootstrap.Params{
		Config:       cfg,
		LogDir:       logDir,
		Resume:       env.Resume,
		Coordination: coord.SettingsFromConfig(cfg.Redis, env.Redis),
		Logger:       logger,
		RenderOut:    stdout,
	}, spec, builtin.Catalog())
	if err != nil {
		logger.Error("worker failed", "worker", spec.Name(), "error", err)
		return &exitError{code: bootstrap.ExitCode(err)}
	}
	logger.Info("worker finished", "worker", spec.Name())
	return nil
}

// Package bootstrap is what every worker process runs before it starts
// sampling: pin threading and seed the process rng, connect to the
// coordination backend, then assemble environment, algorithm and sampler
// from the catalog and hand control to the sampler.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"runtime"
	"strconv"

	"github.com/SindhuVenna/catalyst/internal/config"
	"github.com/SindhuVenna/catalyst/internal/coord"
	"github.com/SindhuVenna/catalyst/internal/rl"
	"github.com/SindhuVenna/catalyst/internal/runplan"
)

const (
	DefaultThreads = 1

	ExitFailure                 = 1
	ExitCoordinationUnavailable = 3

	// seedStream is the fixed second PCG word; the first is the worker seed.
	seedStream = 0x6361746c
)

type Params struct {
	Config       config.Config
	LogDir       string
	Resume       string
	Coordination coord.Settings
	Logger       *slog.Logger
	RenderOut    io.Writer
}

// InitProcess limits the runtime to threads OS threads and returns the only
// random source this process uses.
func InitProcess(seed int64, threads int) *rand.Rand {
	if threads <= 0 {
		threads = DefaultThreads
	}
	runtime.GOMAXPROCS(threads)
	_ = os.Setenv("OMP_NUM_THREADS", strconv.Itoa(threads))
	return rand.New(rand.NewPCG(uint64(seed), seedStream))
}

// Run bootstraps and runs one worker. Every failure before the sampler runs
// is returned to the caller; a coordination failure is a
// *coord.UnavailableError.
func Run(ctx context.Context, params Params, spec runplan.WorkerSpec, catalog rl.Catalog) error {
	logger := params.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("worker_id", spec.ID, "role", spec.Role.String())
	cfg := params.Config.Clone()

	rng := InitProcess(spec.Seed, cfg.Runtime.Threads)
	logger.Info("worker bootstrap", "seed", spec.Seed, "mode", spec.Mode().String(), "threads", runtime.GOMAXPROCS(0))

	client, err := coord.Dial(ctx, params.Coordination)
	if err != nil {
		return err
	}
	defer client.Close()
	if client.Enabled() {
		logger.Info("coordination connected", "addr", client.Addr(), "prefix", client.Prefix())
	}

	newEnv, err := catalog.Environments.Lookup(cfg.Args.Environment)
	if err != nil {
		return err
	}
	env, err := newEnv(cfg.Environment, rng)
	if err != nil {
		return fmt.Errorf("create environment %q: %w", cfg.Args.Environment, err)
	}
	adjusted, err := env.UpdateEnvironmentConfig(cfg.Environment)
	if err != nil {
		return fmt.Errorf("update environment config: %w", err)
	}
	cfg.Environment = adjusted

	newAlg, err := catalog.Algorithms.Lookup(cfg.Args.Algorithm)
	if err != nil {
		return err
	}
	alg, err := newAlg(cfg.Algorithm)
	if err != nil {
		return fmt.Errorf("create algorithm %q: %w", cfg.Args.Algorithm, err)
	}
	kwargs, err := alg.PrepareForSampler(cfg)
	if err != nil {
		return fmt.Errorf("prepare sampler args: %w", err)
	}

	if catalog.Sampler == nil {
		return fmt.Errorf("catalog has no sampler factory")
	}
	sampler, err := catalog.Sampler(rl.SamplerOptions{
		Config:        cfg.Sampler,
		AlgorithmArgs: kwargs,
		LogDir:        params.LogDir,
		Coord:         client,
		Prefix:        client.Prefix(),
		Env:           env,
		ID:            spec.ID,
		Mode:          spec.Mode(),
		Render:        spec.Render(),
		RenderOut:     params.RenderOut,
		Resume:        params.Resume,
		Check:         spec.Role == runplan.RoleCheck,
		Rand:          rng,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("create sampler: %w", err)
	}
	return sampler.Run(ctx)
}

func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var unavailable *coord.UnavailableError
	if errors.As(err, &unavailable) {
		return ExitCoordinationUnavailable
	}
	return ExitFailure
}

// Package sampler is the reference sampling loop run inside every worker
// process. Train-mode workers push finished episodes to the coordination
// backend and pull fresh policy weights from it; infer-mode workers act
// deterministically and only log.
package sampler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"

	"github.com/SindhuVenna/catalyst/internal/coord"
	"github.com/SindhuVenna/catalyst/internal/rl"
	"github.com/SindhuVenna/catalyst/internal/runplan"
)

const (
	defaultCheckEpisodes = 1
	defaultSyncSeconds   = 5.0
	episodeLogName       = "episodes.jsonl"
)

// Checkpoint is the on-disk form of a resumable policy.
type Checkpoint struct {
	Weights []float64 `msgpack:"weights"`
}

type Sampler struct {
	opts        rl.SamplerOptions
	policy      policy
	maxEpisodes int
	syncEvery   time.Duration
	pause       time.Duration
	logger      *slog.Logger
}

type episodeRecord struct {
	WorkerID int     `json:"worker_id"`
	Mode     string  `json:"mode"`
	Episode  int     `json:"episode"`
	Steps    int     `json:"steps"`
	Return   float64 `json:"return"`
	Pushed   bool    `json:"pushed"`
	At       string  `json:"at"`
}

func New(opts rl.SamplerOptions) (rl.Sampler, error) {
	if opts.Env == nil {
		return nil, fmt.Errorf("sampler: environment is required")
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(opts.ID), 0))
	}
	if opts.RenderOut == nil {
		opts.RenderOut = io.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p, err := newPolicy(opts.AlgorithmArgs, opts.Rand)
	if err != nil {
		return nil, fmt.Errorf("sampler: %w", err)
	}
	if opts.Resume != "" {
		if err := restore(p, opts.Resume); err != nil {
			return nil, fmt.Errorf("sampler: %w", err)
		}
	}
	maxEpisodes := opts.Config.Int("max_episodes", 0)
	if opts.Check {
		maxEpisodes = opts.Config.Int("check_episodes", defaultCheckEpisodes)
		if maxEpisodes <= 0 {
			return nil, fmt.Errorf("sampler: check_episodes must be > 0, got %d", maxEpisodes)
		}
	}
	if maxEpisodes < 0 {
		return nil, fmt.Errorf("sampler: max_episodes must be >= 0, got %d", maxEpisodes)
	}
	syncSeconds := opts.Config.Float("weights_sync_seconds", defaultSyncSeconds)
	if syncSeconds <= 0 {
		return nil, fmt.Errorf("sampler: weights_sync_seconds must be > 0, got %v", syncSeconds)
	}
	pauseSeconds := opts.Config.Float("episode_pause_seconds", 0)
	if pauseSeconds < 0 {
		return nil, fmt.Errorf("sampler: episode_pause_seconds must be >= 0, got %v", pauseSeconds)
	}
	return &Sampler{
		opts:        opts,
		policy:      p,
		maxEpisodes: maxEpisodes,
		syncEvery:   time.Duration(syncSeconds * float64(time.Second)),
		pause:       time.Duration(pauseSeconds * float64(time.Second)),
		logger:      logger,
	}, nil
}

func restore(p policy, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}
	var ckpt Checkpoint
	if err := msgpack.Unmarshal(data, &ckpt); err != nil {
		return fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	lin, ok := p.(*linearPolicy)
	if !ok {
		return nil
	}
	if err := lin.SetWeights(ckpt.Weights); err != nil {
		return fmt.Errorf("checkpoint %s: %w", path, err)
	}
	return nil
}

// WriteCheckpoint stores weights in the format New reads back for Resume.
func WriteCheckpoint(path string, weights []float64) error {
	data, err := msgpack.Marshal(Checkpoint{Weights: weights})
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Run blocks until the episode budget is spent or ctx is cancelled. A
// cancelled context is a normal stop and returns nil.
func (s *Sampler) Run(ctx context.Context) error {
	syncing := s.opts.Mode == runplan.ModeTrain && s.opts.Coord.Enabled()
	if lin, ok := s.policy.(*linearPolicy); ok && syncing {
		s.pullWeights(ctx, lin)
	}

	s.logger.Info("sampler started",
		"mode", s.opts.Mode.String(),
		"render", s.opts.Render,
		"max_episodes", s.maxEpisodes,
		"coordination", s.opts.Coord.Enabled(),
	)

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		return s.collect(gctx)
	})
	if lin, ok := s.policy.(*linearPolicy); ok && syncing {
		g.Go(func() error {
			s.syncLoop(gctx, done, lin)
			return nil
		})
	}
	err := g.Wait()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Sampler) collect(ctx context.Context) error {
	var episodeLog *json.Encoder
	if s.opts.LogDir != "" {
		if err := os.MkdirAll(s.opts.LogDir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(s.opts.LogDir, episodeLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open episode log: %w", err)
		}
		defer f.Close()
		episodeLog = json.NewEncoder(f)
	}

	train := s.opts.Mode == runplan.ModeTrain
	for episode := 0; s.maxEpisodes == 0 || episode < s.maxEpisodes; episode++ {
		if ctx.Err() != nil {
			return nil
		}
		traj, err := s.episode(ctx, episode, train)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		pushed := false
		if train && s.opts.Coord.Enabled() {
			if err := s.opts.Coord.PushTrajectory(ctx, traj); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			pushed = true
		}
		s.logger.Debug("episode finished", "episode", episode, "steps", len(traj.Rewards), "return", traj.Return())
		if episodeLog != nil {
			rec := episodeRecord{
				WorkerID: s.opts.ID,
				Mode:     s.opts.Mode.String(),
				Episode:  episode,
				Steps:    len(traj.Rewards),
				Return:   traj.Return(),
				Pushed:   pushed,
				At:       time.Now().UTC().Format(time.RFC3339Nano),
			}
			if err := episodeLog.Encode(rec); err != nil {
				return fmt.Errorf("write episode log: %w", err)
			}
		}
		if s.pause > 0 {
			timer := time.NewTimer(s.pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}
	s.logger.Info("sampler finished", "episodes", s.maxEpisodes)
	return nil
}

func (s *Sampler) episode(ctx context.Context, n int, explore bool) (coord.Trajectory, error) {
	traj := coord.Trajectory{WorkerID: s.opts.ID, Episode: n}
	obs := s.opts.Env.Reset()
	for {
		if err := ctx.Err(); err != nil {
			return traj, err
		}
		action := s.policy.Act(obs, explore)
		res, err := s.opts.Env.Step(action)
		if err != nil {
			return traj, fmt.Errorf("episode %d step %d: %w", n, len(traj.Rewards), err)
		}
		traj.Observations = append(traj.Observations, obs)
		traj.Actions = append(traj.Actions, action)
		traj.Rewards = append(traj.Rewards, res.Reward)
		if s.opts.Render {
			if err := s.opts.Env.Render(s.opts.RenderOut); err != nil {
				return traj, fmt.Errorf("render: %w", err)
			}
		}
		obs = res.Observation
		if res.Done {
			traj.Done = true
			return traj, nil
		}
	}
}

func (s *Sampler) syncLoop(ctx context.Context, done <-chan struct{}, lin *linearPolicy) {
	ticker := time.NewTicker(s.syncEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			s.pullWeights(ctx, lin)
		}
	}
}

// pullWeights never fails the sampler: a trainer that has not published yet
// or a transient fetch error leaves the current weights in place.
func (s *Sampler) pullWeights(ctx context.Context, lin *linearPolicy) {
	weights, ok, err := s.opts.Coord.Weights(ctx)
	switch {
	case err != nil:
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("weight sync failed", "error", err)
		}
	case !ok:
		s.logger.Debug("no published weights yet")
	default:
		if err := lin.SetWeights(weights); err != nil {
			s.logger.Warn("ignoring published weights", "error", err)
			return
		}
		s.logger.Debug("weights updated", "values", len(weights))
	}
}

// Package supervisor launches a resolved run plan as one OS process per
// worker and guarantees that no worker outlives the launcher: every spawned
// handle is tracked under the same lock the termination sweep takes, and
// once a stop is requested nothing new is spawned.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/SindhuVenna/catalyst/internal/observability"
	"github.com/SindhuVenna/catalyst/internal/runplan"
)

// WorkerCommand is how one worker process is started.
type WorkerCommand struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

type CommandFunc func(spec runplan.WorkerSpec) (WorkerCommand, error)

type Config struct {
	Command   CommandFunc
	Logger    *slog.Logger
	LogDir    string
	RunID     string
	StopGrace time.Duration
	// Output receives worker stdout and stderr when LogDir is empty.
	Output  io.Writer
	OnSpawn func(WorkerStatus)
	Now     func() time.Time
}

type ProcessHandle struct {
	spec    runplan.WorkerSpec
	cmd     *exec.Cmd
	pid     int
	logPath string
	logFile *os.File
	done    chan struct{}

	// guarded by Supervisor.mu
	state    HandleState
	killing  bool
	exitCode int
	err      error
	crashed  bool
}

type Summary struct {
	RunID      string
	State      FleetState
	Stopped    bool
	Spawned    int
	Finished   int
	Terminated int
	Crashes    []*WorkerCrashedError
	Workers    []WorkerStatus
}

type Supervisor struct {
	cfg    Config
	logger *slog.Logger
	paths  RunPaths
	events *eventLog

	mu       sync.Mutex
	state    FleetState
	handles  []*ProcessHandle
	crashes  []*WorkerCrashedError
	launched bool
	stopping bool
	stopped  bool
	unwatch  func() bool

	stopOnce  sync.Once
	closeOnce sync.Once
}

func New(cfg Config) (*Supervisor, error) {
	if cfg.Command == nil {
		return nil, fmt.Errorf("worker command builder is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.StopGrace < 0 {
		return nil, fmt.Errorf("stop grace must be >= 0")
	}
	s := &Supervisor{
		cfg:    cfg,
		logger: cfg.Logger.With("run_id", cfg.RunID),
		state:  FleetIdle,
	}
	if strings.TrimSpace(cfg.LogDir) != "" {
		paths, err := EnsureRunLayout(cfg.LogDir)
		if err != nil {
			return nil, err
		}
		s.paths = paths
		s.events = &eventLog{path: paths.EventsPath, runID: cfg.RunID, now: cfg.Now}
	}
	return s, nil
}

func (s *Supervisor) RunID() string   { return s.cfg.RunID }
func (s *Supervisor) Paths() RunPaths { return s.paths }

func (s *Supervisor) State() FleetState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run launches plan, waits for every worker and always runs the cleanup
// guard before returning.
func (s *Supervisor) Run(ctx context.Context, plan runplan.RunPlan) (Summary, error) {
	defer s.Close()
	if err := s.Launch(ctx, plan); err != nil {
		return s.Summary(), err
	}
	return s.JoinAll(ctx)
}

// Launch spawns the plan in order. A planned check worker runs to
// completion first; if it fails a *CheckFailedError is returned and nothing
// else is spawned. Cancelling ctx stops the fleet at any point; that is not
// an error.
func (s *Supervisor) Launch(ctx context.Context, plan runplan.RunPlan) (err error) {
	s.mu.Lock()
	if s.launched {
		s.mu.Unlock()
		return fmt.Errorf("fleet already launched")
	}
	s.launched = true
	s.unwatch = context.AfterFunc(ctx, func() { s.Stop("context cancelled") })
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.TerminateAll()
			s.finish(FleetAborted)
			panic(r)
		}
	}()

	counts := plan.Summary()
	ctx, span := observability.StartSpan(ctx, "fleet.launch",
		attribute.String("run_id", s.cfg.RunID),
		attribute.Int("workers", plan.Len()),
		attribute.Int64("base_seed", plan.BaseSeed()),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	s.emit(EventFleetStarted, "", map[string]any{
		"base_seed": plan.BaseSeed(),
		"check":     counts[runplan.RoleCheck],
		"visualize": counts[runplan.RoleVisualize],
		"infer":     counts[runplan.RoleInfer],
		"train":     counts[runplan.RoleTrain],
		"log_dir":   s.paths.Root,
	})
	s.logger.Info("fleet launch",
		"workers", plan.Len(),
		"check", counts[runplan.RoleCheck],
		"visualize", counts[runplan.RoleVisualize],
		"infer", counts[runplan.RoleInfer],
		"train", counts[runplan.RoleTrain],
	)
	if plan.Len() == 0 {
		s.logger.Warn("plan has no workers")
	}

	if check, ok := plan.Check(); ok {
		if err := s.runCheck(ctx, check); err != nil {
			return err
		}
		if s.isStopping() {
			s.finish(FleetAborted)
			return nil
		}
	}

	if err := s.transition(FleetSpawning); err != nil {
		return err
	}
	for _, spec := range plan.Fleet() {
		if ctx.Err() != nil {
			s.Stop("context cancelled")
			break
		}
		h, err := s.spawn(ctx, spec)
		if errors.Is(err, errStopping) {
			break
		}
		if err != nil {
			s.TerminateAll()
			s.finish(FleetAborted)
			return err
		}
		s.notifySpawn(h)
	}
	if s.isStopping() {
		s.finish(FleetAborted)
		return nil
	}
	if err := s.transition(FleetRunning); err != nil {
		return err
	}
	s.emit(EventFleetRunning, "", nil)
	return nil
}

func (s *Supervisor) runCheck(ctx context.Context, check runplan.WorkerSpec) error {
	if err := s.transition(FleetCheckRunning); err != nil {
		return err
	}
	h, err := s.spawn(ctx, check)
	if errors.Is(err, errStopping) {
		return nil
	}
	if err != nil {
		s.finish(FleetAborted)
		return err
	}
	s.notifySpawn(h)
	<-h.done

	s.mu.Lock()
	state, code, exitErr := h.state, h.exitCode, h.err
	s.mu.Unlock()
	if state == HandleTerminated {
		return nil
	}
	if exitErr != nil {
		checkErr := &CheckFailedError{Worker: check.Name(), ExitCode: code, Err: exitErr}
		s.emit(EventCheckFailed, check.Name(), s.payload(h, code, exitErr))
		s.logger.Error("check worker failed", "worker", check.Name(), "exit_code", code, "log", h.logPath)
		s.finish(FleetAborted)
		return checkErr
	}
	s.emit(EventCheckPassed, check.Name(), s.payload(h, code, nil))
	s.logger.Info("check worker passed", "worker", check.Name())
	return nil
}

func (s *Supervisor) spawn(ctx context.Context, spec runplan.WorkerSpec) (*ProcessHandle, error) {
	name := spec.Name()
	wc, err := s.cfg.Command(spec)
	if err != nil {
		return nil, fmt.Errorf("build command for %s: %w", name, err)
	}
	if strings.TrimSpace(wc.Path) == "" {
		return nil, fmt.Errorf("build command for %s: path is empty", name)
	}

	_, span := observability.StartSpan(ctx, "fleet.spawn",
		attribute.String("worker", name),
		attribute.String("role", spec.Role.String()),
		attribute.Int("id", spec.ID),
		attribute.Int64("seed", spec.Seed),
	)
	defer span.End()

	cmd := exec.Command(wc.Path, wc.Args...)
	cmd.Env = wc.Env
	cmd.Dir = wc.Dir
	var logFile *os.File
	logPath := ""
	if s.paths.Root != "" {
		dir := s.paths.WorkerDir(name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create worker dir: %w", err)
		}
		logPath = filepath.Join(dir, "worker.log")
		logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open worker log: %w", err)
		}
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	} else {
		cmd.Stdout = s.cfg.Output
		cmd.Stderr = s.cfg.Output
	}
	configureProcess(cmd)

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		closeLog(logFile)
		return nil, errStopping
	}
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		closeLog(logFile)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("start worker %s: %w", name, err)
	}
	h := &ProcessHandle{
		spec:    spec,
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		logPath: logPath,
		logFile: logFile,
		done:    make(chan struct{}),
		state:   HandleSpawned,
	}
	s.handles = append(s.handles, h)
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("pid", h.pid))
	s.emit(EventWorkerSpawned, name, s.payload(h, 0, nil))
	s.logger.Info("worker spawned", "worker", name, "pid", h.pid, "seed", spec.Seed, "mode", spec.Mode().String(), "log", logPath)

	s.mu.Lock()
	s.setHandleState(h, HandleRunning)
	s.mu.Unlock()
	go s.reap(h)
	return h, nil
}

func (s *Supervisor) reap(h *ProcessHandle) {
	err := h.cmd.Wait()
	closeLog(h.logFile)
	code := exitCode(h.cmd, err)
	name := h.spec.Name()

	s.mu.Lock()
	next := HandleFinished
	if h.killing && err != nil {
		next = HandleTerminated
	}
	s.setHandleState(h, next)
	h.exitCode = code
	h.err = err
	var crash *WorkerCrashedError
	if next == HandleFinished && err != nil && h.spec.Role != runplan.RoleCheck {
		crash = &WorkerCrashedError{Worker: name, PID: h.pid, ExitCode: code, Err: err}
		h.crashed = true
		s.crashes = append(s.crashes, crash)
	}
	s.mu.Unlock()

	payload := s.payload(h, code, err)
	switch {
	case next == HandleTerminated:
		s.emit(EventWorkerTerminated, name, payload)
		s.logger.Info("worker terminated", "worker", name, "pid", h.pid)
	case crash != nil:
		s.emit(EventWorkerCrashed, name, payload)
		s.logger.Error("worker crashed", "worker", name, "pid", h.pid, "exit_code", code, "error", err, "log", h.logPath)
	default:
		s.emit(EventWorkerExited, name, payload)
		s.logger.Info("worker exited", "worker", name, "pid", h.pid, "exit_code", code)
	}
	close(h.done)
}

// Stop is an operator stop: it is recorded once, then every live worker is
// terminated. Safe to call from any goroutine.
func (s *Supervisor) Stop(reason string) int {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		s.emit(EventStopRequested, "", map[string]any{"reason": reason})
		s.logger.Warn("stop requested", "reason", reason)
	})
	return s.TerminateAll()
}

// TerminateAll refuses further spawns, forcefully terminates every live
// handle and waits until each one is reaped, including handles another
// caller is already terminating. It returns how many handles this call
// signalled, so a second call returns 0.
func (s *Supervisor) TerminateAll() int {
	s.mu.Lock()
	s.stopping = true
	var live, pending []*ProcessHandle
	for _, h := range s.handles {
		if h.state.Exited() {
			continue
		}
		pending = append(pending, h)
		if !h.killing {
			h.killing = true
			live = append(live, h)
		}
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range live {
		wg.Add(1)
		go func(h *ProcessHandle) {
			defer wg.Done()
			terminateProcess(h.cmd, s.cfg.StopGrace, h.done)
		}(h)
	}
	wg.Wait()
	for _, h := range pending {
		<-h.done
	}
	return len(live)
}

// JoinAll waits for every spawned worker after Launch has returned. If ctx
// is cancelled first the fleet is stopped and JoinAll still waits for the
// terminated workers to be reaped.
func (s *Supervisor) JoinAll(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	launched := s.launched
	handles := append([]*ProcessHandle(nil), s.handles...)
	s.mu.Unlock()
	if !launched {
		return Summary{}, fmt.Errorf("fleet not launched")
	}
	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			s.Stop("context cancelled")
			<-h.done
		}
	}
	if s.isStopping() {
		s.finish(FleetAborted)
	} else {
		s.finish(FleetCompleted)
	}
	return s.Summary(), nil
}

// Close is the cleanup guard. It is idempotent and safe on every exit path.
func (s *Supervisor) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		unwatch := s.unwatch
		launched := s.launched
		s.mu.Unlock()
		if unwatch != nil {
			unwatch()
		}
		if n := s.TerminateAll(); n > 0 {
			s.logger.Warn("cleanup terminated live workers", "count", n)
		}
		if launched {
			s.finish(FleetAborted)
		}
	})
	return nil
}

func (s *Supervisor) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Summary{
		RunID:   s.cfg.RunID,
		State:   s.state,
		Stopped: s.stopped,
		Spawned: len(s.handles),
		Crashes: append([]*WorkerCrashedError(nil), s.crashes...),
		Workers: make([]WorkerStatus, 0, len(s.handles)),
	}
	for _, h := range s.handles {
		switch h.state {
		case HandleFinished:
			out.Finished++
		case HandleTerminated:
			out.Terminated++
		}
		out.Workers = append(out.Workers, h.statusLocked())
	}
	return out
}

func (s *Supervisor) Handles() []WorkerStatus {
	return s.Summary().Workers
}

func (s *Supervisor) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func (s *Supervisor) transition(to FleetState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ValidateFleetTransition(s.state, to); err != nil {
		return err
	}
	s.logger.Debug("fleet state", "from", s.state, "to", to)
	s.state = to
	return nil
}

// finish moves the fleet to a terminal state once; later calls are no-ops.
func (s *Supervisor) finish(to FleetState) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	if err := ValidateFleetTransition(s.state, to); err != nil {
		to = FleetAborted
	}
	s.state = to
	s.mu.Unlock()

	summary := s.Summary()
	eventType := EventFleetCompleted
	if to == FleetAborted {
		eventType = EventFleetAborted
	}
	s.emit(eventType, "", map[string]any{
		"spawned":    summary.Spawned,
		"finished":   summary.Finished,
		"terminated": summary.Terminated,
		"crashes":    len(summary.Crashes),
		"stopped":    summary.Stopped,
	})
	s.logger.Info("fleet "+string(to),
		"spawned", summary.Spawned,
		"finished", summary.Finished,
		"terminated", summary.Terminated,
		"crashes", len(summary.Crashes),
	)
}

// setHandleState must be called with s.mu held.
func (s *Supervisor) setHandleState(h *ProcessHandle, to HandleState) {
	if err := ValidateHandleTransition(h.state, to); err != nil {
		s.logger.Debug("handle state", "worker", h.spec.Name(), "error", err)
		return
	}
	h.state = to
}

func (s *Supervisor) notifySpawn(h *ProcessHandle) {
	if s.cfg.OnSpawn == nil {
		return
	}
	s.mu.Lock()
	status := h.statusLocked()
	s.mu.Unlock()
	s.cfg.OnSpawn(status)
}

func (s *Supervisor) payload(h *ProcessHandle, code int, err error) WorkerPayload {
	p := WorkerPayload{
		Role:    h.spec.Role.String(),
		ID:      h.spec.ID,
		Seed:    h.spec.Seed,
		PID:     h.pid,
		LogPath: h.logPath,
	}
	s.mu.Lock()
	exited := h.state.Exited()
	s.mu.Unlock()
	if exited {
		p.ExitCode = &code
	}
	if err != nil {
		p.Error = err.Error()
	}
	return p
}

func (s *Supervisor) emit(eventType, worker string, payload any) {
	if err := s.events.emit(eventType, worker, payload); err != nil {
		s.logger.Warn("event log write failed", "type", eventType, "error", err)
	}
}

func (h *ProcessHandle) statusLocked() WorkerStatus {
	return WorkerStatus{
		Name:     h.spec.Name(),
		Role:     h.spec.Role.String(),
		ID:       h.spec.ID,
		PID:      h.pid,
		State:    h.state,
		ExitCode: h.exitCode,
		Crashed:  h.crashed,
		LogPath:  h.logPath,
	}
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

func closeLog(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}

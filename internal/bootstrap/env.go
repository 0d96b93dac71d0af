package bootstrap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/SindhuVenna/catalyst/internal/config"
	"github.com/SindhuVenna/catalyst/internal/runplan"
)

// Environment contract between the launcher and a worker process.
const (
	ConfigEnv    = "CATALYST_CONFIG"
	RunConfigEnv = "CATALYST_RUN_CONFIG"
	LogDirEnv    = "CATALYST_LOGDIR"
	ResumeEnv    = "CATALYST_RESUME"
	RedisEnv     = "CATALYST_REDIS"
	SeedEnv      = "CATALYST_SEED"
	WorkerIDEnv  = "CATALYST_WORKER_ID"
	RoleEnv      = "CATALYST_WORKER_ROLE"
	ParentPIDEnv = "CATALYST_PARENT_PID"
	RunIDEnv     = "CATALYST_RUN_ID"
	LogLevelEnv  = "CATALYST_LOG_LEVEL"
)

// WorkerEnv is everything a worker needs to rebuild the launcher's view of
// the run. Seed is the run's base seed; the worker seed is derived from it.
// The resolved config arrives either as the launcher's dump (ConfigPath) or
// inline as JSON (RunConfig) when the run has no log directory.
type WorkerEnv struct {
	ConfigPath string
	RunConfig  string
	LogDir     string
	Resume     string
	Redis      bool
	BaseSeed   int64
	Role       runplan.Role
	WorkerID   int
	ParentPID  int
	RunID      string
	LogLevel   string
}

func (e WorkerEnv) Spec() runplan.WorkerSpec {
	return runplan.WorkerSpec{
		Role: e.Role,
		ID:   e.WorkerID,
		Seed: runplan.DeriveSeed(e.BaseSeed, e.WorkerID),
	}
}

// LoadConfig returns the config the launcher resolved for this run.
func (e WorkerEnv) LoadConfig() (config.Config, error) {
	if e.RunConfig != "" {
		return config.Decode([]byte(e.RunConfig))
	}
	cfg, _, err := config.Load([]string{e.ConfigPath})
	return cfg, err
}

// Environ renders e as KEY=VALUE pairs to append to a child's environment.
func (e WorkerEnv) Environ() ([]string, error) {
	if e.ConfigPath == "" && e.RunConfig == "" {
		return nil, fmt.Errorf("worker env: a config path or an inline run config is required")
	}
	return []string{
		ConfigEnv + "=" + e.ConfigPath,
		RunConfigEnv + "=" + e.RunConfig,
		LogDirEnv + "=" + e.LogDir,
		ResumeEnv + "=" + e.Resume,
		RedisEnv + "=" + strconv.FormatBool(e.Redis),
		SeedEnv + "=" + strconv.FormatInt(e.BaseSeed, 10),
		WorkerIDEnv + "=" + strconv.Itoa(e.WorkerID),
		RoleEnv + "=" + e.Role.String(),
		ParentPIDEnv + "=" + strconv.Itoa(e.ParentPID),
		RunIDEnv + "=" + e.RunID,
		LogLevelEnv + "=" + e.LogLevel,
	}, nil
}

func ParseWorkerEnv(getenv func(string) string) (WorkerEnv, error) {
	var e WorkerEnv
	e.ConfigPath = strings.TrimSpace(getenv(ConfigEnv))
	e.RunConfig = strings.TrimSpace(getenv(RunConfigEnv))
	if e.ConfigPath == "" && e.RunConfig == "" {
		return WorkerEnv{}, fmt.Errorf("%s or %s is required", ConfigEnv, RunConfigEnv)
	}
	role, err := runplan.ParseRole(getenv(RoleEnv))
	if err != nil {
		return WorkerEnv{}, fmt.Errorf("parse %s: %w", RoleEnv, err)
	}
	e.Role = role
	id, err := strconv.Atoi(strings.TrimSpace(getenv(WorkerIDEnv)))
	if err != nil || id < 0 {
		return WorkerEnv{}, fmt.Errorf("%s must be a non-negative integer, got %q", WorkerIDEnv, getenv(WorkerIDEnv))
	}
	e.WorkerID = id
	seed, err := strconv.ParseInt(strings.TrimSpace(getenv(SeedEnv)), 10, 64)
	if err != nil {
		return WorkerEnv{}, fmt.Errorf("%s must be an integer, got %q", SeedEnv, getenv(SeedEnv))
	}
	e.BaseSeed = seed
	if raw := strings.TrimSpace(getenv(RedisEnv)); raw != "" {
		e.Redis, err = strconv.ParseBool(raw)
		if err != nil {
			return WorkerEnv{}, fmt.Errorf("parse %s: %w", RedisEnv, err)
		}
	}
	e.ParentPID, _ = strconv.Atoi(strings.TrimSpace(getenv(ParentPIDEnv)))
	e.LogDir = strings.TrimSpace(getenv(LogDirEnv))
	e.Resume = strings.TrimSpace(getenv(ResumeEnv))
	e.RunID = strings.TrimSpace(getenv(RunIDEnv))
	e.LogLevel = strings.TrimSpace(getenv(LogLevelEnv))
	return e, nil
}

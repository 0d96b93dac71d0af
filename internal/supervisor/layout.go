package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
)

type RunPaths struct {
	Root       string
	FleetDir   string
	EventsPath string
	WorkersDir string
	ConfigPath string
}

func BuildRunPaths(logDir string) RunPaths {
	fleet := filepath.Join(logDir, "fleet")
	return RunPaths{
		Root:       logDir,
		FleetDir:   fleet,
		EventsPath: filepath.Join(fleet, "events.jsonl"),
		WorkersDir: filepath.Join(logDir, "workers"),
		ConfigPath: filepath.Join(logDir, "config.json"),
	}
}

func (p RunPaths) WorkerDir(name string) string {
	return filepath.Join(p.WorkersDir, name)
}

func EnsureRunLayout(logDir string) (RunPaths, error) {
	if logDir == "" {
		return RunPaths{}, fmt.Errorf("log dir is empty")
	}
	paths := BuildRunPaths(logDir)
	for _, dir := range []string{paths.FleetDir, paths.WorkersDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return RunPaths{}, fmt.Errorf("create fleet dir %s: %w", dir, err)
		}
	}
	return paths, nil
}

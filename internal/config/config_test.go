package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMergesConfigFiles(t *testing.T) {
	temp := t.TempDir()
	basePath := filepath.Join(temp, "base.json")
	overlayPath := filepath.Join(temp, "overlay.yml")
	tomlPath := filepath.Join(temp, "local.toml")

	writeJSON(t, basePath, map[string]any{
		"args": map[string]any{
			"algorithm":   "random",
			"environment": "point_mass",
		},
		"redis": map[string]any{
			"port":   12000,
			"prefix": "base",
		},
		"environment": map[string]any{
			"dims":      2,
			"max_steps": 100,
		},
		"sampler": map[string]any{
			"max_episodes": 10,
		},
	})
	writeFile(t, overlayPath, `
redis:
  prefix: overlay
environment:
  max_steps: 50
algorithm:
  noise: 0.25
`)
	writeFile(t, tomlPath, `
[sampler]
max_episodes = 3

[runtime]
threads = 2
`)

	cfg, paths, err := Load([]string{basePath, overlayPath, tomlPath})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 loaded paths, got %v", paths)
	}
	if cfg.Args.Algorithm != "random" || cfg.Args.Environment != "point_mass" {
		t.Fatalf("args mismatch: %+v", cfg.Args)
	}
	if cfg.Redis.Port != 12000 {
		t.Fatalf("redis port mismatch: got %d", cfg.Redis.Port)
	}
	if cfg.Redis.Prefix != "overlay" {
		t.Fatalf("redis prefix mismatch: got %s", cfg.Redis.Prefix)
	}
	if got := cfg.Environment.Int("max_steps", 0); got != 50 {
		t.Fatalf("max_steps mismatch: got %d", got)
	}
	if got := cfg.Environment.Int("dims", 0); got != 2 {
		t.Fatalf("dims mismatch: got %d", got)
	}
	if got := cfg.Algorithm.Float("noise", 0); got != 0.25 {
		t.Fatalf("noise mismatch: got %v", got)
	}
	if got := cfg.Sampler.Int("max_episodes", 0); got != 3 {
		t.Fatalf("max_episodes mismatch: got %d", got)
	}
	if cfg.Runtime.Threads != 2 {
		t.Fatalf("threads mismatch: got %d", cfg.Runtime.Threads)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	temp := t.TempDir()
	path := filepath.Join(temp, "config.yaml")
	writeFile(t, path, `
args:
  algorithm: random
sampler:
  max_episodes: 10
`)

	cfg, _, err := Load([]string{path},
		"sampler.max_episodes=4",
		"args.seed=7",
		"args.train=3",
		"redis.prefix=exp1",
		"environment.target=[1.5, -2]",
	)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := cfg.Sampler.Int("max_episodes", 0); got != 4 {
		t.Fatalf("max_episodes override mismatch: got %d", got)
	}
	if cfg.Args.Seed == nil || *cfg.Args.Seed != 7 {
		t.Fatalf("seed override mismatch: %v", cfg.Args.Seed)
	}
	if cfg.Args.Train == nil || *cfg.Args.Train != 3 {
		t.Fatalf("train override mismatch: %v", cfg.Args.Train)
	}
	if cfg.Redis.Prefix != "exp1" {
		t.Fatalf("prefix override mismatch: %s", cfg.Redis.Prefix)
	}
	target, ok := cfg.Environment["target"].([]any)
	if !ok || len(target) != 2 {
		t.Fatalf("target override mismatch: %#v", cfg.Environment["target"])
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	temp := t.TempDir()
	if _, _, err := Load(nil); err == nil {
		t.Fatalf("expected error for empty path list")
	}
	if _, _, err := Load([]string{filepath.Join(temp, "missing.json")}); err == nil {
		t.Fatalf("expected error for missing file")
	}
	bad := filepath.Join(temp, "bad.json")
	writeFile(t, bad, "{not json")
	if _, _, err := Load([]string{bad}); err == nil {
		t.Fatalf("expected parse error")
	}
	good := filepath.Join(temp, "good.json")
	writeJSON(t, good, map[string]any{"sampler": map[string]any{"max_episodes": 1}})
	if _, _, err := Load([]string{good}, "sampler.max_episodes.inner=1"); err == nil {
		t.Fatalf("expected error when override descends into a scalar")
	}
	if _, _, err := Load([]string{good}, "novalue"); err == nil {
		t.Fatalf("expected error for override without '='")
	}
}

func TestSaveWritesJSON(t *testing.T) {
	temp := t.TempDir()
	path := DumpPath(filepath.Join(temp, "logs"))
	var cfg Config
	cfg.Args.Algorithm = "random"
	cfg.Redis.Prefix = "exp"
	cfg.Sampler = Section{"max_episodes": 5}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Read saved file: %v", err)
	}
	var decoded Config
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal saved file: %v", err)
	}
	if decoded.Args.Algorithm != "random" {
		t.Fatalf("algorithm mismatch: got %s", decoded.Args.Algorithm)
	}
	if decoded.Sampler.Int("max_episodes", 0) != 5 {
		t.Fatalf("max_episodes mismatch: got %v", decoded.Sampler["max_episodes"])
	}
}

func TestCloneIsDeep(t *testing.T) {
	seed := int64(3)
	cfg := Config{
		Args:        Args{Seed: &seed},
		Environment: Section{"nested": map[string]any{"k": 1}, "list": []any{1, 2}},
	}
	clone := cfg.Clone()
	clone.Environment["nested"].(map[string]any)["k"] = 2
	clone.Environment["list"].([]any)[0] = 9
	*clone.Args.Seed = 4

	if cfg.Environment["nested"].(map[string]any)["k"] != 1 {
		t.Fatalf("nested map was shared")
	}
	if cfg.Environment["list"].([]any)[0] != 1 {
		t.Fatalf("list was shared")
	}
	if *cfg.Args.Seed != 3 {
		t.Fatalf("seed pointer was shared")
	}
}

func TestSectionAccessors(t *testing.T) {
	s := Section{
		"i":      float64(4),
		"f":      1,
		"s":      "name",
		"b":      "true",
		"n":      map[string]any{"x": 1},
		"broken": 2.5,
	}
	if s.Int("i", 0) != 4 || s.Int("missing", 9) != 9 || s.Int("broken", 7) != 7 {
		t.Fatalf("Int accessor mismatch")
	}
	if s.Float("f", 0) != 1 {
		t.Fatalf("Float accessor mismatch")
	}
	if s.String("s", "") != "name" || s.String("i", "") != "4" {
		t.Fatalf("String accessor mismatch")
	}
	if !s.Bool("b", false) || s.Bool("missing", true) != true {
		t.Fatalf("Bool accessor mismatch")
	}
	if s.Sub("n").Int("x", 0) != 1 || s.Sub("s") != nil {
		t.Fatalf("Sub accessor mismatch")
	}
}

func writeJSON(t *testing.T, path string, payload map[string]any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

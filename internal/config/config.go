package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const DefaultRedisPort = 12000

// Config is the merged run configuration. The environment, algorithm and
// sampler sections are owned by the collaborators and stay opaque here.
type Config struct {
	Args        Args        `json:"args"`
	Redis       RedisConfig `json:"redis"`
	Runtime     Runtime     `json:"runtime"`
	Environment Section     `json:"environment"`
	Algorithm   Section     `json:"algorithm"`
	Sampler     Section     `json:"sampler"`
}

type Args struct {
	Algorithm   string `json:"algorithm"`
	Environment string `json:"environment"`
	Logdir      string `json:"logdir,omitempty"`
	Expdir      string `json:"expdir,omitempty"`
	Seed        *int64 `json:"seed,omitempty"`
	Vis         *int   `json:"vis,omitempty"`
	Infer       *int   `json:"infer,omitempty"`
	Train       *int   `json:"train,omitempty"`
}

type RedisConfig struct {
	Host   string `json:"host,omitempty"`
	Port   int    `json:"port,omitempty"`
	DB     int    `json:"db,omitempty"`
	Prefix string `json:"prefix"`
}

type Runtime struct {
	Threads int `json:"threads,omitempty"`
}

func (c Config) Clone() Config {
	out := c
	out.Args.Seed = clonePtr(c.Args.Seed)
	out.Args.Vis = clonePtr(c.Args.Vis)
	out.Args.Infer = clonePtr(c.Args.Infer)
	out.Args.Train = clonePtr(c.Args.Train)
	out.Environment = c.Environment.Clone()
	out.Algorithm = c.Algorithm.Clone()
	out.Sampler = c.Sampler.Clone()
	return out
}

// DumpPath is where the launcher records the merged config for a run.
func DumpPath(logDir string) string {
	return filepath.Join(logDir, "config.json")
}

// Load merges the given files in order (later files win) and then applies
// key.path=value overrides. It returns the files that were read.
func Load(paths []string, overrides ...string) (Config, []string, error) {
	loaded := []string{}
	merged := map[string]any{}

	if len(paths) == 0 {
		return Config{}, loaded, fmt.Errorf("at least one config path is required")
	}
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if err := mergeFile(merged, path); err != nil {
			return Config{}, loaded, err
		}
		loaded = append(loaded, path)
	}
	if err := ApplyOverrides(merged, overrides); err != nil {
		return Config{}, loaded, err
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return Config{}, loaded, fmt.Errorf("marshal merged config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, loaded, fmt.Errorf("unmarshal merged config: %w", err)
	}
	return cfg, loaded, nil
}

func mergeFile(dst map[string]any, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config file not found: %s", path)
	}
	if info.IsDir() {
		return fmt.Errorf("config path is a directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %s: %w", path, err)
	}
	src, err := decode(path, data)
	if err != nil {
		return fmt.Errorf("parse config: %s: %w", path, err)
	}
	deepMerge(dst, src)
	return nil
}

func decode(path string, data []byte) (map[string]any, error) {
	src := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &src); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(data, &src); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &src); err != nil {
			return nil, err
		}
	}
	if src == nil {
		src = map[string]any{}
	}
	return src, nil
}

func deepMerge(dst, src map[string]any) {
	for key, value := range src {
		srcMap, ok := value.(map[string]any)
		if !ok {
			dst[key] = value
			continue
		}
		if existing, ok := dst[key]; ok {
			if existingMap, ok := existing.(map[string]any); ok {
				deepMerge(existingMap, srcMap)
				continue
			}
		}
		newMap := map[string]any{}
		deepMerge(newMap, srcMap)
		dst[key] = newMap
	}
}

// ApplyOverrides sets dotted keys in a raw config tree. Values are parsed as
// YAML scalars so "3" becomes an int and "[1, 2]" a list.
func ApplyOverrides(dst map[string]any, overrides []string) error {
	for _, raw := range overrides {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("invalid override %q: want key.path=value", raw)
		}
		var parsed any
		if err := yaml.Unmarshal([]byte(value), &parsed); err != nil || parsed == nil {
			parsed = value
		}
		if err := setPath(dst, strings.Split(key, "."), parsed); err != nil {
			return fmt.Errorf("invalid override %q: %w", raw, err)
		}
	}
	return nil
}

func setPath(dst map[string]any, parts []string, value any) error {
	node := dst
	for i, part := range parts {
		if part == "" {
			return fmt.Errorf("empty key segment")
		}
		if i == len(parts)-1 {
			node[part] = value
			return nil
		}
		next, exists := node[part]
		if !exists {
			child := map[string]any{}
			node[part] = child
			node = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%s is not a section", strings.Join(parts[:i+1], "."))
		}
		node = child
	}
	return nil
}

// Encode renders cfg in the same JSON shape Save writes.
func Encode(cfg Config) ([]byte, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// Decode parses a config produced by Encode or Save.
func Decode(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func Save(path string, cfg Config) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

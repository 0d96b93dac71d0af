package builtin

import (
	"fmt"

	"github.com/SindhuVenna/catalyst/internal/config"
	"github.com/SindhuVenna/catalyst/internal/rl"
)

// Random samples uniform actions; it needs only the action size.
type Random struct {
	scale float64
}

func NewRandom(cfg config.Section) (rl.Algorithm, error) {
	return &Random{scale: cfg.Float("action_scale", 1.0)}, nil
}

func (a *Random) PrepareForSampler(cfg config.Config) (map[string]any, error) {
	actionSize := cfg.Environment.Int("action_size", 0)
	if actionSize <= 0 {
		return nil, fmt.Errorf("random: environment did not report action_size")
	}
	return map[string]any{
		"policy":       "random",
		"action_size":  actionSize,
		"action_scale": a.scale,
	}, nil
}

// Linear is a linear-Gaussian policy. Its initial weights are -gain on the
// diagonal when observation and action sizes match, which drives the point
// mass toward its target before any trainer has published weights.
type Linear struct {
	noise float64
	gain  float64
}

func NewLinear(cfg config.Section) (rl.Algorithm, error) {
	noise := cfg.Float("noise", 0.1)
	if noise < 0 {
		return nil, fmt.Errorf("linear: noise must be >= 0, got %v", noise)
	}
	return &Linear{noise: noise, gain: cfg.Float("gain", 1.0)}, nil
}

func (a *Linear) PrepareForSampler(cfg config.Config) (map[string]any, error) {
	obsSize := cfg.Environment.Int("observation_size", 0)
	actionSize := cfg.Environment.Int("action_size", 0)
	if obsSize <= 0 || actionSize <= 0 {
		return nil, fmt.Errorf("linear: environment did not report observation_size/action_size")
	}
	weights := make([]float64, actionSize*obsSize)
	if obsSize == actionSize {
		for i := 0; i < actionSize; i++ {
			weights[i*obsSize+i] = -a.gain
		}
	}
	return map[string]any{
		"policy":           "linear",
		"observation_size": obsSize,
		"action_size":      actionSize,
		"noise":            a.noise,
		"weights":          weights,
	}, nil
}

package builtin

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/SindhuVenna/catalyst/internal/config"
	"github.com/SindhuVenna/catalyst/internal/rl"
)

// PointMass is a continuous navigation task: move a point toward a fixed
// target. Observations are the offset to the target; actions are velocities
// clipped to [-1, 1] per axis.
type PointMass struct {
	dims        int
	maxSteps    int
	target      []float64
	startRadius float64
	maxSpeed    float64
	tolerance   float64
	rng         *rand.Rand

	pos   []float64
	steps int
}

func NewPointMass(cfg config.Section, rng *rand.Rand) (rl.Environment, error) {
	dims := cfg.Int("dims", 2)
	if dims <= 0 {
		return nil, fmt.Errorf("point_mass: dims must be > 0, got %d", dims)
	}
	maxSteps := cfg.Int("max_steps", 200)
	if maxSteps <= 0 {
		return nil, fmt.Errorf("point_mass: max_steps must be > 0, got %d", maxSteps)
	}
	target := make([]float64, dims)
	if raw, ok := cfg["target"]; ok {
		values, err := floats(raw)
		if err != nil {
			return nil, fmt.Errorf("point_mass: target: %w", err)
		}
		if len(values) != dims {
			return nil, fmt.Errorf("point_mass: target has %d values, want %d", len(values), dims)
		}
		copy(target, values)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(0, 0))
	}
	return &PointMass{
		dims:        dims,
		maxSteps:    maxSteps,
		target:      target,
		startRadius: cfg.Float("start_radius", 1.0),
		maxSpeed:    cfg.Float("max_speed", 0.1),
		tolerance:   cfg.Float("tolerance", 0.05),
		rng:         rng,
		pos:         make([]float64, dims),
	}, nil
}

func (p *PointMass) UpdateEnvironmentConfig(cfg config.Section) (config.Section, error) {
	out := cfg.Clone()
	if out == nil {
		out = config.Section{}
	}
	out["dims"] = p.dims
	out["max_steps"] = p.maxSteps
	out["target"] = append([]float64(nil), p.target...)
	out["observation_size"] = p.dims
	out["action_size"] = p.dims
	return out, nil
}

func (p *PointMass) Reset() []float64 {
	for i := range p.pos {
		p.pos[i] = p.target[i] + (p.rng.Float64()*2-1)*p.startRadius
	}
	p.steps = 0
	return p.observation()
}

func (p *PointMass) Step(action []float64) (rl.StepResult, error) {
	if len(action) != p.dims {
		return rl.StepResult{}, fmt.Errorf("point_mass: action has %d values, want %d", len(action), p.dims)
	}
	for i, a := range action {
		p.pos[i] += math.Max(-1, math.Min(1, a)) * p.maxSpeed
	}
	p.steps++
	dist := p.distance()
	return rl.StepResult{
		Observation: p.observation(),
		Reward:      -dist,
		Done:        dist <= p.tolerance || p.steps >= p.maxSteps,
	}, nil
}

func (p *PointMass) Render(w io.Writer) error {
	parts := make([]string, len(p.pos))
	for i, v := range p.pos {
		parts[i] = fmt.Sprintf("%+.3f", v)
	}
	_, err := fmt.Fprintf(w, "step=%d pos=[%s] dist=%.3f\n", p.steps, strings.Join(parts, " "), p.distance())
	return err
}

func (p *PointMass) observation() []float64 {
	obs := make([]float64, p.dims)
	for i := range obs {
		obs[i] = p.pos[i] - p.target[i]
	}
	return obs
}

func (p *PointMass) distance() float64 {
	sum := 0.0
	for i := range p.pos {
		d := p.pos[i] - p.target[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func floats(raw any) ([]float64, error) {
	switch values := raw.(type) {
	case []float64:
		return append([]float64(nil), values...), nil
	case []any:
		out := make([]float64, len(values))
		for i, v := range values {
			switch n := v.(type) {
			case float64:
				out[i] = n
			case int:
				out[i] = float64(n)
			case int64:
				out[i] = float64(n)
			default:
				return nil, fmt.Errorf("value %d is %T, want a number", i, v)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("want a list of numbers, got %T", raw)
	}
}

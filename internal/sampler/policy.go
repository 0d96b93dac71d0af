package sampler

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

type policy interface {
	Act(obs []float64, explore bool) []float64
}

type randomPolicy struct {
	size  int
	scale float64
	rng   *rand.Rand
}

func (p *randomPolicy) Act(_ []float64, _ bool) []float64 {
	action := make([]float64, p.size)
	for i := range action {
		action[i] = (p.rng.Float64()*2 - 1) * p.scale
	}
	return action
}

// linearPolicy computes action = W·obs, plus Gaussian noise when exploring.
// W is row-major [actSize][obsSize] and is swapped by the weight-sync loop.
type linearPolicy struct {
	obsSize int
	actSize int
	noise   float64
	rng     *rand.Rand

	mu      sync.RWMutex
	weights []float64
}

func (p *linearPolicy) Act(obs []float64, explore bool) []float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	action := make([]float64, p.actSize)
	for i := range action {
		sum := 0.0
		for j := 0; j < p.obsSize && j < len(obs); j++ {
			sum += p.weights[i*p.obsSize+j] * obs[j]
		}
		if explore && p.noise > 0 {
			sum += p.rng.NormFloat64() * p.noise
		}
		action[i] = sum
	}
	return action
}

func (p *linearPolicy) SetWeights(weights []float64) error {
	if len(weights) != p.obsSize*p.actSize {
		return fmt.Errorf("weights have %d values, want %d", len(weights), p.obsSize*p.actSize)
	}
	p.mu.Lock()
	p.weights = append([]float64(nil), weights...)
	p.mu.Unlock()
	return nil
}

func (p *linearPolicy) Weights() []float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]float64(nil), p.weights...)
}

func newPolicy(kwargs map[string]any, rng *rand.Rand) (policy, error) {
	kind, _ := kwargs["policy"].(string)
	switch kind {
	case "random":
		size, ok := kwargs["action_size"].(int)
		if !ok || size <= 0 {
			return nil, fmt.Errorf("random policy: action_size missing")
		}
		scale, ok := kwargs["action_scale"].(float64)
		if !ok {
			scale = 1
		}
		return &randomPolicy{size: size, scale: scale, rng: rng}, nil
	case "linear":
		obsSize, _ := kwargs["observation_size"].(int)
		actSize, _ := kwargs["action_size"].(int)
		if obsSize <= 0 || actSize <= 0 {
			return nil, fmt.Errorf("linear policy: observation_size/action_size missing")
		}
		noise, _ := kwargs["noise"].(float64)
		p := &linearPolicy{obsSize: obsSize, actSize: actSize, noise: noise, rng: rng}
		weights, _ := kwargs["weights"].([]float64)
		if weights == nil {
			weights = make([]float64, obsSize*actSize)
		}
		if err := p.SetWeights(weights); err != nil {
			return nil, fmt.Errorf("linear policy: %w", err)
		}
		return p, nil
	case "":
		return nil, fmt.Errorf("algorithm args carry no policy kind")
	default:
		return nil, fmt.Errorf("unknown policy kind %q", kind)
	}
}

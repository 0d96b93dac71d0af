// Package rl declares the collaborators a sampler process is assembled from.
// The launcher only depends on these interfaces; concrete implementations are
// looked up by name in a Catalog built at startup.
package rl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/SindhuVenna/catalyst/internal/config"
	"github.com/SindhuVenna/catalyst/internal/coord"
	"github.com/SindhuVenna/catalyst/internal/runplan"
)

type Environment interface {
	// UpdateEnvironmentConfig returns the environment section with anything
	// the environment resolved itself, such as observation and action sizes.
	UpdateEnvironmentConfig(cfg config.Section) (config.Section, error)
	Reset() []float64
	Step(action []float64) (StepResult, error)
	Render(w io.Writer) error
}

type StepResult struct {
	Observation []float64
	Reward      float64
	Done        bool
}

type Algorithm interface {
	// PrepareForSampler derives sampler construction arguments from the full,
	// environment-adjusted config.
	PrepareForSampler(cfg config.Config) (map[string]any, error)
}

type Sampler interface {
	Run(ctx context.Context) error
}

type EnvironmentFactory func(cfg config.Section, rng *rand.Rand) (Environment, error)

type AlgorithmFactory func(cfg config.Section) (Algorithm, error)

type SamplerFactory func(opts SamplerOptions) (Sampler, error)

// SamplerOptions carries everything a sampler is built from. Coord is nil
// and Prefix empty when the coordination backend is disabled.
type SamplerOptions struct {
	Config        config.Section
	AlgorithmArgs map[string]any
	LogDir        string
	Coord         *coord.Client
	Prefix        string
	Env           Environment
	ID            int
	Mode          runplan.Mode
	Render        bool
	RenderOut     io.Writer
	Resume        string
	Check         bool
	Rand          *rand.Rand
	Logger        *slog.Logger
}

type Catalog struct {
	Algorithms   *Registry[AlgorithmFactory]
	Environments *Registry[EnvironmentFactory]
	Sampler      SamplerFactory
}

func NewCatalog(sampler SamplerFactory) Catalog {
	return Catalog{
		Algorithms:   NewRegistry[AlgorithmFactory]("algorithm"),
		Environments: NewRegistry[EnvironmentFactory]("environment"),
		Sampler:      sampler,
	}
}

// Validate checks that both names resolve, so a bad config is rejected in
// the launcher before any process is spawned.
func (c Catalog) Validate(algorithm, environment string) error {
	if c.Sampler == nil {
		return fmt.Errorf("catalog has no sampler factory")
	}
	if _, err := c.Algorithms.Lookup(algorithm); err != nil {
		return err
	}
	if _, err := c.Environments.Lookup(environment); err != nil {
		return err
	}
	return nil
}

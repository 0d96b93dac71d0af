package builtin

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SindhuVenna/catalyst/internal/config"
)

func TestPointMassReportsResolvedConfig(t *testing.T) {
	env, err := NewPointMass(config.Section{"dims": 3, "target": []any{1.0, 2, -1.0}}, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)

	in := config.Section{"dims": 3, "target": []any{1.0, 2, -1.0}, "extra": "kept"}
	out, err := env.UpdateEnvironmentConfig(in)
	require.NoError(t, err)
	require.Equal(t, 3, out.Int("observation_size", 0))
	require.Equal(t, 3, out.Int("action_size", 0))
	require.Equal(t, 200, out.Int("max_steps", 0))
	require.Equal(t, "kept", out.String("extra", ""))
	require.Equal(t, []float64{1, 2, -1}, out["target"])
	require.False(t, in.Has("observation_size"), "input section must not be mutated")
}

func TestPointMassRejectsBadConfig(t *testing.T) {
	_, err := NewPointMass(config.Section{"dims": 0}, nil)
	require.Error(t, err)
	_, err = NewPointMass(config.Section{"dims": 2, "target": []any{1.0}}, nil)
	require.Error(t, err)
	_, err = NewPointMass(config.Section{"target": "origin"}, nil)
	require.Error(t, err)
}

func TestPointMassDeterministicForSeed(t *testing.T) {
	run := func(seed uint64) []float64 {
		env, err := NewPointMass(config.Section{"dims": 2}, rand.New(rand.NewPCG(seed, seed)))
		require.NoError(t, err)
		return env.Reset()
	}
	require.Equal(t, run(11), run(11))
	require.NotEqual(t, run(11), run(12))
}

func TestPointMassStepMovesTowardTarget(t *testing.T) {
	env, err := NewPointMass(config.Section{"dims": 1, "max_steps": 3, "max_speed": 0.5, "start_radius": 1}, rand.New(rand.NewPCG(3, 3)))
	require.NoError(t, err)
	obs := env.Reset()

	action := []float64{-obs[0]}
	res, err := env.Step(action)
	require.NoError(t, err)
	require.Less(t, -res.Reward, abs(obs[0])+1e-9)

	_, err = env.Step([]float64{0, 0})
	require.Error(t, err)

	for i := 0; i < 3 && !res.Done; i++ {
		res, err = env.Step([]float64{0})
		require.NoError(t, err)
	}
	require.True(t, res.Done, "episode must end at max_steps")

	var buf bytes.Buffer
	require.NoError(t, env.Render(&buf))
	require.Contains(t, buf.String(), "pos=[")
}

func TestAlgorithmsNeedEnvironmentSizes(t *testing.T) {
	random, err := NewRandom(config.Section{})
	require.NoError(t, err)
	_, err = random.PrepareForSampler(config.Config{})
	require.Error(t, err)

	linear, err := NewLinear(config.Section{"gain": 2.0, "noise": 0.3})
	require.NoError(t, err)
	kwargs, err := linear.PrepareForSampler(config.Config{Environment: config.Section{"observation_size": 2, "action_size": 2}})
	require.NoError(t, err)
	require.Equal(t, "linear", kwargs["policy"])
	require.Equal(t, []float64{-2, 0, 0, -2}, kwargs["weights"])
	require.Equal(t, 0.3, kwargs["noise"])

	_, err = NewLinear(config.Section{"noise": -1})
	require.Error(t, err)
}

func TestCatalogRegistersBuiltins(t *testing.T) {
	catalog := Catalog()
	require.NoError(t, catalog.Validate("linear", "point_mass"))
	require.NoError(t, catalog.Validate("random", "point_mass"))
	require.Equal(t, []string{"linear", "random"}, catalog.Algorithms.Names())
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Package builtin registers the reference environment and algorithms that
// ship with the launcher.
package builtin

import (
	"github.com/SindhuVenna/catalyst/internal/rl"
	"github.com/SindhuVenna/catalyst/internal/sampler"
)

func Catalog() rl.Catalog {
	catalog := rl.NewCatalog(sampler.New)
	catalog.Environments.MustRegister("point_mass", NewPointMass)
	catalog.Algorithms.MustRegister("random", NewRandom)
	catalog.Algorithms.MustRegister("linear", NewLinear)
	return catalog
}

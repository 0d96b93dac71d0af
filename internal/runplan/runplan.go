// Package runplan resolves role counts into the ordered list of sampler
// workers launched for one invocation.
//
// Identity rules:
//   - Roles are laid out check (at most one), visualize, infer, train.
//   - Ids are contiguous from 0 in that order; the check worker takes id 0 when present.
//   - Each worker seeds from baseSeed + id.
package runplan

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleCheck     Role = "check"
	RoleVisualize Role = "visualize"
	RoleInfer     Role = "infer"
	RoleTrain     Role = "train"
)

var roleOrder = []Role{RoleCheck, RoleVisualize, RoleInfer, RoleTrain}

func (r Role) String() string { return string(r) }

// Mode reports the sampling mode the role runs in. Visualize workers collect
// in training mode with rendering turned on.
func (r Role) Mode() Mode {
	switch r {
	case RoleInfer, RoleCheck:
		return ModeInfer
	default:
		return ModeTrain
	}
}

func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range roleOrder {
		if role == known {
			return role, nil
		}
	}
	return "", fmt.Errorf("unknown worker role: %q", raw)
}

type Mode string

const (
	ModeInfer Mode = "infer"
	ModeTrain Mode = "train"
)

func (m Mode) String() string { return string(m) }

type WorkerSpec struct {
	Role Role  `json:"role"`
	ID   int   `json:"id"`
	Seed int64 `json:"seed"`
}

func (s WorkerSpec) Mode() Mode { return s.Role.Mode() }

func (s WorkerSpec) Render() bool { return s.Role == RoleVisualize }

// Name is the stable label used for log directories and log attributes.
func (s WorkerSpec) Name() string {
	return fmt.Sprintf("%s-%d", s.Role, s.ID)
}

func DeriveSeed(baseSeed int64, id int) int64 {
	return baseSeed + int64(id)
}

type Counts struct {
	Check bool
	Vis   int
	Infer int
	Train int
}

// MaxWorkers bounds the size of one plan.
const MaxWorkers = 1 << 16

type InvalidPlanError struct {
	Field string
	Value int
	// Limit is set when Value is over MaxWorkers rather than negative.
	Limit int
}

func (e *InvalidPlanError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("invalid run plan: %s count %d exceeds %d workers", e.Field, e.Value, e.Limit)
	}
	return fmt.Sprintf("invalid run plan: %s count must be >= 0, got %d", e.Field, e.Value)
}

type RunPlan struct {
	baseSeed int64
	specs    []WorkerSpec
}

// Resolve lays out the workers for one run. It performs no I/O.
func Resolve(baseSeed int64, counts Counts) (RunPlan, error) {
	for _, c := range []struct {
		field string
		value int
	}{
		{"vis", counts.Vis},
		{"infer", counts.Infer},
		{"train", counts.Train},
	} {
		if c.value < 0 {
			return RunPlan{}, &InvalidPlanError{Field: c.field, Value: c.value}
		}
		if c.value > MaxWorkers {
			return RunPlan{}, &InvalidPlanError{Field: c.field, Value: c.value, Limit: MaxWorkers}
		}
	}

	size := counts.Vis + counts.Infer + counts.Train
	if counts.Check {
		size++
	}
	if size > MaxWorkers {
		return RunPlan{}, &InvalidPlanError{Field: "total", Value: size, Limit: MaxWorkers}
	}
	specs := make([]WorkerSpec, 0, size)
	nextID := 0
	appendRole := func(role Role, n int) {
		for i := 0; i < n; i++ {
			specs = append(specs, WorkerSpec{Role: role, ID: nextID, Seed: DeriveSeed(baseSeed, nextID)})
			nextID++
		}
	}
	if counts.Check {
		appendRole(RoleCheck, 1)
	}
	appendRole(RoleVisualize, counts.Vis)
	appendRole(RoleInfer, counts.Infer)
	appendRole(RoleTrain, counts.Train)
	return RunPlan{baseSeed: baseSeed, specs: specs}, nil
}

func (p RunPlan) BaseSeed() int64 { return p.baseSeed }

func (p RunPlan) Len() int { return len(p.specs) }

func (p RunPlan) Specs() []WorkerSpec {
	return append([]WorkerSpec(nil), p.specs...)
}

// Check returns the smoke-test worker when the plan has one.
func (p RunPlan) Check() (WorkerSpec, bool) {
	if len(p.specs) > 0 && p.specs[0].Role == RoleCheck {
		return p.specs[0], true
	}
	return WorkerSpec{}, false
}

// Fleet returns every worker except the check worker, in launch order.
func (p RunPlan) Fleet() []WorkerSpec {
	if _, ok := p.Check(); ok {
		return append([]WorkerSpec(nil), p.specs[1:]...)
	}
	return p.Specs()
}

func (p RunPlan) Summary() map[Role]int {
	out := make(map[Role]int, len(roleOrder))
	for _, spec := range p.specs {
		out[spec.Role]++
	}
	return out
}

// Roles returns the role layout order.
func Roles() []Role {
	return append([]Role(nil), roleOrder...)
}

package runplan

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveScenarioWithoutCheck(t *testing.T) {
	t.Parallel()

	plan, err := Resolve(10, Counts{Vis: 2, Infer: 1, Train: 3})
	require.NoError(t, err)

	want := []WorkerSpec{
		{Role: RoleVisualize, ID: 0, Seed: 10},
		{Role: RoleVisualize, ID: 1, Seed: 11},
		{Role: RoleInfer, ID: 2, Seed: 12},
		{Role: RoleTrain, ID: 3, Seed: 13},
		{Role: RoleTrain, ID: 4, Seed: 14},
		{Role: RoleTrain, ID: 5, Seed: 15},
	}
	require.Equal(t, want, plan.Specs())
	_, hasCheck := plan.Check()
	require.False(t, hasCheck)
	require.Equal(t, want, plan.Fleet())
}

func TestResolveCheckTakesFirstID(t *testing.T) {
	t.Parallel()

	plan, err := Resolve(42, Counts{Check: true, Vis: 1, Train: 2})
	require.NoError(t, err)

	check, ok := plan.Check()
	require.True(t, ok)
	require.Equal(t, WorkerSpec{Role: RoleCheck, ID: 0, Seed: 42}, check)

	fleet := plan.Fleet()
	require.Len(t, fleet, 3)
	require.Equal(t, RoleVisualize, fleet[0].Role)
	require.Equal(t, 1, fleet[0].ID)
	require.Equal(t, 3, fleet[2].ID)
	require.Equal(t, int64(45), fleet[2].Seed)
}

func TestResolveSizeAndContiguousIDs(t *testing.T) {
	t.Parallel()

	for _, check := range []bool{false, true} {
		for vis := 0; vis <= 3; vis++ {
			for infer := 0; infer <= 3; infer++ {
				for train := 0; train <= 4; train++ {
					counts := Counts{Check: check, Vis: vis, Infer: infer, Train: train}
					plan, err := Resolve(7, counts)
					if err != nil {
						t.Fatalf("Resolve(%+v): %v", counts, err)
					}
					size := vis + infer + train
					if check {
						size++
					}
					if plan.Len() != size {
						t.Fatalf("Resolve(%+v): size %d want %d", counts, plan.Len(), size)
					}
					lastRank := -1
					seeds := map[int64]struct{}{}
					for i, spec := range plan.Specs() {
						if spec.ID != i {
							t.Fatalf("Resolve(%+v): id %d at position %d", counts, spec.ID, i)
						}
						if spec.Seed != DeriveSeed(7, spec.ID) {
							t.Fatalf("Resolve(%+v): seed %d for id %d", counts, spec.Seed, spec.ID)
						}
						if _, dup := seeds[spec.Seed]; dup {
							t.Fatalf("Resolve(%+v): duplicate seed %d", counts, spec.Seed)
						}
						seeds[spec.Seed] = struct{}{}
						rank := roleRank(spec.Role)
						if rank < lastRank {
							t.Fatalf("Resolve(%+v): role %s out of order", counts, spec.Role)
						}
						lastRank = rank
					}
					summary := plan.Summary()
					if summary[RoleTrain] != train || summary[RoleInfer] != infer || summary[RoleVisualize] != vis {
						t.Fatalf("Resolve(%+v): summary mismatch %v", counts, summary)
					}
				}
			}
		}
	}
}

func TestResolveRejectsNegativeCounts(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		counts Counts
		field  string
	}{
		{"vis", Counts{Vis: -1, Train: 2}, "vis"},
		{"infer", Counts{Infer: -3}, "infer"},
		{"train", Counts{Check: true, Train: -1}, "train"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			plan, err := Resolve(1, tc.counts)
			var planErr *InvalidPlanError
			require.True(t, errors.As(err, &planErr), "expected InvalidPlanError, got %v", err)
			require.Equal(t, tc.field, planErr.Field)
			require.Zero(t, plan.Len())
		})
	}
}

func TestResolveRejectsOversizedPlans(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		counts Counts
		field  string
	}{
		{"max int vis", Counts{Vis: math.MaxInt, Train: 1}, "vis"},
		{"max int train", Counts{Check: true, Train: math.MaxInt}, "train"},
		{"sum over limit", Counts{Check: true, Vis: MaxWorkers / 2, Train: MaxWorkers / 2}, "total"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var plan RunPlan
			var err error
			require.NotPanics(t, func() { plan, err = Resolve(0, tc.counts) })
			var planErr *InvalidPlanError
			require.True(t, errors.As(err, &planErr), "expected InvalidPlanError, got %v", err)
			require.Equal(t, tc.field, planErr.Field)
			require.Equal(t, MaxWorkers, planErr.Limit)
			require.Contains(t, err.Error(), "exceeds")
			require.Zero(t, plan.Len())
		})
	}

	plan, err := Resolve(0, Counts{Train: MaxWorkers})
	require.NoError(t, err)
	require.Equal(t, MaxWorkers, plan.Len())
}

func TestRoleModeMapping(t *testing.T) {
	t.Parallel()

	require.Equal(t, ModeInfer, RoleCheck.Mode())
	require.Equal(t, ModeInfer, RoleInfer.Mode())
	require.Equal(t, ModeTrain, RoleVisualize.Mode())
	require.Equal(t, ModeTrain, RoleTrain.Mode())

	vis := WorkerSpec{Role: RoleVisualize, ID: 2}
	require.True(t, vis.Render())
	require.Equal(t, ModeTrain, vis.Mode())
	require.Equal(t, "visualize-2", vis.Name())
	require.False(t, WorkerSpec{Role: RoleTrain}.Render())
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	role, err := ParseRole(" Train ")
	require.NoError(t, err)
	require.Equal(t, RoleTrain, role)

	_, err = ParseRole("render")
	require.Error(t, err)
}

func TestEmptyPlan(t *testing.T) {
	t.Parallel()

	plan, err := Resolve(0, Counts{})
	require.NoError(t, err)
	require.Zero(t, plan.Len())
	require.Empty(t, plan.Fleet())
}

func roleRank(role Role) int {
	for i, r := range Roles() {
		if r == role {
			return i
		}
	}
	return -1
}

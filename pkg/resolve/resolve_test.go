// TEST TYPE: Unit Tests
// DEPENDENCIES: None
// PURPOSE: Verify load ordering, cycle reporting and conflict computation

package resolve

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pkg(id string, order int, deps ...string) types.Package {
	return types.Package{ID: id, LoadOrder: order, Dependencies: deps}
}

func deployed(id string, order int, dests ...string) types.Package {
	p := types.Package{ID: id, LoadOrder: order, Deployed: true}
	for _, d := range dests {
		p.Files = append(p.Files, types.FileMapping{Source: d, Destination: d})
	}
	return p
}

func TestResolve_Order(t *testing.T) {
	tests := []struct {
		name string
		pkgs []types.Package
		want []string
	}{
		{
			name: "load order ascending",
			pkgs: []types.Package{pkg("c", 3), pkg("a", 1), pkg("b", 2)},
			want: []string{"a", "b", "c"},
		},
		{
			name: "ties keep discovery order",
			pkgs: []types.Package{pkg("z", 1), pkg("y", 1), pkg("x", 0)},
			want: []string{"x", "z", "y"},
		},
		{
			name: "dependency moves package after it",
			pkgs: []types.Package{pkg("ui", 1, "core"), pkg("other", 2), pkg("core", 3), pkg("late", 4)},
			want: []string{"other", "core", "ui", "late"},
		},
		{
			name: "after the latest of several dependencies",
			pkgs: []types.Package{pkg("top", 0, "a", "b"), pkg("a", 1), pkg("mid", 2), pkg("b", 3), pkg("end", 4)},
			want: []string{"a", "mid", "b", "top", "end"},
		},
		{
			name: "unknown dependencies are ignored for ordering",
			pkgs: []types.Package{pkg("a", 1, "ghost"), pkg("b", 2)},
			want: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Resolve(tt.pkgs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Order)
		})
	}
}

func TestResolve_MissingDependencies(t *testing.T) {
	result, err := Resolve([]types.Package{pkg("a", 1, "ghost", "b"), pkg("b", 2)})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"a": {"ghost"}}, result.MissingDependencies)
}

func TestResolve_Cycle(t *testing.T) {
	pkgs := []types.Package{
		pkg("a", 1, "c"),
		pkg("b", 2, "a"),
		pkg("c", 3, "b"),
		pkg("downstream", 4, "a"),
		pkg("free", 5),
		pkg("x", 6, "y"),
		pkg("y", 7, "x"),
	}

	_, err := Resolve(pkgs)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCycleDetected))
	assert.Equal(t, []string{"a", "b", "c", "x", "y"}, errors.CyclePackages(err))
}

func TestResolve_DuplicateID(t *testing.T) {
	_, err := Resolve([]types.Package{pkg("a", 1), pkg("a", 2)})
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
}

// Randomised acyclic sets: every dependency edge must be respected.
func TestResolve_DependenciesRespected(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		n := 2 + rng.Intn(12)
		pkgs := make([]types.Package, n)
		for i := range pkgs {
			pkgs[i] = pkg(fmt.Sprintf("p%02d", i), rng.Intn(5))
			// Only depend on lower indexes, which keeps the graph acyclic
			for j := 0; j < i; j++ {
				if rng.Intn(4) == 0 {
					pkgs[i].Dependencies = append(pkgs[i].Dependencies, pkgs[j].ID)
				}
			}
		}
		rng.Shuffle(len(pkgs), func(i, j int) { pkgs[i], pkgs[j] = pkgs[j], pkgs[i] })

		result, err := Resolve(pkgs)
		require.NoError(t, err)
		require.Len(t, result.Order, n)

		for _, p := range pkgs {
			pos, ok := result.Position(p.ID)
			require.True(t, ok)
			for _, dep := range p.Dependencies {
				depPos, _ := result.Position(dep)
				assert.Less(t, depPos, pos, "round %d: %s must load after %s", round, p.ID, dep)
			}
		}
	}
}

func TestResolve_Conflicts(t *testing.T) {
	staged := deployed("staged", 9, "Data/shared.txt")
	staged.Deployed = false
	standalone := deployed("tool", 10, "Data/shared.txt")
	standalone.Standalone = true

	pkgs := []types.Package{
		deployed("b", 2, "Data/shared.txt", "Data/b-only.txt"),
		deployed("a", 1, "Data/shared.txt", "Data/a-only.txt"),
		deployed("c", 3, "Data/b-only.txt"),
		staged,
		standalone,
	}

	result, err := Resolve(pkgs)
	require.NoError(t, err)

	assert.True(t, result.HasConflict("a"))
	assert.True(t, result.HasConflict("b"))
	assert.False(t, result.HasConflict("c"))
	assert.False(t, result.HasConflict("staged"))
	assert.False(t, result.HasConflict("tool"))

	assert.Equal(t, []string{"Data/shared.txt"}, result.Status["a"].LosingPaths)
	assert.Equal(t, []string{"Data/b-only.txt"}, result.Status["b"].LosingPaths)
	assert.Equal(t, []string{"Data/shared.txt"}, result.Status["b"].WinningPaths)

	assert.Equal(t, []Conflict{
		{Path: "Data/b-only.txt", Winner: "c", Losers: []string{"b"}},
		{Path: "Data/shared.txt", Winner: "b", Losers: []string{"a"}},
	}, result.Conflicts)
}

func TestResolve_ConflictFollowsOrder(t *testing.T) {
	pkgs := []types.Package{deployed("a", 1, "P"), deployed("b", 2, "P")}

	result, err := Resolve(pkgs)
	require.NoError(t, err)
	assert.True(t, result.HasConflict("a"))
	assert.False(t, result.HasConflict("b"))

	pkgs[0].LoadOrder = 3
	result, err = Resolve(pkgs)
	require.NoError(t, err)
	assert.False(t, result.HasConflict("a"))
	assert.True(t, result.HasConflict("b"))
}

func TestOwnersAndClaimants(t *testing.T) {
	staged := deployed("staged", 5, "P")
	staged.Deployed = false
	tool := deployed("tool", 4, "bin/tool.exe")
	tool.Standalone = true

	pkgs := []types.Package{deployed("b", 2, "P", "Q"), deployed("a", 1, "P"), staged, tool}
	result, err := Resolve(pkgs)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"P":            "b",
		"Q":            "b",
		"bin/tool.exe": "tool",
	}, Owners(result, pkgs))
	assert.Equal(t, []string{"a", "b"}, Claimants(result, pkgs, "P"))
}

func TestSorted(t *testing.T) {
	pkgs := []types.Package{pkg("b", 2), pkg("a", 1)}
	result, err := Resolve(pkgs)
	require.NoError(t, err)

	sorted := result.Sorted(append(pkgs, pkg("unknown", 0)))
	require.Len(t, sorted, 2)
	assert.Equal(t, "a", sorted[0].ID)
	assert.Equal(t, "b", sorted[1].ID)
}

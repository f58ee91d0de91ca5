package resolve

import (
	"container/heap"
	"sort"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/logging"
	"github.com/arthur-debert/modkeeper/pkg/types"
)

// Status is the conflict status of one package
type Status struct {
	HasConflict bool
	// LosingPaths are destinations a later package overrides
	LosingPaths []string
	// WinningPaths are contested destinations this package provides
	WinningPaths []string
}

// Conflict describes one destination claimed by several deployed packages
type Conflict struct {
	Path   string
	Winner string
	// Losers in load order
	Losers []string
}

// Result is the outcome of Resolve
type Result struct {
	// Order lists every package id, first loaded first
	Order     []string
	Status    map[string]Status
	Conflicts []Conflict
	// MissingDependencies maps a package to dependencies that name no
	// known package
	MissingDependencies map[string][]string

	position map[string]int
}

// Position returns the index of id in Order
func (r *Result) Position(id string) (int, bool) {
	pos, ok := r.position[id]
	return pos, ok
}

// HasConflict reports whether id loses at least one file
func (r *Result) HasConflict(id string) bool {
	return r.Status[id].HasConflict
}

// Sorted returns pkgs reordered to match Order. Packages unknown to the
// result are dropped.
func (r *Result) Sorted(pkgs []types.Package) []types.Package {
	out := make([]types.Package, 0, len(pkgs))
	for _, p := range pkgs {
		if _, ok := r.position[p.ID]; ok {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return r.position[out[i].ID] < r.position[out[j].ID]
	})
	return out
}

// Resolve orders pkgs and computes conflicts. A dependency cycle is
// returned as a CYCLE_DETECTED error naming every package on a cycle.
func Resolve(pkgs []types.Package) (*Result, error) {
	logger := logging.GetLogger("resolve")

	index := make(map[string]int, len(pkgs))
	for i, p := range pkgs {
		if _, dup := index[p.ID]; dup {
			return nil, errors.Newf(errors.ErrInvalidInput, "duplicate package id %s", p.ID).
				WithDetail(errors.DetailPackage, p.ID)
		}
		index[p.ID] = i
	}

	base := baseOrder(pkgs)
	basePos := make(map[string]int, len(base))
	for i, p := range base {
		basePos[p.ID] = i
	}

	missing := make(map[string][]string)
	deps := make(map[string][]string, len(pkgs))
	dependents := make(map[string][]string, len(pkgs))
	for _, p := range base {
		for _, dep := range p.Dependencies {
			if _, ok := index[dep]; !ok {
				missing[p.ID] = append(missing[p.ID], dep)
				continue
			}
			deps[p.ID] = append(deps[p.ID], dep)
			dependents[dep] = append(dependents[dep], p.ID)
		}
	}

	order, err := kahn(base, basePos, deps, dependents)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Order:               order,
		Status:              make(map[string]Status, len(pkgs)),
		MissingDependencies: missing,
		position:            make(map[string]int, len(order)),
	}
	for i, id := range order {
		result.position[id] = i
		result.Status[id] = Status{}
	}
	computeConflicts(result, pkgs)

	logger.Debug().
		Strs("order", order).
		Int("conflicts", len(result.Conflicts)).
		Msg("Resolved packages")
	return result, nil
}

// baseOrder sorts by LoadOrder, keeping discovery order for ties
func baseOrder(pkgs []types.Package) []types.Package {
	base := append([]types.Package(nil), pkgs...)
	sort.SliceStable(base, func(i, j int) bool {
		return base[i].LoadOrder < base[j].LoadOrder
	})
	return base
}

// positionHeap is a min-heap of base positions
type positionHeap []int

func (h positionHeap) Len() int            { return len(h) }
func (h positionHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h positionHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *positionHeap) Push(x interface{}) { *h = append(*h, x.(int)) }
func (h *positionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// kahn emits, at every step, the ready package with the smallest base
// position.
func kahn(base []types.Package, basePos map[string]int, deps, dependents map[string][]string) ([]string, error) {
	indegree := make(map[string]int, len(base))
	ready := &positionHeap{}
	for i, p := range base {
		indegree[p.ID] = len(deps[p.ID])
		if indegree[p.ID] == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]string, 0, len(base))
	for ready.Len() > 0 {
		id := base[heap.Pop(ready).(int)].ID
		order = append(order, id)
		for _, dependent := range dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				heap.Push(ready, basePos[dependent])
			}
		}
	}

	if len(order) < len(base) {
		return nil, errors.NewCycleError(cycleMembers(base, deps))
	}
	return order, nil
}

// cycleMembers returns every package that lies on a dependency cycle, using
// Tarjan's strongly connected components. Packages that only depend on a
// cycle are not members.
func cycleMembers(base []types.Package, deps map[string][]string) []string {
	var (
		counter int
		stack   []string
		members []string
		idx     = make(map[string]int, len(base))
		low     = make(map[string]int, len(base))
		onStack = make(map[string]bool, len(base))
	)

	var strongConnect func(id string)
	strongConnect = func(id string) {
		idx[id] = counter
		low[id] = counter
		counter++
		stack = append(stack, id)
		onStack[id] = true

		for _, dep := range deps[id] {
			if _, seen := idx[dep]; !seen {
				strongConnect(dep)
				if low[dep] < low[id] {
					low[id] = low[dep]
				}
			} else if onStack[dep] && idx[dep] < low[id] {
				low[id] = idx[dep]
			}
		}

		if low[id] == idx[id] {
			var component []string
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top] = false
				component = append(component, top)
				if top == id {
					break
				}
			}
			if len(component) > 1 {
				members = append(members, component...)
			}
		}
	}

	for _, p := range base {
		if _, seen := idx[p.ID]; !seen {
			strongConnect(p.ID)
		}
	}
	sort.Strings(members)
	return members
}

func computeConflicts(result *Result, pkgs []types.Package) {
	claims := make(map[string][]string)
	for _, p := range result.Sorted(pkgs) {
		if !p.Deployed || p.Standalone {
			continue
		}
		for _, dest := range p.Destinations() {
			claims[dest] = append(claims[dest], p.ID)
		}
	}

	paths := make([]string, 0, len(claims))
	for dest, owners := range claims {
		if len(owners) > 1 {
			paths = append(paths, dest)
		}
	}
	sort.Strings(paths)

	for _, dest := range paths {
		owners := claims[dest]
		winner := owners[len(owners)-1]
		losers := append([]string(nil), owners[:len(owners)-1]...)
		result.Conflicts = append(result.Conflicts, Conflict{Path: dest, Winner: winner, Losers: losers})

		st := result.Status[winner]
		st.WinningPaths = append(st.WinningPaths, dest)
		result.Status[winner] = st
		for _, loser := range losers {
			st := result.Status[loser]
			st.HasConflict = true
			st.LosingPaths = append(st.LosingPaths, dest)
			result.Status[loser] = st
		}
	}
}

// Owners derives which deployed package currently provides each
// destination: the last claimant in load order. Standalone packages own
// their binary like any other package.
func Owners(result *Result, pkgs []types.Package) map[string]string {
	owners := make(map[string]string)
	for _, p := range result.Sorted(pkgs) {
		if !p.Deployed {
			continue
		}
		for _, dest := range p.Destinations() {
			owners[dest] = p.ID
		}
	}
	return owners
}

// Claimants returns the deployed packages mapping dest, in load order
func Claimants(result *Result, pkgs []types.Package, dest string) []string {
	var ids []string
	for _, p := range result.Sorted(pkgs) {
		if !p.Deployed {
			continue
		}
		if _, ok := p.Mapping(dest); ok {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

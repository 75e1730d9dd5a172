package pose

import (
	"errors"
	"fmt"
	"sort"
)

// NoParent marks a root joint in a parent-index array.
const NoParent = -1

// ErrCyclicHierarchy is returned when a parent-index array contains a cycle.
var ErrCyclicHierarchy = errors.New("pose: cyclic joint hierarchy")

// Hierarchy is a validated parent-index array with a cached topological
// order. Parents may appear after their children in the array.
type Hierarchy struct {
	parents  []int
	order    []int
	children [][]int
	ordered  bool
}

// NewHierarchy validates parents and builds the hierarchy. Every entry must
// be NoParent or a valid index other than the joint itself, and the graph
// must be acyclic.
func NewHierarchy(parents []int) (*Hierarchy, error) {
	n := len(parents)
	h := &Hierarchy{
		parents:  make([]int, n),
		order:    make([]int, 0, n),
		children: make([][]int, n),
		ordered:  true,
	}
	copy(h.parents, parents)

	for i, p := range parents {
		if p == NoParent {
			continue
		}
		if p < 0 || p >= n {
			return nil, fmt.Errorf("joint %d: parent index %d out of range [0,%d)", i, p, n)
		}
		if p == i {
			return nil, fmt.Errorf("joint %d: %w (self parent)", i, ErrCyclicHierarchy)
		}
		if p > i {
			h.ordered = false
		}
		h.children[p] = append(h.children[p], i)
	}
	for _, c := range h.children {
		sort.Ints(c)
	}

	// Walk each unvisited joint up to the first visited ancestor, then emit
	// the chain root-first. Index order is preserved when parents already
	// precede children.
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]uint8, n)
	var chain []int
	for i := 0; i < n; i++ {
		if state[i] == done {
			continue
		}
		chain = chain[:0]
		for j := i; j != NoParent && state[j] != done; j = parents[j] {
			if state[j] == visiting {
				return nil, fmt.Errorf("joint %d: %w", j, ErrCyclicHierarchy)
			}
			state[j] = visiting
			chain = append(chain, j)
		}
		for k := len(chain) - 1; k >= 0; k-- {
			h.order = append(h.order, chain[k])
			state[chain[k]] = done
		}
	}
	return h, nil
}

// Len returns the number of joints.
func (h *Hierarchy) Len() int { return len(h.parents) }

// Parent returns the parent of joint i, or NoParent.
func (h *Hierarchy) Parent(i int) int { return h.parents[i] }

// Parents returns a copy of the parent-index array.
func (h *Hierarchy) Parents() []int {
	out := make([]int, len(h.parents))
	copy(out, h.parents)
	return out
}

// Order returns the joints in an order where every parent precedes its
// children. The returned slice must not be modified.
func (h *Hierarchy) Order() []int { return h.order }

// InIndexOrder reports whether every parent index is lower than its child's.
func (h *Hierarchy) InIndexOrder() bool { return h.ordered }

// Children returns the direct children of joint i in index order. The
// returned slice must not be modified.
func (h *Hierarchy) Children(i int) []int { return h.children[i] }

// Roots returns every joint without a parent.
func (h *Hierarchy) Roots() []int {
	var roots []int
	for i, p := range h.parents {
		if p == NoParent {
			roots = append(roots, i)
		}
	}
	return roots
}

// Descendants returns every joint below i, depth first, excluding i.
func (h *Hierarchy) Descendants(i int) []int {
	var out []int
	var walk func(int)
	walk = func(j int) {
		for _, c := range h.children[j] {
			out = append(out, c)
			walk(c)
		}
	}
	walk(i)
	return out
}

// IsAncestor reports whether a is a strict ancestor of j.
func (h *Hierarchy) IsAncestor(a, j int) bool {
	for p := h.parents[j]; p != NoParent; p = h.parents[p] {
		if p == a {
			return true
		}
	}
	return false
}

// Depth returns the number of ancestors of joint i.
func (h *Hierarchy) Depth(i int) int {
	d := 0
	for p := h.parents[i]; p != NoParent; p = h.parents[p] {
		d++
	}
	return d
}

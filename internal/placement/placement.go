// Package placement implements the Placement Engine: given a block's
// resource requirements, normalizes per-node fitness for each resource,
// sums across resources, and assigns the block to the highest-scoring
// node with a lexicographic tie-break. Grounded on the teacher's
// pkg/scheduler/scheduler.go for the ticker/metrics-timer loop shape
// (the selection algorithm itself is new, per SPEC_FULL.md §4.3 — the
// teacher's round-robin/least-loaded scoring has no fitness concept to
// generalize from).
package placement

import (
	"fmt"
	"sort"

	"github.com/loomhq/loom/internal/cluster"
	"github.com/loomhq/loom/internal/store"
)

// Candidate is the minimal view of a block the Engine needs: enough to
// place it without depending on the block package's richer Spec type.
type Candidate struct {
	Name      string
	Resources []string // resource Describe() strings
	Optional  bool
}

// Engine computes owner assignments.
type Engine struct {
	state *store.State
	nodes []string // all configured node names, for iterating fitness
}

// New constructs an Engine over the given replicated state and static
// node list.
func New(state *store.State, nodes []string) *Engine {
	sorted := append([]string(nil), nodes...)
	sort.Strings(sorted)
	return &Engine{state: state, nodes: sorted}
}

// Place assigns c to a node, per §4.3's algorithm. It returns the chosen
// node name, or ("", cluster.ErrUnassignable) if no node qualifies —
// callers decide fatality from c.Optional via cluster.IsFatal.
func (e *Engine) Place(c Candidate) (string, error) {
	if e.state.Owner(c.Name) != "" {
		// Repeated calls when already owned are no-ops, per §8's
		// idempotence property.
		return e.state.Owner(c.Name), nil
	}

	if len(c.Resources) == 0 {
		// Every node scores 1.0; tie-break picks the lexicographically
		// smallest name.
		if len(e.nodes) == 0 {
			return "", fmt.Errorf("placement: no configured nodes for block %q: %w", c.Name, cluster.ErrUnassignable)
		}
		chosen := e.nodes[0]
		if err := e.state.SetOwner(c.Name, chosen); err != nil {
			return "", fmt.Errorf("placement: set owner for %q: %w", c.Name, err)
		}
		return chosen, nil
	}

	aggregate := make(map[string]float64, len(e.nodes))
	disqualified := make(map[string]bool, len(e.nodes))
	for _, n := range e.nodes {
		aggregate[n] = 0
	}

	for _, describe := range c.Resources {
		byNode := e.state.FitnessByNode(describe, e.nodes)

		min, max := 0.0, 0.0
		first := true
		for n := range byNode {
			if disqualified[n] {
				continue
			}
			v := byNode[n]
			if !v.Available {
				disqualified[n] = true
				continue
			}
			if first {
				min, max = v.Value, v.Value
				first = false
				continue
			}
			if v.Value < min {
				min = v.Value
			}
			if v.Value > max {
				max = v.Value
			}
		}

		for _, n := range e.nodes {
			if disqualified[n] {
				continue
			}
			v, ok := byNode[n]
			if !ok || !v.Available {
				disqualified[n] = true
				continue
			}
			var score float64
			if max > min {
				score = (v.Value - min) / (max - min)
			} else {
				score = 1.0
			}
			aggregate[n] += score
		}
	}

	var candidates []string
	for _, n := range e.nodes {
		if !disqualified[n] {
			candidates = append(candidates, n)
		}
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("placement: no candidate node for block %q: %w", c.Name, cluster.ErrUnassignable)
	}

	// candidates is iterated in lexicographic order so an equal score
	// never displaces an earlier (smaller-named) node: the strict ">"
	// below is the tie-break.
	sort.Strings(candidates)
	best := candidates[0]
	for _, n := range candidates[1:] {
		if aggregate[n] > aggregate[best] {
			best = n
		}
	}

	if err := e.state.SetOwner(c.Name, best); err != nil {
		return "", fmt.Errorf("placement: set owner for %q: %w", c.Name, err)
	}
	return best, nil
}

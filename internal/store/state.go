package store

import (
	"encoding/json"
)

// FitnessValue is the store's own representation of a resource probe
// result, decoupled from internal/resource.Fitness so this package does
// not import the resource package (the Resource Evaluator, which
// produces resource.Fitness values, is the one that imports store, not
// the other way around).
type FitnessValue struct {
	Value     float64 `json:"value"`
	Available bool    `json:"available"`
}

// State is a typed view over a Store for the two replicated maps the
// core needs: owners and fitness. It mirrors the teacher's
// manager.Manager CRUD-via-Apply methods, narrowed to this core's single
// logical map.
type State struct {
	store Store
}

// NewState wraps a Store.
func NewState(s Store) *State {
	return &State{store: s}
}

// Ready reports whether the underlying store is ready for writes.
func (s *State) Ready() bool { return s.store.Ready() }

// IsLeader reports whether this node is currently the Raft leader.
func (s *State) IsLeader() bool { return s.store.IsLeader() }

// Owner returns the node currently owning block, or "" if unassigned.
func (s *State) Owner(block string) string {
	raw := s.store.Get(OwnerKey(block), nil)
	if raw == nil {
		return ""
	}
	var owner string
	if err := json.Unmarshal(raw, &owner); err != nil {
		return ""
	}
	return owner
}

// SetOwner assigns block to node. node == "" clears ownership.
func (s *State) SetOwner(block, node string) error {
	raw, err := json.Marshal(node)
	if err != nil {
		return err
	}
	return s.store.Set(OwnerKey(block), raw)
}

// Owners returns every non-empty owner entry currently known.
func (s *State) Owners() map[string]string {
	out := make(map[string]string)
	for k, v := range s.store.Snapshot() {
		block, ok := ParseOwnerKey(k)
		if !ok {
			continue
		}
		var owner string
		if json.Unmarshal(v, &owner) == nil && owner != "" {
			out[block] = owner
		}
	}
	return out
}

// SetFitness records the fitness of a resource probe on a node.
func (s *State) SetFitness(describe, node string, f FitnessValue) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return s.store.Set(FitnessKey(describe, node), raw)
}

// Fitness returns the recorded fitness of a resource probe on a node,
// and whether an entry exists at all (per §3's invariant: an entry
// exists only after that node has probed).
func (s *State) Fitness(describe, node string) (FitnessValue, bool) {
	raw := s.store.Get(FitnessKey(describe, node), nil)
	if raw == nil {
		return FitnessValue{}, false
	}
	var v FitnessValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return FitnessValue{}, false
	}
	return v, true
}

// FitnessByNode returns every node's fitness for a given resource
// describe() string, keyed by node name, restricted to nodes present in
// knownNodes (so a value returned by Snapshot for a node that has since
// left configuration is ignored).
func (s *State) FitnessByNode(describe string, knownNodes []string) map[string]FitnessValue {
	out := make(map[string]FitnessValue, len(knownNodes))
	for _, n := range knownNodes {
		if f, ok := s.Fitness(describe, n); ok {
			out[n] = f
		}
	}
	return out
}

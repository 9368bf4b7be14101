package block

import "sync"

// LiveRegistry tracks the block Instances currently running on this
// node, so the Event Dispatcher can look up local handlers without the
// block package depending on the dispatch package.
type LiveRegistry struct {
	mu    sync.RWMutex
	specs map[string]*Spec
	insts map[string]Instance
}

// NewLiveRegistry returns an empty registry.
func NewLiveRegistry() *LiveRegistry {
	return &LiveRegistry{specs: make(map[string]*Spec), insts: make(map[string]Instance)}
}

// Register records a running instance and its spec.
func (r *LiveRegistry) Register(spec *Spec, inst Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Name] = spec
	r.insts[spec.Name] = inst
}

// Unregister removes a block from the live set.
func (r *LiveRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.specs, name)
	delete(r.insts, name)
}

// Running reports whether name is currently registered as live.
func (r *LiveRegistry) Running(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.insts[name]
	return ok
}

// Each calls fn for every currently live (spec, instance) pair.
func (r *LiveRegistry) Each(fn func(spec *Spec, inst Instance)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, spec := range r.specs {
		fn(spec, r.insts[name])
	}
}

// Package block implements BlockSpec, the block-type registry, and the
// Block Supervisor: the per-node reconciliation loop that starts, runs,
// and re-places blocks according to the owners map in the replicated
// store. Grounded on the teacher's pkg/reconciler.go for the ticker/
// mutex/logger loop shape and pkg/worker/health_monitor.go for the
// per-block cancellation-token bookkeeping, and on
// original_source/idiotic/block.py for the run_while_ok contract itself.
package block

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loomhq/loom/internal/resource"
)

// Handler processes data delivered to one input port.
type Handler func(data json.RawMessage)

// Emit sends data out of a block on the named output port. Per §9's
// redesign note, dispatch to downstream blocks happens through the
// Event Dispatcher, not directly; Emit hands the event to whatever
// function the supervisor wired in (ultimately dispatch.Dispatcher.Enqueue).
type Emit func(port string, data json.RawMessage)

// Instance is a running block. Blocks register their input handlers at
// construction (a static map, per §9's "abstracting dynamic dispatch"
// note) rather than being looked up by reflection.
type Instance interface {
	// Run executes the block's long-running side effects. It returns
	// when there is nothing more to do this pass, or when ctx is
	// cancelled; the caller (run_while_ok) re-invokes it in a loop.
	Run(ctx context.Context, emit Emit) error
	// Handlers returns the port-name -> Handler map this block exposes
	// for inbound events.
	Handlers() map[string]Handler
}

// Factory builds an Instance from a Spec.
type Factory func(spec *Spec) (Instance, error)

// Spec is a BlockSpec: a block's static declaration from configuration.
type Spec struct {
	Name string
	Type string

	// Inputs maps a local input-port name to the wiring ("block_name" or
	// "block_name.port") it's fed from.
	Inputs map[string]string

	// InputTo lists downstream "block_name.port" targets this block's
	// default output pushes to; resolved into the target's Inputs map at
	// startup (see dispatch package's wiring validation).
	InputTo []string

	// Resources this block requires to run.
	Resources []resource.Spec

	// Optional marks that unassignability should be logged, not fatal.
	Optional bool

	// Params holds the block type's own typed configuration.
	Params map[string]interface{}
}

// Registry maps a block "type" tag to the Factory that builds it.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a Registry pre-populated with the built-in block
// types named in SPEC_FULL.md §1: constant, logger, passthrough.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("constant", newConstantBlock)
	r.Register("logger", newLoggerBlock)
	r.Register("passthrough", newPassthroughBlock)
	return r
}

// Register adds or replaces the Factory for a block type tag.
func (r *Registry) Register(kind string, f Factory) {
	r.factories[kind] = f
}

// Build constructs an Instance for spec.
func (r *Registry) Build(spec *Spec) (Instance, error) {
	factory, ok := r.factories[spec.Type]
	if !ok {
		return nil, fmt.Errorf("block %q: unknown type %q", spec.Name, spec.Type)
	}
	return factory(spec)
}

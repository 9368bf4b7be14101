package block

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/loomhq/loom/internal/cluster"
	"github.com/loomhq/loom/internal/logging"
	"github.com/loomhq/loom/internal/placement"
	"github.com/loomhq/loom/internal/store"
	"github.com/loomhq/loom/internal/telemetry"
)

// OutQueue is the sink a running block's emitted events are handed to.
// Implemented by the Event Dispatcher's out_queue; kept as an interface
// here so this package does not depend on the dispatch package.
type OutQueue interface {
	Enqueue(source string, data json.RawMessage)
}

// Supervisor is the Block Supervisor: on each tick it reconciles the
// owners map with the set of locally running blocks, per SPEC_FULL.md
// §4.4. Grounded on the teacher's pkg/reconciler.go ticker/mutex/logger
// loop shape.
type Supervisor struct {
	self  string
	specs map[string]*Spec

	state    *store.State
	engine   *placement.Engine
	live     *LiveRegistry
	out      OutQueue
	registry *Registry
	onFatal  func(error)

	mu        sync.Mutex
	running   map[string]bool
	blacklist map[string]bool
	cancels   map[string]context.CancelFunc
}

// NewSupervisor constructs a Supervisor for the given node.
func NewSupervisor(self string, specs map[string]*Spec, state *store.State, engine *placement.Engine, live *LiveRegistry, registry *Registry, out OutQueue, onFatal func(error)) *Supervisor {
	return &Supervisor{
		self:      self,
		specs:     specs,
		state:     state,
		engine:    engine,
		live:      live,
		registry:  registry,
		out:       out,
		onFatal:   onFatal,
		running:   make(map[string]bool),
		blacklist: make(map[string]bool),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Run drives the supervision loop until ctx is cancelled, ticking every
// interval.
func (s *Supervisor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Tick performs one reconciliation pass over every configured block.
func (s *Supervisor) Tick(ctx context.Context) {
	timer := telemetry.NewTimer()
	for name, spec := range s.specs {
		s.reconcileOne(ctx, name, spec)
	}
	s.updateGauges()
	timer.ObserveDuration(telemetry.PlacementCycleDuration)
}

// updateGauges publishes the blocks running/unassigned/blacklisted
// gauges for this node, per SPEC_FULL.md §4.4's "Metrics (ambient)"
// line.
func (s *Supervisor) updateGauges() {
	s.mu.Lock()
	running := len(s.running)
	blacklisted := len(s.blacklist)
	s.mu.Unlock()

	unassigned := 0
	for name := range s.specs {
		if s.state.Owner(name) == "" {
			unassigned++
		}
	}

	telemetry.BlocksRunning.Set(float64(running))
	telemetry.BlocksBlacklisted.Set(float64(blacklisted))
	telemetry.BlocksUnassigned.Set(float64(unassigned))
}

func (s *Supervisor) reconcileOne(ctx context.Context, name string, spec *Spec) {
	s.mu.Lock()
	blacklisted := s.blacklist[name]
	alreadyRunning := s.running[name]
	s.mu.Unlock()

	owner := s.state.Owner(name)

	if owner == "" {
		if blacklisted {
			return
		}
		describes := make([]string, len(spec.Resources))
		for i, r := range spec.Resources {
			describes[i] = r.Describe()
		}
		chosen, err := s.engine.Place(placement.Candidate{Name: name, Resources: describes, Optional: spec.Optional})
		if err != nil {
			if !errors.Is(err, cluster.ErrUnassignable) {
				// A failed owner write is transient: retry on the next tick.
				return
			}
			telemetry.UnassignableBlocksTotal.Inc()
			if cluster.IsFatal(err, spec.Optional) {
				if s.onFatal != nil {
					s.onFatal(err)
				}
				return
			}
			s.mu.Lock()
			s.blacklist[name] = true
			s.mu.Unlock()
			return
		}
		owner = chosen
	}

	if owner != s.self {
		s.stopIfRunning(name)
		return
	}

	if !alreadyRunning {
		s.start(ctx, spec)
	}
}

func (s *Supervisor) stopIfRunning(name string) {
	s.mu.Lock()
	cancel, ok := s.cancels[name]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *Supervisor) start(ctx context.Context, spec *Spec) {
	instance, err := s.registry.Build(spec)
	if err != nil {
		if s.onFatal != nil {
			s.onFatal(fmt.Errorf("%w: %v", cluster.ErrConfig, err))
		}
		return
	}

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.running[spec.Name] = true
	s.cancels[spec.Name] = cancel
	s.mu.Unlock()

	s.live.Register(spec, instance)

	emit := func(port string, data json.RawMessage) {
		source := spec.Name
		if port != "" {
			source = spec.Name + "." + port
		}
		s.out.Enqueue(source, data)
	}

	// Both the resource-run task and the run_while_ok wrapper share
	// runCtx: ownership loss cancels both together (the Open Question
	// this spec resolves — see §4.4, §9).
	go s.resourceRunTask(runCtx, spec)
	go s.runWhileOk(runCtx, cancel, spec, instance, emit)
}

// resourceRunTask represents the block's resource-maintenance
// side-effects. Resource probing in this design is one-shot at startup
// (§4.2, §9): by the time a block is placed, the Resource Evaluator has
// already published a truthy fitness for every required resource on
// this node, so there is nothing further to initialise here. The task
// exists, and is cancelled alongside run_while_ok, to keep the shape
// the spec names even though this core does no periodic re-probing.
func (s *Supervisor) resourceRunTask(ctx context.Context, spec *Spec) {
	<-ctx.Done()
}

func (s *Supervisor) runWhileOk(ctx context.Context, cancel context.CancelFunc, spec *Spec, instance Instance, emit Emit) {
	defer func() {
		if r := recover(); r != nil {
			logBlockPanic(spec.Name, r)
		}
		cancel()

		s.mu.Lock()
		delete(s.running, spec.Name)
		delete(s.cancels, spec.Name)
		s.mu.Unlock()
		s.live.Unregister(spec.Name)

		if s.state.Owner(spec.Name) == s.self {
			_ = s.state.SetOwner(spec.Name, "")
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		if s.state.Owner(spec.Name) != s.self {
			return
		}
		for _, r := range spec.Resources {
			if f, ok := s.state.Fitness(r.Describe(), s.self); !ok || !f.Available {
				return
			}
		}
		if err := instance.Run(ctx, emit); err != nil {
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func logBlockPanic(name string, r interface{}) {
	logging.WithBlockName(name).Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("block run() panicked")
}

// Package evaluator implements the Resource Evaluator: at startup, probes
// every unique resource referenced by the configured block graph exactly
// once, publishes the result into the replicated store, and exposes the
// resource_checked_all gate that cmd/loomd waits on once at startup,
// before the Block Supervisor begins placing blocks.
//
// Grounded on the teacher's pkg/health (Checker/HTTPChecker probing
// shape) and pkg/reconciler.go's ticker-driven polling loop, retargeted
// at original_source/idiotic/resource.py's fitness()/create() contract.
package evaluator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomhq/loom/internal/logging"
	"github.com/loomhq/loom/internal/resource"
	"github.com/loomhq/loom/internal/store"
)

// readyPollInterval bounds how often ProbeAll polls the replicated store
// for readiness before publishing probed fitness, per §5's
// awaiting-replicated-store-ready() suspension point: on a multi-node
// cluster the store has no elected leader yet when Open returns, and a
// write attempted before that point is dropped, not queued.
const readyPollInterval = 200 * time.Millisecond

// publishRetries bounds how many times SetFitness is retried if the
// store is still not ready (or loses its leader) at publish time. The
// probe itself runs exactly once either way; only the publish retries.
const publishRetries = 5

// Evaluator probes resources once at startup and publishes fitness.
type Evaluator struct {
	self    string
	nodes   []string
	state   *store.State
	probed  map[string]bool
}

// New constructs an Evaluator for the given node.
func New(self string, nodes []string, state *store.State) *Evaluator {
	return &Evaluator{self: self, nodes: nodes, state: state, probed: make(map[string]bool)}
}

// ProbeAll probes every unique resource in specs on this node exactly
// once, per §4.2 step 1-3. Specs supporting BindSelf (e.g. hostSpec) are
// bound to the local node name before probing.
func (e *Evaluator) ProbeAll(ctx context.Context, specs []resource.Spec) {
	log := logging.WithComponent("evaluator")

	e.awaitReady(ctx, log)

	for _, spec := range resource.Dedup(specs) {
		describe := spec.Describe()
		if e.probed[describe] {
			continue
		}
		if binder, ok := spec.(interface{ BindSelf(string) }); ok {
			binder.BindSelf(e.self)
		}

		probeCtx, cancel := context.WithTimeout(ctx, resource.ProbeTimeout)
		fit, err := spec.Probe(probeCtx)
		cancel()

		if err != nil {
			log.Warn().Err(err).Str("resource", describe).Msg("resource probe failed, recording fitness 0")
			fit = resource.Fitness{Value: 0, Available: true}
		}

		if err := e.publishFitness(ctx, log, describe, store.FitnessValue{Value: fit.Value, Available: fit.Available}); err != nil {
			log.Error().Err(err).Str("resource", describe).Msg("failed to publish fitness")
			continue
		}
		e.probed[describe] = true
		log.Debug().Str("resource", describe).Float64("fitness", fit.Value).Bool("available", fit.Available).Msg("probed resource")
	}
}

// awaitReady blocks until the replicated store is ready for writes, or
// ctx is done. Probing a multi-node cluster right after store.Open
// otherwise races an unelected Raft leader: the probe itself still
// succeeds, but the fitness write it feeds is rejected and lost.
func (e *Evaluator) awaitReady(ctx context.Context, log zerolog.Logger) {
	if e.state.Ready() {
		return
	}
	log.Info().Msg("waiting for replicated store to become ready")
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.state.Ready() {
				return
			}
		}
	}
}

// publishFitness retries SetFitness up to publishRetries times, in case
// the store's leader changed between awaitReady returning and this
// write landing (the probe itself is never re-run).
func (e *Evaluator) publishFitness(ctx context.Context, log zerolog.Logger, describe string, v store.FitnessValue) error {
	var err error
	for attempt := 0; attempt < publishRetries; attempt++ {
		if err = e.state.SetFitness(describe, e.self, v); err == nil {
			return nil
		}
		if attempt < publishRetries-1 {
			log.Warn().Err(err).Str("resource", describe).Int("attempt", attempt+1).Msg("fitness publish failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(readyPollInterval):
			}
		}
	}
	return err
}

// CheckedAll reports whether describe has a fitness entry written on
// every configured node (the resource_checked_all gate).
func (e *Evaluator) CheckedAll(describe string) bool {
	for _, n := range e.nodes {
		if _, ok := e.state.Fitness(describe, n); !ok {
			return false
		}
	}
	return true
}

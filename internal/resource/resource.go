// Package resource implements the Resource Evaluator: the ResourceSpec
// registry and the probing contract each spec exposes. It is grounded on
// original_source/idiotic/resource.py's Resource.fitness()/create()
// contract and on the teacher's pkg/health package (Checker interface,
// HTTPChecker) for the probing shape.
package resource

import (
	"context"
	"fmt"
	"time"
)

// Fitness is the result of probing a Spec on one node. False means
// disqualified; it is distinct from numeric zero.
type Fitness struct {
	Value     float64
	Available bool
}

// False is the sentinel "disqualified" fitness.
var False = Fitness{Available: false}

// Truthy returns whether f should be treated as available. Per §4.2, the
// literal false sentinel is disqualification; a present, non-false value
// is truthy regardless of sign (negative-latency probes are common).
func (f Fitness) Truthy() bool {
	return f.Available
}

// Spec is a resource precondition a block may require. Equal Specs (by
// Describe()) refer to the same logical resource and are only compared
// against fitnesses of other probes sharing that Describe().
type Spec interface {
	// Describe returns a canonical, stable string identifying this
	// resource uniquely across the cluster.
	Describe() string

	// Probe evaluates this resource's fitness on the current node.
	Probe(ctx context.Context) (Fitness, error)
}

// Factory builds a Spec from a require-entry's config value, per the
// three shapes original_source/idiotic/resource.py's create() accepts:
// a scalar (string shorthand), a map (named parameters), or a list
// (ordered parameters).
type Factory func(conf interface{}) (Spec, error)

// Registry maps a require-entry's resource-type key ("host", "url",
// "const", ...) to the Factory that builds it.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a Registry pre-populated with the built-in resource
// types named in SPEC_FULL.md §3: host, url, const.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("host", newHostSpec)
	r.Register("url", newURLSpec)
	r.Register("const", newConstSpec)
	return r
}

// Register adds or replaces the Factory for a resource-type key.
func (r *Registry) Register(kind string, f Factory) {
	r.factories[kind] = f
}

// Build constructs a Spec from a single-key require-entry map, e.g.
// {"host": "n2"} or {"url": {"get": "http://..."}}.
func (r *Registry) Build(reqConfig map[string]interface{}) (Spec, error) {
	if len(reqConfig) != 1 {
		return nil, fmt.Errorf("%w: require entry must have exactly one top-level key, got %d", errConfigMalformed, len(reqConfig))
	}
	for kind, conf := range reqConfig {
		factory, ok := r.factories[kind]
		if !ok {
			return nil, fmt.Errorf("%w: unknown resource type %q", errConfigMalformed, kind)
		}
		return factory(conf)
	}
	panic("unreachable")
}

var errConfigMalformed = fmt.Errorf("malformed resource config")

// Dedup collapses a slice of Specs into the distinct set of Describe()
// strings, keeping the first Spec seen for each.
func Dedup(specs []Spec) []Spec {
	seen := make(map[string]bool, len(specs))
	out := make([]Spec, 0, len(specs))
	for _, s := range specs {
		d := s.Describe()
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, s)
	}
	return out
}

// ProbeTimeout bounds how long a single Probe call may run: the probe's
// context is cancelled when it expires. A probe that returns an error is
// recorded as fitness = 0 by the evaluator; the url probe reports a
// failed or timed-out request as the False sentinel, not as an error.
const ProbeTimeout = 10 * time.Second

package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/resource"
	"github.com/loomhq/loom/internal/store"
)

// delayedReadyStore wraps an in-memory map and reports Ready()==false
// until readyAt has elapsed, simulating a multi-node store that has not
// yet elected a Raft leader when ProbeAll starts.
type delayedReadyStore struct {
	mu      sync.Mutex
	data    map[string]json.RawMessage
	readyAt time.Time
}

func newDelayedReadyStore(delay time.Duration) *delayedReadyStore {
	return &delayedReadyStore{data: make(map[string]json.RawMessage), readyAt: time.Now().Add(delay)}
}

func (s *delayedReadyStore) Get(k string, def json.RawMessage) json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[k]; ok {
		return v
	}
	return def
}

func (s *delayedReadyStore) Set(k string, v json.RawMessage) error {
	if !s.Ready() {
		return errors.New("store not ready")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[k] = v
	return nil
}

func (s *delayedReadyStore) Delete(k string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, k)
	return nil
}

func (s *delayedReadyStore) Ready() bool    { return time.Now().After(s.readyAt) }
func (s *delayedReadyStore) IsLeader() bool { return s.Ready() }

func (s *delayedReadyStore) Snapshot() map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]json.RawMessage, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

func (s *delayedReadyStore) Shutdown() error { return nil }

func newTestState(t *testing.T) *store.State {
	t.Helper()
	s, err := store.Open(store.Config{Self: "n1", Bootstrap: map[string]string{"n1": "127.0.0.1:0"}})
	require.NoError(t, err)
	return store.NewState(s)
}

func TestProbeAllPublishesFitness(t *testing.T) {
	state := newTestState(t)
	e := New("n1", []string{"n1"}, state)

	reg := resource.NewRegistry()
	spec, err := reg.Build(map[string]interface{}{"const": 2.0})
	require.NoError(t, err)

	e.ProbeAll(context.Background(), []resource.Spec{spec})

	fit, ok := state.Fitness(spec.Describe(), "n1")
	require.True(t, ok)
	assert.Equal(t, 2.0, fit.Value)
	assert.True(t, fit.Available)
}

func TestProbeAllIsIdempotent(t *testing.T) {
	state := newTestState(t)
	e := New("n1", []string{"n1"}, state)

	reg := resource.NewRegistry()
	spec, err := reg.Build(map[string]interface{}{"const": 2.0})
	require.NoError(t, err)

	e.ProbeAll(context.Background(), []resource.Spec{spec})
	require.NoError(t, state.SetFitness(spec.Describe(), "n1", store.FitnessValue{Value: 99, Available: true}))

	e.ProbeAll(context.Background(), []resource.Spec{spec})

	fit, ok := state.Fitness(spec.Describe(), "n1")
	require.True(t, ok)
	assert.Equal(t, 99.0, fit.Value, "second ProbeAll must not re-probe an already-probed describe string")
}

func TestCheckedAllRequiresEveryNode(t *testing.T) {
	state := newTestState(t)
	e := New("n1", []string{"n1", "n2"}, state)

	require.NoError(t, state.SetFitness("const:x", "n1", store.FitnessValue{Value: 1, Available: true}))
	assert.False(t, e.CheckedAll("const:x"))

	require.NoError(t, state.SetFitness("const:x", "n2", store.FitnessValue{Value: 1, Available: true}))
	assert.True(t, e.CheckedAll("const:x"))
}

func TestWaitCheckedAllReturnsOnceSatisfied(t *testing.T) {
	state := newTestState(t)
	e := New("n1", []string{"n1"}, state)
	require.NoError(t, state.SetFitness("const:x", "n1", store.FitnessValue{Value: 1, Available: true}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.WaitCheckedAll(ctx, []string{"const:x"}))
}

func TestProbeAllAwaitsStoreReadyBeforePublishing(t *testing.T) {
	delayed := newDelayedReadyStore(100 * time.Millisecond)
	state := store.NewState(delayed)
	e := New("n1", []string{"n1"}, state)

	reg := resource.NewRegistry()
	spec, err := reg.Build(map[string]interface{}{"const": 2.0})
	require.NoError(t, err)

	e.ProbeAll(context.Background(), []resource.Spec{spec})

	fit, ok := state.Fitness(spec.Describe(), "n1")
	require.True(t, ok, "fitness must be published once the store becomes ready, not dropped")
	assert.Equal(t, 2.0, fit.Value)
}

func TestWaitCheckedAllRespectsContextCancellation(t *testing.T) {
	state := newTestState(t)
	e := New("n1", []string{"n1", "n2"}, state)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := e.WaitCheckedAll(ctx, []string{"const:never-probed"})
	assert.Error(t, err)
}

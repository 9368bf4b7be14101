// Package store implements the Replicated Store: a Raft-backed key-value
// map for block owners and resource fitnesses. It is grounded on the
// teacher's pkg/manager (manager.go's Raft setup sequence, fsm.go's
// Command/Apply pattern), simplified from a multi-entity BoltDB-backed
// store down to one generic hierarchical-string-keyed map, per
// SPEC_FULL.md §4.1's Non-goal of no persistence beyond in-memory state.
package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/raft"
)

// Store is the Replicated Store's contract: get, set, delete, and a
// ready() predicate. Writes are linearisable through Raft; reads are
// local and may lag writes by the commit delay.
type Store interface {
	// Get returns the value at k, or def if absent.
	Get(k string, def json.RawMessage) json.RawMessage
	// Set proposes k=v, returning once the committed entry has been
	// applied locally.
	Set(k string, v json.RawMessage) error
	// Delete proposes removal of k.
	Delete(k string) error
	// Ready reports whether the node has an elected leader and a
	// committed log (always true on the single-node fast path).
	Ready() bool
	// IsLeader reports whether this node is currently the Raft leader
	// (always true on the single-node fast path, since that node is
	// trivially its own leader).
	IsLeader() bool
	// Snapshot returns every key/value currently held, for iteration by
	// callers that need to scan every key (State.Owners).
	Snapshot() map[string]json.RawMessage
	// Shutdown releases any resources (Raft transport, timers).
	Shutdown() error
}

// Config configures a Store.
type Config struct {
	// Self is this node's name, used as the Raft server ID.
	Self string
	// Bind is the address the Raft transport listens on
	// ("host:port").
	Bind string
	// Bootstrap lists every node name to bootstrap the cluster with,
	// including Self. A single-entry Bootstrap triggers the single-node
	// fast path.
	Bootstrap map[string]string // name -> raft bind address
	// Timeout bounds how long Set waits for the commit to apply.
	Timeout time.Duration
}

// Open constructs a Store. A single configured node degrades to an
// in-process map with no replication, per §4.1's single-node fast path;
// otherwise it boots a Raft-backed store with an in-memory log, stable,
// and snapshot store (no persistence beyond process lifetime, per the
// carried Non-goal).
func Open(cfg Config) (Store, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if len(cfg.Bootstrap) <= 1 {
		return newLocalStore(), nil
	}
	return newRaftStore(cfg)
}

// localStore is the single-node fast path: no replication, always ready.
type localStore struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage
}

func newLocalStore() *localStore {
	return &localStore{data: make(map[string]json.RawMessage)}
}

func (s *localStore) Get(k string, def json.RawMessage) json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.data[k]; ok {
		return v
	}
	return def
}

func (s *localStore) Set(k string, v json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[k] = v
	return nil
}

func (s *localStore) Delete(k string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, k)
	return nil
}

func (s *localStore) Ready() bool { return true }

func (s *localStore) IsLeader() bool { return true }

func (s *localStore) Snapshot() map[string]json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

func (s *localStore) Shutdown() error { return nil }

// raftStore replicates writes through hashicorp/raft.
type raftStore struct {
	raft    *raft.Raft
	fsm     *FSM
	timeout time.Duration
}

func newRaftStore(cfg Config) (*raftStore, error) {
	fsm := newFSM()

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.Self)
	raftCfg.Logger = nil

	transport, err := raft.NewTCPTransport(cfg.Bind, nil, 3, 10*time.Second, nil)
	if err != nil {
		return nil, fmt.Errorf("store: create raft transport: %w", err)
	}

	logStore := raft.NewInmemStore()
	stableStore := raft.NewInmemStore()
	snapshotStore := raft.NewInmemSnapshotStore()

	r, err := raft.NewRaft(raftCfg, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("store: create raft node: %w", err)
	}

	servers := make([]raft.Server, 0, len(cfg.Bootstrap))
	for name, addr := range cfg.Bootstrap {
		servers = append(servers, raft.Server{
			ID:      raft.ServerID(name),
			Address: raft.ServerAddress(addr),
		})
	}
	if _, ok := cfg.Bootstrap[cfg.Self]; ok {
		f := r.BootstrapCluster(raft.Configuration{Servers: servers})
		if err := f.Error(); err != nil && err != raft.ErrCantBootstrap {
			return nil, fmt.Errorf("store: bootstrap cluster: %w", err)
		}
	}

	return &raftStore{raft: r, fsm: fsm, timeout: cfg.Timeout}, nil
}

func (s *raftStore) Get(k string, def json.RawMessage) json.RawMessage {
	return s.fsm.get(k, def)
}

func (s *raftStore) Set(k string, v json.RawMessage) error {
	if !s.Ready() {
		return fmt.Errorf("store: write to %q while not ready", k)
	}
	cmd := command{Op: opSet, Key: k, Value: v}
	return s.apply(cmd)
}

func (s *raftStore) Delete(k string) error {
	if !s.Ready() {
		return fmt.Errorf("store: delete of %q while not ready", k)
	}
	cmd := command{Op: opDelete, Key: k}
	return s.apply(cmd)
}

func (s *raftStore) apply(cmd command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("store: marshal command: %w", err)
	}
	future := s.raft.Apply(data, s.timeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("store: apply command: %w", err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok {
			return err
		}
	}
	return nil
}

func (s *raftStore) Ready() bool {
	return s.raft.Leader() != "" && s.raft.LastIndex() > 0
}

func (s *raftStore) IsLeader() bool {
	return s.raft.State() == raft.Leader
}

func (s *raftStore) Snapshot() map[string]json.RawMessage {
	return s.fsm.snapshot()
}

func (s *raftStore) Shutdown() error {
	return s.raft.Shutdown().Error()
}

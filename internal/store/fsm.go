package store

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/hashicorp/raft"
)

type op string

const (
	opSet    op = "set"
	opDelete op = "delete"
)

// command is the Raft log entry payload, grounded on the teacher's
// WarrenFSM Command{Op, Data} shape, narrowed to the two operations this
// core's single logical map needs.
type command struct {
	Op    op              `json:"op"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
}

// FSM applies committed commands against one in-memory map holding both
// owners and fitness entries under disjoint key prefixes.
type FSM struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage
}

func newFSM() *FSM {
	return &FSM{data: make(map[string]json.RawMessage)}
}

// Apply implements raft.FSM.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opSet:
		f.data[cmd.Key] = cmd.Value
	case opDelete:
		delete(f.data, cmd.Key)
	}
	return nil
}

func (f *FSM) get(k string, def json.RawMessage) json.RawMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if v, ok := f.data[k]; ok {
		return v
	}
	return def
}

func (f *FSM) snapshot() map[string]json.RawMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(f.data))
	for k, v := range f.data {
		out[k] = v
	}
	return out
}

// Snapshot implements raft.FSM.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{data: f.snapshot()}, nil
}

// Restore implements raft.FSM.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var data map[string]json.RawMessage
	if err := json.NewDecoder(rc).Decode(&data); err != nil {
		return err
	}
	f.mu.Lock()
	f.data = data
	f.mu.Unlock()
	return nil
}

type fsmSnapshot struct {
	data map[string]json.RawMessage
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		enc := json.NewEncoder(sink)
		return enc.Encode(s.data)
	}()
	if err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}

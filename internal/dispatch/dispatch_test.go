package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/block"
	"github.com/loomhq/loom/internal/cluster"
)

type fakeInstance struct {
	received chan json.RawMessage
}

func (f *fakeInstance) Run(ctx context.Context, emit block.Emit) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeInstance) Handlers() map[string]block.Handler {
	return map[string]block.Handler{
		"value": func(data json.RawMessage) { f.received <- data },
	}
}

func TestDeliverMatchesWiredSource(t *testing.T) {
	live := block.NewLiveRegistry()
	inst := &fakeInstance{received: make(chan json.RawMessage, 1)}
	spec := &block.Spec{Name: "logger", Inputs: map[string]string{"value": "sensor"}}
	live.Register(spec, inst)

	self := cluster.Node{Name: "n1"}
	members := cluster.Membership{Self: "n1", Nodes: map[string]cluster.Node{"n1": self}}
	d := New(self, members, live, nil)

	d.deliver(Event{Source: "sensor", Data: json.RawMessage(`42`)})

	select {
	case got := <-inst.received:
		assert.JSONEq(t, "42", string(got))
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestDeliverIgnoresUnwiredSource(t *testing.T) {
	live := block.NewLiveRegistry()
	inst := &fakeInstance{received: make(chan json.RawMessage, 1)}
	spec := &block.Spec{Name: "logger", Inputs: map[string]string{"value": "sensor"}}
	live.Register(spec, inst)

	self := cluster.Node{Name: "n1"}
	members := cluster.Membership{Self: "n1", Nodes: map[string]cluster.Node{"n1": self}}
	d := New(self, members, live, nil)

	d.deliver(Event{Source: "other", Data: json.RawMessage(`1`)})

	select {
	case <-inst.received:
		t.Fatal("handler should not have been invoked for an unwired source")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEnqueueLocalDeliveryRoundTrip(t *testing.T) {
	live := block.NewLiveRegistry()
	inst := &fakeInstance{received: make(chan json.RawMessage, 1)}
	spec := &block.Spec{Name: "logger", Inputs: map[string]string{"value": "sensor"}}
	live.Register(spec, inst)

	self := cluster.Node{Name: "n1", Host: "127.0.0.1", RPCPort: 0}
	members := cluster.Membership{Self: "n1", Nodes: map[string]cluster.Node{"n1": self}}
	d := New(self, members, live, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx)

	d.Enqueue("sensor", json.RawMessage(`7`))

	select {
	case got := <-inst.received:
		assert.JSONEq(t, "7", string(got))
	case <-time.After(time.Second):
		t.Fatal("event was not delivered locally")
	}
}

func TestSendReturnsTransientErrorOnUnreachableHost(t *testing.T) {
	d := New(cluster.Node{Name: "n1"}, cluster.Membership{}, block.NewLiveRegistry(), nil)
	err := d.send(context.Background(), cluster.Node{Name: "ghost", Host: "127.0.0.1", RPCPort: 1}, Event{Source: "x", Data: json.RawMessage(`1`)})
	require.Error(t, err)
	assert.ErrorIs(t, err, cluster.ErrTransientIO)
}

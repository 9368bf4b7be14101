// Package dispatch implements the Event Dispatcher: out_queue/in_queue
// per node, broadcast-to-all-nodes fan-out over HTTP, local delivery
// matching, and the /rpc and /status endpoints. Grounded on the
// teacher's pkg/events/events.go for channel/queue concurrency idioms
// and pkg/health/http.go for the outbound HTTP client shape; the
// cross-node fan-out itself is new code, since pkg/events is an
// in-process broker, not a network dispatcher (see DESIGN.md).
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/loomhq/loom/internal/block"
	"github.com/loomhq/loom/internal/cluster"
	"github.com/loomhq/loom/internal/logging"
)

// Event is the wire shape exchanged between nodes: {source, data}, per
// SPEC_FULL.md §6.
type Event struct {
	Source string          `json:"source"`
	Data   json.RawMessage `json:"data"`
}

// RequestTimeout bounds a single outbound dispatch HTTP call, per §5's
// carried default (the spec leaves this unspecified and asks
// implementations to impose a sane one).
const RequestTimeout = 5 * time.Second

// Dispatcher routes events produced by local blocks to every configured
// node, and delivers events received from any source to locally owned
// blocks.
type Dispatcher struct {
	self    cluster.Node
	members cluster.Membership
	live    *block.LiveRegistry
	client  *http.Client

	out chan Event
	in  chan Event

	metrics Metrics
	status  StatusFunc
}

// Metrics are the counters/gauges the dispatcher updates; satisfied by
// internal/telemetry.
type Metrics interface {
	DispatchedTotal()
	DeliveredLocalTotal()
	RetriedTotal()
	QueueDepth(out, in int)
}

type noopMetrics struct{}

func (noopMetrics) DispatchedTotal()     {}
func (noopMetrics) DeliveredLocalTotal() {}
func (noopMetrics) RetriedTotal()        {}
func (noopMetrics) QueueDepth(int, int)  {}

// New constructs a Dispatcher for self among members, delivering to the
// blocks registered in live.
func New(self cluster.Node, members cluster.Membership, live *block.LiveRegistry, metrics Metrics) *Dispatcher {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Dispatcher{
		self:    self,
		members: members,
		live:    live,
		client:  &http.Client{Timeout: RequestTimeout},
		out:     make(chan Event, 256),
		in:      make(chan Event, 256),
		metrics: metrics,
	}
}

// Enqueue implements block.OutQueue: a local block emitted (source,
// data); push it onto out_queue for fan-out.
func (d *Dispatcher) Enqueue(source string, data json.RawMessage) {
	d.out <- Event{Source: source, Data: data}
}

// Run drives the dispatch and delivery loops until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	go d.dispatchLoop(ctx)
	go d.deliveryLoop(ctx)
	<-ctx.Done()
}

// dispatchLoop consumes out_queue: broadcast to every configured node.
func (d *Dispatcher) dispatchLoop(ctx context.Context) {
	log := logging.WithComponent("dispatch")
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.out:
			d.metrics.QueueDepth(len(d.out), len(d.in))
			for _, name := range d.members.Names() {
				if name == d.self.Name {
					d.in <- ev
					continue
				}
				node := d.members.Nodes[name]
				if err := d.send(ctx, node, ev); err != nil {
					correlation := uuid.New().String()
					log.Warn().Err(err).Str("node", name).Str("dispatch_id", correlation).Msg("dispatch failed, requeueing")
					d.metrics.RetriedTotal()
					// At-least-once retry, no backoff cap per §4.5.
					go func(ev Event) {
						select {
						case d.out <- ev:
						case <-ctx.Done():
						}
					}(ev)
					continue
				}
			}
			d.metrics.DispatchedTotal()
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, node cluster.Node, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: marshal event: %v", cluster.ErrTransientIO, err)
	}

	url := fmt.Sprintf("http://%s:%d/rpc", node.Host, node.RPCPort)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", cluster.ErrTransientIO, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", cluster.ErrTransientIO, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d from %s", cluster.ErrTransientIO, resp.StatusCode, node.Name)
	}
	return nil
}

// deliveryLoop consumes in_queue: deliver to every locally owned block
// whose Inputs match the event's source, one event fully processed
// before the next is dequeued (§5's FIFO ordering guarantee).
func (d *Dispatcher) deliveryLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.in:
			d.deliver(ev)
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	d.live.Each(func(spec *block.Spec, inst block.Instance) {
		if inst == nil || len(spec.Inputs) == 0 {
			return
		}
		handlers := inst.Handlers()
		for port, wiring := range spec.Inputs {
			if ev.Source != wiring && ev.Source != wiring+"."+wiring {
				continue
			}
			handler, ok := handlers[port]
			if !ok {
				continue
			}
			handler(ev.Data)
			d.metrics.DeliveredLocalTotal()
		}
	})
}

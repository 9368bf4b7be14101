package block

import (
	"context"
	"encoding/json"
	"time"

	"github.com/loomhq/loom/internal/logging"
)

// constantBlock emits a fixed value on a timer, on its own default
// output port (named after the block, per the "block.block" convention
// §4.5 describes for default-port matching).
type constantBlock struct {
	name     string
	value    json.RawMessage
	interval time.Duration
}

func newConstantBlock(spec *Spec) (Instance, error) {
	interval := time.Second
	if ms, ok := intervalMillis(spec.Params["interval_ms"]); ok && ms > 0 {
		interval = time.Duration(ms) * time.Millisecond
	}
	raw, err := json.Marshal(spec.Params["value"])
	if err != nil {
		return nil, err
	}
	return &constantBlock{name: spec.Name, value: raw, interval: interval}, nil
}

// intervalMillis accepts interval_ms as any of the numeric shapes
// yaml.v3 produces: an unsuffixed integer literal decodes as int (or
// int64 for large values), while anything written with a decimal point
// decodes as float64.
func intervalMillis(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func (b *constantBlock) Run(ctx context.Context, emit Emit) error {
	t := time.NewTimer(b.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		emit(b.name, b.value)
		return nil
	}
}

func (b *constantBlock) Handlers() map[string]Handler { return nil }

// loggerBlock logs whatever arrives on its "value" input port. It
// expects to be wired as logger blocks are in the seed scenarios (§8
// scenario 1): inputs: {value: "<source>"}.
type loggerBlock struct {
	name string
	log  bool
	last json.RawMessage
}

func newLoggerBlock(spec *Spec) (Instance, error) {
	return &loggerBlock{name: spec.Name}, nil
}

func (b *loggerBlock) Run(ctx context.Context, emit Emit) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *loggerBlock) Handlers() map[string]Handler {
	return map[string]Handler{
		"value": func(data json.RawMessage) {
			b.last = data
			logging.WithBlockName(b.name).Info().RawJSON("data", data).Msg("received value")
		},
	}
}

// Last returns the most recent value delivered to this logger, for
// tests.
func (b *loggerBlock) Last() json.RawMessage { return b.last }

// passthroughBlock re-emits whatever arrives on its "in" port, unchanged,
// on its own default output port.
type passthroughBlock struct {
	name string
	emit Emit
}

func newPassthroughBlock(spec *Spec) (Instance, error) {
	return &passthroughBlock{name: spec.Name}, nil
}

func (b *passthroughBlock) Run(ctx context.Context, emit Emit) error {
	b.emit = emit
	<-ctx.Done()
	return ctx.Err()
}

func (b *passthroughBlock) Handlers() map[string]Handler {
	return map[string]Handler{
		"in": func(data json.RawMessage) {
			if b.emit != nil {
				b.emit(b.name, data)
			}
		},
	}
}

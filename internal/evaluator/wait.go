package evaluator

import (
	"context"
	"time"

	"github.com/loomhq/loom/internal/telemetry"
)

// BackoffInterval is the sleep between WaitCheckedAll's polls of
// resource_checked_all, per §4.2.
const BackoffInterval = 5 * time.Second

// WaitCheckedAll blocks until every describe string in requires has a
// fitness entry on every configured node, or ctx is done.
func (e *Evaluator) WaitCheckedAll(ctx context.Context, requires []string) error {
	for {
		pending := 0
		for _, d := range requires {
			if !e.CheckedAll(d) {
				pending++
			}
		}
		telemetry.ResourceCheckedAllPending.Set(float64(pending))
		if pending == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(BackoffInterval):
		}
	}
}

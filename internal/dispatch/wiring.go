package dispatch

import (
	"fmt"
	"strings"

	"github.com/loomhq/loom/internal/block"
	"github.com/loomhq/loom/internal/cluster"
)

// ValidateWiring resolves every InputTo entry into its target's Inputs
// map (rejecting a target port that is already wired), and checks that
// every Inputs wiring names a block that exists in specs. Unresolved references are a fatal ConfigError (§6, §4.5): the
// whole cluster refuses to start rather than silently drop events.
func ValidateWiring(specs map[string]*block.Spec) error {
	for name, spec := range specs {
		for _, target := range spec.InputTo {
			targetBlock, port := splitWiring(target)
			dst, ok := specs[targetBlock]
			if !ok {
				return fmt.Errorf("block %q: input_to references unknown block %q: %w", name, targetBlock, cluster.ErrConfig)
			}
			if dst.Inputs == nil {
				dst.Inputs = make(map[string]string)
			}
			if existing, taken := dst.Inputs[port]; taken {
				return fmt.Errorf("block %q: input_to target %q port %q is already wired to %q: %w", name, targetBlock, port, existing, cluster.ErrConfig)
			}
			dst.Inputs[port] = name
		}
	}

	for name, spec := range specs {
		for port, wiring := range spec.Inputs {
			source, _ := splitWiring(wiring)
			if _, ok := specs[source]; !ok {
				return fmt.Errorf("block %q: input port %q wired to unknown block %q: %w", name, port, source, cluster.ErrConfig)
			}
		}
	}

	return nil
}

// splitWiring splits a "block_name" or "block_name.port" reference. A
// bare block name resolves to that block's default port, keyed by the
// block's own name (the "block.block" convention used for matching
// events with no explicit port).
func splitWiring(ref string) (blockName, port string) {
	if i := strings.LastIndex(ref, "."); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return ref, ref
}

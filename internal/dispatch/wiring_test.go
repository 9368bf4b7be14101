package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/block"
	"github.com/loomhq/loom/internal/cluster"
)

func TestValidateWiringResolvesInputTo(t *testing.T) {
	specs := map[string]*block.Spec{
		"sensor": {Name: "sensor", Type: "constant", InputTo: []string{"logger.value"}},
		"logger": {Name: "logger", Type: "logger"},
	}

	require.NoError(t, ValidateWiring(specs))
	assert.Equal(t, "sensor", specs["logger"].Inputs["value"])
}

func TestValidateWiringRejectsUnknownInputToTarget(t *testing.T) {
	specs := map[string]*block.Spec{
		"sensor": {Name: "sensor", Type: "constant", InputTo: []string{"missing.value"}},
	}

	err := ValidateWiring(specs)
	require.Error(t, err)
	assert.ErrorIs(t, err, cluster.ErrConfig)
}

func TestValidateWiringRejectsUnknownInputsSource(t *testing.T) {
	specs := map[string]*block.Spec{
		"logger": {Name: "logger", Type: "logger", Inputs: map[string]string{"value": "ghost"}},
	}

	err := ValidateWiring(specs)
	require.Error(t, err)
	assert.ErrorIs(t, err, cluster.ErrConfig)
}

func TestSplitWiring(t *testing.T) {
	block, port := splitWiring("sensor.out")
	assert.Equal(t, "sensor", block)
	assert.Equal(t, "out", port)

	block, port = splitWiring("sensor")
	assert.Equal(t, "sensor", block)
	assert.Equal(t, "sensor", port)
}

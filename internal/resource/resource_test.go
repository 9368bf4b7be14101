package resource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitnessTruthy(t *testing.T) {
	assert.False(t, False.Truthy())
	assert.True(t, Fitness{Value: 0, Available: true}.Truthy())
	assert.True(t, Fitness{Value: -5, Available: true}.Truthy())
}

func TestRegistryBuildHost(t *testing.T) {
	reg := NewRegistry()
	spec, err := reg.Build(map[string]interface{}{"host": "node-a"})
	require.NoError(t, err)
	assert.Equal(t, "host:node-a", spec.Describe())
}

func TestRegistryBuildRejectsMultiKey(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Build(map[string]interface{}{"host": "a", "const": true})
	assert.Error(t, err)
}

func TestRegistryBuildUnknownType(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Build(map[string]interface{}{"nonsense": "a"})
	assert.Error(t, err)
}

func TestHostSpecProbe(t *testing.T) {
	reg := NewRegistry()
	spec, err := reg.Build(map[string]interface{}{"host": "node-a"})
	require.NoError(t, err)

	binder := spec.(interface{ BindSelf(string) })
	binder.BindSelf("node-a")
	fit, err := spec.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, fit.Truthy())

	binder.BindSelf("node-b")
	fit, err = spec.Probe(context.Background())
	require.NoError(t, err)
	assert.False(t, fit.Truthy())
}

func TestURLSpecProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := NewRegistry()
	spec, err := reg.Build(map[string]interface{}{"url": srv.URL})
	require.NoError(t, err)

	fit, err := spec.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, fit.Truthy())
	assert.LessOrEqual(t, fit.Value, 0.0, "reachability fitness is negative latency")
}

func TestURLSpecProbeUnreachable(t *testing.T) {
	reg := NewRegistry()
	spec, err := reg.Build(map[string]interface{}{"url": "http://127.0.0.1:1"})
	require.NoError(t, err)

	fit, err := spec.Probe(context.Background())
	require.NoError(t, err)
	assert.False(t, fit.Truthy())
}

func TestConstSpecProbe(t *testing.T) {
	reg := NewRegistry()
	spec, err := reg.Build(map[string]interface{}{"const": 3.5})
	require.NoError(t, err)

	fit, err := spec.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3.5, fit.Value)
	assert.True(t, fit.Truthy())
}

func TestDedup(t *testing.T) {
	reg := NewRegistry()
	a, _ := reg.Build(map[string]interface{}{"host": "x"})
	b, _ := reg.Build(map[string]interface{}{"host": "x"})
	c, _ := reg.Build(map[string]interface{}{"host": "y"})

	out := Dedup([]Spec{a, b, c})
	assert.Len(t, out, 2)
}

package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreFastPath(t *testing.T) {
	s, err := Open(Config{Self: "n1", Bootstrap: map[string]string{"n1": "127.0.0.1:0"}})
	require.NoError(t, err)
	assert.True(t, s.Ready())
	assert.True(t, s.IsLeader())

	require.NoError(t, s.Set("owners/b1", json.RawMessage(`"n1"`)))
	assert.JSONEq(t, `"n1"`, string(s.Get("owners/b1", nil)))

	require.NoError(t, s.Delete("owners/b1"))
	assert.Nil(t, s.Get("owners/b1", nil))
}

func TestLocalStoreSnapshot(t *testing.T) {
	s, err := Open(Config{Self: "n1", Bootstrap: map[string]string{"n1": "127.0.0.1:0"}})
	require.NoError(t, err)

	require.NoError(t, s.Set("owners/a", json.RawMessage(`"n1"`)))
	require.NoError(t, s.Set("owners/b", json.RawMessage(`"n2"`)))

	snap := s.Snapshot()
	assert.Len(t, snap, 2)
}

func TestKeyRoundTrip(t *testing.T) {
	k := OwnerKey("block1")
	block, ok := ParseOwnerKey(k)
	require.True(t, ok)
	assert.Equal(t, "block1", block)

	k2 := FitnessKey("url:get:http://x", "n1")
	describe, node, ok := ParseFitnessKey(k2)
	require.True(t, ok)
	assert.Equal(t, "url:get:http://x", describe)
	assert.Equal(t, "n1", node)
}

func TestStateOwnerDefaultsEmpty(t *testing.T) {
	s, err := Open(Config{Self: "n1", Bootstrap: map[string]string{"n1": "127.0.0.1:0"}})
	require.NoError(t, err)
	state := NewState(s)

	assert.Equal(t, "", state.Owner("unknown"))

	require.NoError(t, state.SetOwner("b1", "n1"))
	assert.Equal(t, "n1", state.Owner("b1"))
	assert.Equal(t, map[string]string{"b1": "n1"}, state.Owners())
}

func TestStateFitnessByNode(t *testing.T) {
	s, err := Open(Config{Self: "n1", Bootstrap: map[string]string{"n1": "127.0.0.1:0"}})
	require.NoError(t, err)
	state := NewState(s)

	require.NoError(t, state.SetFitness("const:x", "n1", FitnessValue{Value: 1, Available: true}))

	byNode := state.FitnessByNode("const:x", []string{"n1", "n2"})
	assert.Len(t, byNode, 1)
	assert.Equal(t, FitnessValue{Value: 1, Available: true}, byNode["n1"])
}

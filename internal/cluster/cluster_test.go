package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMembershipNamesSorted(t *testing.T) {
	m := Membership{Nodes: map[string]Node{
		"n3": {Name: "n3"},
		"n1": {Name: "n1"},
		"n2": {Name: "n2"},
	}}
	assert.Equal(t, []string{"n1", "n2", "n3"}, m.Names())
}

func TestMembershipPeersExcludesSelf(t *testing.T) {
	m := Membership{Self: "n1", Nodes: map[string]Node{
		"n1": {Name: "n1"},
		"n2": {Name: "n2"},
	}}
	assert.Equal(t, []string{"n2"}, m.Peers())
}

func TestSelfNodeMissing(t *testing.T) {
	m := Membership{Self: "ghost", Nodes: map[string]Node{"n1": {Name: "n1"}}}
	_, err := m.SelfNode()
	require.Error(t, err)
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrConfig, false))
	assert.True(t, IsFatal(ErrUnassignable, false))
	assert.False(t, IsFatal(ErrUnassignable, true))
	assert.False(t, IsFatal(ErrTransientIO, false))
}

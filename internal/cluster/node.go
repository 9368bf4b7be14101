// Package cluster defines the static membership model: the set of nodes
// participating in a loom cluster, as declared in configuration.
package cluster

import (
	"fmt"
	"sort"
)

// Node is one process instance in the cluster: a unique name, the host
// and port its Raft transport listens on, and the port its event RPC
// listens on.
type Node struct {
	Name     string `yaml:"-"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	RPCPort  int    `yaml:"rpc_port"`
	RaftAddr string `yaml:"-"`
	RPCAddr  string `yaml:"-"`
}

// Membership is the statically-configured set of cluster nodes, keyed by
// node name.
type Membership struct {
	Self  string
	Nodes map[string]Node
}

// Names returns every configured node name, in lexicographic order.
func (m Membership) Names() []string {
	names := make([]string, 0, len(m.Nodes))
	for name := range m.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Peers returns every configured node name other than Self.
func (m Membership) Peers() []string {
	names := make([]string, 0, len(m.Nodes))
	for name := range m.Nodes {
		if name != m.Self {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// SelfNode returns the Node entry for m.Self.
func (m Membership) SelfNode() (Node, error) {
	n, ok := m.Nodes[m.Self]
	if !ok {
		return Node{}, fmt.Errorf("cluster: self node %q not present in configured nodes", m.Self)
	}
	return n, nil
}

// Package config loads the YAML configuration file into the types the
// rest of the core consumes: cluster.Membership, the per-node Raft
// bootstrap map, and the block.Spec graph with its resource.Spec
// requirements resolved. Grounded on the teacher's cmd/warren/apply.go
// for the "load, validate, then hand typed config to each component"
// shape and on original_source/idiotic/config.py for the nodes/cluster
// key structure this format descends from.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loomhq/loom/internal/block"
	"github.com/loomhq/loom/internal/cluster"
	"github.com/loomhq/loom/internal/dispatch"
	"github.com/loomhq/loom/internal/resource"
)

// raw mirrors the YAML file's top-level shape before any type
// resolution or validation.
type raw struct {
	Nodes   map[string]rawNode                `yaml:"nodes"`
	Cluster rawCluster                        `yaml:"cluster"`
	Blocks  map[string]map[string]interface{} `yaml:"blocks"`
}

type rawNode struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	RPCPort int    `yaml:"rpc_port"`
}

type rawCluster struct {
	Listen  string   `yaml:"listen"`
	Port    int      `yaml:"port"`
	RPCPort int      `yaml:"rpc_port"`
	Connect []string `yaml:"connect"`
}

// Config is the fully resolved, validated result of loading a file:
// everything the runtime needs to construct its components.
type Config struct {
	Self       string
	Membership cluster.Membership
	Bootstrap  map[string]string // node name -> raft bind address
	Blocks     map[string]*block.Spec
}

// Load reads path, resolves it against self (the node name this process
// is running as), and validates it. Any failure returned here is fatal
// per §6's exit-code contract, wrapped in cluster.ErrConfig.
func Load(path, self string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w: %v", path, cluster.ErrConfig, err)
	}

	var r raw
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w: %v", path, cluster.ErrConfig, err)
	}

	if len(r.Nodes) == 0 {
		return nil, fmt.Errorf("config: no nodes configured: %w", cluster.ErrConfig)
	}
	if self == "" {
		return nil, fmt.Errorf("config: no node name given: %w", cluster.ErrConfig)
	}
	if _, ok := r.Nodes[self]; !ok {
		return nil, fmt.Errorf("config: self node %q not present in nodes: %w", self, cluster.ErrConfig)
	}

	nodes := make(map[string]cluster.Node, len(r.Nodes))
	bootstrap := make(map[string]string, len(r.Nodes))
	for name, n := range r.Nodes {
		host := n.Host
		if host == "" {
			host = name
		}
		rpcPort := n.RPCPort
		if rpcPort == 0 {
			rpcPort = r.Cluster.RPCPort
		}
		raftAddr := fmt.Sprintf("%s:%d", host, n.Port)
		nodes[name] = cluster.Node{
			Name:     name,
			Host:     host,
			Port:     n.Port,
			RPCPort:  rpcPort,
			RaftAddr: raftAddr,
			RPCAddr:  fmt.Sprintf("%s:%d", host, rpcPort),
		}
		bootstrap[name] = raftAddr
	}

	membership := cluster.Membership{Self: self, Nodes: nodes}

	resources := resource.NewRegistry()
	specs, err := buildBlocks(r.Blocks, resources)
	if err != nil {
		return nil, err
	}
	if err := dispatch.ValidateWiring(specs); err != nil {
		return nil, err
	}

	return &Config{
		Self:       self,
		Membership: membership,
		Bootstrap:  bootstrap,
		Blocks:     specs,
	}, nil
}

func buildBlocks(blocks map[string]map[string]interface{}, resources *resource.Registry) (map[string]*block.Spec, error) {
	specs := make(map[string]*block.Spec, len(blocks))

	for name, fields := range blocks {
		spec := &block.Spec{Name: name, Params: make(map[string]interface{})}

		typ, _ := fields["type"].(string)
		if typ == "" {
			return nil, fmt.Errorf("config: block %q: missing type: %w", name, cluster.ErrConfig)
		}
		spec.Type = typ

		if inputs, ok := fields["inputs"].(map[string]interface{}); ok {
			spec.Inputs = make(map[string]string, len(inputs))
			for port, wiring := range inputs {
				s, ok := wiring.(string)
				if !ok {
					return nil, fmt.Errorf("config: block %q: input %q is not a string: %w", name, port, cluster.ErrConfig)
				}
				spec.Inputs[port] = s
			}
		}

		if inputTo, ok := fields["input_to"].([]interface{}); ok {
			for _, t := range inputTo {
				s, ok := t.(string)
				if !ok {
					return nil, fmt.Errorf("config: block %q: input_to entry is not a string: %w", name, cluster.ErrConfig)
				}
				spec.InputTo = append(spec.InputTo, s)
			}
		}

		if optional, ok := fields["optional"].(bool); ok {
			spec.Optional = optional
		}

		if require, ok := fields["require"].([]interface{}); ok {
			rs, err := buildRequires(name, require, resources)
			if err != nil {
				return nil, err
			}
			spec.Resources = rs
		}

		for k, v := range fields {
			switch k {
			case "type", "inputs", "input_to", "require", "optional":
				continue
			}
			spec.Params[k] = v
		}

		specs[name] = spec
	}

	return specs, nil
}

func buildRequires(blockName string, entries []interface{}, resources *resource.Registry) ([]resource.Spec, error) {
	out := make([]resource.Spec, 0, len(entries))
	for _, e := range entries {
		switch v := e.(type) {
		case string:
			// "node=NAME" shorthand, per §6.
			if nodeName, ok := strings.CutPrefix(v, "node="); ok {
				spec, err := resources.Build(map[string]interface{}{"host": nodeName})
				if err != nil {
					return nil, fmt.Errorf("config: block %q: %w: %v", blockName, cluster.ErrConfig, err)
				}
				out = append(out, spec)
				continue
			}
			return nil, fmt.Errorf("config: block %q: unrecognised require shorthand %q: %w", blockName, v, cluster.ErrConfig)
		case map[string]interface{}:
			spec, err := resources.Build(v)
			if err != nil {
				return nil, fmt.Errorf("config: block %q: %w: %v", blockName, cluster.ErrConfig, err)
			}
			out = append(out, spec)
		default:
			return nil, fmt.Errorf("config: block %q: malformed require entry: %w", blockName, cluster.ErrConfig)
		}
	}
	return out, nil
}

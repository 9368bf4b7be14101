package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/cluster"
)

const sampleConfig = `
nodes:
  n1:
    host: 127.0.0.1
    port: 7001
    rpc_port: 8001
  n2:
    host: 127.0.0.1
    port: 7002
    rpc_port: 8002

cluster:
  listen: 0.0.0.0
  port: 7000
  rpc_port: 8000
  connect: []

blocks:
  sensor:
    type: constant
    input_to: ["logger.value"]
    require:
      - "node=n1"
    value: 1
  logger:
    type: logger
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "loom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadResolvesWiringAndRequires(t *testing.T) {
	path := writeTemp(t, sampleConfig)
	cfg, err := Load(path, "n1")
	require.NoError(t, err)

	assert.Len(t, cfg.Membership.Nodes, 2)
	assert.Equal(t, "n1", cfg.Membership.Self)
	assert.Equal(t, []string{"logger.value"}, cfg.Blocks["sensor"].InputTo)
	assert.Equal(t, "sensor", cfg.Blocks["logger"].Inputs["value"])
	require.Len(t, cfg.Blocks["sensor"].Resources, 1)
	assert.Equal(t, "host:n1", cfg.Blocks["sensor"].Resources[0].Describe())
}

func TestLoadRejectsUnknownSelf(t *testing.T) {
	path := writeTemp(t, sampleConfig)
	_, err := Load(path, "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, cluster.ErrConfig)
}

func TestLoadRejectsBadWiring(t *testing.T) {
	bad := sampleConfig + "\n  third:\n    type: logger\n    inputs:\n      value: missing_block\n"
	path := writeTemp(t, bad)
	_, err := Load(path, "n1")
	require.Error(t, err)
	assert.ErrorIs(t, err, cluster.ErrConfig)
}

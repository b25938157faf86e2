package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMasterConfigParsesYAML(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "master.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
coordStore:
  backend: etcd
  endpoints: ["localhost:2379"]
  dialTimeout: 5s
catalog:
  path: /var/lib/regioncore/catalog.bolt
rootPath: /regioncore
timeouts:
  opening: 45s
balanceTick: 1m
`), 0o644))

	cfg, err := LoadMasterConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "etcd", cfg.CoordStore.Backend)
	assert.Equal(t, []string{"localhost:2379"}, cfg.CoordStore.Endpoints)
	assert.Equal(t, 5*time.Second, cfg.CoordStore.DialTimeout)
	assert.Equal(t, "/regioncore", cfg.RootPath)
	assert.Equal(t, time.Minute, cfg.BalanceTick)
}

func TestAssignmentTimeoutsFallsBackToDefaults(t *testing.T) {
	cfg := &MasterConfig{Timeouts: TimeoutsConfig{Opening: 45 * time.Second}}
	timeouts := cfg.AssignmentTimeouts()
	assert.Equal(t, 45*time.Second, timeouts.Opening)
	assert.Equal(t, 30*time.Second, timeouts.Closing)
	assert.Equal(t, 10*time.Second, timeouts.Offline)
}

func TestLoadRegionServerConfigParsesYAML(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "rs.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
host: 10.0.0.5
port: 9100
dataDir: /var/lib/regioncore/data
family: cf
grpc:
  address: 0.0.0.0:9100
`), 0o644))

	cfg, err := LoadRegionServerConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cfg.Host)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "cf", cfg.Family)
}

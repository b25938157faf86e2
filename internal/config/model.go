package config

import (
	"time"

	"regioncore/internal/assignment"
)

// MasterConfig is the on-disk configuration for the Master process: its
// coordination-store and catalog connections, the timeouts governing
// region transitions, and the dispatcher's concurrency knobs.
type MasterConfig struct {
	CoordStore  CoordStoreConfig `yaml:"coordStore"`
	Catalog     CatalogConfig    `yaml:"catalog"`
	RootPath    string           `yaml:"rootPath"`
	Timeouts    TimeoutsConfig   `yaml:"timeouts"`
	Dispatcher  DispatcherConfig `yaml:"dispatcher"`
	BalanceTick time.Duration    `yaml:"balanceTick"`
	Metrics     MetricsConfig    `yaml:"metrics"`
}

// RegionServerConfig is the on-disk configuration for a RegionServer
// process.
type RegionServerConfig struct {
	CoordStore CoordStoreConfig `yaml:"coordStore"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	RootPath   string           `yaml:"rootPath"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	DataDir    string           `yaml:"dataDir"`
	Family     string           `yaml:"family"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type CoordStoreConfig struct {
	// Backend selects the coordination-store implementation: "etcd" for
	// production, "mem" for a single-process in-memory fake used in
	// local development and tests.
	Backend     string        `yaml:"backend"`
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

type TimeoutsConfig struct {
	Opening time.Duration `yaml:"opening"`
	Closing time.Duration `yaml:"closing"`
	Offline time.Duration `yaml:"offline"`
}

// AssignmentTimeouts converts the YAML-level durations into the
// assignment package's Timeouts, falling back to DefaultTimeouts for
// any field left unset.
func (c *MasterConfig) AssignmentTimeouts() assignment.Timeouts {
	defaults := assignment.DefaultTimeouts()
	out := defaults
	if c.Timeouts.Opening > 0 {
		out.Opening = c.Timeouts.Opening
	}
	if c.Timeouts.Closing > 0 {
		out.Closing = c.Timeouts.Closing
	}
	if c.Timeouts.Offline > 0 {
		out.Offline = c.Timeouts.Offline
	}
	return out
}

type DispatcherConfig struct {
	QueueDepth int `yaml:"queueDepth"`
	Workers    int `yaml:"workers"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type MetricsConfig struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
}

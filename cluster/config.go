package cluster

import (
	"strconv"
	"time"
)

// ObserverConfig configures the optional HTTP surface of package observer
// (§4.14, §6).
type ObserverConfig struct {
	HTTPAddr    string `koanf:"http_addr"`
	MetricsPath string `koanf:"metrics_path"`
}

// Config is the full configuration surface of a distributed node (§6). It
// is assembled by package config's koanf loader and handed to NewNode.
type Config struct {
	NodeName string   `koanf:"node_name"`
	Host     string   `koanf:"host"`
	Port     int      `koanf:"port"`
	Seeds    []string `koanf:"seeds"`

	ClusterSecret string `koanf:"cluster_secret"`

	HeartbeatInterval      time.Duration `koanf:"heartbeat_interval_ms"`
	HeartbeatMissThreshold int           `koanf:"heartbeat_miss_threshold"`

	ReconnectDelay             time.Duration `koanf:"reconnect_delay_ms"`
	MaxReconnectDelay          time.Duration `koanf:"max_reconnect_delay_ms"`
	ReconnectBackoffMultiplier float64       `koanf:"reconnect_backoff_multiplier"`

	Observer ObserverConfig `koanf:"observer"`
}

// DefaultConfig returns the documented field defaults (§6), before any
// file or environment layer is applied.
func DefaultConfig() *Config {
	return &Config{
		Host: "0.0.0.0",
		Port: 4369,

		HeartbeatInterval:      5 * time.Second,
		HeartbeatMissThreshold: 3,

		ReconnectDelay:             time.Second,
		MaxReconnectDelay:          30 * time.Second,
		ReconnectBackoffMultiplier: 1.5,

		Observer: ObserverConfig{
			MetricsPath: "/metrics",
		},
	}
}

// NodeID builds this node's wire identity from its configured name, host
// and port: "name@host:port".
func (c *Config) NodeID() string {
	return c.NodeName + "@" + c.Host + ":" + strconv.Itoa(c.Port)
}

// Package config loads a cluster.Config through a layered koanf pipeline:
// built-in defaults, an optional YAML file, then ACTORFRAME_* environment
// overrides — the same defaults-then-file-then-env shape as the teacher
// corpus's koanf-based loaders, generalized to this module's own fields.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/nodeforge/actorframe/cluster"
)

// EnvPrefix is stripped from every ACTORFRAME_* variable before it is
// mapped onto a koanf path, e.g. ACTORFRAME_HEARTBEAT_INTERVAL_MS ->
// heartbeat_interval_ms. Variables starting ACTORFRAME_OBSERVER_ map
// into the observer section, e.g. ACTORFRAME_OBSERVER_HTTP_ADDR ->
// observer.http_addr.
const EnvPrefix = "ACTORFRAME_"

// DefaultPaths lists config file locations searched in order; the first
// one found is loaded.
var DefaultPaths = []string{"config.yaml", "config.yml"}

// Load builds a *cluster.Config from defaults, an optional file at path
// (or the first of DefaultPaths if path is empty), and environment
// overrides (§6).
func Load(path string) (*cluster.Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(cluster.DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(key string) string {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if rest, ok := strings.CutPrefix(key, "observer_"); ok {
			return "observer." + rest
		}
		return key
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	cfg := &cluster.Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.NodeName == "" {
		return nil, fmt.Errorf("config: node_name is required")
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv("ACTORFRAME_CONFIG_PATH"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

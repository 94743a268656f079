package middleware

import (
	"fmt"
	"path/filepath"

	"github.com/phx1999/SDN/structs"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

const DefaultConfigPath = "sdnroute_config.toml"

func DefaultConfig() *structs.Config {
	return &structs.Config{
		Log: structs.LogConfig{
			Dir:   "./logs",
			Level: "info",
		},
		Controller: structs.ControllerConfig{
			EventBuffer: 256,
		},
		Etcd: structs.EtcdConfig{
			Endpoints:          []string{"localhost:2379"},
			DialTimeoutSeconds: 5,
			Prefix:             "/sdn",
		},
		Redis: structs.RedisConfig{
			Address: "127.0.0.1:6379",
			Key:     "sdn:topology_events",
		},
		Storage: structs.StorageConfig{
			DataDir: "./data",
		},
		Health: structs.HealthConfig{
			Listen: ":50051",
		},
	}
}

// LoadConfig reads the TOML configuration file. Keys missing from the file
// keep their defaults.
func LoadConfig(path string) (*structs.Config, error) {
	cfg := DefaultConfig()
	// Get absolute path for clearer error messages if file not found
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("error getting absolute path for %s: %w", path, err)
	}

	log.Infof("Attempting to load configuration from: %s", absPath)

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("error decoding TOML file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Warningf("unknown configuration keys in %s: %v", absPath, undecoded)
	}
	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	if cfg.Etcd.Enabled && len(cfg.Etcd.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd is enabled but no endpoints are configured")
	}
	return cfg, nil
}

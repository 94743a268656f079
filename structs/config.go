package structs

// Config holds the overall configuration structure mapping to sdnroute_config.toml
type Config struct {
	Log        LogConfig        `toml:"log"`
	Controller ControllerConfig `toml:"controller"`
	Etcd       EtcdConfig       `toml:"etcd"`
	Redis      RedisConfig      `toml:"redis"`
	Storage    StorageConfig    `toml:"storage"`
	Health     HealthConfig     `toml:"health"`
}

type LogConfig struct {
	Dir   string `toml:"dir"`
	Level string `toml:"level"` // logrus level name
}

type ControllerConfig struct {
	EventBuffer    int `toml:"event_buffer"`
	ComputeWorkers int `toml:"compute_workers"` // 0 means one per CPU
}

type EtcdConfig struct {
	Enabled            bool     `toml:"enabled"`
	Endpoints          []string `toml:"endpoints"`
	DialTimeoutSeconds int      `toml:"dial_timeout_seconds"`
	Prefix             string   `toml:"prefix"`
}

type RedisConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Key     string `toml:"key"`
}

type StorageConfig struct {
	Enabled bool   `toml:"enabled"`
	DataDir string `toml:"data_dir"`
}

type HealthConfig struct {
	Listen string `toml:"listen"` // empty disables the gRPC health server
}

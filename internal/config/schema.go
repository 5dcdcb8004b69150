package config

import "github.com/majordomo-home/majordomo/internal/gate"

// ServiceConfig is the top-level YAML structure shared by both binaries.
type ServiceConfig struct {
	Bus      BusConf      `yaml:"bus"`
	HTTP     HTTPConf     `yaml:"http"`
	Queue    QueueConf    `yaml:"queue"`
	Memory   MemoryConf   `yaml:"memory"`
	Dispatch DispatchConf `yaml:"dispatch"`
	Registry RegistryConf `yaml:"registry"`
	Gate     GateConf     `yaml:"gate"`
}

// BusConf locates the message broker.
type BusConf struct {
	URL string `yaml:"url"`
}

// HTTPConf configures the query surface.
type HTTPConf struct {
	Addr string `yaml:"addr"`
}

// QueueConf holds event queue tunables.
type QueueConf struct {
	Capacity   int `yaml:"capacity"`
	IdleWaitMs int `yaml:"idle_wait_ms"`
}

// MemoryConf holds event memory tunables.
type MemoryConf struct {
	MaxEvents      int `yaml:"max_events"`
	RetentionHours int `yaml:"retention_hours"`
}

// DispatchConf holds dispatcher tunables.
type DispatchConf struct {
	DefaultTimeoutMs int `yaml:"default_timeout_ms"`
}

// RegistryConf locates the module catalog file.
type RegistryConf struct {
	CatalogPath string `yaml:"catalog_path"`
}

// GateConf configures the speech gate service's bus surface.
type GateConf struct {
	Subjects gate.Subjects `yaml:"subjects"`
}

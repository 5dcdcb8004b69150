package config

import (
	"fmt"
	"strings"
)

// Validate checks the config for out-of-range tunables and missing paths.
// The catalog path is only required by the orchestrator; the gate service
// passes requireCatalog=false.
func Validate(cfg *ServiceConfig, requireCatalog bool) error {
	var errs []string

	if cfg.Queue.Capacity < 0 {
		errs = append(errs, "queue.capacity must not be negative")
	}
	if cfg.Queue.IdleWaitMs < 0 {
		errs = append(errs, "queue.idle_wait_ms must not be negative")
	}
	if cfg.Memory.MaxEvents < 0 {
		errs = append(errs, "memory.max_events must not be negative")
	}
	if cfg.Memory.RetentionHours < 0 {
		errs = append(errs, "memory.retention_hours must not be negative")
	}
	if cfg.Dispatch.DefaultTimeoutMs < 0 {
		errs = append(errs, "dispatch.default_timeout_ms must not be negative")
	}
	if requireCatalog && cfg.Registry.CatalogPath == "" {
		errs = append(errs, "registry.catalog_path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

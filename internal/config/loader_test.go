package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majordomo-home/majordomo/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewLoader_AppliesDefaults(t *testing.T) {
	loader, err := config.NewLoader(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	cfg := loader.Config()
	assert.Equal(t, "nats://localhost:4222", cfg.Bus.URL)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 1000, cfg.Queue.Capacity)
	assert.Equal(t, 1000, cfg.Queue.IdleWaitMs)
	assert.Equal(t, 500, cfg.Memory.MaxEvents)
	assert.Equal(t, 24, cfg.Memory.RetentionHours)
	assert.Equal(t, 10000, cfg.Dispatch.DefaultTimeoutMs)
	assert.Equal(t, "diarization.result", cfg.Gate.Subjects.Results)
	assert.Equal(t, "speech.diarized.%s", cfg.Gate.Subjects.PublishRecognized)
}

func TestNewLoader_ExplicitValuesWin(t *testing.T) {
	loader, err := config.NewLoader(writeConfig(t, `
bus:
  url: "nats://bus.home:4222"
queue:
  capacity: 50
gate:
  subjects:
    results: "custom.results"
`))
	require.NoError(t, err)

	cfg := loader.Config()
	assert.Equal(t, "nats://bus.home:4222", cfg.Bus.URL)
	assert.Equal(t, 50, cfg.Queue.Capacity)
	assert.Equal(t, "custom.results", cfg.Gate.Subjects.Results)
	// Untouched fields still default.
	assert.Equal(t, "speaker.verified", cfg.Gate.Subjects.Verified)
}

func TestNewLoader_Errors(t *testing.T) {
	_, err := config.NewLoader(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.NewLoader(writeConfig(t, "queue: [not a map"))
	assert.Error(t, err)
}

func TestReload_NotifiesSubscribers(t *testing.T) {
	path := writeConfig(t, "queue:\n  capacity: 10\n")
	loader, err := config.NewLoader(path)
	require.NoError(t, err)

	var seen []int
	loader.OnChange(func(cfg *config.ServiceConfig) {
		seen = append(seen, cfg.Queue.Capacity)
	})

	require.NoError(t, os.WriteFile(path, []byte("queue:\n  capacity: 20\n"), 0o644))
	cfg, err := loader.Reload()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Queue.Capacity)
	assert.Equal(t, []int{20}, seen)
	assert.Equal(t, 20, loader.Config().Queue.Capacity)
}

func TestValidate(t *testing.T) {
	loader, err := config.NewLoader(writeConfig(t, "registry:\n  catalog_path: modules.yaml\n"))
	require.NoError(t, err)
	assert.NoError(t, config.Validate(loader.Config(), true))

	// Missing catalog path only matters when required.
	loader, err = config.NewLoader(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.NoError(t, config.Validate(loader.Config(), false))
	assert.ErrorContains(t, config.Validate(loader.Config(), true), "catalog_path")

	bad := loader.Config()
	bad.Queue.Capacity = -1
	bad.Memory.RetentionHours = -2
	err = config.Validate(bad, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue.capacity")
	assert.Contains(t, err.Error(), "memory.retention_hours")
}

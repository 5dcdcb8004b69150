package registry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majordomo-home/majordomo/internal/registry"
)

const catalogYAML = `
modules:
  iot:
    address: "10.0.0.20:8101"
    actions:
      - turn_on_all_lights
      - set_ac_temperature
  messaging:
    address: "10.0.0.21:8102"
    actions:
      - send_push
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	reg, err := registry.Load(writeCatalog(t, catalogYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"iot", "messaging"}, reg.Modules())
	assert.Equal(t, "10.0.0.20:8101", reg.Address("iot"))
	assert.Equal(t, []string{"turn_on_all_lights", "set_ac_temperature"}, reg.Actions("iot"))
	assert.Empty(t, reg.Address("nonexistent"))
	assert.Nil(t, reg.Actions("nonexistent"))
}

func TestLoad_Errors(t *testing.T) {
	_, err := registry.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = registry.Load(writeCatalog(t, "modules: {}\n"))
	assert.ErrorContains(t, err, "no modules")

	_, err = registry.Load(writeCatalog(t, "modules:\n  iot:\n    address: x\n    actions: []\n"))
	assert.ErrorContains(t, err, "declares no actions")

	_, err = registry.Load(writeCatalog(t, "modules: [not a map"))
	assert.Error(t, err)
}

func TestCatalog_SnapshotIsACopy(t *testing.T) {
	reg, err := registry.Load(writeCatalog(t, catalogYAML))
	require.NoError(t, err)

	snap := reg.Catalog()
	require.Contains(t, snap, "iot")
	snap["iot"][0] = "mutated"
	delete(snap, "messaging")

	fresh := reg.Catalog()
	assert.Equal(t, "turn_on_all_lights", fresh["iot"][0])
	assert.Contains(t, fresh, "messaging")
}

func TestReload_AppliesChangesAndNotifies(t *testing.T) {
	path := writeCatalog(t, catalogYAML)
	reg, err := registry.Load(path)
	require.NoError(t, err)

	notified := 0
	reg.OnChange(func() { notified++ })

	updated := `
modules:
  rpa:
    address: "10.0.0.22:8103"
    actions:
      - run_task
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	require.NoError(t, reg.Reload())

	assert.Equal(t, []string{"rpa"}, reg.Modules())
	assert.Equal(t, 1, notified)
}

func TestReload_BrokenFileKeepsOldCatalog(t *testing.T) {
	path := writeCatalog(t, catalogYAML)
	reg, err := registry.Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("modules: {}\n"), 0o644))
	assert.Error(t, reg.Reload())

	// The previous catalog stays in effect.
	assert.Equal(t, []string{"iot", "messaging"}, reg.Modules())
}

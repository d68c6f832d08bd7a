package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ".", cfg.Assets.InstallDir)
	assert.Equal(t, defaultPoolSize, cfg.Assets.PoolSize)
	assert.Equal(t, defaultPrefetchWorkers, cfg.Assets.PrefetchWorkers, "Validate подставляет число воркеров")
	assert.True(t, cfg.Cache.Enabled)
	assert.Empty(t, cfg.Storage.Path, "хранилище патчей выключено по умолчанию")
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapengine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
assets:
  install_dir: /srv/world
  maps_layouts: "7168,4096;7168,4096"
  legacy_client: true
  extended_facets: [0, 1]
  prefetch_workers: 8
cache:
  enabled: false
storage:
  path: /var/lib/mapengine
metrics:
  addr: ":2112"
logging:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/world", cfg.Assets.InstallDir)
	assert.Equal(t, "7168,4096;7168,4096", cfg.Assets.MapsLayouts)
	assert.True(t, cfg.Assets.LegacyClient)
	assert.Equal(t, []int{0, 1}, cfg.Assets.ExtendedFacets)
	assert.Equal(t, 8, cfg.Assets.PrefetchWorkers)
	assert.Equal(t, defaultPoolSize, cfg.Assets.PoolSize, "незаданные поля остаются по умолчанию")
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "/var/lib/mapengine", cfg.Storage.Path)
	assert.Equal(t, ":2112", cfg.Metrics.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapengine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("assets:\n  install_dir: /from/file\n"), 0o644))

	t.Setenv("MAPENGINE_CONFIG", path)
	t.Setenv("MAPENGINE_UO_DIR", "/from/env")
	t.Setenv("MAPENGINE_MAPS_LAYOUTS", "64,64")
	t.Setenv("MAPENGINE_METRICS_ADDR", ":9100")
	t.Setenv("MAPENGINE_PREFETCH_WORKERS", "3")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.Assets.InstallDir, "ENV важнее файла")
	assert.Equal(t, "64,64", cfg.Assets.MapsLayouts)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.Equal(t, 3, cfg.Assets.PrefetchWorkers)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("assets: [unclosed"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	negative := filepath.Join(t.TempDir(), "negative.yaml")
	require.NoError(t, os.WriteFile(negative, []byte("assets:\n  extended_facets: [-1]\n"), 0o644))
	_, err = Load(negative)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Assets.InstallDir = "  "
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Assets.PoolSize = 0
	cfg.Cache.MaxCost = -1
	require.NoError(t, cfg.Validate())
	assert.Equal(t, defaultPoolSize, cfg.Assets.PoolSize)
	assert.Equal(t, int64(defaultCacheMaxCost), cfg.Cache.MaxCost)
}

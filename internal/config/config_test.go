package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SWEEP_DATA_DIR", filepath.Join(t.TempDir(), "data"))
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("GO_PORT", "")
	t.Setenv("SWEEP_SPEC", "")
	t.Setenv("DEV_MODE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.DirExists(t, cfg.DataDir)
	assert.Equal(t, "sweep.yaml", cfg.SpecPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8001, cfg.Port)
	assert.False(t, cfg.DevMode)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SWEEP_DATA_DIR", t.TempDir())
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GO_PORT", "9001")
	t.Setenv("SWEEP_SPEC", "custom.yaml")
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, "custom.yaml", cfg.SpecPath)
	assert.True(t, cfg.DevMode)
}

const specYAML = `
panel:
  sources:
    - name: base
      path: base.csv
      columns: [Close, Weight]
      filter_column: Weight
      filter_min: 0
    - name: factors
      path: factors.csv
      columns: [PB, PE]
  factors: [PB, PE]
  price_column: Close
  momentum:
    period: 20
sweep:
  n_factors_range: [1, 5, 10]
  lambdas: [0, 0.1, 1]
  random_seed: 42
  use_pls: true
  n_pls_components: 2
output:
  csv_dir: out
  cache_path: panel.msgpack
`

func TestLoadSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(specYAML), 0o644))

	spec, err := LoadSpec(path)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 5, 10}, spec.Sweep.FeatureCounts)
	assert.Equal(t, []float64{0, 0.1, 1}, spec.Sweep.Lambdas)
	assert.Equal(t, uint64(42), spec.Sweep.Seed)
	assert.True(t, spec.Sweep.UsePLS)
	assert.Equal(t, 2, spec.Sweep.PLSComponents)

	require.Len(t, spec.Panel.Sources, 2)
	assert.Equal(t, "Weight", spec.Panel.Sources[0].FilterCol)
	assert.Equal(t, []string{"PB", "PE", "ROC_20"}, spec.Panel.FactorNames())

	assert.Equal(t, "out", spec.Output.CSVDir)
	assert.Equal(t, "panel.msgpack", spec.Output.CachePath)
}

func TestLoadSpecRejectsInvalid(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSpec(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("unknown key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sweep.yaml")
		require.NoError(t, os.WriteFile(path, []byte("unexpected: 1\n"), 0o644))
		_, err := LoadSpec(path)
		assert.Error(t, err)
	})

	t.Run("invalid sweep grid", func(t *testing.T) {
		bad := `
panel:
  sources:
    - name: base
      path: base.csv
      columns: [Close]
  factors: [PB]
  price_column: Close
sweep:
  n_factors_range: []
  lambdas: [0.1]
`
		path := filepath.Join(t.TempDir(), "sweep.yaml")
		require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))
		_, err := LoadSpec(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid sweep config")
	})
}

package dataset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/factorsweep/internal/domain"
)

func cachePanel(t *testing.T) *domain.Panel {
	t.Helper()
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	var rows []domain.Row
	for d := 0; d < 3; d++ {
		for _, asset := range []string{"000001", "000002"} {
			rows = append(rows, domain.Row{
				Day:       base.AddDate(0, 0, d),
				Asset:     asset,
				Ret:       0.01 * float64(d+1),
				Exposures: []float64{0.5, -0.5},
			})
		}
	}
	p, err := domain.NewPanel([]string{"PB", "PE"}, rows)
	require.NoError(t, err)
	return p
}

func TestPanelSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.msgpack")
	p := cachePanel(t)

	require.NoError(t, SavePanel(path, p))

	got, err := LoadPanel(path, []string{"PB", "PE"})
	require.NoError(t, err)

	assert.Equal(t, p.FactorNames, got.FactorNames)
	require.Len(t, got.Rows, len(p.Rows))
	for i := range p.Rows {
		assert.True(t, p.Rows[i].Day.Equal(got.Rows[i].Day))
		assert.Equal(t, p.Rows[i].Asset, got.Rows[i].Asset)
		assert.InDelta(t, p.Rows[i].Ret, got.Rows[i].Ret, 1e-12)
		assert.Equal(t, p.Rows[i].Exposures, got.Rows[i].Exposures)
		// Proxy state is never persisted.
		assert.False(t, got.Rows[i].ProxyValid)
	}
}

func TestLoadPanelFactorMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.msgpack")
	require.NoError(t, SavePanel(path, cachePanel(t)))

	_, err := LoadPanel(path, []string{"PB"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "factor set")
}

func TestLoadPanelMissingFile(t *testing.T) {
	_, err := LoadPanel(filepath.Join(t.TempDir(), "absent.msgpack"), nil)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadPanelCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.msgpack")
	require.NoError(t, os.WriteFile(path, []byte("not msgpack"), 0o644))

	_, err := LoadPanel(path, nil)
	assert.Error(t, err)
}

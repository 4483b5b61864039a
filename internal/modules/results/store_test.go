package results

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/factorsweep/internal/database"
	"github.com/aristath/factorsweep/internal/domain"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(database.Config{
		Path: "file:" + t.Name() + "?mode=memory&cache=shared",
		Name: "results-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func sampleSurface() *domain.Surface {
	s := domain.NewSurface([]int{1, 5}, []float64{0, 0.1})
	*s.Cell(0, 0) = domain.Cell{
		Status: domain.CellComputed, Days: 20,
		Mean: 0.01, Std: 0.02, Sharpe: 0.5, SharpeValid: true,
	}
	*s.Cell(0, 1) = domain.Cell{
		Status: domain.CellComputed, Days: 20,
		Mean: 0.01, Std: 0, SharpeValid: false,
	}
	*s.Cell(1, 0) = domain.Cell{
		Status: domain.CellSkipped, Reason: "ridge system singular",
	}
	*s.Cell(1, 1) = domain.Cell{
		Status: domain.CellComputed, Days: 20,
		Mean: -0.005, Std: 0.01, Sharpe: -0.5, SharpeValid: true,
	}
	return s
}

func TestSaveAndLoadSurface(t *testing.T) {
	store := setupStore(t)

	id, err := store.SaveRun(RunMeta{Seed: 42, ProxyWindow: 5}, sampleSurface())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.LoadSurface(id)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 5}, got.FeatureCounts)
	assert.Equal(t, []float64{0, 0.1}, got.Lambdas)

	computed := got.Cells[0][0]
	assert.Equal(t, domain.CellComputed, computed.Status)
	assert.Equal(t, 20, computed.Days)
	assert.InDelta(t, 0.5, computed.Sharpe, 1e-12)
	assert.True(t, computed.SharpeValid)

	noSharpe := got.Cells[0][1]
	assert.Equal(t, domain.CellComputed, noSharpe.Status)
	assert.False(t, noSharpe.SharpeValid)

	skipped := got.Cells[1][0]
	assert.Equal(t, domain.CellSkipped, skipped.Status)
	assert.Equal(t, "ridge system singular", skipped.Reason)
}

func TestSaveRunFillsMeta(t *testing.T) {
	store := setupStore(t)

	id, err := store.SaveRun(RunMeta{Seed: 7}, sampleSurface())
	require.NoError(t, err)

	meta, err := store.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, id, meta.ID)
	assert.Equal(t, uint64(7), meta.Seed)
	assert.False(t, meta.CreatedAt.IsZero())
	// Days defaults to the largest per-cell count.
	assert.Equal(t, 20, meta.Days)
}

func TestListRunsNewestFirst(t *testing.T) {
	store := setupStore(t)

	first, err := store.SaveRun(RunMeta{Seed: 1}, sampleSurface())
	require.NoError(t, err)
	second, err := store.SaveRun(RunMeta{Seed: 2}, sampleSurface())
	require.NoError(t, err)

	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	ids := []string{runs[0].ID, runs[1].ID}
	assert.ElementsMatch(t, []string{first, second}, ids)
}

func TestGetRunNotFound(t *testing.T) {
	store := setupStore(t)
	_, err := store.GetRun("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadSurfaceNotFound(t *testing.T) {
	store := setupStore(t)
	_, err := store.LoadSurface("nope")
	assert.Error(t, err)
}

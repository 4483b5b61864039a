package sweep

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/factorsweep/internal/domain"
	"github.com/aristath/factorsweep/internal/modules/features"
)

func testLog() zerolog.Logger {
	return zerolog.Nop()
}

// syntheticPanel builds a small but non-degenerate panel: four assets,
// two factor columns, enough days for the default proxy window.
func syntheticPanel(t *testing.T, numDays int) *domain.Panel {
	t.Helper()

	assets := []string{"000001", "000002", "000003", "000004"}
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	var rows []domain.Row
	for d := 0; d < numDays; d++ {
		for a, asset := range assets {
			// Deterministic but varied values.
			ret := 0.01*math.Sin(float64(d+1)*0.7+float64(a)) + 0.002*float64(a-1)
			rows = append(rows, domain.Row{
				Day:   base.AddDate(0, 0, d),
				Asset: asset,
				Ret:   ret,
				Exposures: []float64{
					math.Cos(float64(d)*0.3 + float64(a)),
					math.Sin(float64(d)*0.5 - float64(a)*1.3),
				},
			})
		}
	}

	panel, err := domain.NewPanel([]string{"f1", "f2"}, rows)
	require.NoError(t, err)
	return panel
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		FeatureCounts: []int{1, 2},
		Lambdas:       []float64{0, 0.1},
		Seed:          42,
	}
	require.NoError(t, valid.Validate())

	t.Run("empty feature counts", func(t *testing.T) {
		c := valid
		c.FeatureCounts = nil
		assert.Error(t, c.Validate())
	})

	t.Run("empty lambdas", func(t *testing.T) {
		c := valid
		c.Lambdas = nil
		assert.Error(t, c.Validate())
	})

	t.Run("non-positive feature count", func(t *testing.T) {
		c := valid
		c.FeatureCounts = []int{2, 0}
		assert.Error(t, c.Validate())
	})

	t.Run("negative lambda", func(t *testing.T) {
		c := valid
		c.Lambdas = []float64{0.1, -1}
		assert.Error(t, c.Validate())
	})

	t.Run("nan lambda", func(t *testing.T) {
		c := valid
		c.Lambdas = []float64{math.NaN()}
		assert.Error(t, c.Validate())
	})

	t.Run("pls without components", func(t *testing.T) {
		c := valid
		c.UsePLS = true
		assert.Error(t, c.Validate())
	})

	t.Run("pls components exceed feature dimension", func(t *testing.T) {
		c := valid
		c.UsePLS = true
		c.PLSComponents = 3 // n_factors=1 gives dimension 2
		assert.Error(t, c.Validate())
	})
}

func TestRunProducesComputedSurface(t *testing.T) {
	panel := syntheticPanel(t, 12)

	cfg := Config{
		FeatureCounts: []int{1, 2},
		Lambdas:       []float64{0, 1},
		Seed:          42,
		Workers:       2,
	}
	runner := NewRunner(cfg, testLog())

	surface, err := runner.Run(context.Background(), panel)
	require.NoError(t, err)

	require.Equal(t, []int{1, 2}, surface.FeatureCounts)
	require.Equal(t, []float64{0, 1}, surface.Lambdas)

	// 12 days minus the 5-observation proxy window leaves 7 eligible.
	for i := range surface.Cells {
		for j := range surface.Cells[i] {
			cell := surface.Cells[i][j]
			require.Equal(t, domain.CellComputed, cell.Status,
				"cell (%d,%d): %s", i, j, cell.Reason)
			assert.Equal(t, 7, cell.Days)
			assert.False(t, math.IsNaN(cell.Mean))
			assert.False(t, math.IsNaN(cell.Std))
			if cell.SharpeValid {
				assert.False(t, math.IsNaN(cell.Sharpe))
				assert.InDelta(t, cell.Mean/cell.Std, cell.Sharpe, 1e-12)
			}
		}
	}
}

func TestRunIsReproducible(t *testing.T) {
	cfg := Config{
		FeatureCounts: []int{2},
		Lambdas:       []float64{0.5},
		Seed:          7,
	}

	run := func() domain.Cell {
		runner := NewRunner(cfg, testLog())
		surface, err := runner.Run(context.Background(), syntheticPanel(t, 10))
		require.NoError(t, err)
		return surface.Cells[0][0]
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	runner := NewRunner(Config{}, testLog())
	_, err := runner.Run(context.Background(), syntheticPanel(t, 8))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sweep config")
}

func TestRunNoEligibleDays(t *testing.T) {
	// Six days and the default five-observation window leave one
	// eligible day; four days leave none.
	runner := NewRunner(Config{
		FeatureCounts: []int{1},
		Lambdas:       []float64{0.1},
		Seed:          1,
	}, testLog())

	_, err := runner.Run(context.Background(), syntheticPanel(t, 4))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no eligible trading days")
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(Config{
		FeatureCounts: []int{1, 2, 4},
		Lambdas:       []float64{0, 0.1, 1},
		Seed:          42,
	}, testLog())

	_, err := runner.Run(ctx, syntheticPanel(t, 12))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunWithPLS(t *testing.T) {
	runner := NewRunner(Config{
		FeatureCounts: []int{2},
		Lambdas:       []float64{0.5},
		Seed:          42,
		UsePLS:        true,
		PLSComponents: 2,
	}, testLog())

	surface, err := runner.Run(context.Background(), syntheticPanel(t, 12))
	require.NoError(t, err)

	cell := surface.Cells[0][0]
	require.Equal(t, domain.CellComputed, cell.Status, cell.Reason)
	assert.Equal(t, 7, cell.Days)
}

func TestCellStdUsesPopulationDivisor(t *testing.T) {
	// Recompute the per-day returns independently of the runner, then
	// check the cell aggregates against hand-rolled moments: the std
	// must use the population divisor (day count), not count-1.
	cfg := Config{
		FeatureCounts: []int{2},
		Lambdas:       []float64{0.5},
		Seed:          9,
	}
	runner := NewRunner(cfg, testLog())
	surface, err := runner.Run(context.Background(), syntheticPanel(t, 12))
	require.NoError(t, err)

	cell := surface.Cells[0][0]
	require.Equal(t, domain.CellComputed, cell.Status, cell.Reason)

	panel := syntheticPanel(t, 12)
	require.NoError(t, panel.ComputeProxy(DefaultProxyWindow))
	days := panel.DaySlices(2)
	require.Equal(t, cell.Days, len(days))
	require.GreaterOrEqual(t, len(days), 3)

	proj, err := features.Draw(cfg.Seed, 2, 2)
	require.NoError(t, err)
	ev := NewEvaluator(proj, false, 0)

	returns := make([]float64, 0, len(days))
	for _, day := range days {
		ret, err := ev.DayReturn(day, 0.5)
		require.NoError(t, err)
		returns = append(returns, ret)
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	popStd := math.Sqrt(ss / float64(len(returns)))
	sampleStd := math.Sqrt(ss / float64(len(returns)-1))

	assert.InDelta(t, mean, cell.Mean, 1e-12)
	assert.InDelta(t, popStd, cell.Std, 1e-12)
	assert.Greater(t, math.Abs(cell.Std-sampleStd), 1e-15,
		"std must not use the sample divisor")
}

func TestRunSkipsSingularCell(t *testing.T) {
	// Sixteen feature columns from a four-asset cross-section give a
	// covariance of rank at most three; with lambda = 0 the ridge solve
	// fails and the cell must end skipped with a visible reason while
	// the regularized cell and the run itself still succeed.
	runner := NewRunner(Config{
		FeatureCounts: []int{8},
		Lambdas:       []float64{0, 1},
		Seed:          42,
	}, testLog())

	surface, err := runner.Run(context.Background(), syntheticPanel(t, 12))
	require.NoError(t, err)

	skipped := surface.Cells[0][0]
	require.Equal(t, domain.CellSkipped, skipped.Status)
	assert.NotEmpty(t, skipped.Reason)
	assert.Contains(t, skipped.Reason, "singular")
	assert.False(t, skipped.SharpeValid)

	computed := surface.Cells[0][1]
	require.Equal(t, domain.CellComputed, computed.Status, computed.Reason)
	assert.Equal(t, 7, computed.Days)
}

func TestZeroVarianceHasNoSharpe(t *testing.T) {
	// A single eligible day gives a one-element return series, whose
	// population std is zero: the cell is computed but carries no
	// Sharpe, never a NaN.
	runner := NewRunner(Config{
		FeatureCounts: []int{1},
		Lambdas:       []float64{0.5},
		Seed:          3,
	}, testLog())

	surface, err := runner.Run(context.Background(), syntheticPanel(t, 6))
	require.NoError(t, err)

	cell := surface.Cells[0][0]
	require.Equal(t, domain.CellComputed, cell.Status, cell.Reason)
	assert.Equal(t, 1, cell.Days)
	assert.InDelta(t, 0, cell.Std, 1e-12)
	assert.False(t, cell.SharpeValid)
	assert.False(t, math.IsNaN(cell.Mean))
}

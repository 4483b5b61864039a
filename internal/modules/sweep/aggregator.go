package sweep

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/factorsweep/internal/domain"
	"github.com/aristath/factorsweep/internal/modules/features"
)

// DefaultProxyWindow is the trailing window (in observations) of the
// expected-return proxy.
const DefaultProxyWindow = 5

// Config holds the sweep hyperparameters.
type Config struct {
	FeatureCounts []int     `yaml:"n_factors_range"`
	Lambdas       []float64 `yaml:"lambdas"`
	Seed          uint64    `yaml:"random_seed"`
	UsePLS        bool      `yaml:"use_pls"`
	PLSComponents int       `yaml:"n_pls_components"`
	Workers       int       `yaml:"workers"`
	MinAssets     int       `yaml:"min_assets"`
	ProxyWindow   int       `yaml:"proxy_window"`
}

// Validate enforces the configuration-error taxonomy before any
// computation starts.
func (c Config) Validate() error {
	if len(c.FeatureCounts) == 0 {
		return fmt.Errorf("n_factors_range is empty")
	}
	if len(c.Lambdas) == 0 {
		return fmt.Errorf("lambdas is empty")
	}
	for _, n := range c.FeatureCounts {
		if n < 1 {
			return fmt.Errorf("n_factors_range contains non-positive value %d", n)
		}
	}
	for _, l := range c.Lambdas {
		if l < 0 || math.IsNaN(l) {
			return fmt.Errorf("lambdas contains negative or invalid value %g", l)
		}
	}
	if c.UsePLS {
		if c.PLSComponents < 1 {
			return fmt.Errorf("use_pls requires n_pls_components >= 1, got %d", c.PLSComponents)
		}
		for _, n := range c.FeatureCounts {
			if c.PLSComponents > 2*n {
				return fmt.Errorf("n_pls_components %d exceeds feature dimension %d (n_factors=%d)",
					c.PLSComponents, 2*n, n)
			}
		}
	}
	if c.ProxyWindow < 0 {
		return fmt.Errorf("proxy_window must not be negative, got %d", c.ProxyWindow)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Workers < 1 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.ProxyWindow == 0 {
		c.ProxyWindow = DefaultProxyWindow
	}
	if c.MinAssets < 2 {
		c.MinAssets = 2
	}
	return c
}

// Runner sweeps the (feature count x lambda) grid over a panel and
// aggregates per-day portfolio returns into a result surface.
type Runner struct {
	cfg Config
	log zerolog.Logger
}

// NewRunner creates a sweep runner.
func NewRunner(cfg Config, log zerolog.Logger) *Runner {
	return &Runner{
		cfg: cfg,
		log: log.With().Str("component", "sweep").Logger(),
	}
}

// Run executes the full sweep. Configuration and data errors abort the
// run before the grid loop; numerical errors degrade to skipped cells
// that stay visible in the surface. Cancellation is honored between
// days and between cells.
func (r *Runner) Run(ctx context.Context, panel *domain.Panel) (*domain.Surface, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sweep config: %w", err)
	}
	cfg := r.cfg.withDefaults()

	if err := panel.ComputeProxy(cfg.ProxyWindow); err != nil {
		return nil, err
	}

	minAssets := cfg.MinAssets
	if cfg.UsePLS && minAssets < cfg.PLSComponents {
		minAssets = cfg.PLSComponents
	}
	days := panel.DaySlices(minAssets)
	if len(days) == 0 {
		return nil, fmt.Errorf("no eligible trading days remain after proxy and viability filtering (panel has %d days)", panel.NumDays())
	}

	r.log.Info().
		Int("days", len(days)).
		Int("feature_counts", len(cfg.FeatureCounts)).
		Int("lambdas", len(cfg.Lambdas)).
		Int("workers", cfg.Workers).
		Msg("Starting sweep")

	// One projection per feature count, drawn before the day loop and
	// held fixed across every day and lambda of that feature count.
	// The source is re-seeded identically for each count, matching the
	// reference behavior (see DESIGN.md).
	projections := make([]*features.Projection, len(cfg.FeatureCounts))
	for i, n := range cfg.FeatureCounts {
		proj, err := features.Draw(cfg.Seed, len(panel.FactorNames), n)
		if err != nil {
			return nil, fmt.Errorf("drawing projection for n_factors=%d: %w", n, err)
		}
		projections[i] = proj
	}

	surface := domain.NewSurface(cfg.FeatureCounts, cfg.Lambdas)

	// Tasks are partitioned by grid cell, so every task writes a
	// disjoint cell and the surface needs no locking.
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for i := range cfg.FeatureCounts {
		for j := range cfg.Lambdas {
			i, j := i, j
			g.Go(func() error {
				return r.runCell(ctx, projections[i], cfg, days, surface.Cell(i, j),
					cfg.FeatureCounts[i], cfg.Lambdas[j])
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.log.Info().Msg("Sweep complete")
	return surface, nil
}

// runCell evaluates every eligible day for one (feature count, lambda)
// cell. A numerical failure marks the cell skipped and lets the rest of
// the sweep continue; only cancellation aborts the run.
func (r *Runner) runCell(
	ctx context.Context,
	proj *features.Projection,
	cfg Config,
	days []*domain.DaySlice,
	cell *domain.Cell,
	featureCount int,
	lambda float64,
) error {
	ev := NewEvaluator(proj, cfg.UsePLS, cfg.PLSComponents)

	returns := make([]float64, 0, len(days))
	for _, day := range days {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ret, err := ev.DayReturn(day, lambda)
		if err != nil {
			*cell = domain.Cell{Status: domain.CellSkipped, Reason: err.Error()}
			r.log.Warn().
				Int("n_factors", featureCount).
				Float64("lambda", lambda).
				Err(err).
				Msg("Skipping grid cell")
			return nil
		}
		returns = append(returns, ret)
	}

	mean := stat.Mean(returns, nil)
	// Population convention: the day set is the whole series being
	// summarized, not a sample of one.
	std := stat.PopStdDev(returns, nil)

	result := domain.Cell{
		Status: domain.CellComputed,
		Days:   len(returns),
		Mean:   mean,
		Std:    std,
	}
	if std > 0 {
		result.Sharpe = mean / std
		result.SharpeValid = true
	}
	*cell = result

	r.log.Debug().
		Int("n_factors", featureCount).
		Float64("lambda", lambda).
		Float64("mean", mean).
		Float64("std", std).
		Msg("Grid cell complete")
	return nil
}

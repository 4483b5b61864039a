// Package sweep orchestrates the per-day evaluation pipeline and the
// hyperparameter grid aggregation.
package sweep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/factorsweep/internal/domain"
	"github.com/aristath/factorsweep/internal/modules/features"
	"github.com/aristath/factorsweep/internal/modules/markowitz"
)

// Evaluator computes one scalar portfolio return per trading day for a
// fixed projection: map exposures to feature space, optionally reduce,
// estimate proxy stats, solve ridge weights, then project the same-day
// realized returns through the weights. The realized branch reuses
// same-day information deliberately (research-style in-sample Sharpe).
type Evaluator struct {
	proj          *features.Projection
	usePLS        bool
	plsComponents int
}

// NewEvaluator creates an evaluator bound to one drawn projection.
func NewEvaluator(proj *features.Projection, usePLS bool, plsComponents int) *Evaluator {
	return &Evaluator{proj: proj, usePLS: usePLS, plsComponents: plsComponents}
}

// DayReturn runs BuildFeatures -> (Reduce) -> EstimateProxy ->
// SolveWeights -> EstimateRealized -> ComputeReturn for one day and one
// lambda. Any failure belongs to the whole grid cell; the caller
// decides whether to mark the cell skipped.
func (e *Evaluator) DayReturn(day *domain.DaySlice, lambda float64) (float64, error) {
	feats, err := e.proj.Map(day.Exposures)
	if err != nil {
		return 0, fmt.Errorf("feature mapping on %s: %w", day.Date.Format("2006-01-02"), err)
	}

	if e.usePLS {
		feats, err = features.Reduce(feats, day.Proxy, e.plsComponents)
		if err != nil {
			return 0, fmt.Errorf("pls reduction on %s: %w", day.Date.Format("2006-01-02"), err)
		}
	}

	cs, err := markowitz.Estimate(feats, day.Proxy)
	if err != nil {
		return 0, fmt.Errorf("proxy estimation on %s: %w", day.Date.Format("2006-01-02"), err)
	}

	w, err := markowitz.Weights(cs, lambda)
	if err != nil {
		return 0, fmt.Errorf("weight solve on %s: %w", day.Date.Format("2006-01-02"), err)
	}

	fRealized, err := markowitz.FeatureReturns(feats, day.Realized)
	if err != nil {
		return 0, fmt.Errorf("realized projection on %s: %w", day.Date.Format("2006-01-02"), err)
	}

	return mat.Dot(w, fRealized), nil
}

// Package markowitz computes feature-space expected returns and
// covariance, and solves for ridge-regularized portfolio weights.
package markowitz

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CrossSection holds the per-day estimates in feature space: the
// expected-return vector F = Xᵀy and the covariance of the feature
// columns across assets.
type CrossSection struct {
	F   *mat.VecDense
	Cov *mat.SymDense
}

// FeatureReturns computes F = Xᵀy for a feature matrix (assets x d) and
// an aligned per-asset target vector. The realized-return branch of the
// evaluation needs only this linear term, never a second covariance.
func FeatureReturns(x *mat.Dense, y []float64) (*mat.VecDense, error) {
	rows, d := x.Dims()
	if len(y) != rows {
		return nil, fmt.Errorf("target length %d does not match %d rows", len(y), rows)
	}
	f := mat.NewVecDense(d, nil)
	f.MulVec(x.T(), mat.NewVecDense(rows, y))
	return f, nil
}

// Estimate computes the cross-sectional stats for one day: F = Xᵀy and
// the sample covariance (divisor assets-1) of the feature columns. The
// same convention serves both the proxy and realized targets since a
// single estimator produces both.
//
// Fewer than two assets makes the covariance undefined; day-slice
// construction is responsible for never letting such a day get here,
// so it is an error rather than a silent skip.
func Estimate(x *mat.Dense, y []float64) (*CrossSection, error) {
	rows, d := x.Dims()
	if rows < 2 {
		return nil, fmt.Errorf("covariance undefined for %d assets (need at least 2)", rows)
	}
	f, err := FeatureReturns(x, y)
	if err != nil {
		return nil, err
	}
	cov := mat.NewSymDense(d, nil)
	stat.CovarianceMatrix(cov, x, nil)
	return &CrossSection{F: f, Cov: cov}, nil
}

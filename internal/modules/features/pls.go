package features

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// deflationTol is the threshold below which a weight direction or score
// norm is treated as numerically zero, i.e. the fit is degenerate.
const deflationTol = 1e-12

// Reduce fits a single-target partial-least-squares projection of the
// feature matrix (assets x d) against the target vector and returns the
// score matrix (assets x nComponents). X and y are centered before the
// fit; the deflation has no internal randomness, so identical inputs
// produce identical output.
//
// Underdetermined fits are errors, not fallbacks: fewer assets than
// components, more components than feature columns, or a target with no
// informative covariance direction all fail the grid cell that asked
// for them.
func Reduce(x *mat.Dense, y []float64, nComponents int) (*mat.Dense, error) {
	rows, cols := x.Dims()
	if len(y) != rows {
		return nil, fmt.Errorf("target length %d does not match %d rows", len(y), rows)
	}
	if nComponents < 1 {
		return nil, fmt.Errorf("component count must be >= 1, got %d", nComponents)
	}
	if nComponents > cols {
		return nil, fmt.Errorf("component count %d exceeds feature dimension %d", nComponents, cols)
	}
	if rows < nComponents {
		return nil, fmt.Errorf("underdetermined fit: %d assets for %d components", rows, nComponents)
	}

	// Center both sides.
	xd := mat.DenseCopyOf(x)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, xd)
		mean := stat.Mean(col, nil)
		for i := 0; i < rows; i++ {
			xd.Set(i, j, col[i]-mean)
		}
	}
	yMean := stat.Mean(y, nil)
	yd := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		yd.SetVec(i, y[i]-yMean)
	}

	scores := mat.NewDense(rows, nComponents, nil)
	for comp := 0; comp < nComponents; comp++ {
		// Weight direction: covariance of remaining X with remaining y.
		var w mat.VecDense
		w.MulVec(xd.T(), yd)
		norm := mat.Norm(&w, 2)
		if norm < deflationTol {
			return nil, fmt.Errorf("degenerate target: no informative direction for component %d", comp+1)
		}
		w.ScaleVec(1/norm, &w)

		var t mat.VecDense
		t.MulVec(xd, &w)
		tt := mat.Dot(&t, &t)
		if tt < deflationTol {
			return nil, fmt.Errorf("vanishing score variance at component %d", comp+1)
		}

		// Loadings, then deflate X and y.
		var p mat.VecDense
		p.MulVec(xd.T(), &t)
		p.ScaleVec(1/tt, &p)

		var outer mat.Dense
		outer.Outer(1, &t, &p)
		xd.Sub(xd, &outer)

		q := mat.Dot(yd, &t) / tt
		yd.AddScaledVec(yd, -q, &t)

		for i := 0; i < rows; i++ {
			scores.Set(i, comp, t.AtVec(i))
		}
	}
	return scores, nil
}

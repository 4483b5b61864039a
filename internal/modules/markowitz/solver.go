package markowitz

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Weights solves (Cov + lambda*I) w = F for a single penalty value.
// Each lambda of a sweep is solved independently by the grid runner;
// lambda stays a float64 key end to end, with string labels only at
// serialization boundaries. lambda = 0 is legal and reduces to the
// unregularized normal-equations solve. A system that is singular to
// working precision returns an error; the caller may skip that grid
// cell but must never substitute a default weight vector.
func Weights(cs *CrossSection, lambda float64) (*mat.VecDense, error) {
	if lambda < 0 {
		return nil, fmt.Errorf("lambda must be non-negative, got %g", lambda)
	}
	d := cs.F.Len()

	a := mat.NewDense(d, d, nil)
	a.Copy(cs.Cov)
	for i := 0; i < d; i++ {
		a.Set(i, i, a.At(i, i)+lambda)
	}

	var w mat.VecDense
	if err := w.SolveVec(a, cs.F); err != nil {
		return nil, fmt.Errorf("ridge system singular to working precision (lambda=%g): %w", lambda, err)
	}
	return &w, nil
}

// Package features implements the random Fourier feature mapper and the
// optional supervised (PLS) feature reducer.
package features

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// gammaCandidates is the discrete set the frequency scale is drawn from.
var gammaCandidates = []float64{0.5, 0.6, 0.7, 0.8, 0.9, 1.0}

// Projection holds the random Fourier projection for one feature count:
// Omega (exposures x n) and the scalar frequency Gamma. A projection is
// drawn once per feature count and reused unchanged across every
// trading day and every lambda of that feature count's evaluation; it
// is never redrawn inside the day loop.
type Projection struct {
	Omega   *mat.Dense
	Gamma   float64
	NRandom int
}

// Draw samples a projection from a seeded source: Omega i.i.d. standard
// normal in row-major order, then Gamma from the candidate set. The two
// draws share one source in that order, so a given (seed, n) always
// yields the identical projection.
func Draw(seed uint64, numExposures, n int) (*Projection, error) {
	if numExposures < 1 {
		return nil, fmt.Errorf("need at least one exposure column, got %d", numExposures)
	}
	if n < 1 {
		return nil, fmt.Errorf("random feature count must be >= 1, got %d", n)
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}

	omega := mat.NewDense(numExposures, n, nil)
	for i := 0; i < numExposures; i++ {
		for j := 0; j < n; j++ {
			omega.Set(i, j, normal.Rand())
		}
	}
	gamma := gammaCandidates[rng.IntN(len(gammaCandidates))]

	return &Projection{Omega: omega, Gamma: gamma, NRandom: n}, nil
}

// Map transforms an exposure matrix (assets x exposures) into the
// random Fourier feature space (assets x 2n):
//
//	phi(x) = sqrt(2/n) * [cos(gamma * x Omega), sin(gamma * x Omega)]
//
// cos columns first, sin columns second.
func (p *Projection) Map(x *mat.Dense) (*mat.Dense, error) {
	rows, k := x.Dims()
	ko, n := p.Omega.Dims()
	if k != ko {
		return nil, fmt.Errorf("exposure matrix has %d columns, projection expects %d", k, ko)
	}

	var proj mat.Dense
	proj.Mul(x, p.Omega)
	proj.Scale(p.Gamma, &proj)

	scale := math.Sqrt(2.0 / float64(n))
	out := mat.NewDense(rows, 2*n, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < n; j++ {
			v := proj.At(i, j)
			out.Set(i, j, scale*math.Cos(v))
			out.Set(i, n+j, scale*math.Sin(v))
		}
	}
	return out, nil
}

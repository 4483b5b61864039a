package domain

import (
	"strconv"
)

// CellStatus marks whether a grid cell was computed or skipped.
type CellStatus string

const (
	// CellComputed - the cell aggregate was produced from eligible days.
	CellComputed CellStatus = "computed"
	// CellSkipped - a numerical error (e.g. singular ridge system) made
	// the cell unusable; Reason records why. Distinguishable from a
	// legitimately computed value.
	CellSkipped CellStatus = "skipped"
)

// Cell is one (feature count, lambda) aggregate of the sweep.
// Sharpe carries its own validity flag: a zero-variance return series
// has no Sharpe ratio, and that must never degrade into a silent NaN.
type Cell struct {
	Status      CellStatus
	Reason      string
	Days        int
	Mean        float64
	Std         float64
	Sharpe      float64
	SharpeValid bool
}

// Surface is the sweep result: one Cell per (feature count, lambda)
// pair. Lambdas are kept as numeric keys; string labels exist only at
// serialization boundaries (LambdaLabel).
type Surface struct {
	FeatureCounts []int
	Lambdas       []float64
	Cells         [][]Cell // [feature count index][lambda index]
}

// NewSurface allocates an empty surface for the given grid. Every cell
// starts skipped so an unwritten cell can never masquerade as a result.
func NewSurface(featureCounts []int, lambdas []float64) *Surface {
	cells := make([][]Cell, len(featureCounts))
	for i := range cells {
		cells[i] = make([]Cell, len(lambdas))
		for j := range cells[i] {
			cells[i][j] = Cell{Status: CellSkipped, Reason: "not evaluated"}
		}
	}
	return &Surface{
		FeatureCounts: append([]int(nil), featureCounts...),
		Lambdas:       append([]float64(nil), lambdas...),
		Cells:         cells,
	}
}

// Cell returns a pointer to the cell at grid position (i, j). Tasks are
// partitioned by cell, so concurrent writers never alias.
func (s *Surface) Cell(i, j int) *Cell {
	return &s.Cells[i][j]
}

// LambdaLabel renders the column label for a lambda value, e.g.
// "Lambda_0.001". Only serialization code should use this.
func LambdaLabel(lambda float64) string {
	return "Lambda_" + strconv.FormatFloat(lambda, 'g', -1, 64)
}

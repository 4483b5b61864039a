package sweep

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aristath/factorsweep/internal/domain"
)

// Metric selects which matrix of the surface to serialize.
type Metric string

const (
	MetricMean   Metric = "mean"
	MetricStd    Metric = "std"
	MetricSharpe Metric = "sharpe"
)

// RenderTable writes the Sharpe surface as a console table: one row per
// feature count, one column per lambda. Skipped cells render their
// status, zero-variance cells render an explicit dash - never a NaN.
func RenderTable(w io.Writer, s *domain.Surface) {
	t := table.NewWriter()
	t.SetOutputMirror(w)

	header := table.Row{"n_factors"}
	for _, lambda := range s.Lambdas {
		header = append(header, domain.LambdaLabel(lambda))
	}
	t.AppendHeader(header)

	for i, n := range s.FeatureCounts {
		row := table.Row{n}
		for j := range s.Lambdas {
			cell := s.Cells[i][j]
			switch {
			case cell.Status == domain.CellSkipped:
				row = append(row, "skipped")
			case !cell.SharpeValid:
				row = append(row, "-")
			default:
				row = append(row, fmt.Sprintf("%.4f", cell.Sharpe))
			}
		}
		t.AppendRow(row)
	}
	t.Render()
}

// WriteCSV serializes one metric matrix of the surface. Undefined
// values (skipped cells, undefined Sharpe) become empty fields so a
// downstream reader can tell them from legitimate zeros.
func WriteCSV(w io.Writer, s *domain.Surface, metric Metric) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(s.Lambdas)+1)
	header = append(header, "n_factors")
	for _, lambda := range s.Lambdas {
		header = append(header, domain.LambdaLabel(lambda))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, n := range s.FeatureCounts {
		record := make([]string, 0, len(s.Lambdas)+1)
		record = append(record, strconv.Itoa(n))
		for j := range s.Lambdas {
			cell := s.Cells[i][j]
			record = append(record, renderValue(cell, metric))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func renderValue(cell domain.Cell, metric Metric) string {
	if cell.Status != domain.CellComputed {
		return ""
	}
	switch metric {
	case MetricMean:
		return strconv.FormatFloat(cell.Mean, 'g', -1, 64)
	case MetricStd:
		return strconv.FormatFloat(cell.Std, 'g', -1, 64)
	case MetricSharpe:
		if !cell.SharpeValid {
			return ""
		}
		return strconv.FormatFloat(cell.Sharpe, 'g', -1, 64)
	default:
		return ""
	}
}

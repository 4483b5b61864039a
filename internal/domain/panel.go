// Package domain holds the pure data types of the sweep pipeline.
// Nothing in this package touches I/O; panels are built by the dataset
// module and consumed read-only by the sweep.
package domain

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Row is a single (trading day, asset) observation: the realized return
// plus the standardized factor exposures for that day. Proxy is the
// trailing-average expected-return target; it is populated by
// Panel.ComputeProxy and is invalid until then.
type Row struct {
	Day        time.Time `msgpack:"day"`
	Asset      string    `msgpack:"asset"`
	Ret        float64   `msgpack:"ret"`
	Exposures  []float64 `msgpack:"exposures"`
	Proxy      float64   `msgpack:"-"`
	ProxyValid bool      `msgpack:"-"`
}

// Panel is the cleaned factor panel: rows ordered by (day, asset), one
// row per pair, no missing values in the return or exposure columns.
type Panel struct {
	FactorNames []string
	Rows        []Row
}

// NewPanel validates and orders the rows into a Panel. Violations of
// the panel invariants (duplicate pairs, missing values, ragged
// exposure rows) are data errors and abort the run.
func NewPanel(factorNames []string, rows []Row) (*Panel, error) {
	if len(factorNames) == 0 {
		return nil, fmt.Errorf("panel has no factor columns")
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("panel has no rows")
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Day.Equal(rows[j].Day) {
			return rows[i].Day.Before(rows[j].Day)
		}
		return rows[i].Asset < rows[j].Asset
	})

	for i := range rows {
		r := &rows[i]
		if len(r.Exposures) != len(factorNames) {
			return nil, fmt.Errorf("row (%s, %s) has %d exposures, want %d",
				r.Day.Format("2006-01-02"), r.Asset, len(r.Exposures), len(factorNames))
		}
		if math.IsNaN(r.Ret) || math.IsInf(r.Ret, 0) {
			return nil, fmt.Errorf("row (%s, %s) has invalid return",
				r.Day.Format("2006-01-02"), r.Asset)
		}
		for k, v := range r.Exposures {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("row (%s, %s) has invalid exposure %s",
					r.Day.Format("2006-01-02"), r.Asset, factorNames[k])
			}
		}
		if i > 0 && rows[i-1].Day.Equal(r.Day) && rows[i-1].Asset == r.Asset {
			return nil, fmt.Errorf("duplicate panel row (%s, %s)",
				r.Day.Format("2006-01-02"), r.Asset)
		}
	}

	return &Panel{FactorNames: factorNames, Rows: rows}, nil
}

// NumDays returns the number of distinct trading days in the panel.
func (p *Panel) NumDays() int {
	n := 0
	for i := range p.Rows {
		if i == 0 || !p.Rows[i].Day.Equal(p.Rows[i-1].Day) {
			n++
		}
	}
	return n
}

// ComputeProxy fills the expected-return proxy for every row: the
// trailing rolling mean of the asset's own return series over `window`
// observations, requiring a full window and shifted forward one day so
// the value at day t only uses returns strictly before t. Rows without
// enough history keep ProxyValid == false. The proxy is computed over
// the full asset history before any per-day slicing.
func (p *Panel) ComputeProxy(window int) error {
	if window < 1 {
		return fmt.Errorf("proxy window must be >= 1, got %d", window)
	}

	// Index rows per asset in chronological order. Rows are sorted by
	// (day, asset), so per-asset order follows the day order.
	byAsset := make(map[string][]int)
	for i := range p.Rows {
		byAsset[p.Rows[i].Asset] = append(byAsset[p.Rows[i].Asset], i)
	}

	for _, idx := range byAsset {
		var sum float64
		for pos, i := range idx {
			// Proxy at position pos is the mean of returns at
			// positions [pos-window, pos-1].
			if pos >= window {
				p.Rows[i].Proxy = sum / float64(window)
				p.Rows[i].ProxyValid = true
			}
			sum += p.Rows[i].Ret
			if pos >= window {
				sum -= p.Rows[idx[pos-window]].Ret
			}
		}
	}
	return nil
}

// DaySlice is the per-day cross-section handed to the evaluator: the
// exposure matrix plus the proxy and realized target vectors, all
// aligned to the same asset ordering by construction.
type DaySlice struct {
	Date      time.Time
	Assets    []string
	Exposures *mat.Dense // assets x factors
	Proxy     []float64
	Realized  []float64
}

// NumAssets returns the number of assets in the slice.
func (d *DaySlice) NumAssets() int { return len(d.Assets) }

// DaySlices splits the panel into eligible per-day cross-sections.
// A day is dropped entirely (no partial weighting) when any of its
// rows lacks a proxy value or when it has fewer than minAssets rows.
// Sparse coverage at the start of a series is expected, so exclusion
// is silent; the caller decides whether zero eligible days is fatal.
func (p *Panel) DaySlices(minAssets int) []*DaySlice {
	if minAssets < 2 {
		minAssets = 2 // covariance is undefined below two assets
	}

	var out []*DaySlice
	k := len(p.FactorNames)

	start := 0
	for i := 1; i <= len(p.Rows); i++ {
		if i < len(p.Rows) && p.Rows[i].Day.Equal(p.Rows[start].Day) {
			continue
		}
		rows := p.Rows[start:i]
		start = i

		if len(rows) < minAssets {
			continue
		}
		eligible := true
		for j := range rows {
			if !rows[j].ProxyValid {
				eligible = false
				break
			}
		}
		if !eligible {
			continue
		}

		ds := &DaySlice{
			Date:      rows[0].Day,
			Assets:    make([]string, len(rows)),
			Exposures: mat.NewDense(len(rows), k, nil),
			Proxy:     make([]float64, len(rows)),
			Realized:  make([]float64, len(rows)),
		}
		for j := range rows {
			ds.Assets[j] = rows[j].Asset
			ds.Exposures.SetRow(j, rows[j].Exposures)
			ds.Proxy[j] = rows[j].Proxy
			ds.Realized[j] = rows[j].Ret
		}
		out = append(out, ds)
	}
	return out
}

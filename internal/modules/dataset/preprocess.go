package dataset

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/factorsweep/internal/domain"
)

var nan = math.NaN()

// record is the mutable working row of the cleaning pipeline. Missing
// values are NaN until dropIncomplete removes whatever is left.
type record struct {
	day     time.Time
	asset   string
	price   float64
	ret     float64
	factors []float64
}

// frameToRecords parses the merged dataframe into typed records with
// standardized keys. Missing required columns are data errors.
func frameToRecords(df dataframe.DataFrame, spec PanelSpec) ([]*record, error) {
	names := df.Names()
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}

	required := append([]string{dayColumn, assetColumn, spec.PriceColumn}, spec.Factors...)
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("merged data is missing required column %q", col)
		}
	}

	raw := df.Records() // first row is the header
	if len(raw) < 2 {
		return nil, fmt.Errorf("merged data has no rows")
	}

	recs := make([]*record, 0, len(raw)-1)
	for _, fields := range raw[1:] {
		day, err := parseDay(fields[index[dayColumn]])
		if err != nil {
			return nil, err
		}
		r := &record{
			day:     day,
			asset:   standardizeAsset(fields[index[assetColumn]]),
			price:   parseFloat(fields[index[spec.PriceColumn]]),
			ret:     nan,
			factors: make([]float64, 0, len(spec.Factors)+1),
		}
		for _, f := range spec.Factors {
			r.factors = append(r.factors, parseFloat(fields[index[f]]))
		}
		recs = append(recs, r)
	}

	// Per-asset chronological order for the grouped passes below.
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].asset != recs[j].asset {
			return recs[i].asset < recs[j].asset
		}
		return recs[i].day.Before(recs[j].day)
	})
	return recs, nil
}

// assetGroups yields [start, end) index ranges of consecutive records
// for one asset. Records must already be sorted by (asset, day).
func assetGroups(recs []*record, fn func(group []*record)) {
	start := 0
	for i := 1; i <= len(recs); i++ {
		if i < len(recs) && recs[i].asset == recs[start].asset {
			continue
		}
		fn(recs[start:i])
		start = i
	}
}

// addReturns fills the per-asset percentage-change return:
// ret[t] = price[t]/price[t-1] - 1. The first observation of each asset
// has no return and stays NaN.
func addReturns(recs []*record) {
	assetGroups(recs, func(group []*record) {
		for i := 1; i < len(group); i++ {
			prev, cur := group[i-1].price, group[i].price
			if math.IsNaN(prev) || math.IsNaN(cur) || prev == 0 {
				continue
			}
			group[i].ret = cur/prev - 1
		}
	})
}

func momentumName(period int) string {
	return fmt.Sprintf("ROC_%d", period)
}

// addMomentum appends a derived rate-of-change factor computed from the
// raw price series of each asset. talib pads the lookback window with
// zeros, so those positions are forced back to NaN to keep the
// missing-data contract.
func addMomentum(recs []*record, period int) {
	assetGroups(recs, func(group []*record) {
		prices := make([]float64, len(group))
		for i, r := range group {
			prices[i] = r.price
		}

		var roc []float64
		if len(prices) > period {
			roc = talib.Roc(prices, period)
		}
		for i, r := range group {
			v := nan
			if roc != nil && i >= period && !math.IsNaN(prices[i]) && !math.IsNaN(prices[i-period]) {
				v = roc[i]
			}
			r.factors = append(r.factors, v)
		}
	})
}

// forwardFillByAsset carries the last observed value of each factor
// forward within an asset's history. Leading gaps stay NaN.
func forwardFillByAsset(recs []*record, numFactors int) {
	assetGroups(recs, func(group []*record) {
		last := make([]float64, numFactors)
		for k := range last {
			last[k] = nan
		}
		for _, r := range group {
			for k := 0; k < numFactors; k++ {
				if math.IsNaN(r.factors[k]) {
					r.factors[k] = last[k]
				} else {
					last[k] = r.factors[k]
				}
			}
		}
	})
}

// zscoreByDay standardizes each factor column within each trading day:
// z = (x - mean) / std, sample std. Day-columns with fewer than two
// observed values or zero variance become missing for every asset on
// that day (and are dropped later), never silently zero.
func zscoreByDay(recs []*record, numFactors int) {
	byDay := make(map[int64][]*record)
	for _, r := range recs {
		key := r.day.Unix()
		byDay[key] = append(byDay[key], r)
	}

	for _, group := range byDay {
		for k := 0; k < numFactors; k++ {
			vals := make([]float64, 0, len(group))
			for _, r := range group {
				if !math.IsNaN(r.factors[k]) {
					vals = append(vals, r.factors[k])
				}
			}
			if len(vals) < 2 {
				for _, r := range group {
					r.factors[k] = nan
				}
				continue
			}
			mean := stat.Mean(vals, nil)
			std := stat.StdDev(vals, nil)
			if std == 0 || math.IsNaN(std) {
				for _, r := range group {
					r.factors[k] = nan
				}
				continue
			}
			for _, r := range group {
				if !math.IsNaN(r.factors[k]) {
					r.factors[k] = (r.factors[k] - mean) / std
				}
			}
		}
	}
}

// dropIncomplete keeps only rows with a realized return and a full set
// of factor exposures, converting them to immutable panel rows.
func dropIncomplete(recs []*record, numFactors int) []domain.Row {
	rows := make([]domain.Row, 0, len(recs))
	for _, r := range recs {
		if math.IsNaN(r.ret) {
			continue
		}
		complete := true
		for k := 0; k < numFactors; k++ {
			if math.IsNaN(r.factors[k]) {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		rows = append(rows, domain.Row{
			Day:       r.day,
			Asset:     r.asset,
			Ret:       r.ret,
			Exposures: append([]float64(nil), r.factors[:numFactors]...),
		})
	}
	return rows
}

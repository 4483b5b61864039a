// Package dataset loads the raw factor CSVs and cleans them into the
// panel the sweep consumes: select, filter and merge the sources, build
// per-asset returns, forward-fill, standardize by day and drop rows
// with missing required values.
package dataset

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/rs/zerolog"

	"github.com/aristath/factorsweep/internal/domain"
)

// Key columns shared by every source file.
const (
	dayColumn   = "TradingDay"
	assetColumn = "SecuCode"
)

// assetCodeWidth is the zero-padded width of a standardized asset code.
const assetCodeWidth = 6

// SourceSpec declares one CSV source: which value columns to keep and
// an optional "column > threshold" row filter (e.g. universe weight
// greater than zero).
type SourceSpec struct {
	Name      string   `yaml:"name"`
	Path      string   `yaml:"path"`
	Columns   []string `yaml:"columns"`
	FilterCol string   `yaml:"filter_column,omitempty"`
	FilterMin float64  `yaml:"filter_min,omitempty"`
}

// MomentumSpec enables a derived rate-of-change factor computed from
// the price column over the given period.
type MomentumSpec struct {
	Period int `yaml:"period"`
}

// PanelSpec declares the full panel: the sources to merge (the first is
// the base/universe source), the factor columns, the price column the
// returns are derived from, and the optional derived momentum factor.
type PanelSpec struct {
	Sources     []SourceSpec  `yaml:"sources"`
	Factors     []string      `yaml:"factors"`
	PriceColumn string        `yaml:"price_column"`
	Momentum    *MomentumSpec `yaml:"momentum,omitempty"`
}

// Validate surfaces data-spec errors before any file is touched.
func (s PanelSpec) Validate() error {
	if len(s.Sources) == 0 {
		return fmt.Errorf("panel spec has no sources")
	}
	if len(s.Factors) == 0 {
		return fmt.Errorf("panel spec has no factor columns")
	}
	if s.PriceColumn == "" {
		return fmt.Errorf("panel spec has no price column")
	}
	if s.Momentum != nil && s.Momentum.Period < 1 {
		return fmt.Errorf("momentum period must be >= 1, got %d", s.Momentum.Period)
	}
	return nil
}

// FactorNames returns the final factor columns of the cleaned panel,
// including the derived momentum factor when enabled.
func (s PanelSpec) FactorNames() []string {
	names := append([]string(nil), s.Factors...)
	if s.Momentum != nil {
		names = append(names, momentumName(s.Momentum.Period))
	}
	return names
}

// Loader reads and merges the raw sources.
type Loader struct {
	log zerolog.Logger
}

// NewLoader creates a dataset loader.
func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{log: log.With().Str("component", "dataset").Logger()}
}

// LoadMerged reads every source and left-joins them sequentially on
// (TradingDay, SecuCode). The first source acts as the base universe.
func (l *Loader) LoadMerged(specs []SourceSpec) (dataframe.DataFrame, error) {
	if len(specs) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("no sources to load")
	}

	merged, err := l.loadOne(specs[0])
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	for _, spec := range specs[1:] {
		df, err := l.loadOne(spec)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		merged = merged.LeftJoin(df, dayColumn, assetColumn)
		if merged.Err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("merging source %s: %w", spec.Name, merged.Err)
		}
	}

	l.log.Info().
		Int("sources", len(specs)).
		Int("rows", merged.Nrow()).
		Msg("Sources merged")
	return merged, nil
}

func (l *Loader) loadOne(spec SourceSpec) (dataframe.DataFrame, error) {
	f, err := os.Open(spec.Path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("missing file for %s: %w", spec.Name, err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("reading %s: %w", spec.Name, df.Err)
	}

	cols := append([]string{dayColumn, assetColumn}, spec.Columns...)
	df = df.Select(cols)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("selecting columns from %s: %w", spec.Name, df.Err)
	}

	if spec.FilterCol != "" {
		df = df.Filter(dataframe.F{
			Colname:    spec.FilterCol,
			Comparator: series.Greater,
			Comparando: spec.FilterMin,
		})
		if df.Err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("filtering %s: %w", spec.Name, df.Err)
		}
	}

	l.log.Debug().Str("source", spec.Name).Int("rows", df.Nrow()).Msg("Source loaded")
	return df, nil
}

// standardizeAsset zero-pads an asset code to the fixed width, matching
// the key normalization of the upstream data vendor.
func standardizeAsset(code string) string {
	code = strings.TrimSpace(code)
	if len(code) >= assetCodeWidth {
		return code
	}
	return strings.Repeat("0", assetCodeWidth-len(code)) + code
}

// dayFormats are the date layouts accepted in the TradingDay column.
var dayFormats = []string{"2006-01-02", "2006-01-02 15:04:05", "20060102", "2006/01/02"}

func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dayFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable trading day %q", s)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nan
	}
	return v
}

// BuildPanel runs the whole pipeline: merge sources, standardize keys,
// derive returns (and the optional momentum factor), forward-fill by
// asset, z-score by day and drop incomplete rows. The result satisfies
// the panel invariants or the build fails.
func (l *Loader) BuildPanel(spec PanelSpec) (*domain.Panel, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	merged, err := l.LoadMerged(spec.Sources)
	if err != nil {
		return nil, err
	}

	recs, err := frameToRecords(merged, spec)
	if err != nil {
		return nil, err
	}

	factorNames := append([]string(nil), spec.Factors...)
	addReturns(recs)
	if spec.Momentum != nil {
		addMomentum(recs, spec.Momentum.Period)
		factorNames = append(factorNames, momentumName(spec.Momentum.Period))
	}
	forwardFillByAsset(recs, len(factorNames))
	zscoreByDay(recs, len(factorNames))
	rows := dropIncomplete(recs, len(factorNames))

	if len(rows) == 0 {
		return nil, fmt.Errorf("all rows dropped during cleaning; check source coverage")
	}

	panel, err := domain.NewPanel(factorNames, rows)
	if err != nil {
		return nil, err
	}

	l.log.Info().
		Int("rows", len(panel.Rows)).
		Int("days", panel.NumDays()).
		Int("factors", len(factorNames)).
		Msg("Panel built")
	return panel, nil
}

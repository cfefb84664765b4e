// Package dataprep turns a raw song table into a model-ready one: the Cleaner
// removes duplicates and invalid targets and resolves missing values, the
// FeatureEngineer derives columns and removes anomalous rows.
package dataprep

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/songstreams/dataset"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/pkg/log"
)

// Missing-value policies.
const (
	PolicyDrop   = "drop"
	PolicyImpute = "impute"
)

// Imputation strategies for numeric columns.
const (
	ImputeZero   = "zero"
	ImputeMean   = "mean"
	ImputeMedian = "median"
)

// CleanOptions configures the Cleaner.
type CleanOptions struct {
	DropDuplicates bool
	// Coerce lists text columns converted to numbers. nil means the schema's Coerce list.
	Coerce []string
	// ThousandsSeparator is stripped before parsing coerced cells.
	ThousandsSeparator string
	// Policy is PolicyDrop or PolicyImpute.
	Policy string
	// Strategy is the numeric imputation strategy under PolicyImpute.
	Strategy string
	// TextFill replaces missing text cells under PolicyImpute.
	TextFill string
}

// DefaultCleanOptions drops duplicates and zero-fills missing values.
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{
		DropDuplicates:     true,
		ThousandsSeparator: ",",
		Policy:             PolicyImpute,
		Strategy:           ImputeZero,
		TextFill:           "unknown",
	}
}

// Validate checks the option values.
func (o CleanOptions) Validate() error {
	switch o.Policy {
	case PolicyDrop, PolicyImpute:
	default:
		return errors.NewValidationError("clean.policy", "must be drop or impute", o.Policy)
	}
	switch o.Strategy {
	case ImputeZero, ImputeMean, ImputeMedian:
	default:
		return errors.NewValidationError("clean.strategy", "must be zero, mean or median", o.Strategy)
	}
	return nil
}

// CleanStats summarises what the Cleaner changed.
type CleanStats struct {
	RowsIn         int            `json:"rows_in"`
	RowsOut        int            `json:"rows_out"`
	Duplicates     int            `json:"duplicates"`
	InvalidTargets int            `json:"invalid_targets"`
	DroppedMissing int            `json:"dropped_missing"`
	ImputedCells   int            `json:"imputed_cells"`
	Unparseable    map[string]int `json:"unparseable,omitempty"`
}

// Cleaner removes or repairs invalid records.
type Cleaner struct {
	opts   CleanOptions
	logger log.Logger
}

// NewCleaner validates opts and creates a Cleaner.
func NewCleaner(opts CleanOptions) (*Cleaner, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Cleaner{
		opts:   opts,
		logger: log.GetLoggerWithName("dataprep").With(log.StageKey, "clean"),
	}, nil
}

// Clean returns a new Dataset in which every mandatory column (the schema's
// required columns) is free of missing values and the target is finite and
// non-negative. The input is not modified.
func (c *Cleaner) Clean(in *dataset.Dataset) (*dataset.Dataset, CleanStats, error) {
	stats := CleanStats{RowsIn: in.Len(), Unparseable: map[string]int{}}
	ds := in

	// 1. exact duplicates, first occurrence kept
	if c.opts.DropDuplicates {
		seen := make(map[string]bool, ds.Len())
		keep := make([]bool, ds.Len())
		for i := range keep {
			key := ds.RowKey(i)
			keep[i] = !seen[key]
			seen[key] = true
			if !keep[i] {
				stats.Duplicates++
			}
		}
		var err error
		if ds, err = ds.Filter(keep); err != nil {
			return nil, stats, err
		}
	} else {
		ds = ds.Clone()
	}

	// 2. numeric coercion
	coerce := c.opts.Coerce
	if coerce == nil {
		coerce = ds.Schema().Coerce
	}
	for _, name := range coerce {
		bad, err := c.coerceColumn(ds, name)
		if err != nil {
			return nil, stats, err
		}
		if bad > 0 {
			stats.Unparseable[name] = bad
			errors.Warn(errors.NewDataConversionWarning(name, bad, "unparseable cells after removing thousands separators"))
		}
	}

	// 3. target invariant
	target := ds.Schema().Target
	y, err := ds.Numeric(target)
	if err != nil {
		return nil, stats, err
	}
	keep := make([]bool, ds.Len())
	for i, v := range y {
		keep[i] = !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
		if !keep[i] {
			stats.InvalidTargets++
		}
	}
	if ds, err = ds.Filter(keep); err != nil {
		return nil, stats, err
	}

	// 4. missing values
	switch c.opts.Policy {
	case PolicyDrop:
		ds, stats.DroppedMissing, err = c.dropMissing(ds)
	case PolicyImpute:
		stats.ImputedCells, err = c.impute(ds)
	}
	if err != nil {
		return nil, stats, err
	}
	if ds.Len() == 0 {
		return nil, stats, errors.Wrap(errors.ErrEmptyData, "no rows left after cleaning")
	}

	stats.RowsOut = ds.Len()
	c.logger.Info("Dataset cleaned",
		"rows_in", stats.RowsIn,
		"rows_out", stats.RowsOut,
		"duplicates", stats.Duplicates,
		"invalid_targets", stats.InvalidTargets,
		"imputed_cells", stats.ImputedCells,
		log.DroppedKey, stats.DroppedMissing,
	)
	return ds, stats, nil
}

func (c *Cleaner) coerceColumn(ds *dataset.Dataset, name string) (int, error) {
	col, ok := ds.Column(name)
	if !ok {
		return 0, errors.NewSchemaError(name, "column to coerce not found")
	}
	if col.Kind == dataset.Numeric {
		return 0, nil
	}

	values := make([]float64, len(col.Text))
	bad := 0
	for i, cell := range col.Text {
		s := strings.TrimSpace(cell)
		if c.opts.ThousandsSeparator != "" {
			s = strings.ReplaceAll(s, c.opts.ThousandsSeparator, "")
		}
		if s == "" {
			values[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			values[i] = math.NaN()
			bad++
			continue
		}
		values[i] = v
	}
	return bad, ds.SetNumeric(name, values)
}

func (c *Cleaner) dropMissing(ds *dataset.Dataset) (*dataset.Dataset, int, error) {
	mandatory := ds.Schema().Required()
	keep := make([]bool, ds.Len())
	dropped := 0
	for i := range keep {
		keep[i] = true
		for _, name := range mandatory {
			col, ok := ds.Column(name)
			if !ok {
				return nil, 0, errors.NewSchemaError(name, "mandatory column not found")
			}
			if col.IsMissing(i) {
				keep[i] = false
				dropped++
				break
			}
		}
	}
	out, err := ds.Filter(keep)
	return out, dropped, err
}

// impute fills every missing cell of every column in place.
func (c *Cleaner) impute(ds *dataset.Dataset) (int, error) {
	filled := 0
	for _, name := range ds.Columns() {
		col, _ := ds.Column(name)
		if col.Kind == dataset.Text {
			for i := range col.Text {
				if col.Text[i] == "" {
					col.Text[i] = c.opts.TextFill
					filled++
				}
			}
			continue
		}

		fill := c.fillValue(col.Numeric)
		for i, v := range col.Numeric {
			if math.IsNaN(v) {
				col.Numeric[i] = fill
				filled++
			}
		}
	}
	return filled, nil
}

// fillValue computes the replacement from the observed values, sorted so that
// the result does not depend on row order.
func (c *Cleaner) fillValue(values []float64) float64 {
	if c.opts.Strategy == ImputeZero {
		return 0
	}
	observed := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			observed = append(observed, v)
		}
	}
	if len(observed) == 0 {
		return 0
	}
	sort.Float64s(observed)

	switch c.opts.Strategy {
	case ImputeMean:
		return floats.Sum(observed) / float64(len(observed))
	default:
		return median(observed)
	}
}

// median of sorted values; the mean of the two middle values for even n.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

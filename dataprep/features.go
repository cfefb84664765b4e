package dataprep

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/songstreams/dataset"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/pkg/log"
	"github.com/YuminosukeSato/songstreams/sklearn/ensemble"
)

// Derived column names.
const (
	ColDaysSinceRelease = "days_since_release"
	ColTotalPlaylists   = "total_playlists"
	ColChartPresence    = "chart_presence"
)

// Anomaly detection methods.
const (
	AnomalyZScore          = "zscore"
	AnomalyIsolationForest = "isolation_forest"
	AnomalyNone            = "none"
)

var (
	playlistColumns = []string{"in_spotify_playlists", "in_apple_playlists", "in_deezer_playlists"}
	chartColumns    = []string{"in_spotify_charts", "in_apple_charts", "in_deezer_charts", "in_shazam_charts"}
)

// ModelFeatures returns the model inputs: the schema features followed by
// days_since_release.
func ModelFeatures(schema dataset.Schema) []string {
	out := append([]string(nil), schema.Features...)
	return append(out, ColDaysSinceRelease)
}

// FeatureOptions configures the FeatureEngineer.
type FeatureOptions struct {
	// ReferenceDate anchors days_since_release. Zero means today (UTC).
	ReferenceDate time.Time
	// Derive adds the derived columns.
	Derive bool
	// AnomalyMethod is zscore, isolation_forest or none.
	AnomalyMethod string
	// Threshold is the z-score above which a row is removed.
	Threshold float64
	// AnomalyColumns defaults to ModelFeatures of the dataset schema.
	AnomalyColumns []string

	Contamination float64
	Trees         int
	MaxSamples    int
	Seed          uint64
}

// DefaultFeatureOptions derives every column and removes rows beyond 3 standard deviations.
func DefaultFeatureOptions() FeatureOptions {
	return FeatureOptions{
		Derive:        true,
		AnomalyMethod: AnomalyZScore,
		Threshold:     3,
		Contamination: 0.05,
		Trees:         100,
		MaxSamples:    256,
		Seed:          42,
	}
}

// Validate checks the option values.
func (o FeatureOptions) Validate() error {
	switch o.AnomalyMethod {
	case AnomalyZScore:
		if o.Threshold <= 0 || math.IsNaN(o.Threshold) {
			return errors.NewValidationError("features.threshold", "must be positive", o.Threshold)
		}
	case AnomalyIsolationForest:
		if o.Contamination <= 0 || o.Contamination >= 0.5 {
			return errors.NewValidationError("features.contamination", "must be in (0, 0.5)", o.Contamination)
		}
	case AnomalyNone:
	default:
		return errors.NewValidationError("features.anomaly_method", "must be zscore, isolation_forest or none", o.AnomalyMethod)
	}
	return nil
}

// ColumnBounds are the statistics a z-score check used for one column.
type ColumnBounds struct {
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// FeatureStats summarises what the FeatureEngineer changed.
type FeatureStats struct {
	RowsIn    int                     `json:"rows_in"`
	RowsOut   int                     `json:"rows_out"`
	Anomalies int                     `json:"anomalies"`
	Method    string                  `json:"method"`
	Bounds    map[string]ColumnBounds `json:"bounds,omitempty"`
	Derived   []string                `json:"derived,omitempty"`
}

// FeatureEngineer derives columns and removes anomalous rows.
type FeatureEngineer struct {
	opts   FeatureOptions
	logger log.Logger
}

// NewFeatureEngineer validates opts and creates a FeatureEngineer.
func NewFeatureEngineer(opts FeatureOptions) (*FeatureEngineer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.ReferenceDate.IsZero() {
		opts.ReferenceDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
	return &FeatureEngineer{
		opts:   opts,
		logger: log.GetLoggerWithName("dataprep").With(log.StageKey, "features"),
	}, nil
}

// ReferenceDate returns the date days_since_release is measured from.
func (f *FeatureEngineer) ReferenceDate() time.Time { return f.opts.ReferenceDate }

// Transform returns a new Dataset with the derived columns added and the
// anomalous rows removed. The input is not modified.
func (f *FeatureEngineer) Transform(in *dataset.Dataset) (*dataset.Dataset, FeatureStats, error) {
	stats := FeatureStats{RowsIn: in.Len(), Method: f.opts.AnomalyMethod}
	ds := in.Clone()

	if f.opts.Derive {
		if err := f.derive(ds); err != nil {
			return nil, stats, err
		}
		stats.Derived = []string{ColDaysSinceRelease, ColTotalPlaylists, ColChartPresence}
	}

	columns := f.opts.AnomalyColumns
	if columns == nil {
		columns = ModelFeatures(ds.Schema())
	}

	var keep []bool
	var err error
	switch f.opts.AnomalyMethod {
	case AnomalyZScore:
		keep, stats.Bounds, err = f.zscore(ds, columns)
	case AnomalyIsolationForest:
		keep, err = f.isolationForest(ds, columns)
	default:
		keep = make([]bool, ds.Len())
		for i := range keep {
			keep[i] = true
		}
	}
	if err != nil {
		return nil, stats, err
	}

	if ds, err = ds.Filter(keep); err != nil {
		return nil, stats, err
	}
	if ds.Len() == 0 {
		return nil, stats, errors.Wrap(errors.ErrEmptyData, "no rows left after anomaly removal")
	}
	stats.RowsOut = ds.Len()
	stats.Anomalies = stats.RowsIn - stats.RowsOut

	f.logger.Info("Features engineered",
		"rows_in", stats.RowsIn,
		"rows_out", stats.RowsOut,
		"method", stats.Method,
		log.DroppedKey, stats.Anomalies,
		"reference_date", f.opts.ReferenceDate.Format("2006-01-02"),
	)
	return ds, stats, nil
}

func (f *FeatureEngineer) derive(ds *dataset.Dataset) error {
	year, err := ds.Numeric("released_year")
	if err != nil {
		return err
	}
	month, err := ds.Numeric("released_month")
	if err != nil {
		return err
	}
	day, err := ds.Numeric("released_day")
	if err != nil {
		return err
	}

	n := ds.Len()
	days := make([]float64, n)
	ref := f.opts.ReferenceDate
	for i := 0; i < n; i++ {
		if math.IsNaN(year[i]) || math.IsNaN(month[i]) || math.IsNaN(day[i]) {
			days[i] = math.NaN()
			continue
		}
		released := time.Date(int(year[i]), time.Month(int(month[i])), int(day[i]), 0, 0, 0, 0, time.UTC)
		days[i] = math.Floor(ref.Sub(released).Hours() / 24)
	}

	total := make([]float64, n)
	for _, name := range playlistColumns {
		v, err := ds.Numeric(name)
		if err != nil {
			return err
		}
		for i := range total {
			total[i] += v[i]
		}
	}

	charts := make([]float64, n)
	for _, name := range chartColumns {
		v, err := ds.Numeric(name)
		if err != nil {
			return err
		}
		for i := range charts {
			if v[i] != 0 && !math.IsNaN(v[i]) {
				charts[i]++
			}
		}
	}

	if err := ds.SetNumeric(ColDaysSinceRelease, days); err != nil {
		return err
	}
	if err := ds.SetNumeric(ColTotalPlaylists, total); err != nil {
		return err
	}
	return ds.SetNumeric(ColChartPresence, charts)
}

// zscore keeps the rows whose every column lies within Threshold population
// standard deviations of the column mean.
func (f *FeatureEngineer) zscore(ds *dataset.Dataset, columns []string) ([]bool, map[string]ColumnBounds, error) {
	keep := make([]bool, ds.Len())
	for i := range keep {
		keep[i] = true
	}
	bounds := make(map[string]ColumnBounds, len(columns))
	t := f.opts.Threshold

	for _, name := range columns {
		values, err := ds.Numeric(name)
		if err != nil {
			return nil, nil, err
		}
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		mean, variance := stat.PopMeanVariance(sorted, nil)
		std := math.Sqrt(variance)
		bounds[name] = ColumnBounds{Mean: mean, Std: std, Lower: mean - t*std, Upper: mean + t*std}

		if std == 0 || math.IsNaN(std) {
			continue
		}
		flagged := 0
		for i, v := range values {
			if math.Abs(v-mean)/std > t {
				if keep[i] {
					flagged++
				}
				keep[i] = false
			}
		}
		if flagged > 0 {
			f.logger.Debug("Outliers flagged", log.ColumnKey, name, "rows", flagged)
		}
	}
	return keep, bounds, nil
}

func (f *FeatureEngineer) isolationForest(ds *dataset.Dataset, columns []string) ([]bool, error) {
	X, err := ds.Matrix(columns)
	if err != nil {
		return nil, err
	}
	forest := ensemble.NewIsolationForest(
		ensemble.WithEstimators(f.opts.Trees),
		ensemble.WithMaxSamples(f.opts.MaxSamples),
		ensemble.WithContamination(f.opts.Contamination),
		ensemble.WithForestSeed(f.opts.Seed),
	)
	labels, err := forest.FitPredict(X)
	if err != nil {
		return nil, err
	}
	keep := make([]bool, len(labels))
	for i, l := range labels {
		keep[i] = l == 1
	}
	return keep, nil
}

// Package visualize renders exploratory and model-diagnostic charts as PNG
// files with gonum/plot.
package visualize

import (
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/songstreams/dataprep"
	"github.com/YuminosukeSato/songstreams/dataset"
	"github.com/YuminosukeSato/songstreams/evaluation"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/pkg/log"
	"github.com/YuminosukeSato/songstreams/sklearn/ensemble"
)

// Chart file names.
const (
	FileStreamsHistogram = "streams_hist.png"
	FileDaysHistogram    = "days_since_release_hist.png"
	FileDaysVsStreams    = "days_vs_streams.png"
	FileStreamsByMode    = "streams_by_mode.png"
	FileCorrelation      = "correlation_heatmap.png"
	FileBoostingHistory  = "boosting_rmse.png"
	FileCVRMSE           = "cv_rmse.png"
)

const modeColumn = "mode"

var (
	pointColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	lineColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	validColor = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// Visualizer writes charts into a single directory.
type Visualizer struct {
	dir    string
	width  vg.Length
	height vg.Length
	bins   int
	logger log.Logger
}

// Option configures a Visualizer.
type Option func(*Visualizer)

// WithSize sets the canvas size of every chart.
func WithSize(width, height vg.Length) Option {
	return func(v *Visualizer) { v.width, v.height = width, height }
}

// WithBins sets the histogram bin count.
func WithBins(n int) Option { return func(v *Visualizer) { v.bins = n } }

// NewVisualizer creates dir if needed.
func NewVisualizer(dir string, opts ...Option) (*Visualizer, error) {
	v := &Visualizer{
		dir:    dir,
		width:  6 * vg.Inch,
		height: 4 * vg.Inch,
		bins:   30,
		logger: log.GetLoggerWithName("visualize"),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.bins < 1 {
		return nil, errors.NewValidationError("bins", "must be positive", v.bins)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create chart directory %s", dir)
	}
	return v, nil
}

// Dir returns the output directory.
func (v *Visualizer) Dir() string { return v.dir }

func (v *Visualizer) save(p *plot.Plot, name string) (string, error) {
	path := filepath.Join(v.dir, name)
	if err := p.Save(v.width, v.height, path); err != nil {
		return "", errors.Wrapf(err, "save chart %s", path)
	}
	v.logger.Debug("Chart written", log.PathKey, path)
	return path, nil
}

func finite(values []float64) plotter.Values {
	out := make(plotter.Values, 0, len(values))
	for _, x := range values {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}

func (v *Visualizer) histogram(ds *dataset.Dataset, column, title, file string) (string, error) {
	values, err := ds.Numeric(column)
	if err != nil {
		return "", err
	}
	vals := finite(values)
	if len(vals) == 0 {
		return "", errors.NewSchemaError(column, "no finite values to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = column
	p.Y.Label.Text = "count"
	h, err := plotter.NewHist(vals, v.bins)
	if err != nil {
		return "", errors.Wrap(err, "histogram")
	}
	h.FillColor = pointColor
	p.Add(h)
	return v.save(p, file)
}

// StreamsHistogram plots the distribution of the target.
func (v *Visualizer) StreamsHistogram(ds *dataset.Dataset) (string, error) {
	target := ds.Schema().Target
	return v.histogram(ds, target, "Distribution of "+target, FileStreamsHistogram)
}

// DaysHistogram plots the distribution of days since release.
func (v *Visualizer) DaysHistogram(ds *dataset.Dataset) (string, error) {
	return v.histogram(ds, dataprep.ColDaysSinceRelease, "Days since release", FileDaysHistogram)
}

// DaysVsStreams scatters days since release against the target.
func (v *Visualizer) DaysVsStreams(ds *dataset.Dataset) (string, error) {
	target := ds.Schema().Target
	days, err := ds.Numeric(dataprep.ColDaysSinceRelease)
	if err != nil {
		return "", err
	}
	streams, err := ds.Numeric(target)
	if err != nil {
		return "", err
	}
	pts := make(plotter.XYs, 0, len(days))
	for i := range days {
		if math.IsNaN(days[i]) || math.IsNaN(streams[i]) {
			continue
		}
		pts = append(pts, plotter.XY{X: days[i], Y: streams[i]})
	}
	p := plot.New()
	p.Title.Text = "Days since release vs " + target
	p.X.Label.Text = dataprep.ColDaysSinceRelease
	p.Y.Label.Text = target
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return "", errors.Wrap(err, "scatter")
	}
	s.GlyphStyle.Color = pointColor
	s.GlyphStyle.Radius = vg.Points(2)
	p.Add(s)
	return v.save(p, FileDaysVsStreams)
}

// StreamsByMode draws one box per distinct value of the mode column.
func (v *Visualizer) StreamsByMode(ds *dataset.Dataset) (string, error) {
	target := ds.Schema().Target
	modes, err := ds.Text(modeColumn)
	if err != nil {
		return "", err
	}
	streams, err := ds.Numeric(target)
	if err != nil {
		return "", err
	}
	groups := make(map[string]plotter.Values)
	for i, m := range modes {
		if m == "" || math.IsNaN(streams[i]) {
			continue
		}
		groups[m] = append(groups[m], streams[i])
	}
	if len(groups) == 0 {
		return "", errors.NewSchemaError(modeColumn, "no values to plot")
	}
	names := make([]string, 0, len(groups))
	for m := range groups {
		names = append(names, m)
	}
	sort.Strings(names)

	p := plot.New()
	p.Title.Text = target + " by " + modeColumn
	p.Y.Label.Text = target
	for i, m := range names {
		b, err := plotter.NewBoxPlot(vg.Points(40), float64(i), groups[m])
		if err != nil {
			return "", errors.Wrap(err, "box plot")
		}
		b.FillColor = pointColor
		p.Add(b)
	}
	p.NominalX(names...)
	return v.save(p, FileStreamsByMode)
}

// correlationGrid implements plotter.GridXYZ. Row 0 is drawn at the top.
type correlationGrid struct {
	corr []float64
	n    int
}

func (g correlationGrid) Dims() (c, r int)   { return g.n, g.n }
func (g correlationGrid) Z(c, r int) float64 { return g.corr[(g.n-1-r)*g.n+c] }
func (g correlationGrid) X(c int) float64    { return float64(c) }
func (g correlationGrid) Y(r int) float64    { return float64(r) }

// Correlation returns the Pearson correlation matrix of columns, row-major.
// Constant columns correlate 0 with everything but themselves.
func Correlation(ds *dataset.Dataset, columns []string) ([]float64, error) {
	data := make([][]float64, len(columns))
	for i, c := range columns {
		values, err := ds.Numeric(c)
		if err != nil {
			return nil, err
		}
		data[i] = values
	}
	n := len(columns)
	out := make([]float64, n*n)
	for i := 0; i < n; i++ {
		out[i*n+i] = 1
		for j := i + 1; j < n; j++ {
			r := stat.Correlation(data[i], data[j], nil)
			if math.IsNaN(r) {
				r = 0
			}
			out[i*n+j], out[j*n+i] = r, r
		}
	}
	return out, nil
}

// HeatmapColumns is the default heatmap axis: the model features, the
// playlist and chart summaries when present, then the target.
func HeatmapColumns(ds *dataset.Dataset) []string {
	columns := dataprep.ModelFeatures(ds.Schema())
	for _, c := range []string{dataprep.ColTotalPlaylists, dataprep.ColChartPresence} {
		if ds.Has(c) {
			columns = append(columns, c)
		}
	}
	return append(columns, ds.Schema().Target)
}

// CorrelationHeatmap draws the correlation matrix of columns. An empty list
// means HeatmapColumns(ds).
func (v *Visualizer) CorrelationHeatmap(ds *dataset.Dataset, columns []string) (string, error) {
	if len(columns) == 0 {
		columns = HeatmapColumns(ds)
	}
	corr, err := Correlation(ds, columns)
	if err != nil {
		return "", err
	}
	cm := moreland.SmoothBlueRed()
	cm.SetMin(-1)
	cm.SetMax(1)
	hm := plotter.NewHeatMap(correlationGrid{corr: corr, n: len(columns)}, cm.Palette(64))
	hm.Min, hm.Max = -1, 1

	p := plot.New()
	p.Title.Text = "Feature correlation"
	p.Add(hm)
	reversed := make([]string, len(columns))
	for i, c := range columns {
		reversed[len(columns)-1-i] = c
	}
	p.NominalX(columns...)
	p.NominalY(reversed...)
	p.X.Tick.Label.Rotation = math.Pi / 2
	p.X.Tick.Label.XAlign = -1
	p.X.Tick.Label.YAlign = -0.5

	w := v.width
	if side := vg.Length(len(columns)) * vg.Points(28); side > w {
		w = side
	}
	path := filepath.Join(v.dir, FileCorrelation)
	if err := p.Save(w, w, path); err != nil {
		return "", errors.Wrapf(err, "save chart %s", path)
	}
	return path, nil
}

// ActualVsPredicted scatters predictions against targets with the
// least-squares line through them.
func (v *Visualizer) ActualVsPredicted(modelName string, actual, predicted []float64) (string, error) {
	if len(actual) != len(predicted) {
		return "", errors.NewDimensionError("ActualVsPredicted", len(actual), len(predicted), 0)
	}
	if len(actual) < 2 {
		return "", errors.NewValidationError("actual", "need at least two points", len(actual))
	}
	pts := make(plotter.XYs, len(actual))
	for i := range actual {
		pts[i] = plotter.XY{X: actual[i], Y: predicted[i]}
	}
	p := plot.New()
	p.Title.Text = modelName + ": actual vs predicted"
	p.X.Label.Text = "actual"
	p.Y.Label.Text = "predicted"
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return "", errors.Wrap(err, "scatter")
	}
	s.GlyphStyle.Color = pointColor
	s.GlyphStyle.Radius = vg.Points(2)
	p.Add(s)

	alpha, beta := stat.LinearRegression(actual, predicted, nil, false)
	lo, hi := floats.Min(actual), floats.Max(actual)
	l, err := plotter.NewLine(plotter.XYs{{X: lo, Y: alpha + beta*lo}, {X: hi, Y: alpha + beta*hi}})
	if err != nil {
		return "", errors.Wrap(err, "fit line")
	}
	l.LineStyle.Color = lineColor
	l.LineStyle.Width = vg.Points(2)
	p.Add(l)
	p.Legend.Add("best fit", l)
	return v.save(p, "actual_vs_predicted_"+modelName+".png")
}

// BoostingHistory plots per-round RMSE curves recorded by ensemble.RecordEvaluation.
func (v *Visualizer) BoostingHistory(history map[string][]float64) (string, error) {
	p := plot.New()
	p.Title.Text = "Gradient boosting RMSE per round"
	p.X.Label.Text = "round"
	p.Y.Label.Text = "RMSE"
	styles := []struct {
		name  string
		color color.Color
	}{{ensemble.EvalTrainRMSE, pointColor}, {ensemble.EvalValidRMSE, validColor}}
	drawn := 0
	for _, st := range styles {
		values := history[st.name]
		if len(values) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(values))
		for i, x := range values {
			pts[i] = plotter.XY{X: float64(i + 1), Y: x}
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return "", errors.Wrap(err, "history line")
		}
		l.LineStyle.Color = st.color
		p.Add(l)
		p.Legend.Add(st.name, l)
		drawn++
	}
	if drawn == 0 {
		return "", errors.NewValidationError("history", "no evaluation results recorded", len(history))
	}
	return v.save(p, FileBoostingHistory)
}

// CVRMSE draws one bar per model with its mean cross-validated RMSE.
func (v *Visualizer) CVRMSE(scores []evaluation.CVScore) (string, error) {
	if len(scores) == 0 {
		return "", errors.NewValidationError("scores", "nothing to plot", 0)
	}
	values := make(plotter.Values, len(scores))
	names := make([]string, len(scores))
	for i, s := range scores {
		values[i] = s.RMSEMean
		names[i] = s.Model
	}
	bars, err := plotter.NewBarChart(values, vg.Points(30))
	if err != nil {
		return "", errors.Wrap(err, "bar chart")
	}
	bars.Color = pointColor
	p := plot.New()
	p.Title.Text = "Cross-validated RMSE"
	p.Y.Label.Text = "RMSE"
	p.Add(bars)
	p.NominalX(names...)
	return v.save(p, FileCVRMSE)
}

// Explore renders every data chart. A chart that fails is skipped and its
// error returned in errs; the others are still written.
func (v *Visualizer) Explore(ds *dataset.Dataset) (paths []string, errs []error) {
	charts := []struct {
		name   string
		render func(*dataset.Dataset) (string, error)
	}{
		{"streams_histogram", v.StreamsHistogram},
		{"days_histogram", v.DaysHistogram},
		{"days_vs_streams", v.DaysVsStreams},
		{"streams_by_mode", v.StreamsByMode},
		{"correlation_heatmap", func(ds *dataset.Dataset) (string, error) { return v.CorrelationHeatmap(ds, nil) }},
	}
	for _, c := range charts {
		path, err := c.render(ds)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "chart %s", c.name))
			continue
		}
		paths = append(paths, path)
	}
	return paths, errs
}

package ensemble

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/songstreams/core/model"
	"github.com/YuminosukeSato/songstreams/core/parallel"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/pkg/log"
)

const eulerGamma = 0.5772156649015329

// scoring parallelises above this many rows
const isoScoreParallelThreshold = 512

// IsolationForest isolates anomalies with random axis-aligned splits: points
// that are isolated after few splits get scores close to 1.
type IsolationForest struct {
	model.BaseEstimator

	NEstimators   int
	MaxSamples    int
	Contamination float64
	Seed          uint64

	Trees     []*isoNode
	SampleLen int
	Threshold float64
}

type isoNode struct {
	Feature int
	Split   float64
	Left    *isoNode
	Right   *isoNode
	Size    int
	IsLeaf  bool
}

// IsolationForestOption configures an IsolationForest.
type IsolationForestOption func(*IsolationForest)

// WithEstimators sets the number of trees.
func WithEstimators(n int) IsolationForestOption {
	return func(f *IsolationForest) { f.NEstimators = n }
}

// WithMaxSamples sets the subsample size per tree.
func WithMaxSamples(n int) IsolationForestOption {
	return func(f *IsolationForest) { f.MaxSamples = n }
}

// WithContamination sets the expected share of anomalies.
func WithContamination(c float64) IsolationForestOption {
	return func(f *IsolationForest) { f.Contamination = c }
}

// WithForestSeed sets the random seed.
func WithForestSeed(seed uint64) IsolationForestOption {
	return func(f *IsolationForest) { f.Seed = seed }
}

// NewIsolationForest creates a forest with 100 trees, 256 samples per tree,
// contamination 0.05 and seed 42.
func NewIsolationForest(opts ...IsolationForestOption) *IsolationForest {
	f := &IsolationForest{
		NEstimators:   100,
		MaxSamples:    256,
		Contamination: 0.05,
		Seed:          42,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *IsolationForest) validate() error {
	if f.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be positive", f.NEstimators)
	}
	if f.MaxSamples < 2 {
		return errors.NewValidationError("max_samples", "must be at least 2", f.MaxSamples)
	}
	if f.Contamination <= 0 || f.Contamination >= 0.5 {
		return errors.NewValidationError("contamination", "must be in (0, 0.5)", f.Contamination)
	}
	return nil
}

// Fit builds the trees on X and sets the anomaly threshold so that a
// Contamination share of the training rows scores above it.
func (f *IsolationForest) Fit(X mat.Matrix) (err error) {
	defer errors.Recover(&err, "IsolationForest.Fit")

	if err := f.validate(); err != nil {
		return err
	}
	rows, cols := X.Dims()
	if rows < 2 || cols == 0 {
		return errors.Wrap(errors.ErrEmptyData, "isolation forest needs at least 2 rows")
	}

	psi := f.MaxSamples
	if psi > rows {
		psi = rows
	}
	heightLimit := int(math.Ceil(math.Log2(float64(psi))))

	data := mat.DenseCopyOf(X)
	rng := rand.New(rand.NewPCG(f.Seed, f.Seed))
	f.Trees = make([]*isoNode, f.NEstimators)
	for t := range f.Trees {
		sample := rng.Perm(rows)[:psi]
		f.Trees[t] = buildIsoTree(data, sample, 0, heightLimit, rng)
	}
	f.SampleLen = psi
	f.SetFitted(cols)

	scores, err := f.ScoreSamples(data)
	if err != nil {
		return err
	}
	f.Threshold = quantile(scores, 1-f.Contamination)

	log.GetLoggerWithName("ensemble").Debug("Isolation forest fitted",
		log.ModelNameKey, "IsolationForest",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		"threshold", f.Threshold,
	)
	return nil
}

func buildIsoTree(X *mat.Dense, idx []int, depth, limit int, rng *rand.Rand) *isoNode {
	if depth >= limit || len(idx) <= 1 {
		return &isoNode{IsLeaf: true, Size: len(idx)}
	}

	// 値の幅がある特徴量だけから分割軸を選ぶ
	_, cols := X.Dims()
	lo := make([]float64, cols)
	hi := make([]float64, cols)
	for j := 0; j < cols; j++ {
		lo[j], hi[j] = math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			v := X.At(i, j)
			lo[j] = math.Min(lo[j], v)
			hi[j] = math.Max(hi[j], v)
		}
	}
	var candidates []int
	for j := 0; j < cols; j++ {
		if hi[j] > lo[j] {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return &isoNode{IsLeaf: true, Size: len(idx)}
	}

	q := candidates[rng.IntN(len(candidates))]
	p := lo[q] + rng.Float64()*(hi[q]-lo[q])

	var left, right []int
	for _, i := range idx {
		if X.At(i, q) < p {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &isoNode{
		Feature: q,
		Split:   p,
		Size:    len(idx),
		Left:    buildIsoTree(X, left, depth+1, limit, rng),
		Right:   buildIsoTree(X, right, depth+1, limit, rng),
	}
}

// averagePathLength is c(n), the mean path length of an unsuccessful search
// in a binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	m := float64(n - 1)
	return 2*(math.Log(m)+eulerGamma) - 2*m/float64(n)
}

func (n *isoNode) pathLength(x []float64, depth int) float64 {
	if n.IsLeaf {
		return float64(depth) + averagePathLength(n.Size)
	}
	if x[n.Feature] < n.Split {
		return n.Left.pathLength(x, depth+1)
	}
	return n.Right.pathLength(x, depth+1)
}

// ScoreSamples returns the anomaly score 2^(-E[h(x)]/c(psi)) of every row.
func (f *IsolationForest) ScoreSamples(X mat.Matrix) ([]float64, error) {
	if err := f.RequireFitted("IsolationForest", "ScoreSamples"); err != nil {
		return nil, err
	}
	if err := f.CheckFeatures("IsolationForest.ScoreSamples", X); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	norm := averagePathLength(f.SampleLen)
	scores := make([]float64, rows)

	parallel.ParallelizeWithThreshold(rows, isoScoreParallelThreshold, func(start, end int) {
		x := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(x, i, X)
			total := 0.0
			for _, tree := range f.Trees {
				total += tree.pathLength(x, 0)
			}
			mean := total / float64(len(f.Trees))
			scores[i] = math.Pow(2, -mean/norm)
		}
	})
	return scores, nil
}

// Predict returns -1 for anomalies and 1 for inliers.
func (f *IsolationForest) Predict(X mat.Matrix) ([]int, error) {
	scores, err := f.ScoreSamples(X)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(scores))
	for i, s := range scores {
		labels[i] = 1
		if s > f.Threshold {
			labels[i] = -1
		}
	}
	return labels, nil
}

// FitPredict fits the forest on X and labels the same rows.
func (f *IsolationForest) FitPredict(X mat.Matrix) ([]int, error) {
	if err := f.Fit(X); err != nil {
		return nil, err
	}
	return f.Predict(X)
}

// quantile with linear interpolation between closest ranks.
func quantile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

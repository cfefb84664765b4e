// Package linear は最小二乗法による線形回帰を提供する。
package linear

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/songstreams/core/model"
	"github.com/YuminosukeSato/songstreams/core/parallel"
	"github.com/YuminosukeSato/songstreams/metrics"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/pkg/log"
)

// 並列処理の閾値（この値以下の行数では逐次処理を使用）
const parallelThreshold = 1000

// LinearRegression は通常の最小二乗法による線形回帰モデル
type LinearRegression struct {
	model.BaseEstimator

	Coefficients []float64 // 重み（係数）
	Intercept    float64   // 切片
	FitIntercept bool
	Rcond        float64
}

// NewLinearRegression は新しい線形回帰モデルを作成する
//
// 使用例:
//
//	lr := linear.NewLinearRegression(linear.WithFitIntercept(true))
//	err := lr.Fit(XTrain, yTrain)
//	yPred, err := lr.Predict(XTest)
func NewLinearRegression(opts ...Option) *LinearRegression {
	lr := &LinearRegression{
		FitIntercept: true,
		Rcond:        1e-12,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Name はレポートで使うモデル名を返す
func (lr *LinearRegression) Name() string {
	return "LinearRegression"
}

// Fit はモデルを訓練データで学習させる。
// 切片ありの場合はXとyを中心化してからQR分解で最小二乗問題を解く。
// ランク落ちしている場合はSVDによる最小ノルム解を使う。再学習は以前の状態を上書きする。
func (lr *LinearRegression) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LinearRegression.Fit")

	r, c, err := model.CheckXY("LinearRegression.Fit", X, y)
	if err != nil {
		return err
	}
	logger := log.GetLoggerWithName("linear").With(log.ModelNameKey, lr.Name())
	logger.Debug("Training started",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, r,
		log.FeaturesKey, c,
	)

	xMean := make([]float64, c)
	yVals := mat.Col(nil, 0, y)
	var yMean float64
	if lr.FitIntercept {
		col := make([]float64, r)
		for j := 0; j < c; j++ {
			mat.Col(col, j, X)
			xMean[j] = floats.Sum(col) / float64(r)
		}
		yMean = floats.Sum(yVals) / float64(r)
	}

	// 中心化した計画行列を構築
	A := mat.NewDense(r, c, nil)
	b := mat.NewVecDense(r, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				A.Set(i, j, X.At(i, j)-xMean[j])
			}
			b.SetVec(i, yVals[i]-yMean)
		}
	})

	w, err := lr.solve(A, b, logger)
	if err != nil {
		return err
	}
	if err := errors.CheckNumericalStability("LinearRegression.Fit", w, 0); err != nil {
		return errors.NewComputeError("LinearRegression.Fit", "least squares produced non-finite coefficients", err)
	}

	lr.Coefficients = w
	lr.Intercept = 0
	if lr.FitIntercept {
		lr.Intercept = yMean - floats.Dot(xMean, w)
	}
	lr.SetFitted(c)

	logger.Info("Training completed", log.OperationKey, log.OperationFit, log.SamplesKey, r)
	return nil
}

// solve は A w = b の最小二乗解を求める
func (lr *LinearRegression) solve(A *mat.Dense, b *mat.VecDense, logger log.Logger) ([]float64, error) {
	r, c := A.Dims()

	if r >= c {
		var w mat.VecDense
		err := w.SolveVec(A, b)
		var cond mat.Condition
		switch {
		case err == nil:
			return vecData(&w), nil
		case errors.As(err, &cond):
			logger.Warn("Ill-conditioned design matrix, falling back to SVD",
				"condition", float64(cond),
				log.ErrorCodeKey, log.ErrorSingularMatrix,
			)
		default:
			return nil, errors.NewComputeError("LinearRegression.Fit", "QR least squares failed", err)
		}
	}

	// ランク落ち（または行数 < 列数）の場合は最小ノルム解
	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDThin); !ok {
		return nil, errors.NewComputeError("LinearRegression.Fit", "SVD factorization failed", errors.ErrSingularMatrix)
	}
	rank := svd.Rank(lr.Rcond)
	if rank == 0 {
		return make([]float64, c), nil
	}
	var sol mat.Dense
	svd.SolveTo(&sol, b, rank)
	return mat.Col(nil, 0, &sol), nil
}

func vecData(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// Predict は入力データに対する予測を行う
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.RequireFitted(lr.Name(), "Predict"); err != nil {
		return nil, err
	}
	if err := lr.CheckFeatures("LinearRegression.Predict", X); err != nil {
		return nil, err
	}

	r, _ := X.Dims()
	predictions := mat.NewVecDense(r, nil)
	predictions.MulVec(X, mat.NewVecDense(len(lr.Coefficients), lr.Coefficients))
	for i := 0; i < r; i++ {
		predictions.SetVec(i, predictions.AtVec(i)+lr.Intercept)
	}
	return predictions, nil
}

// Weights は学習された重み（係数）のコピーを返す
func (lr *LinearRegression) Weights() []float64 {
	if lr.Coefficients == nil {
		return nil
	}
	out := make([]float64, len(lr.Coefficients))
	copy(out, lr.Coefficients)
	return out
}

// GetIntercept は学習された切片を返す
func (lr *LinearRegression) GetIntercept() float64 {
	if !lr.IsFitted() {
		return 0
	}
	return lr.Intercept
}

// Score はモデルの決定係数（R²）を計算する
func (lr *LinearRegression) Score(X, y mat.Matrix) (float64, error) {
	yPred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	yTrue, err := metrics.ColumnVector("LinearRegression.Score", y)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(yTrue, yPred.(*mat.VecDense))
}

// ExportWeights は係数を特徴量名付きで書き出す
func (lr *LinearRegression) ExportWeights(features []string) (*model.ModelWeights, error) {
	if err := lr.RequireFitted(lr.Name(), "ExportWeights"); err != nil {
		return nil, err
	}
	if features != nil && len(features) != len(lr.Coefficients) {
		return nil, errors.NewDimensionError("LinearRegression.ExportWeights", len(lr.Coefficients), len(features), 1)
	}
	return &model.ModelWeights{
		ModelType:    lr.Name(),
		Version:      "1.0",
		Coefficients: lr.Weights(),
		Intercept:    lr.Intercept,
		Features:     features,
		Hyperparameters: map[string]interface{}{
			"fit_intercept": lr.FitIntercept,
		},
		IsFitted: true,
	}, nil
}

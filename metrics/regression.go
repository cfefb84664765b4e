// Package metrics は回帰モデルの評価指標を提供する。
// 入力はn×1の列ベクトル（*mat.VecDense）で、長さが一致しない場合はDimensionErrorを返す。
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

// checkPair は空ベクトルと長さ不一致を検出する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue.IsEmpty() {
		return 0, errors.NewValidationError(op, "empty vector", 0)
	}
	n := yTrue.Len()
	if yPred.IsEmpty() || yPred.Len() != n {
		got := 0
		if !yPred.IsEmpty() {
			got = yPred.Len()
		}
		return 0, errors.NewDimensionError(op, n, got, 0)
	}
	return n, nil
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MSE = (1/n) * Σ(yTrue - yPred)²
	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// ColumnVector はn×1行列をVecDenseに変換する。列数が1でなければDimensionError。
func ColumnVector(op string, m mat.Matrix) (*mat.VecDense, error) {
	r, c := m.Dims()
	if c != 1 {
		return nil, errors.NewDimensionError(op, 1, c, 1)
	}
	if v, ok := m.(*mat.VecDense); ok {
		return v, nil
	}
	out := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		out.SetVec(i, m.At(i, 0))
	}
	return out, nil
}

// MSEMatrix は行列形式の入力に対してMSEを計算する
func MSEMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	rTrue, _ := yTrue.Dims()
	rPred, _ := yPred.Dims()
	if rTrue != rPred {
		return 0, errors.NewDimensionError("MSEMatrix", rTrue, rPred, 0)
	}
	t, err := ColumnVector("MSEMatrix", yTrue)
	if err != nil {
		return 0, err
	}
	p, err := ColumnVector("MSEMatrix", yPred)
	if err != nil {
		return 0, err
	}
	return MSE(t, p)
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}
	return sum / float64(n), nil
}

// R2Score は決定係数（R²）を計算する。
// yTrueが定数の場合、完全一致なら1、それ以外は0を返す。
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var yMean float64
	for i := 0; i < n; i++ {
		yMean += yTrue.AtVec(i)
	}
	yMean /= float64(n)

	var tss, rss float64
	for i := 0; i < n; i++ {
		yt := yTrue.AtVec(i)
		yp := yPred.AtVec(i)
		tss += (yt - yMean) * (yt - yMean)
		rss += (yt - yp) * (yt - yp)
	}

	if tss == 0 {
		if rss == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - rss/tss, nil
}

// MAPE は平均絶対パーセンテージ誤差（%）を計算する。yTrueが0の行は除外する。
func MAPE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MAPE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var sum float64
	validCount := 0
	for i := 0; i < n; i++ {
		yt := yTrue.AtVec(i)
		if yt != 0 {
			sum += math.Abs(yt-yPred.AtVec(i)) / math.Abs(yt)
			validCount++
		}
	}

	if validCount == 0 {
		return 0, errors.NewComputeError("MAPE", "all yTrue values are zero", nil)
	}
	return (sum / float64(validCount)) * 100, nil
}

// ExplainedVarianceScore は説明分散スコアを計算する
func ExplainedVarianceScore(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("ExplainedVarianceScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	truth := make([]float64, n)
	resid := make([]float64, n)
	for i := 0; i < n; i++ {
		truth[i] = yTrue.AtVec(i)
		resid[i] = truth[i] - yPred.AtVec(i)
	}

	_, varTrue := stat.PopMeanVariance(truth, nil)
	_, varResid := stat.PopMeanVariance(resid, nil)
	if varTrue == 0 {
		if varResid == 0 {
			return 1, nil
		}
		return 0, nil
	}

	// 説明分散スコア = 1 - Var(yTrue - yPred) / Var(yTrue)
	return 1 - varResid/varTrue, nil
}

package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

// EstimatorState はモデルの学習状態を表す
type EstimatorState int

const (
	// NotFitted はモデルが未学習の状態
	NotFitted EstimatorState = iota
	// Fitted はモデルが学習済みの状態
	Fitted
)

// BaseEstimator は全てのモデルの基底となる構造体。
// gobで学習済み状態を保存できるようにフィールドを公開している。
type BaseEstimator struct {
	State     EstimatorState
	NFeatures int
}

// IsFitted はモデルが学習済みかどうかを返す
func (e *BaseEstimator) IsFitted() bool {
	return e.State == Fitted
}

// SetFitted はモデルを学習済み状態に設定し、学習時の特徴量数を記録する
func (e *BaseEstimator) SetFitted(nFeatures int) {
	e.State = Fitted
	e.NFeatures = nFeatures
}

// Reset はモデルを初期状態にリセットする
func (e *BaseEstimator) Reset() {
	e.State = NotFitted
	e.NFeatures = 0
}

// RequireFitted は未学習の場合にNotFittedErrorを返す
func (e *BaseEstimator) RequireFitted(modelName, method string) error {
	if !e.IsFitted() {
		return errors.NewNotFittedError(modelName, method)
	}
	return nil
}

// CheckFeatures は入力の列数が学習時と一致するかを検証する
func (e *BaseEstimator) CheckFeatures(op string, X mat.Matrix) error {
	_, c := X.Dims()
	if c != e.NFeatures {
		return errors.NewDimensionError(op, e.NFeatures, c, 1)
	}
	return nil
}

// CheckXY は学習データの形状を検証する
func CheckXY(op string, X, y mat.Matrix) (rows, cols int, err error) {
	rows, cols = X.Dims()
	if rows == 0 || cols == 0 {
		return 0, 0, errors.WithStack(errors.ErrEmptyData)
	}
	yRows, yCols := y.Dims()
	if yRows != rows {
		return 0, 0, errors.NewDimensionError(op, rows, yRows, 0)
	}
	if yCols != 1 {
		return 0, 0, errors.NewDimensionError(op, 1, yCols, 1)
	}
	return rows, cols, nil
}

// Package preprocessing は特徴量スケーリングを提供する。
// スケーラは訓練データだけでFitし、テストデータにはTransformのみを適用する。
package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/songstreams/core/model"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

// スケーリング方式の名前（設定ファイルの scaling キーの値）
const (
	ScalingStandard = "standard"
	ScalingMinMax   = "minmax"
	ScalingNone     = "none"
)

// NewScaler は名前からTransformerを生成する
func NewScaler(kind string) (model.Transformer, error) {
	switch kind {
	case ScalingStandard, "":
		return NewStandardScalerDefault(), nil
	case ScalingMinMax:
		return NewMinMaxScalerDefault(), nil
	case ScalingNone:
		return &IdentityScaler{}, nil
	default:
		return nil, errors.NewValidationError("scaling", "must be standard, minmax or none", kind)
	}
}

func checkInput(op string, X mat.Matrix) (int, int, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return 0, 0, errors.Wrap(errors.ErrEmptyData, op)
	}
	return r, c, nil
}

// StandardScaler はデータを平均0、標準偏差1に変換する
type StandardScaler struct {
	model.BaseEstimator

	// Mean は各特徴量の平均値
	Mean []float64

	// Scale は各特徴量の標準偏差（母標準偏差）
	Scale []float64

	// WithMean は平均を引くかどうか
	WithMean bool

	// WithStd は標準偏差で割るかどうか
	WithStd bool
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	XTrainScaled, err := scaler.FitTransform(XTrain)
//	XTestScaled, err := scaler.Transform(XTest)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// Fit は訓練データから平均と標準偏差を計算する
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c, err := checkInput("StandardScaler.Fit", X)
	if err != nil {
		return err
	}

	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	col := make([]float64, r)

	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		mean, variance := stat.PopMeanVariance(col, nil)
		if s.WithMean {
			s.Mean[j] = mean
		}
		s.Scale[j] = 1.0
		if s.WithStd {
			std := math.Sqrt(variance)
			// 定数列はそのまま（ゼロ除算を避ける）
			if std >= 1e-8 {
				s.Scale[j] = std
			}
		}
	}

	s.SetFitted(c)
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.RequireFitted("StandardScaler", "Transform"); err != nil {
		return nil, err
	}
	if err := s.CheckFeatures("StandardScaler.Transform", X); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return result, nil
}

// FitTransform はFitとTransformを同時に実行する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.RequireFitted("StandardScaler", "InverseTransform"); err != nil {
		return nil, err
	}
	if err := s.CheckFeatures("StandardScaler.InverseTransform", X); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return v*s.Scale[j] + s.Mean[j]
	}, X)
	return result, nil
}

func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.WithMean, s.WithStd, s.NFeatures)
}

// MinMaxScaler は各特徴量をFeatureRangeの範囲に線形変換する
type MinMaxScaler struct {
	model.BaseEstimator

	// DataMin は学習データの最小値
	DataMin []float64

	// DataRange は学習データの max - min（定数列は1）
	DataRange []float64

	// FeatureRange はスケーリング後の範囲 [min, max]
	FeatureRange [2]float64
}

// NewMinMaxScaler は指定した範囲のMinMaxScalerを作成する
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{FeatureRange: featureRange}
}

// NewMinMaxScalerDefault は [0, 1] に変換するMinMaxScalerを作成する
func NewMinMaxScalerDefault() *MinMaxScaler {
	return NewMinMaxScaler([2]float64{0, 1})
}

// Fit は訓練データの最小値と範囲を記録する
func (m *MinMaxScaler) Fit(X mat.Matrix) error {
	r, c, err := checkInput("MinMaxScaler.Fit", X)
	if err != nil {
		return err
	}
	if m.FeatureRange[1] <= m.FeatureRange[0] {
		return errors.NewValidationError("feature_range", "max must be greater than min", m.FeatureRange)
	}

	m.DataMin = make([]float64, c)
	m.DataRange = make([]float64, c)
	col := make([]float64, r)

	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		lo, hi := floats.Min(col), floats.Max(col)
		m.DataMin[j] = lo
		m.DataRange[j] = hi - lo
		if m.DataRange[j] == 0 {
			m.DataRange[j] = 1
		}
	}

	m.SetFitted(c)
	return nil
}

// Transform はデータをFeatureRangeに変換する。訓練範囲外の値は範囲外のまま残る。
func (m *MinMaxScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.RequireFitted("MinMaxScaler", "Transform"); err != nil {
		return nil, err
	}
	if err := m.CheckFeatures("MinMaxScaler.Transform", X); err != nil {
		return nil, err
	}

	width := m.FeatureRange[1] - m.FeatureRange[0]
	r, c := X.Dims()
	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return (v-m.DataMin[j])/m.DataRange[j]*width + m.FeatureRange[0]
	}, X)
	return result, nil
}

// FitTransform はFitとTransformを同時に実行する
func (m *MinMaxScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

// InverseTransform はスケーリングされたデータを元のスケールに戻す
func (m *MinMaxScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.RequireFitted("MinMaxScaler", "InverseTransform"); err != nil {
		return nil, err
	}
	if err := m.CheckFeatures("MinMaxScaler.InverseTransform", X); err != nil {
		return nil, err
	}

	width := m.FeatureRange[1] - m.FeatureRange[0]
	r, c := X.Dims()
	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return (v-m.FeatureRange[0])/width*m.DataRange[j] + m.DataMin[j]
	}, X)
	return result, nil
}

func (m *MinMaxScaler) String() string {
	return fmt.Sprintf("MinMaxScaler(feature_range=[%g, %g])", m.FeatureRange[0], m.FeatureRange[1])
}

// IdentityScaler は入力をコピーして返す（scaling = "none"）
type IdentityScaler struct {
	model.BaseEstimator
}

// Fit は特徴量数だけを記録する
func (s *IdentityScaler) Fit(X mat.Matrix) error {
	_, c, err := checkInput("IdentityScaler.Fit", X)
	if err != nil {
		return err
	}
	s.SetFitted(c)
	return nil
}

// Transform は入力のコピーを返す
func (s *IdentityScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.RequireFitted("IdentityScaler", "Transform"); err != nil {
		return nil, err
	}
	if err := s.CheckFeatures("IdentityScaler.Transform", X); err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(X), nil
}

// FitTransform はFitとTransformを同時に実行する
func (s *IdentityScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

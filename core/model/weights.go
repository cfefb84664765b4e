package model

import (
	"encoding/json"

	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

// ModelWeights はモデルの重みを表す構造体（レポート出力用）
type ModelWeights struct {
	// ModelType はモデルの種類
	ModelType string `json:"model_type"`

	// Version はフォーマットのバージョン
	Version string `json:"version"`

	// Coefficients は重み係数。Featuresと同じ順序。
	Coefficients []float64 `json:"coefficients"`

	// Intercept は切片
	Intercept float64 `json:"intercept"`

	// Features は特徴量の名前
	Features []string `json:"features,omitempty"`

	// Hyperparameters はモデルのハイパーパラメータ
	Hyperparameters map[string]interface{} `json:"hyperparameters"`

	// IsFitted はモデルが学習済みかどうか
	IsFitted bool `json:"is_fitted"`
}

// ToJSON はModelWeightsをJSON形式にシリアライズ
func (mw *ModelWeights) ToJSON() ([]byte, error) {
	return json.MarshalIndent(mw, "", "  ")
}

// FromJSON はJSON形式からModelWeightsをデシリアライズ
func (mw *ModelWeights) FromJSON(data []byte) error {
	return json.Unmarshal(data, mw)
}

// Validate はModelWeightsの妥当性を検証
func (mw *ModelWeights) Validate() error {
	if mw.ModelType == "" {
		return errors.NewValidationError("model_type", "is required", mw.ModelType)
	}
	if mw.Version == "" {
		return errors.NewValidationError("version", "is required", mw.Version)
	}
	if !mw.IsFitted && len(mw.Coefficients) > 0 {
		return errors.NewValidationError("coefficients", "unfitted model should not have coefficients", len(mw.Coefficients))
	}
	if mw.IsFitted && len(mw.Coefficients) == 0 {
		return errors.NewValidationError("coefficients", "fitted model must have coefficients", 0)
	}
	if len(mw.Features) > 0 && len(mw.Features) != len(mw.Coefficients) {
		return errors.NewDimensionError("ModelWeights.Validate", len(mw.Coefficients), len(mw.Features), 1)
	}
	return nil
}

// Named はFeaturesとCoefficientsを対応付けたマップを返す
func (mw *ModelWeights) Named() map[string]float64 {
	out := make(map[string]float64, len(mw.Features))
	for i, name := range mw.Features {
		if i < len(mw.Coefficients) {
			out[name] = mw.Coefficients[i]
		}
	}
	return out
}

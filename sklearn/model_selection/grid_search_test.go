package model_selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/songstreams/core/model"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

// meanShift predicts mean(y)+Offset; the best Offset is 0.
type meanShift struct {
	model.BaseEstimator
	Offset float64
	mean   float64
}

func (m *meanShift) Name() string { return "meanShift" }

func (m *meanShift) Fit(X, y mat.Matrix) error {
	rows, cols, err := model.CheckXY("meanShift.Fit", X, y)
	if err != nil {
		return err
	}
	m.mean = 0
	for i := 0; i < rows; i++ {
		m.mean += y.At(i, 0)
	}
	m.mean /= float64(rows)
	m.SetFitted(cols)
	return nil
}

func (m *meanShift) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := m.RequireFitted(m.Name(), "Predict"); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, m.mean+m.Offset)
	}
	return out, nil
}

func (m *meanShift) Score(X, y mat.Matrix) (float64, error) { return 0, nil }

func (m *meanShift) GetParams() map[string]interface{} {
	return map[string]interface{}{"offset": m.Offset}
}

func (m *meanShift) SetParams(p map[string]interface{}) error {
	for k, v := range p {
		if k != "offset" {
			return model.UnknownParam(m.Name(), k)
		}
		f, err := model.AsFloat(k, v)
		if err != nil {
			return err
		}
		m.Offset = f
	}
	return nil
}

func (m *meanShift) CloneUnfitted() model.Tunable { return &meanShift{Offset: m.Offset} }

func TestGridSearchCV(t *testing.T) {
	X, y := linearData(40)
	gs := NewGridSearchCV(&meanShift{}, ParamGrid{"offset": {5.0, -1.0, 0.0, 1.0, 3.0}}, NewKFold(4, true, 42))
	require.NoError(t, gs.Fit(X, y))

	assert.Equal(t, 0.0, gs.BestParams["offset"])
	assert.Equal(t, 2, gs.BestIndex)
	require.Len(t, gs.Results, 5)
	assert.Equal(t, 1, gs.Results[2].Rank)
	assert.Equal(t, 5, gs.Results[0].Rank)
	assert.Equal(t, gs.Results[2].MeanScore, gs.BestScore)
	require.NotNil(t, gs.BestEstimator)
	assert.True(t, gs.BestEstimator.(*meanShift).IsFitted())
}

func TestGridSearchTieKeepsEarliest(t *testing.T) {
	X, y := linearData(20)
	gs := NewGridSearchCV(&meanShift{}, ParamGrid{"offset": {1.0, 1.0}}, NewKFold(2, false, 0))
	gs.Refit = false
	require.NoError(t, gs.Fit(X, y))

	assert.Equal(t, 0, gs.BestIndex)
	assert.Equal(t, 2, gs.Results[1].Rank)
	assert.Nil(t, gs.BestEstimator)
	assert.Equal(t, gs.Results[0].MeanScore, gs.Results[1].MeanScore)
}

func TestGridSearchDeterministic(t *testing.T) {
	X, y := linearData(30)
	run := func() []CandidateResult {
		gs := NewGridSearchCV(&meanShift{}, ParamGrid{"offset": {1.0, 0.5, 0.0}}, NewKFold(3, true, 9))
		require.NoError(t, gs.Fit(X, y))
		return gs.Results
	}
	assert.Equal(t, run(), run())
}

func TestGridSearchUnknownParam(t *testing.T) {
	X, y := linearData(10)
	gs := NewGridSearchCV(&meanShift{}, ParamGrid{"depth": {1}}, NewKFold(2, false, 0))
	err := gs.Fit(X, y)
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

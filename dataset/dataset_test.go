package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

const toyCSV = "track_name,streams,bpm,energy_%\n" +
	"a,100,120,80\n" +
	"b,200,90,60\n" +
	"c,300,100,70\n"

func TestDatasetMatrixAndTarget(t *testing.T) {
	ds := loadToy(t, toyCSV)

	X, err := ds.Matrix([]string{"energy_%", "bpm"})
	require.NoError(t, err)
	r, c := X.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 80.0, X.At(0, 0))
	assert.Equal(t, 90.0, X.At(1, 1))

	y, err := ds.TargetVector()
	require.NoError(t, err)
	assert.Equal(t, 300.0, y.At(2, 0))

	_, err = ds.Matrix([]string{"track_name"})
	var se *errors.SchemaError
	assert.True(t, errors.As(err, &se))

	_, err = ds.Matrix([]string{"nope"})
	assert.True(t, errors.As(err, &se))
}

func TestDatasetFilterAndClone(t *testing.T) {
	ds := loadToy(t, toyCSV)

	filtered, err := ds.Filter([]bool{true, false, true})
	require.NoError(t, err)
	assert.Equal(t, 2, filtered.Len())
	names, err := filtered.Text("track_name")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, names)
	assert.Equal(t, ds.Columns(), filtered.Columns())

	_, err = ds.Filter([]bool{true})
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))

	clone := ds.Clone()
	bpm, _ := clone.Numeric("bpm")
	bpm[0] = -1
	orig, _ := ds.Numeric("bpm")
	assert.Equal(t, 120.0, orig[0])
}

func TestDatasetColumnsMutation(t *testing.T) {
	ds := loadToy(t, toyCSV)

	require.NoError(t, ds.AddNumeric("double_bpm", []float64{240, 180, 200}))
	assert.Error(t, ds.AddNumeric("double_bpm", []float64{1, 2, 3}))
	assert.Error(t, ds.SetNumeric("short", []float64{1}))

	require.NoError(t, ds.SetNumeric("bpm", []float64{1, 2, 3}))
	bpm, _ := ds.Numeric("bpm")
	assert.Equal(t, []float64{1, 2, 3}, bpm)
	assert.Equal(t, []string{"track_name", "streams", "bpm", "energy_%", "double_bpm"}, ds.Columns())

	require.NoError(t, ds.SetText("streams", []string{"x", "", "z"}))
	col, _ := ds.Column("streams")
	assert.True(t, col.IsMissing(1))
	assert.False(t, col.IsMissing(0))
}

func TestDatasetRecordAndRowKey(t *testing.T) {
	ds := loadToy(t, "track_name,streams,bpm,energy_%\na,100,120,NA\na,100,120,NA\nb,100,120,NA\n")

	rec := ds.Record(0)
	assert.Equal(t, 100.0, rec.Target)
	assert.Equal(t, "a", rec.Text["track_name"])
	assert.True(t, math.IsNaN(rec.Numeric["energy_%"]))

	assert.Equal(t, ds.RowKey(0), ds.RowKey(1))
	assert.NotEqual(t, ds.RowKey(0), ds.RowKey(2))
}

func TestSchemaRequired(t *testing.T) {
	s := SpotifySchema()
	req := s.Required()
	assert.Equal(t, "streams", req[0])
	assert.Len(t, req, 24, "coerced columns are listed once")
}

package dataprep

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/songstreams/dataset"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

func rowKeys(ds *dataset.Dataset) []string {
	keys := make([]string, ds.Len())
	for i := range keys {
		keys[i] = ds.RowKey(i)
	}
	return keys
}

func assertNoMissingMandatory(t *testing.T, ds *dataset.Dataset) {
	t.Helper()
	for _, name := range ds.Schema().Required() {
		col, ok := ds.Column(name)
		require.True(t, ok, name)
		for i := 0; i < ds.Len(); i++ {
			assert.False(t, col.IsMissing(i), "%s row %d", name, i)
		}
	}
	y, err := ds.Numeric(ds.Schema().Target)
	require.NoError(t, err)
	for _, v := range y {
		assert.False(t, math.IsInf(v, 0))
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestCleanImputeZero(t *testing.T) {
	raw := loadToy(t, toyCSV)
	c, err := NewCleaner(DefaultCleanOptions())
	require.NoError(t, err)

	ds, stats, err := c.Clean(raw)
	require.NoError(t, err)
	assertNoMissingMandatory(t, ds)

	assert.Equal(t, 7, stats.RowsIn)
	assert.Equal(t, 4, stats.RowsOut)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 2, stats.InvalidTargets)
	assert.Equal(t, 2, stats.ImputedCells)
	assert.Equal(t, map[string]int{"streams": 1}, stats.Unparseable)

	streams, _ := ds.Numeric("streams")
	assert.Equal(t, []float64{1000, 2000, 3000, 4000}, streams)
	bpm, _ := ds.Numeric("bpm")
	assert.Equal(t, []float64{120, 0, 100, 160}, bpm)
	names, _ := ds.Text("track_name")
	assert.Equal(t, []string{"a", "d", "e", "unknown"}, names)

	assert.Equal(t, 7, raw.Len(), "input is not modified")
}

func TestCleanMissingFeaturePolicy(t *testing.T) {
	raw := loadToy(t, toyCSV)

	t.Run("drop removes the record", func(t *testing.T) {
		opts := DefaultCleanOptions()
		opts.Policy = PolicyDrop
		c, err := NewCleaner(opts)
		require.NoError(t, err)

		ds, stats, err := c.Clean(raw)
		require.NoError(t, err)
		assertNoMissingMandatory(t, ds)
		assert.Equal(t, 2, stats.DroppedMissing)
		names, _ := ds.Text("track_name")
		assert.Equal(t, []string{"a", "e"}, names)
	})

	for _, tc := range []struct {
		strategy string
		want     float64
	}{
		{ImputeZero, 0},
		{ImputeMean, (120.0 + 100 + 160) / 3},
		{ImputeMedian, 120},
	} {
		t.Run("impute "+tc.strategy, func(t *testing.T) {
			opts := DefaultCleanOptions()
			opts.Strategy = tc.strategy
			c, err := NewCleaner(opts)
			require.NoError(t, err)

			ds, _, err := c.Clean(raw)
			require.NoError(t, err)
			bpm, _ := ds.Numeric("bpm")
			require.Len(t, bpm, 4)
			assert.InDelta(t, tc.want, bpm[1], 1e-12)
		})
	}
}

func TestCleanKeepsDuplicatesWhenDisabled(t *testing.T) {
	opts := DefaultCleanOptions()
	opts.DropDuplicates = false
	c, err := NewCleaner(opts)
	require.NoError(t, err)

	ds, stats, err := c.Clean(loadToy(t, toyCSV))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Duplicates)
	assert.Equal(t, 5, ds.Len())
}

func TestCleanDeterministic(t *testing.T) {
	raw := loadToy(t, toyCSV)
	opts := DefaultCleanOptions()
	opts.Strategy = ImputeMedian
	c, err := NewCleaner(opts)
	require.NoError(t, err)

	a, _, err := c.Clean(raw)
	require.NoError(t, err)
	b, _, err := c.Clean(raw)
	require.NoError(t, err)
	assert.Equal(t, rowKeys(a), rowKeys(b))
}

func TestCleanSpotifySample(t *testing.T) {
	ds := loadSample(t)
	assertNoMissingMandatory(t, ds)
	assert.Equal(t, 12, ds.Len())

	shazam, err := ds.Numeric("in_shazam_charts")
	require.NoError(t, err)
	assert.Equal(t, 1021.0, shazam[10])
	keys, _ := ds.Text("key")
	assert.Equal(t, "unknown", keys[10])
}

func TestCleanErrors(t *testing.T) {
	_, err := NewCleaner(CleanOptions{Policy: "ignore", Strategy: ImputeZero})
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))

	_, err = NewCleaner(CleanOptions{Policy: PolicyImpute, Strategy: "mode"})
	assert.True(t, errors.As(err, &ve))

	c, err := NewCleaner(DefaultCleanOptions())
	require.NoError(t, err)
	_, _, err = c.Clean(loadToy(t, "track_name,streams,bpm,energy_%\nx,-1,1,1\ny,,2,2\n"))
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	opts := DefaultCleanOptions()
	opts.Coerce = []string{"missing_column"}
	c, err = NewCleaner(opts)
	require.NoError(t, err)
	_, _, err = c.Clean(loadToy(t, toyCSV))
	var se *errors.SchemaError
	assert.True(t, errors.As(err, &se))
}

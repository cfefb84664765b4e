package dataprep

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/songstreams/dataset"
)

func toySchema() dataset.Schema {
	return dataset.Schema{
		Target:   "streams",
		Features: []string{"bpm", "energy_%"},
		Text:     []string{"track_name"},
		Coerce:   []string{"streams"},
	}
}

const toyCSV = `track_name,streams,bpm,energy_%
a,"1,000",120,50
a,"1,000",120,50
b,BPM110,100,40
c,-5,90,30
d,2000,,60
e,3000,100,70
,4000,160,80
`

func loadToy(t *testing.T, csv string) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.LoadReader(strings.NewReader(csv), dataset.LoadOptions{Schema: toySchema()})
	require.NoError(t, err)
	return ds
}

// loadSample returns the cleaned Spotify sample.
func loadSample(t *testing.T) *dataset.Dataset {
	t.Helper()
	raw, err := dataset.Load("../dataset/testdata/spotify_sample.csv", dataset.DefaultLoadOptions())
	require.NoError(t, err)
	c, err := NewCleaner(DefaultCleanOptions())
	require.NoError(t, err)
	ds, _, err := c.Clean(raw)
	require.NoError(t, err)
	return ds
}

package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func toySchema() Schema {
	return Schema{
		Target:   "streams",
		Features: []string{"bpm", "energy_%"},
		Text:     []string{"track_name"},
	}
}

func loadToy(t *testing.T, csv string) *Dataset {
	t.Helper()
	ds, err := LoadReader(strings.NewReader(csv), LoadOptions{Schema: toySchema()})
	require.NoError(t, err)
	return ds
}

package dataset

import (
	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

// Schema describes which columns a song dataset must carry.
type Schema struct {
	// Target is the column being predicted.
	Target string
	// Features are the numeric model inputs that must be present in the file.
	Features []string
	// Text columns are kept as strings and never coerced.
	Text []string
	// Coerce columns are loaded as text and converted to numbers by the
	// cleaner after stripping thousands separators.
	Coerce []string
	// Optional columns are used when present (e.g. for charts) but not required.
	Optional []string
	// Strict rejects any column not named above.
	Strict bool
}

// SpotifySchema is the layout of the Spotify 2023 most-streamed songs export.
func SpotifySchema() Schema {
	return Schema{
		Target: "streams",
		Features: []string{
			"artist_count",
			"released_year",
			"released_month",
			"released_day",
			"in_spotify_playlists",
			"in_spotify_charts",
			"in_apple_playlists",
			"in_apple_charts",
			"in_deezer_playlists",
			"in_deezer_charts",
			"in_shazam_charts",
			"bpm",
			"danceability_%",
			"valence_%",
			"energy_%",
			"acousticness_%",
			"instrumentalness_%",
			"liveness_%",
			"speechiness_%",
		},
		Text:     []string{"track_name", "artist(s)_name", "key", "mode"},
		Coerce:   []string{"streams", "in_deezer_playlists", "in_shazam_charts"},
		Optional: nil,
	}
}

// Required lists every column that must appear in the header, in a stable order.
func (s Schema) Required() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(names ...string) {
		for _, n := range names {
			if n != "" && !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	add(s.Target)
	add(s.Features...)
	add(s.Text...)
	add(s.Coerce...)
	return out
}

func (s Schema) isText(name string) bool {
	return contains(s.Text, name) || contains(s.Coerce, name)
}

func (s Schema) known(name string) bool {
	return name == s.Target || contains(s.Features, name) || contains(s.Text, name) ||
		contains(s.Coerce, name) || contains(s.Optional, name)
}

// Validate checks the header against the schema.
func (s Schema) Validate(header []string) error {
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		if seen[h] {
			return errors.NewSchemaError(h, "duplicate column in header")
		}
		seen[h] = true
		if s.Strict && !s.known(h) {
			return errors.NewSchemaError(h, "unexpected column")
		}
	}
	for _, req := range s.Required() {
		if !seen[req] {
			return errors.NewSchemaError(req, "required column not found")
		}
	}
	return nil
}

func contains(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}

package dataset

import (
	"bufio"
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/pkg/log"
)

// Supported file encodings.
const (
	EncodingUTF8   = "utf-8"
	EncodingLatin1 = "iso-8859-1"
)

// LoadOptions configures CSV loading.
type LoadOptions struct {
	Encoding  string // "utf-8" (default) or "iso-8859-1"
	Delimiter rune   // default ','
	Schema    Schema
}

// DefaultLoadOptions matches the Spotify 2023 export, which is Latin-1 encoded.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Encoding:  EncodingLatin1,
		Delimiter: ',',
		Schema:    SpotifySchema(),
	}
}

// Load reads a CSV file into a Dataset.
func Load(path string, opts LoadOptions) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewLoadError(path, "cannot open file", err)
	}
	defer f.Close()

	ds, err := loadReader(path, f, opts)
	if err != nil {
		return nil, err
	}
	log.GetLoggerWithName("dataset").Info("Dataset loaded",
		log.PathKey, path,
		log.SamplesKey, ds.Len(),
		"columns", len(ds.columns),
	)
	return ds, nil
}

// LoadReader reads CSV data from r.
func LoadReader(r io.Reader, opts LoadOptions) (*Dataset, error) {
	return loadReader("<reader>", r, opts)
}

func isMissingToken(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "na", "nan", "null":
		return true
	}
	return false
}

func decoder(path, encoding string, r io.Reader) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", EncodingUTF8, "utf8":
		return r, nil
	case EncodingLatin1, "latin1", "latin-1", "iso8859-1":
		return charmap.ISO8859_1.NewDecoder().Reader(r), nil
	default:
		return nil, errors.NewLoadError(path, "unsupported encoding "+strconv.Quote(encoding), nil)
	}
}

func loadReader(path string, r io.Reader, opts LoadOptions) (*Dataset, error) {
	dec, err := decoder(path, opts.Encoding, r)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bufio.NewReader(dec))
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewLoadError(path, "file is empty", nil)
	}
	if err != nil {
		return nil, errors.NewLoadError(path, "cannot read header", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	if err := opts.Schema.Validate(header); err != nil {
		return nil, err
	}

	raw := make([][]string, len(header))
	rows := 0
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewLoadError(path, "malformed CSV", err)
		}
		for j, cell := range rec {
			raw[j] = append(raw[j], cell)
		}
		rows++
	}
	if rows == 0 {
		return nil, errors.NewLoadError(path, "no data rows", nil)
	}

	ds := New(opts.Schema, rows)
	for j, name := range header {
		ds.put(buildColumn(name, raw[j], opts.Schema))
	}
	return ds, nil
}

// buildColumn decides the column kind. Text and coercion columns stay text,
// target and feature columns are forced numeric, anything else is numeric only
// when every non-missing cell parses.
func buildColumn(name string, cells []string, schema Schema) *Column {
	if schema.isText(name) {
		text := make([]string, len(cells))
		for i, c := range cells {
			if !isMissingToken(c) {
				text[i] = strings.TrimSpace(c)
			}
		}
		return &Column{Name: name, Kind: Text, Text: text}
	}

	forced := name == schema.Target || contains(schema.Features, name)
	values := make([]float64, len(cells))
	bad := 0
	for i, c := range cells {
		if isMissingToken(c) {
			values[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			if !forced {
				return buildColumn(name, cells, Schema{Text: []string{name}})
			}
			values[i] = math.NaN()
			bad++
			continue
		}
		values[i] = v
	}
	if bad > 0 {
		errors.Warn(errors.NewDataConversionWarning(name, bad, "unparseable numeric cells treated as missing"))
	}
	return &Column{Name: name, Kind: Numeric, Numeric: values}
}

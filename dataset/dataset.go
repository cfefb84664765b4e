// Package dataset holds the column-oriented song table and its CSV loader.
//
// Numeric columns are []float64 with NaN marking a missing cell; text columns
// are []string with "" marking a missing cell. Every transformation returns a
// new Dataset so earlier stages stay untouched.
package dataset

import (
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/songstreams/core/parallel"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

// Kind is the storage type of a column.
type Kind int

const (
	// Numeric columns store float64 values.
	Numeric Kind = iota
	// Text columns store strings.
	Text
)

func (k Kind) String() string {
	if k == Numeric {
		return "numeric"
	}
	return "text"
}

// Column is one named column of a Dataset.
type Column struct {
	Name    string
	Kind    Kind
	Numeric []float64
	Text    []string
}

func (c *Column) clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Numeric != nil {
		out.Numeric = append([]float64(nil), c.Numeric...)
	}
	if c.Text != nil {
		out.Text = append([]string(nil), c.Text...)
	}
	return out
}

// IsMissing reports whether row i of the column is missing.
func (c *Column) IsMissing(i int) bool {
	if c.Kind == Numeric {
		return math.IsNaN(c.Numeric[i])
	}
	return c.Text[i] == ""
}

// Record is one song row.
type Record struct {
	Numeric map[string]float64
	Text    map[string]string
	Target  float64
}

// Dataset is an ordered collection of song rows sharing a schema.
type Dataset struct {
	schema  Schema
	columns []*Column
	index   map[string]int
	n       int
}

// New creates an empty Dataset with n rows.
func New(schema Schema, n int) *Dataset {
	return &Dataset{schema: schema, index: make(map[string]int), n: n}
}

// Schema returns the schema the dataset was loaded with.
func (d *Dataset) Schema() Schema { return d.schema }

// Len returns the number of rows.
func (d *Dataset) Len() int { return d.n }

// Columns returns the column names in file order.
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.columns))
	for i, c := range d.columns {
		out[i] = c.Name
	}
	return out
}

// Column returns the named column.
func (d *Dataset) Column(name string) (*Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.columns[i], true
}

// Has reports whether the named column exists.
func (d *Dataset) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Numeric returns the values of a numeric column. The slice is shared.
func (d *Dataset) Numeric(name string) ([]float64, error) {
	c, ok := d.Column(name)
	if !ok {
		return nil, errors.NewSchemaError(name, "column not found")
	}
	if c.Kind != Numeric {
		return nil, errors.NewSchemaError(name, "column is not numeric")
	}
	return c.Numeric, nil
}

// Text returns the values of a text column. The slice is shared.
func (d *Dataset) Text(name string) ([]string, error) {
	c, ok := d.Column(name)
	if !ok {
		return nil, errors.NewSchemaError(name, "column not found")
	}
	if c.Kind != Text {
		return nil, errors.NewSchemaError(name, "column is not text")
	}
	return c.Text, nil
}

func (d *Dataset) put(c *Column) {
	if i, ok := d.index[c.Name]; ok {
		d.columns[i] = c
		return
	}
	d.index[c.Name] = len(d.columns)
	d.columns = append(d.columns, c)
}

// AddNumeric appends a new numeric column. The column must not exist yet.
func (d *Dataset) AddNumeric(name string, values []float64) error {
	if d.Has(name) {
		return errors.NewSchemaError(name, "column already exists")
	}
	return d.SetNumeric(name, values)
}

// SetNumeric creates or replaces a numeric column.
func (d *Dataset) SetNumeric(name string, values []float64) error {
	if len(values) != d.n {
		return errors.NewDimensionError("Dataset.SetNumeric", d.n, len(values), 0)
	}
	d.put(&Column{Name: name, Kind: Numeric, Numeric: values})
	return nil
}

// SetText creates or replaces a text column.
func (d *Dataset) SetText(name string, values []string) error {
	if len(values) != d.n {
		return errors.NewDimensionError("Dataset.SetText", d.n, len(values), 0)
	}
	d.put(&Column{Name: name, Kind: Text, Text: values})
	return nil
}

// Filter returns a new Dataset holding the rows where keep is true, in order.
func (d *Dataset) Filter(keep []bool) (*Dataset, error) {
	if len(keep) != d.n {
		return nil, errors.NewDimensionError("Dataset.Filter", d.n, len(keep), 0)
	}
	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}

	out := New(d.schema, n)
	for _, c := range d.columns {
		nc := &Column{Name: c.Name, Kind: c.Kind}
		if c.Kind == Numeric {
			nc.Numeric = make([]float64, 0, n)
			for i, k := range keep {
				if k {
					nc.Numeric = append(nc.Numeric, c.Numeric[i])
				}
			}
		} else {
			nc.Text = make([]string, 0, n)
			for i, k := range keep {
				if k {
					nc.Text = append(nc.Text, c.Text[i])
				}
			}
		}
		out.put(nc)
	}
	return out, nil
}

// Clone returns a deep copy.
func (d *Dataset) Clone() *Dataset {
	out := New(d.schema, d.n)
	for _, c := range d.columns {
		out.put(c.clone())
	}
	return out
}

// Record returns row i.
func (d *Dataset) Record(i int) Record {
	r := Record{
		Numeric: make(map[string]float64),
		Text:    make(map[string]string),
		Target:  math.NaN(),
	}
	for _, c := range d.columns {
		if c.Kind == Numeric {
			r.Numeric[c.Name] = c.Numeric[i]
			if c.Name == d.schema.Target {
				r.Target = c.Numeric[i]
			}
		} else {
			r.Text[c.Name] = c.Text[i]
		}
	}
	return r
}

// RowKey renders row i as a single string; identical rows give identical keys.
func (d *Dataset) RowKey(i int) string {
	var b strings.Builder
	for _, c := range d.columns {
		if c.Kind == Numeric {
			b.WriteString(strconv.FormatFloat(c.Numeric[i], 'g', -1, 64))
		} else {
			b.WriteString(strconv.Quote(c.Text[i]))
		}
		b.WriteByte(0x1f)
	}
	return b.String()
}

// 行数がこれを超えると行列構築を並列化する
const matrixParallelThreshold = 2048

// Matrix builds an n×len(features) matrix from numeric columns.
func (d *Dataset) Matrix(features []string) (*mat.Dense, error) {
	if d.n == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	if len(features) == 0 {
		return nil, errors.NewValidationError("features", "at least one feature is required", 0)
	}
	cols := make([][]float64, len(features))
	for j, f := range features {
		v, err := d.Numeric(f)
		if err != nil {
			return nil, err
		}
		cols[j] = v
	}

	X := mat.NewDense(d.n, len(features), nil)
	parallel.ParallelizeWithThreshold(d.n, matrixParallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := range cols {
				X.Set(i, j, cols[j][i])
			}
		}
	})
	return X, nil
}

// TargetVector returns the target column as an n×1 matrix.
func (d *Dataset) TargetVector() (*mat.Dense, error) {
	if d.n == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	y, err := d.Numeric(d.schema.Target)
	if err != nil {
		return nil, err
	}
	return mat.NewDense(d.n, 1, append([]float64(nil), y...)), nil
}

// Package store persists trained models on disk, one gob-encoded blob per
// model name, in a gzip-compressed diskv key/value store.
package store

import (
	"bytes"
	"regexp"
	"sort"

	"github.com/peterbourgon/diskv"

	"github.com/YuminosukeSato/songstreams/core/model"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/pkg/log"
)

// ErrModelNotFound is returned by Load for an unknown name.
var ErrModelNotFound = errors.New("model not found in store")

var validKey = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

const weightsSuffix = ".weights.json"

// ModelStore is a directory of saved models.
type ModelStore struct {
	dv     *diskv.Diskv
	logger log.Logger
}

// Open creates a store rooted at dir. The directory is created on first write.
func Open(dir string) *ModelStore {
	return &ModelStore{
		dv: diskv.New(diskv.Options{
			BasePath:     dir,
			Transform:    func(string) []string { return []string{} },
			CacheSizeMax: 8 * 1024 * 1024,
			Compression:  diskv.NewGzipCompression(),
		}),
		logger: log.GetLoggerWithName("store"),
	}
}

// BasePath returns the store directory.
func (s *ModelStore) BasePath() string { return s.dv.BasePath }

func checkKey(name string) error {
	if !validKey.MatchString(name) {
		return errors.NewValidationError("model name", "must be alphanumeric with . _ or -", name)
	}
	return nil
}

// Save gob-encodes m under name, replacing any previous entry.
func (s *ModelStore) Save(name string, m interface{}) error {
	if err := checkKey(name); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := model.SaveModelToWriter(m, &buf); err != nil {
		return err
	}
	if err := s.dv.Write(name, buf.Bytes()); err != nil {
		return errors.Wrapf(err, "write model %q", name)
	}
	s.logger.Info("Model saved", log.ModelNameKey, name, log.PathKey, s.dv.BasePath, "bytes", buf.Len())
	return nil
}

// Load decodes the model saved under name into into, which must be a pointer
// to the saved type.
func (s *ModelStore) Load(name string, into interface{}) error {
	if err := checkKey(name); err != nil {
		return err
	}
	if !s.dv.Has(name) {
		return errors.Wrapf(ErrModelNotFound, "%q", name)
	}
	b, err := s.dv.Read(name)
	if err != nil {
		return errors.Wrapf(err, "read model %q", name)
	}
	return model.LoadModelFromReader(into, bytes.NewReader(b))
}

// SaveWeights stores exported weights as JSON next to the model.
func (s *ModelStore) SaveWeights(name string, w *model.ModelWeights) error {
	if err := checkKey(name); err != nil {
		return err
	}
	b, err := w.ToJSON()
	if err != nil {
		return err
	}
	return errors.Wrap(s.dv.Write(name+weightsSuffix, b), "write weights")
}

// LoadWeights reads weights saved by SaveWeights.
func (s *ModelStore) LoadWeights(name string) (*model.ModelWeights, error) {
	key := name + weightsSuffix
	if !s.dv.Has(key) {
		return nil, errors.Wrapf(ErrModelNotFound, "weights %q", name)
	}
	b, err := s.dv.Read(key)
	if err != nil {
		return nil, errors.Wrapf(err, "read weights %q", name)
	}
	w := &model.ModelWeights{}
	if err := w.FromJSON(b); err != nil {
		return nil, err
	}
	return w, nil
}

// Has reports whether name has been saved.
func (s *ModelStore) Has(name string) bool { return s.dv.Has(name) }

// Delete removes name from the store.
func (s *ModelStore) Delete(name string) error {
	if !s.dv.Has(name) {
		return errors.Wrapf(ErrModelNotFound, "%q", name)
	}
	return s.dv.Erase(name)
}

// Keys returns the saved names in sorted order.
func (s *ModelStore) Keys() []string {
	var keys []string
	for k := range s.dv.Keys(nil) {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

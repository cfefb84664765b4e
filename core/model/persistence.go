package model

import (
	"encoding/gob"
	"io"

	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

// SaveModelToWriter はモデルをgob形式でio.Writerに保存する
//
// 使用例:
//
//	var buf bytes.Buffer
//	err := model.SaveModelToWriter(reg, &buf)
func SaveModelToWriter(m interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(m); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込む。
// mは保存時と同じ型のポインタでなければならない。
func LoadModelFromReader(m interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(m); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}

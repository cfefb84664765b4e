package model

import (
	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

// AsInt はハイパーパラメータ値を int に変換する。TOML由来の int64 や整数値の float64 も受け付ける。
func AsInt(name string, v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case int32:
		return int(x), nil
	case uint64:
		return int(x), nil
	case float64:
		if x == float64(int(x)) {
			return int(x), nil
		}
	}
	return 0, errors.NewValidationError(name, "must be an integer", v)
}

// AsFloat はハイパーパラメータ値を float64 に変換する
func AsFloat(name string, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return 0, errors.NewValidationError(name, "must be a number", v)
}

// AsString はハイパーパラメータ値を string に変換する
func AsString(name string, v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", errors.NewValidationError(name, "must be a string", v)
}

// AsBool はハイパーパラメータ値を bool に変換する
func AsBool(name string, v interface{}) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, errors.NewValidationError(name, "must be a boolean", v)
}

// AsIntSlice は []int, []int64, []interface{} を []int に変換する
func AsIntSlice(name string, v interface{}) ([]int, error) {
	switch x := v.(type) {
	case []int:
		return append([]int(nil), x...), nil
	case []int64:
		out := make([]int, len(x))
		for i, n := range x {
			out[i] = int(n)
		}
		return out, nil
	case []interface{}:
		out := make([]int, len(x))
		for i, e := range x {
			n, err := AsInt(name, e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	return nil, errors.NewValidationError(name, "must be a list of integers", v)
}

// UnknownParam は未知のパラメータ名に対するエラーを返す
func UnknownParam(modelName, key string) error {
	return errors.NewValidationError(key, "unknown parameter for "+modelName, nil)
}

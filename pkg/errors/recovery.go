package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError は Fit などの内部で発生した panic を表します。
type PanicError struct {
	Operation string
	Value     interface{}
	Stack     string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("songstreams: panic in %s: %v", e.Operation, e.Value)
}

// Recover は defer で呼び出し、panic を *err に格納されるエラーへ変換します。
//
//	func (m *Model) Fit(X, y mat.Matrix) (err error) {
//	    defer errors.Recover(&err, "Model.Fit")
//	    ...
//	}
//
// 既にエラーがある場合はそれを原因として保持します。
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	pe := &PanicError{Operation: operation, Value: r, Stack: string(debug.Stack())}
	if *err != nil {
		*err = Wrapf(*err, "%s", pe.Error())
		return
	}
	*err = WithStack(pe)
}

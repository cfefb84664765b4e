package errors

import (
	"math"
)

// maxReportedValues は NumericalInstabilityError に記録する値の上限です。
const maxReportedValues = 10

func unstable(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }

// CheckNumericalStability は values に NaN または Inf が含まれていれば
// NumericalInstabilityError を返します。
func CheckNumericalStability(operation string, values []float64, iteration int) error {
	var bad []float64
	for _, v := range values {
		if unstable(v) {
			bad = append(bad, v)
			if len(bad) == maxReportedValues {
				break
			}
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return NewNumericalInstabilityError(operation, bad, iteration)
}

// CheckScalar は損失などの単一の値を検査します。
func CheckScalar(operation string, value float64, iteration int) error {
	if unstable(value) {
		return NewNumericalInstabilityError(operation, []float64{value}, iteration)
	}
	return nil
}

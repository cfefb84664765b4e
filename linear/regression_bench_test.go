package linear

import (
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// createBenchmarkData は y = 1 + Σ 0.5·(j+1)·x_j + 小さなノイズ のデータを生成する
func createBenchmarkData(rows, cols int) (*mat.Dense, *mat.Dense) {
	// シードを固定して再現性を確保
	rng := rand.New(rand.NewPCG(42, 42))

	X := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			X.Set(i, j, rng.Float64()*2.0-1.0)
		}
	}

	y := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		sum := 1.0
		for j := 0; j < cols; j++ {
			sum += X.At(i, j) * float64(j+1) * 0.5
		}
		sum += (rng.Float64() - 0.5) * 0.1
		y.Set(i, 0, sum)
	}

	return X, y
}

// BenchmarkLinearRegressionFit はデータセット規模ごとのFit時間を測る。
// 1000行を超えると計画行列の構築が並列化される。
func BenchmarkLinearRegressionFit(b *testing.B) {
	sizes := []struct {
		name string
		rows int
		cols int
	}{
		{"Songs_950x20", 950, 20},
		{"Medium_2000x20", 2000, 20},
		{"Large_10000x20", 10000, 20},
	}

	for _, size := range sizes {
		b.Run(size.name, func(b *testing.B) {
			X, y := createBenchmarkData(size.rows, size.cols)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				lr := NewLinearRegression()
				if err := lr.Fit(X, y); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkLinearRegressionPredict(b *testing.B) {
	X, y := createBenchmarkData(950, 20)
	lr := NewLinearRegression()
	if err := lr.Fit(X, y); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := lr.Predict(X); err != nil {
			b.Fatal(err)
		}
	}
}

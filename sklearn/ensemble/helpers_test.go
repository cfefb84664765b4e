package ensemble

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// friedmanLike returns y = 3·x0 + x1² − 2·x2 + noise with three irrelevant columns.
func friedmanLike(n int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 6, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < 6; j++ {
			X.Set(i, j, rng.Float64()*2-1)
		}
		v := 3*X.At(i, 0) + X.At(i, 1)*X.At(i, 1) - 2*X.At(i, 2) + 0.05*rng.NormFloat64()
		y.Set(i, 0, v)
	}
	return X, y
}

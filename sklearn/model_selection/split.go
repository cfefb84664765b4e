// Package model_selection provides seeded data splitting, k-fold cross
// validation and exhaustive grid search over model hyperparameters.
package model_selection

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

// permutation returns a seeded shuffle of 0..n-1.
func permutation(n int, seed uint64) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	r := rand.New(rand.NewPCG(seed, seed))
	r.Shuffle(n, func(i, j int) {
		idx[i], idx[j] = idx[j], idx[i]
	})
	return idx
}

// TrainTestIndices splits 0..n-1 into train and test index sets. The test set
// holds ceil(testSize·n) rows. Both sets are returned in ascending order.
func TrainTestIndices(n int, testSize float64, seed uint64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest < 1 || n-nTest < 1 {
		return nil, nil, errors.NewValidationError("test_size", "leaves an empty train or test set", n)
	}

	perm := permutation(n, seed)
	test = append([]int(nil), perm[:nTest]...)
	train = append([]int(nil), perm[nTest:]...)
	sort.Ints(test)
	sort.Ints(train)
	return train, test, nil
}

// TrainTestSplit splits X and y into random train and test subsets.
//
//	XTrain, XTest, yTrain, yTest, err := model_selection.TrainTestSplit(X, y, 0.2, 42)
func TrainTestSplit(X, y mat.Matrix, testSize float64, seed uint64) (XTrain, XTest, yTrain, yTest *mat.Dense, err error) {
	n, _ := X.Dims()
	ny, _ := y.Dims()
	if n != ny {
		return nil, nil, nil, nil, errors.NewDimensionError("TrainTestSplit", n, ny, 0)
	}
	train, test, err := TrainTestIndices(n, testSize, seed)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return Take(X, train), Take(X, test), Take(y, train), Take(y, test), nil
}

// Take copies the given rows of m into a new matrix.
func Take(m mat.Matrix, rows []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(r, j))
		}
	}
	return out
}

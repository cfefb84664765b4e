package model_selection

import (
	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

// Fold is one train/test partition of the row indices.
type Fold struct {
	Train []int
	Test  []int
}

// Splitter produces cross-validation folds for n rows.
type Splitter interface {
	Split(n int) ([]Fold, error)
	NSplits() int
}

// KFold splits rows into NSplits consecutive folds, optionally shuffled with
// a fixed seed. The first n % NSplits folds get one extra row.
type KFold struct {
	Splits  int
	Shuffle bool
	Seed    uint64
}

// NewKFold creates a k-fold splitter.
func NewKFold(nSplits int, shuffle bool, seed uint64) *KFold {
	return &KFold{Splits: nSplits, Shuffle: shuffle, Seed: seed}
}

// NSplits returns the number of folds.
func (kf *KFold) NSplits() int {
	return kf.Splits
}

// Split returns the folds. Every index appears in exactly one test set; train
// and test indices are ascending within each fold.
func (kf *KFold) Split(n int) ([]Fold, error) {
	if kf.Splits < 2 {
		return nil, errors.NewValidationError("n_splits", "must be at least 2", kf.Splits)
	}
	if n < kf.Splits {
		return nil, errors.NewValidationError("n_splits", "cannot exceed the number of samples", n)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if kf.Shuffle {
		order = permutation(n, kf.Seed)
	}

	folds := make([]Fold, kf.Splits)
	foldSize := n / kf.Splits
	remainder := n % kf.Splits

	start := 0
	for f := 0; f < kf.Splits; f++ {
		size := foldSize
		if f < remainder {
			size++
		}
		inTest := make([]bool, n)
		for _, idx := range order[start : start+size] {
			inTest[idx] = true
		}

		fold := Fold{
			Train: make([]int, 0, n-size),
			Test:  make([]int, 0, size),
		}
		for i := 0; i < n; i++ {
			if inTest[i] {
				fold.Test = append(fold.Test, i)
			} else {
				fold.Train = append(fold.Train, i)
			}
		}
		folds[f] = fold
		start += size
	}
	return folds, nil
}

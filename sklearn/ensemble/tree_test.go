package ensemble

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestBuildTreeStepFunction(t *testing.T) {
	// squared error gradients at prediction 0 are -y
	X := mat.NewDense(6, 1, []float64{1, 2, 3, 4, 5, 6})
	y := []float64{0, 0, 0, 10, 10, 10}
	grad := make([]float64, len(y))
	hess := make([]float64, len(y))
	for i, v := range y {
		grad[i] = -v
		hess[i] = 1
	}

	tree := buildTree(X, grad, hess, []int{0, 1, 2, 3, 4, 5}, treeParams{
		maxDepth:       3,
		lambda:         0,
		minChildWeight: 1,
		features:       []int{0},
	})

	root := tree.Nodes[0]
	require.False(t, root.Leaf)
	assert.Equal(t, 0, root.Feature)
	assert.Equal(t, 3.5, root.Threshold)
	assert.Equal(t, 0.0, tree.Predict([]float64{2}))
	assert.Equal(t, 10.0, tree.Predict([]float64{5}))
	assert.Equal(t, 1, tree.Depth())
}

func TestBuildTreeRespectsConstraints(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	grad := []float64{-1, -1, 1, 1}
	hess := []float64{1, 1, 1, 1}
	idx := []int{0, 1, 2, 3}

	t.Run("gamma blocks weak splits", func(t *testing.T) {
		tree := buildTree(X, grad, hess, idx, treeParams{maxDepth: 3, lambda: 1, gamma: 100, features: []int{0}})
		assert.Len(t, tree.Nodes, 1)
		assert.True(t, tree.Nodes[0].Leaf)
	})

	t.Run("min child weight", func(t *testing.T) {
		tree := buildTree(X, grad, hess, idx, treeParams{maxDepth: 3, lambda: 1, minChildWeight: 3, features: []int{0}})
		assert.Len(t, tree.Nodes, 1)
	})

	t.Run("leaf value is -G/(H+lambda)", func(t *testing.T) {
		tree := buildTree(X, grad, hess, idx, treeParams{maxDepth: 0, lambda: 1, features: []int{0}})
		assert.InDelta(t, 0.0, tree.Nodes[0].Value, 1e-12)
		tree = buildTree(X, grad, hess, []int{0, 1}, treeParams{maxDepth: 0, lambda: 1, features: []int{0}})
		assert.InDelta(t, 2.0/3.0, tree.Nodes[0].Value, 1e-12)
	})
}

func TestTreeDump(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	tree := buildTree(X, []float64{-1, -1, 1, 1}, []float64{1, 1, 1, 1}, []int{0, 1, 2, 3},
		treeParams{maxDepth: 1, features: []int{0}})

	dump := tree.Dump([]string{"bpm"})
	assert.True(t, strings.HasPrefix(dump, "0:[bpm<=2.5]"))
	assert.Contains(t, dump, "\t1:leaf=")
	assert.Contains(t, tree.Dump(nil), "[f0<=2.5]")
}

func TestBuildTreeAdjacentFloats(t *testing.T) {
	lo := math.Nextafter(1, 2)
	hi := math.Nextafter(lo, 2)
	X := mat.NewDense(2, 1, []float64{lo, hi})

	tree := buildTree(X, []float64{-1, 1}, []float64{1, 1}, []int{0, 1},
		treeParams{maxDepth: 1, lambda: 0, features: []int{0}})

	root := tree.Nodes[0]
	require.False(t, root.Leaf)
	assert.GreaterOrEqual(t, root.Threshold, lo)
	assert.Less(t, root.Threshold, hi)
	for _, child := range []int{root.Left, root.Right} {
		n := tree.Nodes[child]
		assert.True(t, n.Leaf)
		assert.Equal(t, 1, n.Samples)
		assert.False(t, math.IsNaN(n.Value))
	}
	assert.Equal(t, 1.0, tree.Predict([]float64{lo}))
	assert.Equal(t, -1.0, tree.Predict([]float64{hi}))
}

package ensemble

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Node is one node of a regression tree. Leaves carry Value; internal nodes
// send rows with x[Feature] <= Threshold to Left.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Gain      float64
	Cover     float64
	Samples   int
	Leaf      bool
}

// Tree is a regression tree stored as a flat node slice rooted at index 0.
type Tree struct {
	Nodes []Node
}

type treeParams struct {
	maxDepth       int
	lambda         float64
	gamma          float64
	minChildWeight float64
	features       []int
}

type treeBuilder struct {
	params treeParams
	X      *mat.Dense
	grad   []float64
	hess   []float64
	tree   *Tree
}

// buildTree grows a tree on the rows in idx by exact greedy search.
func buildTree(X *mat.Dense, grad, hess []float64, idx []int, params treeParams) *Tree {
	b := &treeBuilder{params: params, X: X, grad: grad, hess: hess, tree: &Tree{}}
	b.grow(idx, 0)
	return b.tree
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	G, H := 0.0, 0.0
	for _, i := range idx {
		G += b.grad[i]
		H += b.hess[i]
	}

	id := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{
		Leaf:    true,
		Value:   -G / (H + b.params.lambda),
		Cover:   H,
		Samples: len(idx),
	})

	if depth >= b.params.maxDepth || len(idx) < 2 || H < 2*b.params.minChildWeight {
		return id
	}
	best, ok := b.findSplit(idx, G, H)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.X.At(i, best.feature) <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)

	node := &b.tree.Nodes[id]
	node.Leaf = false
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Gain = best.gain
	node.Left = l
	node.Right = r
	return id
}

// findSplit returns the split with the highest positive gain. Ties keep the
// first candidate in feature order.
func (b *treeBuilder) findSplit(idx []int, G, H float64) (split, bool) {
	lambda := b.params.lambda
	parent := G * G / (H + lambda)
	best := split{gain: 0}
	found := false

	order := make([]int, len(idx))
	for _, f := range b.params.features {
		copy(order, idx)
		sort.SliceStable(order, func(a, c int) bool {
			return b.X.At(order[a], f) < b.X.At(order[c], f)
		})

		GL, HL := 0.0, 0.0
		for k := 0; k < len(order)-1; k++ {
			i := order[k]
			GL += b.grad[i]
			HL += b.hess[i]
			x, next := b.X.At(i, f), b.X.At(order[k+1], f)
			if x == next {
				continue
			}
			GR, HR := G-GL, H-HL
			if HL < b.params.minChildWeight || HR < b.params.minChildWeight {
				continue
			}
			gain := 0.5*(GL*GL/(HL+lambda)+GR*GR/(HR+lambda)-parent) - b.params.gamma
			if gain > best.gain {
				// adjacent floats can round the midpoint up to next
				thr := x + (next-x)/2
				if thr >= next {
					thr = x
				}
				best = split{feature: f, threshold: thr, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

// Predict returns the leaf value reached by x.
func (t *Tree) Predict(x []float64) float64 {
	n := &t.Nodes[0]
	for !n.Leaf {
		if x[n.Feature] <= n.Threshold {
			n = &t.Nodes[n.Left]
		} else {
			n = &t.Nodes[n.Right]
		}
	}
	return n.Value
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Leaf {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

// Dump renders the tree one node per line, children indented by depth.
func (t *Tree) Dump(featureNames []string) string {
	var sb strings.Builder
	var walk func(i, depth int)
	walk = func(i, depth int) {
		n := t.Nodes[i]
		sb.WriteString(strings.Repeat("\t", depth))
		if n.Leaf {
			fmt.Fprintf(&sb, "%d:leaf=%.6g,cover=%.6g\n", i, n.Value, n.Cover)
			return
		}
		name := fmt.Sprintf("f%d", n.Feature)
		if n.Feature < len(featureNames) {
			name = featureNames[n.Feature]
		}
		fmt.Fprintf(&sb, "%d:[%s<=%.6g] yes=%d,no=%d,gain=%.6g,cover=%.6g\n",
			i, name, n.Threshold, n.Left, n.Right, n.Gain, n.Cover)
		walk(n.Left, depth+1)
		walk(n.Right, depth+1)
	}
	walk(0, 0)
	return sb.String()
}

package ml

import (
	"math"
	"math/rand/v2"
	"sort"
)

// ForestParams are the random forest hyperparameters
type ForestParams struct {
	Trees           int   `json:"trees"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf"`
	Seed            int64 `json:"seed"`
}

// DefaultForestParams mirrors the production classifier settings
func DefaultForestParams() ForestParams {
	return ForestParams{Trees: 200, MaxDepth: 10, MinSamplesSplit: 5, MinSamplesLeaf: 1, Seed: 42}
}

// Tree is a fitted decision tree stored as flat node arrays. A node with Left[i] == -1 is a leaf
// and Value[i] holds its normalized class distribution.
type Tree struct {
	Feature   []int       `json:"feature"`
	Threshold []float64   `json:"threshold"`
	Left      []int       `json:"left"`
	Right     []int       `json:"right"`
	Value     [][]float64 `json:"value"`
}

func (t *Tree) addNode() int {
	t.Feature = append(t.Feature, -1)
	t.Threshold = append(t.Threshold, 0)
	t.Left = append(t.Left, -1)
	t.Right = append(t.Right, -1)
	t.Value = append(t.Value, nil)
	return len(t.Feature) - 1
}

func (t *Tree) predict(x []float64) []float64 {
	node := 0
	for t.Left[node] != -1 {
		f := t.Feature[node]
		v := 0.0
		if f < len(x) {
			v = x[f]
		}
		if v <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return t.Value[node]
}

// RandomForest is a bagged ensemble of Gini trees with balanced class weights.
// Labels passed to Fit are class indices in [0, NClasses).
type RandomForest struct {
	Params   ForestParams `json:"params"`
	NClasses int          `json:"n_classes"`
	Trees    []*Tree      `json:"trees"`
}

func NewRandomForest(params ForestParams) *RandomForest {
	return &RandomForest{Params: params}
}

// Fit trains the ensemble on X with class-index labels y
func (f *RandomForest) Fit(X [][]float64, y []int, nClasses int) {
	f.NClasses = nClasses
	f.Trees = make([]*Tree, 0, f.Params.Trees)
	if len(X) == 0 {
		return
	}

	classWeight := balancedWeights(y, nClasses)
	nFeatures := len(X[0])
	mtry := int(math.Max(1, math.Floor(math.Sqrt(float64(nFeatures)))))

	for i := 0; i < f.Params.Trees; i++ {
		rng := rand.New(rand.NewPCG(uint64(f.Params.Seed), uint64(i)))

		// Bootstrap as per-sample draw counts
		counts := make([]float64, len(X))
		for range X {
			counts[rng.IntN(len(X))]++
		}
		var idx []int
		weights := make([]float64, len(X))
		for s, c := range counts {
			if c > 0 {
				idx = append(idx, s)
				weights[s] = c * classWeight[y[s]]
			}
		}

		b := &treeBuilder{
			X: X, y: y, w: weights, nClasses: nClasses, nFeatures: nFeatures,
			mtry: mtry, params: f.Params, rng: rng, tree: &Tree{},
		}
		b.build(idx, 0)
		f.Trees = append(f.Trees, b.tree)
	}
}

// PredictProba averages per-tree leaf distributions for one sample
func (f *RandomForest) PredictProba(x []float64) []float64 {
	out := make([]float64, f.NClasses)
	if len(f.Trees) == 0 {
		return out
	}
	for _, t := range f.Trees {
		for c, p := range t.predict(x) {
			out[c] += p
		}
	}
	for c := range out {
		out[c] /= float64(len(f.Trees))
	}
	return out
}

// balancedWeights computes n_samples / (n_classes * count_c) per class
func balancedWeights(y []int, nClasses int) []float64 {
	counts := make([]float64, nClasses)
	for _, c := range y {
		counts[c]++
	}
	weights := make([]float64, nClasses)
	for c, n := range counts {
		if n > 0 {
			weights[c] = float64(len(y)) / (float64(nClasses) * n)
		}
	}
	return weights
}

type treeBuilder struct {
	X         [][]float64
	y         []int
	w         []float64
	nClasses  int
	nFeatures int
	mtry      int
	params    ForestParams
	rng       *rand.Rand
	tree      *Tree
}

func (b *treeBuilder) distribution(idx []int) ([]float64, float64) {
	dist := make([]float64, b.nClasses)
	total := 0.0
	for _, s := range idx {
		dist[b.y[s]] += b.w[s]
		total += b.w[s]
	}
	return dist, total
}

func gini(dist []float64, total float64) float64 {
	if total == 0 {
		return 0
	}
	g := 1.0
	for _, v := range dist {
		p := v / total
		g -= p * p
	}
	return g
}

func (b *treeBuilder) leaf(node int, dist []float64, total float64) {
	value := make([]float64, len(dist))
	for c, v := range dist {
		if total > 0 {
			value[c] = v / total
		}
	}
	b.tree.Value[node] = value
}

func (b *treeBuilder) build(idx []int, depth int) int {
	node := b.tree.addNode()
	dist, total := b.distribution(idx)
	impurity := gini(dist, total)

	if impurity == 0 || depth >= b.params.MaxDepth || len(idx) < b.params.MinSamplesSplit ||
		len(idx) < 2*b.params.MinSamplesLeaf {
		b.leaf(node, dist, total)
		return node
	}

	feature, threshold, ok := b.bestSplit(idx, impurity, total)
	if !ok {
		b.leaf(node, dist, total)
		return node
	}

	var left, right []int
	for _, s := range idx {
		if b.X[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	b.tree.Feature[node] = feature
	b.tree.Threshold[node] = threshold
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.tree.Left[node] = l
	b.tree.Right[node] = r
	return node
}

// bestSplit scans mtry randomly drawn features for the threshold with the largest weighted
// Gini decrease that leaves at least MinSamplesLeaf samples on each side.
func (b *treeBuilder) bestSplit(idx []int, parentImpurity, total float64) (int, float64, bool) {
	if b.nFeatures == 0 {
		return -1, 0, false
	}
	features := b.rng.Perm(b.nFeatures)[:min(b.mtry, b.nFeatures)]
	minLeaf := b.params.MinSamplesLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}

	bestGain := 0.0
	bestFeature, bestThreshold := -1, 0.0
	sorted := make([]int, len(idx))

	for _, feat := range features {
		copy(sorted, idx)
		sort.Slice(sorted, func(i, j int) bool { return b.X[sorted[i]][feat] < b.X[sorted[j]][feat] })
		if b.X[sorted[0]][feat] == b.X[sorted[len(sorted)-1]][feat] {
			continue
		}

		leftDist := make([]float64, b.nClasses)
		rightDist, _ := b.distribution(sorted)
		leftTotal, rightTotal := 0.0, total

		for i := 0; i < len(sorted)-1; i++ {
			s := sorted[i]
			leftDist[b.y[s]] += b.w[s]
			rightDist[b.y[s]] -= b.w[s]
			leftTotal += b.w[s]
			rightTotal -= b.w[s]

			cur, next := b.X[s][feat], b.X[sorted[i+1]][feat]
			if cur == next || i+1 < minLeaf || len(sorted)-i-1 < minLeaf {
				continue
			}

			child := (leftTotal*gini(leftDist, leftTotal) + rightTotal*gini(rightDist, rightTotal)) / total
			if gain := parentImpurity - child; gain > bestGain+1e-12 {
				bestGain = gain
				bestFeature = feat
				bestThreshold = (cur + next) / 2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

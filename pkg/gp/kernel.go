package gp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// KernelKind selects the stationary correlation function.
type KernelKind string

const (
	RBF      KernelKind = "rbf"
	Matern32 KernelKind = "matern32"
)

// maxHeuristicRows caps the rows used by the length scale heuristic; the
// pairwise pass is quadratic.
const maxHeuristicRows = 200

// correlation evaluates k(d) for distance d and length scale l, without
// the amplitude.
func (k KernelKind) correlation(d, l float64) float64 {
	switch k {
	case Matern32:
		r := math.Sqrt(3) * d / l
		return (1 + r) * math.Exp(-r)
	default:
		return math.Exp(-0.5 * (d * d) / (l * l))
	}
}

func (k KernelKind) valid() bool {
	return k == RBF || k == Matern32
}

// MedianPairwiseDistance returns the median Euclidean distance between the
// first rows of X. Degenerate inputs (one row, all rows identical) yield 1.
func MedianPairwiseDistance(X [][]float64) float64 {
	n := len(X)
	if n > maxHeuristicRows {
		n = maxHeuristicRows
	}
	if n < 2 {
		return 1
	}

	dists := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dists = append(dists, floats.Distance(X[i], X[j], 2))
		}
	}
	sort.Float64s(dists)

	var med float64
	m := len(dists)
	if m%2 == 1 {
		med = dists[m/2]
	} else {
		med = (dists[m/2-1] + dists[m/2]) / 2
	}
	if med <= 0 || math.IsNaN(med) {
		return 1
	}
	return med
}

package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a one-dimensional sample for training diagnostics and
// data audits.
type Summary struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Std      float64 `json:"std"`      // sample standard deviation
	Variance float64 `json:"variance"` // population variance
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Unique   int     `json:"unique"`
	NearZero int     `json:"near_zero"` // |v| < 0.01
}

func Summarize(v []float64) Summary {
	s := Summary{Count: len(v)}
	if len(v) == 0 {
		return s
	}
	s.Mean, s.Variance = stat.PopMeanVariance(v, nil)
	if len(v) > 1 {
		s.Std = stat.StdDev(v, nil)
	}
	s.Min = floats.Min(v)
	s.Max = floats.Max(v)

	seen := make(map[float64]struct{}, len(v))
	for _, x := range v {
		seen[x] = struct{}{}
		if math.Abs(x) < 0.01 {
			s.NearZero++
		}
	}
	s.Unique = len(seen)
	return s
}

// Range is Max-Min.
func (s Summary) Range() float64 { return s.Max - s.Min }

// AllFinite reports whether v contains neither NaN nor ±Inf.
func AllFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Column extracts column j of a row-major matrix.
func Column(X [][]float64, j int) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = row[j]
	}
	return out
}

package features

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// minScale is the IQR below which a column counts as flat.
const minScale = 10 * 2.220446049250313e-16

var (
	ErrFeatureWidthMismatch = errors.New("feature width mismatch")
	ErrEmptyMatrix          = errors.New("empty feature matrix")
	ErrRaggedMatrix         = errors.New("ragged feature matrix")
)

// DefaultVarianceThreshold removes columns that are constant up to
// floating-point noise.
const DefaultVarianceThreshold = 1e-10

// VarianceSelector keeps columns whose population variance exceeds
// Threshold. Mask has one entry per input column.
type VarianceSelector struct {
	Threshold float64   `json:"threshold"`
	Variances []float64 `json:"variances"`
	Mask      []bool    `json:"mask"`
}

// RobustScaler centers on the median and scales by the interquartile range.
type RobustScaler struct {
	Center []float64 `json:"center"`
	Scale  []float64 `json:"scale"`
}

// Preprocessor is the fitted selector plus scaler for one model key.
type Preprocessor struct {
	Selector VarianceSelector `json:"selector"`
	Scaler   RobustScaler     `json:"scaler"`
}

// FitPreprocessor fits the selector and scaler on X and returns the
// transformed matrix. Zero retained columns is not an error.
func FitPreprocessor(X [][]float64, threshold float64) (*Preprocessor, [][]float64, error) {
	if len(X) == 0 {
		return nil, nil, ErrEmptyMatrix
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return nil, nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrRaggedMatrix, i, len(row), width)
		}
	}

	sel := VarianceSelector{
		Threshold: threshold,
		Variances: ColumnVariances(X),
		Mask:      make([]bool, width),
	}
	for j, v := range sel.Variances {
		sel.Mask[j] = v > threshold
	}

	reduced := make([][]float64, len(X))
	for i, row := range X {
		reduced[i] = sel.apply(row)
	}

	p := &Preprocessor{Selector: sel, Scaler: fitRobustScaler(reduced)}
	out := make([][]float64, len(reduced))
	for i, row := range reduced {
		out[i] = p.Scaler.apply(row)
	}
	return p, out, nil
}

func (s VarianceSelector) apply(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for j, keep := range s.Mask {
		if keep {
			out = append(out, x[j])
		}
	}
	return out
}

func fitRobustScaler(X [][]float64) RobustScaler {
	width := 0
	if len(X) > 0 {
		width = len(X[0])
	}
	sc := RobustScaler{Center: make([]float64, width), Scale: make([]float64, width)}
	col := make([]float64, len(X))
	for j := 0; j < width; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		sort.Float64s(col)
		sc.Center[j] = quantile(col, 0.5)
		iqr := quantile(col, 0.75) - quantile(col, 0.25)
		// interpolation between equal values can leave a few ulps behind
		if iqr < minScale {
			iqr = 1
		}
		sc.Scale[j] = iqr
	}
	return sc
}

func (s RobustScaler) apply(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Center[j]) / s.Scale[j]
	}
	return out
}

// quantile interpolates linearly between closest ranks of sorted data,
// the (n-1)·q convention of numpy percentiles. gonum's LinInterp places
// rank q·n on the cumulative count, so q is shifted onto that scale.
func quantile(sorted []float64, q float64) float64 {
	n := float64(len(sorted))
	if n == 0 {
		return 0
	}
	p := math.Min(1, ((n-1)*q+1)/n)
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

// Transform applies the mask then the scaler to a vector already coerced to
// the fit-time input width.
func (p *Preprocessor) Transform(x []float64) ([]float64, error) {
	if len(x) != len(p.Selector.Mask) {
		return nil, fmt.Errorf("%w: got %d values, selector fitted on %d", ErrFeatureWidthMismatch, len(x), len(p.Selector.Mask))
	}
	return p.Scaler.apply(p.Selector.apply(x)), nil
}

func (p *Preprocessor) TransformAll(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		v, err := p.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (p *Preprocessor) InputWidth() int { return len(p.Selector.Mask) }

func (p *Preprocessor) OutputWidth() int { return len(p.Scaler.Center) }

// RemovedIndices lists the input columns dropped by the selector.
func (p *Preprocessor) RemovedIndices() []int {
	var out []int
	for j, keep := range p.Selector.Mask {
		if !keep {
			out = append(out, j)
		}
	}
	return out
}

// Validate checks the internal consistency of a decoded preprocessor.
func (p *Preprocessor) Validate() error {
	kept := 0
	for _, keep := range p.Selector.Mask {
		if keep {
			kept++
		}
	}
	if kept != len(p.Scaler.Center) || kept != len(p.Scaler.Scale) {
		return fmt.Errorf("%w: mask keeps %d columns, scaler has %d/%d", ErrFeatureWidthMismatch, kept, len(p.Scaler.Center), len(p.Scaler.Scale))
	}
	for j, s := range p.Scaler.Scale {
		if s == 0 || math.IsNaN(s) {
			return fmt.Errorf("scaler column %d has invalid scale %v", j, s)
		}
	}
	return nil
}

// ColumnVariances returns the population variance of every column.
func ColumnVariances(X [][]float64) []float64 {
	if len(X) == 0 {
		return nil
	}
	width := len(X[0])
	out := make([]float64, width)
	col := make([]float64, len(X))
	for j := 0; j < width; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		_, out[j] = stat.PopMeanVariance(col, nil)
	}
	return out
}

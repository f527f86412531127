// Package gp implements exact Gaussian-process regression with fixed
// hyperparameters. There is no marginal-likelihood optimizer: the length
// scale comes from configuration or from the median-distance heuristic.
package gp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrNotFitted           = errors.New("gp: model not fitted")
	ErrEmptyTrainingSet    = errors.New("gp: empty training set")
	ErrDimensionMismatch   = errors.New("gp: dimension mismatch")
	ErrNotPositiveDefinite = errors.New("gp: kernel matrix not positive definite")
)

// Regressor is a single-output model returning a mean and a standard
// deviation per input row.
type Regressor interface {
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) (mean, std []float64, err error)
}

// Params are the fixed hyperparameters of the kernel
// Amplitude·k(x, x') + Noise·δ(x, x').
type Params struct {
	Kernel      KernelKind `json:"kernel"`
	Amplitude   float64    `json:"amplitude"`
	LengthScale float64    `json:"length_scale"` // <= 0 selects the median heuristic
	Noise       float64    `json:"noise"`
	Alpha       float64    `json:"alpha"` // diagonal jitter added for numerical stability
	NormalizeY  bool       `json:"normalize_y"`
}

// DefaultParams matches the defaults in the service configuration.
func DefaultParams() Params {
	return Params{Kernel: RBF, Amplitude: 1, Noise: 0.1, Alpha: 1e-6, NormalizeY: true}
}

func (p Params) validate() error {
	if !p.Kernel.valid() {
		return fmt.Errorf("gp: unknown kernel %q", p.Kernel)
	}
	if p.Amplitude <= 0 {
		return fmt.Errorf("gp: amplitude must be positive, got %g", p.Amplitude)
	}
	if p.Noise < 0 || p.Alpha < 0 {
		return fmt.Errorf("gp: noise and alpha cannot be negative")
	}
	return nil
}

// GaussianProcess is safe for concurrent Predict calls once fitted.
type GaussianProcess struct {
	params      Params
	lengthScale float64

	x     [][]float64
	y     []float64 // raw targets, kept for State
	yMean float64
	yStd  float64

	chol   mat.Cholesky
	weight *mat.VecDense // K⁻¹·ỹ
	fitted bool
}

func New(params Params) *GaussianProcess {
	return &GaussianProcess{params: params}
}

func (g *GaussianProcess) Params() Params { return g.params }

// LengthScale is the scale in effect after Fit.
func (g *GaussianProcess) LengthScale() float64 { return g.lengthScale }

func (g *GaussianProcess) Fitted() bool { return g.fitted }

func (g *GaussianProcess) Fit(X [][]float64, y []float64) error {
	if err := g.params.validate(); err != nil {
		return err
	}
	n := len(X)
	if n == 0 {
		return ErrEmptyTrainingSet
	}
	if len(y) != n {
		return fmt.Errorf("%w: %d rows, %d targets", ErrDimensionMismatch, n, len(y))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimensionMismatch, i, len(row), width)
		}
	}

	l := g.params.LengthScale
	if l <= 0 {
		l = MedianPairwiseDistance(X)
	}
	return g.fit(X, y, l)
}

func (g *GaussianProcess) fit(X [][]float64, y []float64, lengthScale float64) error {
	n := len(X)
	g.fitted = false
	g.lengthScale = lengthScale

	g.yMean, g.yStd = 0, 1
	if g.params.NormalizeY {
		g.yMean, g.yStd = stat.PopMeanStdDev(y, nil)
		if g.yStd == 0 || math.IsNaN(g.yStd) {
			g.yStd = 1
		}
	}

	yn := make([]float64, n)
	for i, v := range y {
		yn[i] = (v - g.yMean) / g.yStd
	}

	diag := g.params.Amplitude + g.params.Noise + g.params.Alpha
	K := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		K.SetSym(i, i, diag)
		for j := i + 1; j < n; j++ {
			K.SetSym(i, j, g.cov(X[i], X[j]))
		}
	}

	if ok := g.chol.Factorize(K); !ok {
		return ErrNotPositiveDefinite
	}

	g.weight = mat.NewVecDense(n, nil)
	if err := g.chol.SolveVecTo(g.weight, mat.NewVecDense(n, yn)); err != nil {
		return fmt.Errorf("gp: solve: %w", err)
	}

	g.x = X
	g.y = append([]float64(nil), y...)
	g.fitted = true
	return nil
}

func (g *GaussianProcess) cov(a, b []float64) float64 {
	return g.params.Amplitude * g.params.Kernel.correlation(floats.Distance(a, b, 2), g.lengthScale)
}

func (g *GaussianProcess) Predict(X [][]float64) ([]float64, []float64, error) {
	if !g.fitted {
		return nil, nil, ErrNotFitted
	}
	n := len(g.x)
	width := len(g.x[0])

	mean := make([]float64, len(X))
	std := make([]float64, len(X))
	kstar := mat.NewVecDense(n, nil)
	v := mat.NewVecDense(n, nil)
	prior := g.params.Amplitude + g.params.Noise

	for r, x := range X {
		if len(x) != width {
			return nil, nil, fmt.Errorf("%w: input has %d columns, model expects %d", ErrDimensionMismatch, len(x), width)
		}
		for i, xi := range g.x {
			kstar.SetVec(i, g.cov(x, xi))
		}

		mean[r] = mat.Dot(kstar, g.weight)*g.yStd + g.yMean

		if err := g.chol.SolveVecTo(v, kstar); err != nil {
			return nil, nil, fmt.Errorf("gp: solve: %w", err)
		}
		variance := prior - mat.Dot(kstar, v)
		if variance < 0 {
			variance = 0
		}
		std[r] = math.Sqrt(variance) * g.yStd
	}
	return mean, std, nil
}

package gp

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// MultiRegressor predicts a vector of outputs per input row.
type MultiRegressor interface {
	Fit(X, Y [][]float64) error
	Predict(X [][]float64) ([][]float64, error)
	Outputs() int
}

// MultiOutput fits one independent GaussianProcess per target column. No
// covariance between outputs is modelled. All outputs share one length
// scale, resolved once per Fit.
type MultiOutput struct {
	params  Params
	workers int

	lengthScale float64
	x           [][]float64
	y           [][]float64
	models      []*GaussianProcess
}

func NewMultiOutput(params Params, workers int) *MultiOutput {
	if workers <= 0 {
		workers = 1
	}
	return &MultiOutput{params: params, workers: workers}
}

func (m *MultiOutput) Outputs() int { return len(m.models) }

func (m *MultiOutput) Fit(X, Y [][]float64) error {
	if err := m.params.validate(); err != nil {
		return err
	}
	if len(X) == 0 {
		return ErrEmptyTrainingSet
	}
	if len(Y) != len(X) {
		return fmt.Errorf("%w: %d rows, %d target rows", ErrDimensionMismatch, len(X), len(Y))
	}
	outputs := len(Y[0])
	if outputs == 0 {
		return fmt.Errorf("%w: zero target columns", ErrDimensionMismatch)
	}
	for i, row := range Y {
		if len(row) != outputs {
			return fmt.Errorf("%w: target row %d has %d columns, want %d", ErrDimensionMismatch, i, len(row), outputs)
		}
	}

	l := m.params.LengthScale
	if l <= 0 {
		l = MedianPairwiseDistance(X)
	}
	return m.fitColumns(X, Y, l)
}

func (m *MultiOutput) fitColumns(X, Y [][]float64, lengthScale float64) error {
	outputs := len(Y[0])
	p := m.params
	p.LengthScale = lengthScale

	models := make([]*GaussianProcess, outputs)
	var g errgroup.Group
	g.SetLimit(m.workers)
	for j := 0; j < outputs; j++ {
		j := j
		g.Go(func() error {
			col := make([]float64, len(Y))
			for i, row := range Y {
				col[i] = row[j]
			}
			gp := New(p)
			if err := gp.Fit(X, col); err != nil {
				return fmt.Errorf("output %d: %w", j, err)
			}
			models[j] = gp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.lengthScale = lengthScale
	m.x = X
	m.y = Y
	m.models = models
	return nil
}

// Predict returns an len(X)×Outputs() matrix of means.
func (m *MultiOutput) Predict(X [][]float64) ([][]float64, error) {
	if len(m.models) == 0 {
		return nil, ErrNotFitted
	}
	out := make([][]float64, len(X))
	for i := range out {
		out[i] = make([]float64, len(m.models))
	}
	for j, gp := range m.models {
		mean, _, err := gp.Predict(X)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", j, err)
		}
		for i, v := range mean {
			out[i][j] = v
		}
	}
	return out, nil
}

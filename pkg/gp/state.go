package gp

import "fmt"

// State is the serializable form of a fitted GaussianProcess. Restoring
// refactorizes the kernel matrix from the stored training set.
type State struct {
	Params      Params      `json:"params"`
	LengthScale float64     `json:"length_scale"`
	X           [][]float64 `json:"x_train"`
	Y           []float64   `json:"y_train"`
}

// MultiState is the serializable form of a fitted MultiOutput. Y is
// row-major, one row per training sample.
type MultiState struct {
	Params      Params      `json:"params"`
	LengthScale float64     `json:"length_scale"`
	X           [][]float64 `json:"x_train"`
	Y           [][]float64 `json:"y_train"`
}

func (g *GaussianProcess) State() (State, error) {
	if !g.fitted {
		return State{}, ErrNotFitted
	}
	return State{Params: g.params, LengthScale: g.lengthScale, X: g.x, Y: g.y}, nil
}

func Restore(s State) (*GaussianProcess, error) {
	if err := s.Params.validate(); err != nil {
		return nil, err
	}
	if len(s.X) == 0 || len(s.X) != len(s.Y) {
		return nil, fmt.Errorf("%w: restore with %d rows and %d targets", ErrDimensionMismatch, len(s.X), len(s.Y))
	}
	if s.LengthScale <= 0 {
		return nil, fmt.Errorf("gp: restore: length scale must be positive")
	}
	g := New(s.Params)
	if err := g.fit(s.X, s.Y, s.LengthScale); err != nil {
		return nil, err
	}
	return g, nil
}

func (m *MultiOutput) State() (MultiState, error) {
	if len(m.models) == 0 {
		return MultiState{}, ErrNotFitted
	}
	return MultiState{Params: m.params, LengthScale: m.lengthScale, X: m.x, Y: m.y}, nil
}

func RestoreMulti(s MultiState, workers int) (*MultiOutput, error) {
	if err := s.Params.validate(); err != nil {
		return nil, err
	}
	if len(s.X) == 0 || len(s.X) != len(s.Y) || len(s.Y[0]) == 0 {
		return nil, fmt.Errorf("%w: restore with %d rows and %d target rows", ErrDimensionMismatch, len(s.X), len(s.Y))
	}
	if s.LengthScale <= 0 {
		return nil, fmt.Errorf("gp: restore: length scale must be positive")
	}
	m := NewMultiOutput(s.Params, workers)
	if err := m.fitColumns(s.X, s.Y, s.LengthScale); err != nil {
		return nil, err
	}
	return m, nil
}

package features

// DefaultExpectedWidth is the vector width every model is trained against.
const DefaultExpectedWidth = 100

// FitWidth returns a copy of v padded with trailing zeros or truncated from
// the tail to exactly width entries.
func FitWidth(v []float64, width int) []float64 {
	if width < 0 {
		width = 0
	}
	out := make([]float64, width)
	copy(out, v)
	return out
}

// FitNames coerces a name list to width the same way FitWidth coerces
// values. Padding columns are named positionally.
func FitNames(names []string, width int) []string {
	out := make([]string, width)
	n := copy(out, names)
	for i := n; i < width; i++ {
		out[i] = PositionalName(i)
	}
	return out
}

// VectorFromMap orders m by names, or by sorted key order when names is
// empty, substituting 0 for missing names, then applies FitWidth. Missing
// data never fails the call.
func VectorFromMap(m map[string]float64, names []string, width int) []float64 {
	if len(names) == 0 {
		names = SortedNames(m)
	}
	v := make([]float64, len(names))
	for i, name := range names {
		v[i] = m[name]
	}
	return FitWidth(v, width)
}

// Vector normalizes either shape of Input. Positional input is taken as
// already ordered.
func Vector(in Input, names []string, width int) []float64 {
	if in.Named != nil {
		return VectorFromMap(in.Named, names, width)
	}
	return FitWidth(in.Values, width)
}

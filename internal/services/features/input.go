package features

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Input is a raw feature payload. Callers send either a named map or a
// positional array; both shapes decode into Input.
type Input struct {
	Named  map[string]float64
	Values []float64
}

func FromMap(m map[string]float64) Input { return Input{Named: m} }

func FromValues(v []float64) Input { return Input{Values: v} }

func (in *Input) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*in = Input{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '{':
		return json.Unmarshal(b, &in.Named)
	case '[':
		return json.Unmarshal(b, &in.Values)
	default:
		return fmt.Errorf("features must be an object or an array")
	}
}

func (in Input) MarshalJSON() ([]byte, error) {
	if in.Named != nil {
		return json.Marshal(in.Named)
	}
	if in.Values != nil {
		return json.Marshal(in.Values)
	}
	return []byte("null"), nil
}

func (in Input) IsEmpty() bool {
	return len(in.Named) == 0 && len(in.Values) == 0
}

// Map returns the named form. Positional values are named feature_{i}.
func (in Input) Map() map[string]float64 {
	if in.Named != nil {
		return in.Named
	}
	m := make(map[string]float64, len(in.Values))
	for i, v := range in.Values {
		m[PositionalName(i)] = v
	}
	return m
}

func PositionalName(i int) string {
	return fmt.Sprintf("feature_%d", i)
}

// SortedNames returns the keys of m in lexical order.
func SortedNames(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

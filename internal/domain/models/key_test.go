package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeInstrument(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "month suffix", in: "MGC AUG25", want: "MGC"},
		{name: "plain", in: "MGC", want: "MGC"},
		{name: "year suffix", in: "ES 2025", want: "ES"},
		{name: "month and year", in: "NQ DEC24 2024", want: "NQ"},
		{name: "padding", in: "  CL SEP25  ", want: "CL"},
		{name: "stacked suffixes", in: "GC JAN25 FEB26", want: "GC"},
		{name: "lowercase month kept", in: "MGC aug25", want: "MGC aug25"},
		{name: "empty", in: "", want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NormalizeInstrument(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizeInstrument(got), "normalization must be idempotent")
		})
	}
}

func TestNewModelKey(t *testing.T) {
	t.Parallel()

	k, err := NewModelKey("MGC AUG25", "LONG")
	require.NoError(t, err)
	assert.Equal(t, ModelKey{Instrument: "MGC", Direction: Long}, k)
	assert.Equal(t, "MGC_long", k.String())

	_, err = NewModelKey("MGC", "sideways")
	assert.ErrorIs(t, err, ErrDataValidation)

	_, err = NewModelKey(" ", "short")
	assert.ErrorIs(t, err, ErrDataValidation)
}

func TestParseModelKey(t *testing.T) {
	t.Parallel()

	k, err := ParseModelKey("MES_FUT_short")
	require.NoError(t, err)
	assert.Equal(t, "MES_FUT", k.Instrument)
	assert.Equal(t, Short, k.Direction)

	_, err = ParseModelKey("nounderscore")
	assert.ErrorIs(t, err, ErrDataValidation)
}

func TestModelKeyAsMapKey(t *testing.T) {
	t.Parallel()

	in := map[ModelKey]int{{Instrument: "ES", Direction: Short}: 3}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ES_short": 3}`, string(b))

	var out map[ModelKey]int
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaObservationsHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		wantErr bool
		inst    string
		dir     string
	}{
		{
			name:    "normalizes key",
			payload: `{"id":"o-1","instrument":"MGC AUG25","direction":"LONG","features":{"rsi":55},"actual_outcome":12.5,"recorded_at":"2024-05-02T09:30:00Z"}`,
			inst:    "MGC",
			dir:     "long",
		},
		{name: "malformed", payload: `{"id":`, wantErr: true},
		{name: "bad direction", payload: `{"id":"o-2","instrument":"MGC","direction":"up"}`, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sink := &recordingSink{}
			h := NewKafkaObservationsHandler("gp.observations", sink, nil)
			assert.Equal(t, "gp.observations", h.Topic())

			err := h.Handle(context.Background(), []byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				assert.Empty(t, sink.obs)
				return
			}
			require.NoError(t, err)
			require.Len(t, sink.obs, 1)
			assert.Equal(t, tt.inst, sink.obs[0].Instrument)
			assert.Equal(t, tt.dir, sink.obs[0].Direction)
			assert.Equal(t, 12.5, sink.obs[0].Outcome)
		})
	}
}

func TestKafkaObservationsHandlerSinkError(t *testing.T) {
	t.Parallel()

	h := NewKafkaObservationsHandler("gp.observations", &recordingSink{err: errBoom}, nil)
	err := h.Handle(context.Background(), []byte(`{"instrument":"ES","direction":"short","actual_outcome":1}`))
	assert.ErrorIs(t, err, errBoom)
}

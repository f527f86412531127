package models

import "time"

// Observation is a realized trade outcome reported after a prediction.
// It feeds later batch retrains; models are never updated in place.
type Observation struct {
	ID         string             `json:"id"`
	Instrument string             `json:"instrument"`
	Direction  string             `json:"direction"`
	Features   map[string]float64 `json:"features"`
	Outcome    float64            `json:"actual_outcome"`
	RecordedAt time.Time          `json:"recorded_at"`
}

// Vector converts an observation into a trade vector for retraining. No
// trajectory or risk is known for an observation.
func (o *Observation) Vector() TradeVector {
	v := TradeVector{
		ID:         o.ID,
		Instrument: o.Instrument,
		Direction:  o.Direction,
		PnL:        o.Outcome,
		EntryTime:  o.RecordedAt.Format(time.RFC3339Nano),
	}
	v.Features.Named = o.Features
	return v
}

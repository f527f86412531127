package usecase

import (
	"encoding/binary"
	"hash/fnv"
	"math"
)

const (
	minConfidence = 0.1
	maxConfidence = 0.95
)

// Confidence scores a PnL prediction in [0.1, 0.95] from its mean, its
// predictive std and the number of training samples behind the model.
// With jitter on, a small deterministic offset derived from (mean, std)
// separates otherwise identical scores.
func Confidence(mean, std float64, samples int, jitter bool) float64 {
	c := 0.35*uncertaintyScore(std) + 0.45*returnScore(mean, std) + 0.2*sampleScore(samples)
	if jitter {
		c += confidenceJitter(mean, std)
	}
	return math.Min(maxConfidence, math.Max(minConfidence, c))
}

func uncertaintyScore(std float64) float64 {
	switch {
	case std < 20:
		return 0.9 - (std/20)*0.2
	case std < 50:
		return 0.7 - ((std-20)/30)*0.4
	default:
		return 0.3 - ((std-50)/50)*0.2
	}
}

// returnScore is neutral when std is not positive, whatever the mean.
func returnScore(mean, std float64) float64 {
	if std <= 0 {
		return 0.5
	}
	ratio := mean / std
	switch {
	case mean > 10:
		if ratio > 0.5 {
			return 0.8 + math.Min(0.15, ratio*0.1)
		}
		if ratio > 0 {
			return 0.6 + ratio*0.4
		}
		return 0.5
	case mean < -10:
		if ratio < -0.5 {
			return 0.2 - math.Min(0.1, math.Abs(ratio)*0.05)
		}
		return 0.3 + (ratio+0.5)*0.2
	default:
		return 0.4 + ratio*0.2
	}
}

func sampleScore(n int) float64 {
	switch {
	case n > 1000:
		return 0.8
	case n > 500:
		return 0.7
	case n > 100:
		return 0.6
	default:
		return 0.4
	}
}

// confidenceJitter is FNV-1a over the IEEE bits of mean then std, mapped
// to [-0.01, 0.0098].
func confidenceJitter(mean, std float64) float64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(mean))
	_, _ = h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(std))
	_, _ = h.Write(buf[:])
	return float64(int(h.Sum64()%100)-50) / 5000
}

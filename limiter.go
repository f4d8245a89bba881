package main

import (
	"math"

	"github.com/gopxl/beep"
)

// Limiter is a soft output limiter on the preview chain. It only
// protects the speaker; the analysis tap sits upstream and never sees
// it.
type Limiter struct {
	threshold float64
	ratio     float64
	attack    float64
	release   float64
	envelope  float64
}

func NewLimiter(threshold, ratio float64) *Limiter {
	return &Limiter{
		threshold: threshold,
		ratio:     ratio,
		attack:    0.3,
		release:   0.01,
	}
}

func (l *Limiter) limit(v float64) float64 {
	av := math.Abs(v)
	if av > l.threshold {
		l.envelope += (av - l.envelope) * l.attack
	} else {
		l.envelope += (av - l.envelope) * l.release
	}

	if l.envelope <= l.threshold {
		return v
	}

	reduction := math.Pow(l.threshold/l.envelope, l.ratio)
	return v * reduction
}

func (l *Limiter) Process(src beep.Streamer) beep.Streamer {
	return beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		n, ok = src.Stream(samples)
		for i := range samples[:n] {
			samples[i][0] = l.limit(samples[i][0])
			samples[i][1] = l.limit(samples[i][1])
		}
		return n, ok
	})
}

func (l *Limiter) GetSetter(k string) func(float64) {
	switch k {
	case "threshold":
		return func(v float64) { l.threshold = v }
	case "ratio":
		return func(v float64) { l.ratio = v }
	default:
		return nil
	}
}

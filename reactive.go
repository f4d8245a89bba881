package main

import (
	"fmt"
	"math/rand"
)

// Offsets are additive deltas on top of a layer's static parameters.
// Zero is the neutral element: an unbound or disabled parameter
// contributes exactly 0, which is indistinguishable from no binding.
type Offsets struct {
	Scale    float64
	Rotation float64 // spin velocity, see below
	Opacity  float64
	Shake    float64
	Speed    float64
	Spread   float64
	Glitch   float64
}

// resolveReactive computes the offset for every bound parameter of a
// layer against the current bands. An unknown source band is a
// validation error, never a silent zero.
func resolveReactive(l *Layer, bands Bands) (Offsets, error) {
	var o Offsets
	for param, b := range l.Reactive {
		if !b.Enabled {
			continue
		}
		v, ok := bands.Get(b.Source)
		if !ok {
			return Offsets{}, fmt.Errorf("layer %s param %s: %w: %q", l.ID, param, ErrUnknownBand, b.Source)
		}
		off := v * b.Amount
		switch param {
		case "scale":
			o.Scale += off
		case "rotation":
			o.Rotation += off
		case "opacity":
			o.Opacity += off
		case "shake":
			o.Shake += off
		case "speed":
			o.Speed += off
		case "spread":
			o.Spread += off
		case "glitch":
			o.Glitch += off
		default:
			// Kind-specific parameters ride through on their own name;
			// renderers that know the kind pick them up from the layer.
		}
	}
	return o, nil
}

// rotationBound reports whether the layer has an enabled rotation
// binding. While bound, rotation is a spin (velocity accumulated per
// tick) and the static angle is suppressed entirely. This asymmetry
// with scale/opacity is deliberate: a fixed angle and a spin are
// different things.
func rotationBound(l *Layer) bool {
	b, ok := l.Reactive["rotation"]
	return ok && b.Enabled
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// shakeJitter turns a shake offset into positional jitter. Random per
// tick, but always bounded by the offset magnitude.
func shakeJitter(amount float64) (dx, dy float64) {
	if amount == 0 {
		return 0, 0
	}
	return (rand.Float64()*2 - 1) * amount, (rand.Float64()*2 - 1) * amount
}

package main

import (
	"math"
	"testing"

	"github.com/gopxl/beep"
)

func TestMagnitudesNormalized(t *testing.T) {
	// Pure sine at an exact bin frequency: one dominant bin, unit-ish
	// magnitude, everything clamped to [0,1].
	window := make([]float64, fftSize)
	k := 32
	for i := range window {
		window[i] = math.Sin(2 * math.Pi * float64(k) * float64(i) / fftSize)
	}

	bins := magnitudes(window, nil)
	if len(bins) != fftSize/2 {
		t.Fatalf("got %d bins, want %d", len(bins), fftSize/2)
	}

	peak := 0
	for i, v := range bins {
		if v < 0 || v > 1 {
			t.Fatalf("bin %d out of range: %v", i, v)
		}
		if v > bins[peak] {
			peak = i
		}
	}
	if peak != k {
		t.Fatalf("peak at bin %d, want %d", peak, k)
	}
	if bins[peak] < 0.9 {
		t.Fatalf("peak magnitude %v, want near 1", bins[peak])
	}
}

func TestZeroSpectrum(t *testing.T) {
	buf := zeroSpectrum(nil)
	if len(buf) != fftSize/2 {
		t.Fatalf("len = %d", len(buf))
	}

	buf[3] = 0.5
	buf = zeroSpectrum(buf)
	if buf[3] != 0 {
		t.Fatal("reused buffer not cleared")
	}
}

func TestBucketPeaks(t *testing.T) {
	track := make([]float64, 1000)
	track[250] = -0.9
	track[750] = 0.4

	peaks := bucketPeaks(track, 4)
	if len(peaks) != 4 {
		t.Fatalf("len = %d", len(peaks))
	}
	if !almostEqual(peaks[1], 0.9) {
		t.Fatalf("bucket 1 = %v, want abs peak 0.9", peaks[1])
	}
	if !almostEqual(peaks[3], 0.4) {
		t.Fatalf("bucket 3 = %v", peaks[3])
	}
	if peaks[0] != 0 || peaks[2] != 0 {
		t.Fatal("quiet buckets not zero")
	}

	if bucketPeaks(nil, 4) != nil {
		t.Fatal("empty track should produce nil")
	}
}

func TestTapSnapshotOrder(t *testing.T) {
	src := &rampStreamer{}
	tp := newTap(src, 8)

	buf := make([][2]float64, 12)
	tp.Stream(buf)

	out := make([]float64, 8)
	tp.Snapshot(out)

	// Last 8 mono samples, oldest first: 4..11.
	for i, v := range out {
		if !almostEqual(v, float64(i+4)) {
			t.Fatalf("snapshot[%d] = %v, want %v", i, v, i+4)
		}
	}
}

type rampStreamer struct{ n int }

func (r *rampStreamer) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		samples[i][0] = float64(r.n)
		samples[i][1] = float64(r.n)
		r.n++
	}
	return len(samples), true
}

func (r *rampStreamer) Err() error { return nil }

func TestLimiterPassesQuietSignal(t *testing.T) {
	lim := NewLimiter(0.9, 4)
	for i := 0; i < 100; i++ {
		v := lim.limit(0.1)
		if !almostEqual(v, 0.1) {
			t.Fatalf("quiet sample changed: %v", v)
		}
	}
}

func TestLimiterReducesLoudSignal(t *testing.T) {
	lim := NewLimiter(0.5, 4)

	var last float64
	for i := 0; i < 200; i++ {
		last = lim.limit(1.0)
	}
	if last >= 1.0 {
		t.Fatal("loud signal not reduced")
	}
	if last <= 0 {
		t.Fatalf("limiter killed the signal: %v", last)
	}
}

func TestLimiterProcessWrapsStreamer(t *testing.T) {
	lim := NewLimiter(0.5, 4)

	var loud beep.StreamerFunc = func(samples [][2]float64) (int, bool) {
		for i := range samples {
			samples[i][0] = 1
			samples[i][1] = -1
		}
		return len(samples), true
	}

	out := lim.Process(loud)
	buf := make([][2]float64, 512)
	n, ok := out.Stream(buf)
	if n != 512 || !ok {
		t.Fatalf("stream returned %d %v", n, ok)
	}
	if math.Abs(buf[511][0]) >= 1 || math.Abs(buf[511][1]) >= 1 {
		t.Fatalf("tail samples not limited: %v", buf[511])
	}
}

func TestLimiterGetSetter(t *testing.T) {
	lim := NewLimiter(0.9, 4)
	set := lim.GetSetter("threshold")
	if set == nil {
		t.Fatal("threshold setter missing")
	}
	set(0.5)
	if lim.threshold != 0.5 {
		t.Fatal("setter did not apply")
	}
	if lim.GetSetter("wobble") != nil {
		t.Fatal("unknown key returned a setter")
	}
}

package main

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAnalyzeSpectrumBandMeans(t *testing.T) {
	bins := make([]float64, 1024)
	for i := 0; i < 14; i++ {
		bins[i] = 0.5
	}

	b := AnalyzeSpectrum(bins)
	if !almostEqual(b.Bass, 0.5) {
		t.Fatalf("bass = %v, want 0.5", b.Bass)
	}
	if b.Mid != 0 || b.Treble != 0 {
		t.Fatalf("mid/treble leaked: %v %v", b.Mid, b.Treble)
	}
	if !almostEqual(b.Energy, 0.5*14/1024) {
		t.Fatalf("energy = %v", b.Energy)
	}
}

func TestAnalyzeSpectrumMidTreble(t *testing.T) {
	bins := make([]float64, 1024)
	for i := 14; i < 186; i++ {
		bins[i] = 1
	}
	for i := 186; i < 744; i++ {
		bins[i] = 0.25
	}

	b := AnalyzeSpectrum(bins)
	if !almostEqual(b.Mid, 1) {
		t.Fatalf("mid = %v, want 1", b.Mid)
	}
	if !almostEqual(b.Treble, 0.25) {
		t.Fatalf("treble = %v, want 0.25", b.Treble)
	}
	if b.Bass != 0 {
		t.Fatalf("bass leaked: %v", b.Bass)
	}
}

func TestKickCurve(t *testing.T) {
	flat := func(v float64) Bands {
		bins := make([]float64, 1024)
		for i := 0; i < 14; i++ {
			bins[i] = v
		}
		return AnalyzeSpectrum(bins)
	}

	if b := flat(0); b.Kick != 0 {
		t.Fatalf("kick(0) = %v", b.Kick)
	}
	if b := flat(1); !almostEqual(b.Kick, 1) {
		t.Fatalf("kick(1) = %v", b.Kick)
	}

	// The exponent pushes quiet bass down harder than loud bass.
	quiet := flat(0.2)
	if quiet.Kick >= quiet.Bass {
		t.Fatalf("kick %v not sharpened below bass %v", quiet.Kick, quiet.Bass)
	}

	prev := 0.0
	for v := 0.1; v <= 1.0; v += 0.1 {
		k := flat(v).Kick
		if k <= prev {
			t.Fatalf("kick not monotonic at %v", v)
		}
		prev = k
	}
}

func TestBoundaryScaling(t *testing.T) {
	// Half-size transform: boundaries scale to 7/93/372.
	bins := make([]float64, 512)
	for i := 0; i < 7; i++ {
		bins[i] = 1
	}

	b := AnalyzeSpectrum(bins)
	if !almostEqual(b.Bass, 1) {
		t.Fatalf("scaled bass = %v, want 1", b.Bass)
	}
	if b.Mid != 0 {
		t.Fatalf("scaled mid leaked: %v", b.Mid)
	}
}

func TestAnalyzeSpectrumEmpty(t *testing.T) {
	if b := AnalyzeSpectrum(nil); b != (Bands{}) {
		t.Fatalf("empty spectrum produced %+v", b)
	}
}

func TestAnalyzerSilence(t *testing.T) {
	src := &fakeSource{level: 0.8}
	a := NewAnalyzer(src)

	src.playing = true
	if b := a.Sample(); b.Bass == 0 {
		t.Fatal("expected nonzero bands while playing")
	}

	src.playing = false
	b := a.Sample()
	if b != (Bands{}) {
		t.Fatalf("paused source produced %+v, want exact zeros", b)
	}
	for _, v := range a.Spectrum() {
		if v != 0 {
			t.Fatal("spectrum not zeroed on silence")
		}
	}
}

func TestAnalyzerSampleAtIgnoresPlayback(t *testing.T) {
	src := &fakeSource{level: 0.5}
	a := NewAnalyzer(src)

	// Export analysis works even while the live transport is paused.
	src.playing = false
	if b := a.SampleAt(3.5, true); b.Bass == 0 {
		t.Fatal("SampleAt returned silence for an active window")
	}
	if b := a.SampleAt(3.5, false); b != (Bands{}) {
		t.Fatalf("inactive window produced %+v", b)
	}
}

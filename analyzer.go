package main

import "math"

// Band boundaries, defined against a 2048-point transform (1024 bins).
// Other transform sizes scale these proportionally so the frequency
// ranges stay put.
const (
	analyzerBins  = 1024
	bassEdge      = 14
	midEdge       = 186
	trebleEdge    = 744
	kickSharpness = 1.8
)

// Bands is the per-tick reduction of the spectrum to five scalars.
type Bands struct {
	Bass   float64
	Mid    float64
	Treble float64
	Kick   float64
	Energy float64
}

func (b Bands) Get(name string) (float64, bool) {
	switch name {
	case "bass":
		return b.Bass, true
	case "mid":
		return b.Mid, true
	case "treble":
		return b.Treble, true
	case "kick":
		return b.Kick, true
	case "energy":
		return b.Energy, true
	}
	return 0, false
}

func validBand(name string) bool {
	_, ok := Bands{}.Get(name)
	return ok
}

// AnalyzeSpectrum reduces a normalized magnitude spectrum (low to high)
// to band means. Pure, no smoothing of its own.
func AnalyzeSpectrum(bins []float64) Bands {
	n := len(bins)
	if n == 0 {
		return Bands{}
	}

	// Scale the reference boundaries to the actual bin count.
	be := bassEdge * n / analyzerBins
	me := midEdge * n / analyzerBins
	te := trebleEdge * n / analyzerBins
	if be < 1 {
		be = 1
	}

	var bassSum, midSum, trebleSum, totalSum float64
	for i, v := range bins {
		totalSum += v
		if i < be {
			bassSum += v
		} else if i < me {
			midSum += v
		} else if i < te {
			trebleSum += v
		}
	}

	out := Bands{
		Bass:   bassSum / float64(be),
		Energy: totalSum / float64(n),
	}
	if me > be {
		out.Mid = midSum / float64(me-be)
	}
	if te > me {
		out.Treble = trebleSum / float64(te-me)
	}
	out.Kick = math.Pow(out.Bass, kickSharpness)
	return out
}

// Analyzer samples the audio source's spectrum once per tick. When
// nothing is playing every band reports exactly zero so reactive
// visuals settle to rest instead of holding audio's last frame.
type Analyzer struct {
	src AudioSource

	bands    Bands
	spectrum []float64
}

func NewAnalyzer(src AudioSource) *Analyzer {
	return &Analyzer{src: src}
}

func (a *Analyzer) Sample() Bands {
	if a.src == nil || !a.src.IsPlaying() {
		a.bands = Bands{}
		for i := range a.spectrum {
			a.spectrum[i] = 0
		}
		return a.bands
	}

	a.spectrum = a.src.Spectrum(a.spectrum)
	a.bands = AnalyzeSpectrum(a.spectrum)
	return a.bands
}

// SampleAt is the export-regime variant: it reduces the spectrum at an
// exact track offset, ignoring live playback state. active=false means
// no audio window contains the forced time, which is silence.
func (a *Analyzer) SampleAt(offset float64, active bool) Bands {
	if a.src == nil || !active {
		a.bands = Bands{}
		for i := range a.spectrum {
			a.spectrum[i] = 0
		}
		return a.bands
	}

	a.spectrum = a.src.SpectrumAt(offset, a.spectrum)
	a.bands = AnalyzeSpectrum(a.spectrum)
	return a.bands
}

func (a *Analyzer) Bands() Bands { return a.bands }

// Spectrum returns the last sampled magnitudes, for renderers that want
// raw bin access (spectrum-mountain and friends).
func (a *Analyzer) Spectrum() []float64 { return a.spectrum }

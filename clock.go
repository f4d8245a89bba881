package main

import "math"

// AudioSource is the narrow platform-audio contract the clock and
// analyzer depend on. The beep-backed Engine implements it for real;
// tests swap in a fake.
type AudioSource interface {
	Load(url string) error
	Play()
	Pause()
	Seek(t float64)
	IsPlaying() bool
	Position() float64
	Duration() float64

	// Spectrum fills buf with the live normalized magnitude spectrum.
	Spectrum(buf []float64) []float64
	// SpectrumAt is the offline, frame-exact variant used by export.
	SpectrumAt(t float64, buf []float64) []float64
}

type ClockState int

const (
	Stopped ClockState = iota
	Playing
	Exporting
)

func (s ClockState) String() string {
	switch s {
	case Playing:
		return "playing"
	case Exporting:
		return "exporting"
	}
	return "stopped"
}

// Audio drift under this threshold is left alone; constant re-seeking
// on minor float divergence causes audible jitter.
const defaultDriftTolerance = 0.3

// activeID value while the ambient bed claims the source. Layer IDs
// are base36, so no collision is possible.
const ambientClaim = "~ambient"

// Clock owns the playhead and the audio source handle. Nobody else may
// start, stop or seek the source; everything downstream reads only the
// analyzer's band values.
type Clock struct {
	doc *Document
	src AudioSource

	DriftTolerance float64

	state    ClockState
	activeID string // audio-bearing layer currently claiming the source
	loaded   string // last url handed to the source
}

func NewClock(doc *Document, src AudioSource) *Clock {
	return &Clock{
		doc:            doc,
		src:            src,
		DriftTolerance: defaultDriftTolerance,
	}
}

func (c *Clock) State() ClockState { return c.state }

// Play starts interactive playback. Refused, not ignored, when there is
// nothing to play: the caller distinguishes "nothing loaded" from
// "paused".
func (c *Clock) Play() error {
	if c.state == Exporting {
		return ErrExporting
	}
	if !c.doc.HasAudio() {
		return ErrNoAudio
	}
	c.state = Playing
	return nil
}

func (c *Clock) Pause() {
	if c.state != Playing {
		return
	}
	c.state = Stopped
	if c.src != nil {
		c.src.Pause()
	}
}

// Seek moves the playhead only; the next tick's reconciliation brings
// the audio source along.
func (c *Clock) Seek(t float64) {
	if t < 0 {
		t = 0
	}
	c.doc.CurrentTime = t
}

// Tick advances the playhead by measured wall-clock time. Dropped
// frames lose smoothness, never timeline speed.
func (c *Clock) Tick(dt float64) {
	if c.state != Playing {
		return
	}

	t := c.doc.CurrentTime + dt
	total := c.doc.TotalDuration()
	if t >= total {
		c.doc.CurrentTime = total
		c.state = Stopped
		c.activeID = ""
		if c.src != nil {
			c.src.Pause()
		}
		return
	}

	c.doc.CurrentTime = t
	c.reconcile(t)
}

// reconcile finds the first audio-bearing layer whose window contains
// the playhead and keeps the source synced to it. With no layer window
// claiming the playhead, the ambient bed runs at absolute timeline
// time; with neither, the source is paused.
func (c *Clock) reconcile(t float64) {
	if active := c.activeAudioLayer(t); active != nil {
		c.syncSource(active.ID, active.AudioURL(), t-active.StartTime)
		return
	}

	if c.doc.AmbientAudio != "" {
		c.syncSource(ambientClaim, c.doc.AmbientAudio, t)
		return
	}

	if c.activeID != "" {
		c.activeID = ""
		c.src.Pause()
	}
}

// syncSource keeps the source bound to one claim: (re)acquire on a
// claim change, restart after an interactive pause, snap drift past
// the tolerance.
func (c *Clock) syncSource(id, url string, offset float64) {
	if c.activeID != id {
		c.activeID = id
		c.loadSource(url)
		c.src.Seek(offset)
		c.src.Play()
		return
	}

	if !c.src.IsPlaying() {
		c.src.Play()
	}
	if math.Abs(c.src.Position()-offset) > c.DriftTolerance {
		c.src.Seek(offset)
	}
}

func (c *Clock) activeAudioLayer(t float64) *Layer {
	for _, l := range c.doc.Layers() {
		if l.Kind.AudioBearing() && l.AudioURL() != "" && l.InWindow(t) {
			return l
		}
	}
	return nil
}

func (c *Clock) loadSource(url string) {
	if url == c.loaded {
		return
	}
	c.loaded = url
	c.src.Load(url)
}

// BeginExport hands the clock to the exporter. Interactive playback is
// suspended for the duration; Play is refused until EndExport.
func (c *Clock) BeginExport() error {
	if c.state == Exporting {
		return ErrExporting
	}
	c.state = Exporting
	c.activeID = ""
	if c.src != nil {
		c.src.Pause()
	}
	return nil
}

func (c *Clock) EndExport() {
	if c.state == Exporting {
		c.state = Stopped
		c.activeID = ""
	}
}

// Force pins the playhead to an exact time, bypassing wall-clock
// advancement entirely. It returns the track offset the analyzer
// should sample at, or ok=false when no audio window contains t.
// Export is exempt from monotonicity; it may revisit any time.
func (c *Clock) Force(t float64) (offset float64, ok bool) {
	c.doc.CurrentTime = t

	active := c.activeAudioLayer(t)
	if active == nil {
		if c.doc.AmbientAudio != "" {
			// Ambient track runs under the whole timeline.
			c.activeID = ambientClaim
			c.loadSource(c.doc.AmbientAudio)
			return t, true
		}
		c.activeID = ""
		return 0, false
	}

	c.activeID = active.ID
	c.loadSource(active.AudioURL())
	return t - active.StartTime, true
}

package main

import (
	"fmt"
	"math/cmplx"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/wav"
	"github.com/maddyblue/go-dsp/fft"
)

const (
	engineRate = 44100
	fftSize    = 2048
)

// tap sits in the playback chain before the preview gain and keeps the
// most recent samples around for analysis. Muting the preview does not
// starve the analyzer.
type tap struct {
	lk       sync.Mutex
	buf      []float64
	position int

	sub beep.Streamer
}

func newTap(sub beep.Streamer, size int) *tap {
	return &tap{sub: sub, buf: make([]float64, size)}
}

func (t *tap) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.sub.Stream(samples)

	t.lk.Lock()
	for i := range samples[:n] {
		ix := t.position % len(t.buf)
		t.buf[ix] = (samples[i][0] + samples[i][1]) / 2
		t.position++
	}
	t.lk.Unlock()

	return n, ok
}

func (t *tap) Err() error { return nil }

// Snapshot copies the last len(out) samples, oldest first.
func (t *tap) Snapshot(out []float64) {
	t.lk.Lock()
	defer t.lk.Unlock()

	for i := range out {
		ix := (t.position + i) % len(t.buf)
		out[i] = t.buf[ix]
	}
}

// Engine is the beep-backed audio stack: decode, playback, seek, and
// the two spectrum views (live tap for interactive ticks, whole-track
// buffer for frame-exact export).
type Engine struct {
	mu sync.Mutex

	url      string
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	tap      *tap

	// Full decoded mono track at the file's native rate. Feeds
	// SpectrumAt and the timeline waveform peaks.
	track     []float64
	trackRate float64

	playing  bool
	inited   bool
	scratch  []float64
	noOutput bool // set by export/tests: decode only, no speaker
}

func NewEngine() *Engine {
	return &Engine{scratch: make([]float64, fftSize)}
}

// NewOfflineEngine decodes but never opens the speaker. The exporter
// uses one so a render box without audio output can still export.
func NewOfflineEngine() *Engine {
	e := NewEngine()
	e.noOutput = true
	return e
}

func (e *Engine) initSpeaker() error {
	if e.inited || e.noOutput {
		return nil
	}
	sr := beep.SampleRate(engineRate)
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	e.inited = true
	return nil
}

func decodeAudio(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return wav.Decode(f)
	default:
		return mp3.Decode(f)
	}
}

// Load decodes the track, buffers it fully for offline analysis, and
// stages a fresh playback chain in the paused state.
func (e *Engine) Load(url string) error {
	if err := e.initSpeaker(); err != nil {
		return err
	}

	streamer, format, err := decodeAudio(url)
	if err != nil {
		return fmt.Errorf("load %s: %w", url, err)
	}

	// Buffer the whole track as mono, then rewind for playback.
	var track []float64
	buf := make([][2]float64, 4096)
	for {
		n, ok := streamer.Stream(buf)
		for i := range buf[:n] {
			track = append(track, (buf[i][0]+buf[i][1])/2)
		}
		if !ok {
			break
		}
	}
	if err := streamer.Seek(0); err != nil {
		return fmt.Errorf("rewind %s: %w", url, err)
	}

	e.mu.Lock()
	if e.streamer != nil {
		e.streamer.Close()
	}
	e.url = url
	e.streamer = streamer
	e.format = format
	e.track = track
	e.trackRate = float64(format.SampleRate)
	e.playing = false

	var chain beep.Streamer = streamer
	if format.SampleRate != engineRate {
		chain = beep.Resample(4, format.SampleRate, engineRate, chain)
	}
	e.tap = newTap(chain, fftSize)
	e.volume = &effects.Volume{Streamer: e.tap, Base: 2, Volume: 0}
	lim := NewLimiter(0.9, 4)
	e.ctrl = &beep.Ctrl{Streamer: lim.Process(e.volume), Paused: true}
	e.mu.Unlock()

	if !e.noOutput {
		speaker.Clear()
		speaker.Play(e.ctrl)
	}
	return nil
}

func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctrl == nil {
		return
	}
	if !e.noOutput {
		speaker.Lock()
		e.ctrl.Paused = false
		speaker.Unlock()
	} else {
		e.ctrl.Paused = false
	}
	e.playing = true
}

func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctrl == nil {
		return
	}
	if !e.noOutput {
		speaker.Lock()
		e.ctrl.Paused = true
		speaker.Unlock()
	} else {
		e.ctrl.Paused = true
	}
	e.playing = false
}

func (e *Engine) Seek(t float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.streamer == nil {
		return
	}
	n := int(t * e.trackRate)
	if n < 0 {
		n = 0
	}
	if max := e.streamer.Len(); n > max {
		n = max
	}
	if !e.noOutput {
		speaker.Lock()
		e.streamer.Seek(n)
		speaker.Unlock()
	} else {
		e.streamer.Seek(n)
	}
}

func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *Engine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.streamer == nil || e.trackRate == 0 {
		return 0
	}
	if !e.noOutput {
		speaker.Lock()
		defer speaker.Unlock()
	}
	return float64(e.streamer.Position()) / e.trackRate
}

func (e *Engine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.streamer == nil || e.trackRate == 0 {
		return 0
	}
	return float64(e.streamer.Len()) / e.trackRate
}

// SetMutePreview silences the speaker without touching the analysis
// tap, so reactive visuals keep following the track.
func (e *Engine) SetMutePreview(muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.volume == nil {
		return
	}
	if !e.noOutput {
		speaker.Lock()
		e.volume.Silent = muted
		speaker.Unlock()
	} else {
		e.volume.Silent = muted
	}
}

// SetVolume takes 0..1 and maps it onto the exponential volume knob.
func (e *Engine) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.volume == nil {
		return
	}
	vol := (clamp01(v) - 1) * 4 // 0 -> -4 (near silent), 1 -> 0 (unity)
	if !e.noOutput {
		speaker.Lock()
		e.volume.Volume = vol
		speaker.Unlock()
	} else {
		e.volume.Volume = vol
	}
}

// Spectrum reduces the tap's most recent window to normalized
// magnitudes.
func (e *Engine) Spectrum(buf []float64) []float64 {
	e.mu.Lock()
	t := e.tap
	e.mu.Unlock()
	if t == nil {
		return zeroSpectrum(buf)
	}
	t.Snapshot(e.scratch)
	return magnitudes(e.scratch, buf)
}

// SpectrumAt reduces the buffered track at an exact offset. Same
// transform and normalization as the live path, so export and preview
// react identically.
func (e *Engine) SpectrumAt(t float64, buf []float64) []float64 {
	e.mu.Lock()
	track, rate := e.track, e.trackRate
	e.mu.Unlock()
	if len(track) == 0 || rate == 0 {
		return zeroSpectrum(buf)
	}

	start := int(t * rate)
	for i := range e.scratch {
		if ix := start + i; ix >= 0 && ix < len(track) {
			e.scratch[i] = track[ix]
		} else {
			e.scratch[i] = 0
		}
	}
	return magnitudes(e.scratch, buf)
}

// Peaks buckets the decoded track into n max-abs peaks for the
// timeline waveform strip.
func (e *Engine) Peaks(n int) []float64 {
	e.mu.Lock()
	track := e.track
	e.mu.Unlock()
	return bucketPeaks(track, n)
}

// DecodePeaks decodes a whole file and reduces it to n max-abs peaks
// without touching the playback chain. Used for the static waveform
// strip.
func DecodePeaks(path string, n int) ([]float64, error) {
	streamer, _, err := decodeAudio(path)
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	var track []float64
	buf := make([][2]float64, 4096)
	for {
		sn, ok := streamer.Stream(buf)
		for i := range buf[:sn] {
			track = append(track, (buf[i][0]+buf[i][1])/2)
		}
		if !ok {
			break
		}
	}
	return bucketPeaks(track, n), nil
}

func bucketPeaks(track []float64, n int) []float64 {
	if n <= 0 || len(track) == 0 {
		return nil
	}
	out := make([]float64, n)
	step := len(track) / n
	if step == 0 {
		step = 1
	}
	for i := 0; i < n; i++ {
		var max float64
		for j := 0; j < step; j++ {
			ix := i*step + j
			if ix >= len(track) {
				break
			}
			v := track[ix]
			if v < 0 {
				v = -v
			}
			if v > max {
				max = v
			}
		}
		out[i] = max
	}
	return out
}

// magnitudes runs the real FFT over window and writes normalized
// [0,1] magnitudes into buf (allocating it on first use).
func magnitudes(window []float64, buf []float64) []float64 {
	res := fft.FFTReal(window)

	bins := len(window) / 2
	if cap(buf) < bins {
		buf = make([]float64, bins)
	}
	buf = buf[:bins]
	for i := 0; i < bins; i++ {
		v := cmplx.Abs(res[i]) * 2 / float64(len(window))
		if v > 1 {
			v = 1
		}
		buf[i] = v
	}
	return buf
}

func zeroSpectrum(buf []float64) []float64 {
	if cap(buf) < fftSize/2 {
		buf = make([]float64, fftSize/2)
	}
	buf = buf[:fftSize/2]
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

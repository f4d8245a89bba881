package main

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
)

// fakeEncoder records what it found in the staging dir and writes the
// out.mp4 the exporter delivers.
type fakeEncoder struct {
	dir    string
	frames []string
	audio  string
	fail   bool
}

func (f *fakeEncoder) Encode(dir, audioPath string, duration float64, opts ExportOptions, onLog func(string), onProgress func(float64)) error {
	f.dir = dir
	f.audio = audioPath

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".jpg" {
			f.frames = append(f.frames, e.Name())
		}
	}

	if f.fail {
		return errors.New("encoder exploded")
	}
	if onProgress != nil {
		onProgress(1)
	}
	return os.WriteFile(filepath.Join(dir, "out.mp4"), []byte("mp4"), 0o644)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func exportFixture(t *testing.T) (*Exporter, *fakeEncoder, string) {
	t.Helper()

	d := NewDocument()
	d.Add(audioClip("a.mp3", 0, DurationInfinite))

	src := &fakeSource{level: 0.5}
	clock := NewClock(d, src)
	pipeline := NewPipeline(d, clock, NewAnalyzer(src), NewCompositor(nil, nil))

	capture := func() (image.Image, error) {
		return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
	}

	enc := &fakeEncoder{}
	exp := NewExporter(pipeline, clock, capture, enc, quietLogger())

	audio := filepath.Join(t.TempDir(), "track.mp3")
	if err := os.WriteFile(audio, []byte("not really mp3"), 0o644); err != nil {
		t.Fatal(err)
	}
	return exp, enc, audio
}

func TestExportFrameSequence(t *testing.T) {
	exp, enc, audio := exportFixture(t)

	out := filepath.Join(t.TempDir(), "final.mp4")
	if err := exp.Run(audio, 2.0, ExportOptions{Output: out}); err != nil {
		t.Fatal(err)
	}
	if exp.Phase() != PhaseDone {
		t.Fatalf("phase = %s", exp.Phase())
	}

	if len(enc.frames) != 60 {
		t.Fatalf("staged %d frames, want 60", len(enc.frames))
	}
	for i, name := range enc.frames {
		want := fmt.Sprintf("frame_%04d.jpg", i)
		if name != want {
			t.Fatalf("frame %d named %q, want %q", i, name, want)
		}
	}
	if filepath.Base(enc.audio) != "audio.mp3" {
		t.Fatalf("staged audio = %q", enc.audio)
	}

	if _, err := os.Stat(out); err != nil {
		t.Fatalf("delivered output missing: %v", err)
	}
	if _, err := os.Stat(enc.dir); !os.IsNotExist(err) {
		t.Fatal("staging dir survived a successful export")
	}
}

func TestExportCleansUpOnEncodeFailure(t *testing.T) {
	exp, enc, audio := exportFixture(t)
	enc.fail = true

	out := filepath.Join(t.TempDir(), "final.mp4")
	err := exp.Run(audio, 1.0, ExportOptions{Output: out})
	if err == nil {
		t.Fatal("expected encode failure")
	}
	if exp.Phase() != PhaseFailed {
		t.Fatalf("phase = %s", exp.Phase())
	}
	if _, statErr := os.Stat(enc.dir); !os.IsNotExist(statErr) {
		t.Fatal("staging dir survived a failed export")
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("output delivered despite failure")
	}
}

func TestExportRefusesWithoutAudio(t *testing.T) {
	exp, enc, _ := exportFixture(t)

	err := exp.Run("", 2.0, ExportOptions{})
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("got %v, want ErrNoAudio", err)
	}
	if exp.Phase() != PhaseFailed {
		t.Fatalf("phase = %s", exp.Phase())
	}
	if enc.dir != "" {
		t.Fatal("encoder reached without audio")
	}
}

func TestExportRejectsBadOptions(t *testing.T) {
	exp, _, audio := exportFixture(t)
	if err := exp.Run(audio, 1.0, ExportOptions{Preset: "warp9"}); err == nil {
		t.Fatal("unknown preset accepted")
	}

	exp2, _, audio2 := exportFixture(t)
	if err := exp2.Run(audio2, 1.0, ExportOptions{CRF: "99"}); err == nil {
		t.Fatal("out of range crf accepted")
	}
}

func TestExportCancel(t *testing.T) {
	exp, enc, audio := exportFixture(t)
	exp.Cancel()
	exp.Cancel() // idempotent

	err := exp.Run(audio, 2.0, ExportOptions{})
	if !errors.Is(err, ErrExportCancel) {
		t.Fatalf("got %v, want ErrExportCancel", err)
	}
	if len(enc.frames) != 0 {
		t.Fatal("frames encoded after cancel")
	}
}

func TestExportReleasesClock(t *testing.T) {
	exp, _, audio := exportFixture(t)

	if err := exp.Run(audio, 0.5, ExportOptions{Output: filepath.Join(t.TempDir(), "o.mp4")}); err != nil {
		t.Fatal(err)
	}

	// The clock must be handed back for interactive playback.
	if err := exp.clock.Play(); err != nil {
		t.Fatalf("play after export: %v", err)
	}
}

func spinnerRotation(t *testing.T, r *captureRenderer) float64 {
	t.Helper()
	for _, rl := range r.layers {
		if rl.Name == "spinner" {
			return rl.Rotation
		}
	}
	t.Fatal("spinner not rendered")
	return 0
}

// A rotation-bound layer must spin at the same rate whether the frames
// come from interactive ticks or from the export frame grid, and an
// export must start from zero spin regardless of preview history.
func TestExportSpinMatchesLiveRate(t *testing.T) {
	spinRig := func() (*Pipeline, *Clock, *captureRenderer) {
		d := NewDocument()
		d.Add(audioClip("a.mp3", 0, DurationInfinite))
		l := windowLayer("spinner", 0, DurationInfinite)
		l.Reactive["rotation"] = Binding{Enabled: true, Source: "bass", Amount: 0.5}
		d.Add(l)

		src := &fakeSource{level: 0.5}
		clock := NewClock(d, src)
		r := &captureRenderer{}
		return NewPipeline(d, clock, NewAnalyzer(src), NewCompositor(r, nil)), clock, r
	}

	// One second of interactive playback.
	p, clock, r := spinRig()
	if err := clock.Play(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30; i++ {
		p.Tick(1.0 / 30)
	}
	live := spinnerRotation(t, r)
	if live == 0 {
		t.Fatal("live spin never accumulated")
	}

	// One second of export, with spin already accumulated in preview.
	p2, clock2, r2 := spinRig()
	if err := clock2.Play(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		p2.Tick(1.0 / 30)
	}

	capture := func() (image.Image, error) {
		return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
	}
	exp := NewExporter(p2, clock2, capture, &fakeEncoder{}, quietLogger())

	audio := filepath.Join(t.TempDir(), "track.mp3")
	if err := os.WriteFile(audio, []byte("not really mp3"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "o.mp4")
	if err := exp.Run(audio, 1.0, ExportOptions{Output: out}); err != nil {
		t.Fatal(err)
	}

	exported := spinnerRotation(t, r2)
	if !almostEqual(exported, live) {
		t.Fatalf("exported spin %v after one second, live %v", exported, live)
	}
}

func TestExportProgressPhases(t *testing.T) {
	exp, _, audio := exportFixture(t)

	var phases []ExportPhase
	exp.OnProgress = func(p ExportProgress) {
		if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
			phases = append(phases, p.Phase)
		}
	}

	if err := exp.Run(audio, 1.0, ExportOptions{Output: filepath.Join(t.TempDir(), "o.mp4")}); err != nil {
		t.Fatal(err)
	}

	want := []ExportPhase{PhasePreparing, PhaseExtracting, PhaseEncoding, PhaseDone}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v", phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}
}

func TestParseFFmpegTime(t *testing.T) {
	v, ok := parseFFmpegTime("frame=  120 fps= 30 time=00:01:30.50 bitrate=900kbits/s")
	if !ok || !almostEqual(v, 90.5) {
		t.Fatalf("parsed %v %v", v, ok)
	}
	if _, ok := parseFFmpegTime("no timestamps here"); ok {
		t.Fatal("matched a line without time=")
	}
}

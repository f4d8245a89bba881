package main

import (
	"bufio"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	exportFPS = 30
	// A renderer may lag one tick behind a forced parameter change, so
	// the frame loop settles this many render passes before capture.
	// Empirical, like the drift tolerance; not an invariant.
	defaultSettleTicks = 2

	jpegQuality = 90
)

var speedPresets = []string{
	"ultrafast", "superfast", "veryfast", "faster", "fast",
	"medium", "slow", "slower", "veryslow",
}

type ExportOptions struct {
	Preset string // one of speedPresets, default ultrafast
	CRF    string // "0".."51", default "23"
	Output string // final file path, default vibe-export.mp4
}

func (o *ExportOptions) normalize() error {
	if o.Preset == "" {
		o.Preset = "ultrafast"
	}
	found := false
	for _, p := range speedPresets {
		if p == o.Preset {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("unknown preset %q", o.Preset)
	}
	if o.CRF == "" {
		o.CRF = "23"
	}
	crf, err := strconv.Atoi(o.CRF)
	if err != nil || crf < 0 || crf > 51 {
		return fmt.Errorf("crf must be an integer 0-51, got %q", o.CRF)
	}
	if o.Output == "" {
		o.Output = "vibe-export.mp4"
	}
	return nil
}

type ExportPhase string

const (
	PhaseIdle       ExportPhase = "idle"
	PhasePreparing  ExportPhase = "preparing"
	PhaseExtracting ExportPhase = "extracting"
	PhaseEncoding   ExportPhase = "encoding"
	PhaseDone       ExportPhase = "done"
	PhaseFailed     ExportPhase = "failed"
)

type ExportProgress struct {
	Phase    ExportPhase
	Progress float64
	ETA      float64 // seconds, extracting only
}

// Encoder turns a staged frame sequence plus audio into one media
// file named out.mp4 inside dir.
type Encoder interface {
	Encode(dir, audioPath string, duration float64, opts ExportOptions, onLog func(string), onProgress func(float64)) error
}

// FFmpegEncoder shells out to ffmpeg. Stderr is relayed line by line to
// the log channel and mined for encode progress.
type FFmpegEncoder struct {
	Bin string
}

func (f *FFmpegEncoder) Encode(dir, audioPath string, duration float64, opts ExportOptions, onLog func(string), onProgress func(float64)) error {
	bin := f.Bin
	if bin == "" {
		bin = "ffmpeg"
	}

	args := []string{
		"-y",
		"-framerate", strconv.Itoa(exportFPS),
		"-i", filepath.Join(dir, "frame_%04d.jpg"),
		"-i", audioPath,
		"-c:v", "libx264",
		"-preset", opts.Preset,
		"-crf", opts.CRF,
		"-c:a", "aac",
		"-pix_fmt", "yuv420p",
		"-shortest",
		filepath.Join(dir, "out.mp4"),
	}

	cmd := exec.Command(bin, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", bin, err)
	}

	var lastLine string
	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanLinesAndCR)
	for scanner.Scan() {
		line := scanner.Text()
		lastLine = line
		if onLog != nil {
			onLog(line)
		}
		if onProgress != nil && duration > 0 {
			if t, ok := parseFFmpegTime(line); ok {
				p := t / duration
				if p > 1 {
					p = 1
				}
				onProgress(p)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, lastLine)
	}
	return nil
}

// ffmpeg writes progress on carriage-return terminated lines.
func scanLinesAndCR(data []byte, atEOF bool) (int, []byte, error) {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func parseFFmpegTime(line string) (float64, bool) {
	ix := strings.Index(line, "time=")
	if ix < 0 {
		return 0, false
	}
	field := strings.Fields(line[ix+len("time="):])
	if len(field) == 0 {
		return 0, false
	}
	parts := strings.Split(field[0], ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.ParseFloat(parts[0], 64)
	m, err2 := strconv.ParseFloat(parts[1], 64)
	s, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return h*3600 + m*60 + s, true
}

// Exporter drives the pipeline over a fixed frame grid and hands the
// result to the encoder. It owns the clock for the whole run and only
// ever reads the document.
type Exporter struct {
	pipeline *Pipeline
	clock    *Clock
	capture  func() (image.Image, error)
	enc      Encoder
	log      *log.Logger

	FPS         int
	SettleTicks int

	OnProgress func(ExportProgress)
	OnLog      func(string)

	phase      ExportPhase
	cancel     chan struct{}
	cancelOnce sync.Once
}

func NewExporter(p *Pipeline, clock *Clock, capture func() (image.Image, error), enc Encoder, l *log.Logger) *Exporter {
	if l == nil {
		l = log.New(os.Stdout, "[export] ", log.LstdFlags)
	}
	return &Exporter{
		pipeline:    p,
		clock:       clock,
		capture:     capture,
		enc:         enc,
		log:         l,
		FPS:         exportFPS,
		SettleTicks: defaultSettleTicks,
		phase:       PhaseIdle,
		cancel:      make(chan struct{}),
	}
}

func (e *Exporter) Phase() ExportPhase { return e.phase }

// Cancel stops the export between frames. Cleanup still runs.
func (e *Exporter) Cancel() {
	e.cancelOnce.Do(func() { close(e.cancel) })
}

func (e *Exporter) setPhase(p ExportPhase, progress, eta float64) {
	e.phase = p
	if e.OnProgress != nil {
		e.OnProgress(ExportProgress{Phase: p, Progress: progress, ETA: eta})
	}
}

func (e *Exporter) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.log.Print(msg)
	if e.OnLog != nil {
		e.OnLog(msg)
	}
}

// Run renders duration seconds at the configured frame rate and
// encodes the result to opts.Output. Every exit path, including
// cancellation and mid-loop failures, removes all staged frames and
// the staged audio copy.
func (e *Exporter) Run(audioPath string, duration float64, opts ExportOptions) (err error) {
	e.setPhase(PhasePreparing, 0, 0)

	if audioPath == "" {
		e.setPhase(PhaseFailed, 0, 0)
		return fmt.Errorf("export: %w", ErrNoAudio)
	}
	if err := opts.normalize(); err != nil {
		e.setPhase(PhaseFailed, 0, 0)
		return fmt.Errorf("export: %w", err)
	}

	if err := e.clock.BeginExport(); err != nil {
		e.setPhase(PhaseFailed, 0, 0)
		return err
	}
	defer e.clock.EndExport()
	e.pipeline.ResetMotion()

	dir, err := os.MkdirTemp("", "vibe-export-")
	if err != nil {
		e.setPhase(PhaseFailed, 0, 0)
		return err
	}
	defer os.RemoveAll(dir)

	defer func() {
		if err != nil {
			e.logf("ERROR: %v", err)
			e.setPhase(PhaseFailed, 0, 0)
		}
	}()

	stagedAudio := filepath.Join(dir, "audio"+filepath.Ext(audioPath))
	if err = copyFile(audioPath, stagedAudio); err != nil {
		return fmt.Errorf("stage audio: %w", err)
	}

	totalFrames := int(math.Ceil(duration * float64(e.FPS)))
	e.logf("starting extraction: %d frames", totalFrames)

	e.setPhase(PhaseExtracting, 0, 0)
	start := time.Now()
	step := 1 / float64(e.FPS)

	for i := 0; i < totalFrames; i++ {
		select {
		case <-e.cancel:
			err = ErrExportCancel
			return err
		default:
		}

		// Only the last settle pass carries the frame's dt, so
		// integrated motion advances exactly once per output frame.
		t := float64(i) / float64(e.FPS)
		for s := 0; s < e.SettleTicks; s++ {
			dt := 0.0
			if s == e.SettleTicks-1 {
				dt = step
			}
			e.pipeline.RenderAt(t, dt)
		}

		img, cerr := e.capture()
		if cerr != nil {
			err = fmt.Errorf("capture frame %d: %w", i, cerr)
			return err
		}
		if err = writeFrame(dir, i, img); err != nil {
			return err
		}

		// Throttled ETA: every frame would just be noise.
		if i%10 == 0 || i == totalFrames-1 {
			elapsed := time.Since(start).Seconds()
			var eta float64
			if elapsed > 0 {
				rate := float64(i+1) / elapsed
				eta = float64(totalFrames-i) / rate
			}
			e.setPhase(PhaseExtracting, float64(i)/float64(totalFrames), eta)
		}
	}

	e.logf("extraction complete, encoding")
	e.setPhase(PhaseEncoding, 0, 0)

	err = e.enc.Encode(dir, stagedAudio, duration, opts,
		func(line string) {
			if e.OnLog != nil {
				e.OnLog(line)
			}
		},
		func(p float64) { e.setPhase(PhaseEncoding, p, 0) },
	)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	if err = copyFile(filepath.Join(dir, "out.mp4"), opts.Output); err != nil {
		return fmt.Errorf("deliver output: %w", err)
	}

	e.logf("wrote %s", opts.Output)
	e.setPhase(PhaseDone, 1, 0)
	return nil
}

func writeFrame(dir string, i int, img image.Image) error {
	name := filepath.Join(dir, fmt.Sprintf("frame_%04d.jpg", i))
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

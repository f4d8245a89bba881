package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/rakyll/portmidi"
	"github.com/veandco/go-sdl2/sdl"
)

func main() {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	if len(os.Args) > 2 && os.Args[1] == "export" {
		if err := runExport(os.Args[2], os.Args[3:], logger); err != nil {
			logger.Fatal(err)
		}
		return
	}

	if err := run(logger); err != nil {
		logger.Fatal(err)
	}
}

// runExport renders a track headlessly: load it as the ambient bed,
// seed the default scene, export the whole timeline.
func runExport(audioPath string, rest []string, logger *log.Logger) error {
	sr, err := NewSDLRenderer("vibe export")
	if err != nil {
		return err
	}
	defer sr.Close()

	eng := NewOfflineEngine()
	doc := SeedDocument()
	doc.AmbientAudio = audioPath

	clock := NewClock(doc, eng)
	analyzer := NewAnalyzer(eng)
	comp := NewCompositor(sr, logger)
	pipeline := NewPipeline(doc, clock, analyzer, comp)

	if err := eng.Load(audioPath); err != nil {
		return err
	}

	opts := ExportOptions{}
	if len(rest) > 0 {
		opts.Output = rest[0]
	}

	exp := NewExporter(pipeline, clock, sr.Capture, &FFmpegEncoder{}, logger)
	exp.OnProgress = func(p ExportProgress) {
		if p.Phase == PhaseExtracting {
			logger.Printf("extracting %3.0f%% (eta %s)", p.Progress*100, fmtSeconds(p.ETA))
		} else {
			logger.Printf("%s %3.0f%%", p.Phase, p.Progress*100)
		}
	}

	duration := eng.Duration()
	if td := doc.TotalDuration(); td < duration {
		duration = td
	}
	return exp.Run(audioPath, duration, opts)
}

func run(logger *log.Logger) error {
	sr, err := NewSDLRenderer("vibe visualizer")
	if err != nil {
		return err
	}
	defer sr.Close()

	eng := NewEngine()
	doc := SeedDocument()

	if len(os.Args) > 1 {
		track := os.Args[1]
		doc.Do(func(d *Document) { d.AmbientAudio = track })
		if peaks, err := DecodePeaks(track, 512); err != nil {
			logger.Printf("waveform peaks: %v", err)
		} else {
			sr.SetWaveformPeaks(peaks)
		}
	}

	clock := NewClock(doc, eng)
	analyzer := NewAnalyzer(eng)
	comp := NewCompositor(sr, logger)
	pipeline := NewPipeline(doc, clock, analyzer, comp)

	sys := NewSystem(doc, clock, eng, os.Stdout)
	sr.SetAnalyzerToggle(func() bool { return sys.ShowAnalyzer })

	exportReq := make(chan ExportOptions, 1)
	sys.StartExport = func(opts ExportOptions) {
		select {
		case exportReq <- opts:
		default:
			fmt.Println("ERROR: export already queued")
		}
	}

	if mc := openMidi(doc, clock, eng, logger); mc != nil {
		defer mc.Shutdown()
	}

	go runPrompt(sys)

	running := true
	last := time.Now()
	for running {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch event := event.(type) {
			case *sdl.QuitEvent:
				running = false
			case *sdl.KeyboardEvent:
				if event.Type != sdl.KEYDOWN {
					continue
				}
				switch event.Keysym.Sym {
				case sdl.K_SPACE:
					if clock.State() == Playing {
						clock.Pause()
					} else if err := clock.Play(); err != nil {
						fmt.Println("ERROR:", err)
					}
				case sdl.K_LEFT:
					clock.Seek(doc.CurrentTime - 5)
				case sdl.K_RIGHT:
					clock.Seek(doc.CurrentTime + 5)
				case sdl.K_m:
					sys.ProcessCmd("mute")
				case sdl.K_ESCAPE:
					running = false
				}
			}
		}

		select {
		case opts := <-exportReq:
			runQueuedExport(doc, clock, pipeline, sr, opts, logger)
		default:
		}

		now := time.Now()
		dt := now.Sub(last).Seconds()
		last = now

		pipeline.Tick(dt)
	}
	return nil
}

// runQueuedExport runs on the main loop because the renderer is not
// usable off the video thread. The window freezes for the duration.
func runQueuedExport(doc *Document, clock *Clock, pipeline *Pipeline, sr *SDLRenderer, opts ExportOptions, logger *log.Logger) {
	audio := doc.AmbientAudio
	if audio == "" {
		for _, l := range doc.Layers() {
			if l.Kind.AudioBearing() && l.AudioURL() != "" {
				audio = l.AudioURL()
				break
			}
		}
	}

	exp := NewExporter(pipeline, clock, sr.Capture, &FFmpegEncoder{}, logger)
	exp.OnProgress = func(p ExportProgress) {
		if p.Phase == PhaseExtracting {
			logger.Printf("extracting %3.0f%% (eta %s)", p.Progress*100, fmtSeconds(p.ETA))
		} else {
			logger.Printf("%s %3.0f%%", p.Phase, p.Progress*100)
		}
	}

	if err := exp.Run(audio, doc.TotalDuration(), opts); err != nil {
		fmt.Println("EXPORT ERROR:", err)
	}
}

func openMidi(doc *Document, clock *Clock, eng *Engine, logger *log.Logger) *MidiController {
	if err := portmidi.Initialize(); err != nil {
		logger.Printf("midi unavailable: %v", err)
		return nil
	}

	mc, err := OpenController(portmidi.DefaultInputDeviceID(), logger)
	if err != nil {
		logger.Printf("midi unavailable: %v", err)
		return nil
	}

	mc.OnPad = func(note int64) {
		doc.Do(func(d *Document) {
			if clock.State() == Playing {
				clock.Pause()
			} else if err := clock.Play(); err != nil {
				logger.Printf("midi play: %v", err)
			}
		})
	}

	mc.BindKnob(1, func(v float64) {
		doc.Do(func(d *Document) {
			d.UpdateEffect("bloom", func(p *EffectParams) { p.Intensity = v })
		})
	}, scaledKnob(0, 3))

	mc.BindKnob(2, func(v float64) {
		doc.Do(func(d *Document) {
			d.UpdateEffect("noise", func(p *EffectParams) { p.Opacity = v })
		})
	}, scaledKnob(0, 0.3))

	mc.BindKnob(3, eng.SetVolume, unitKnob)

	return mc
}

var promptSuggestions = []prompt.Suggest{
	{Text: "ring", Description: "add a particle rings layer"},
	{Text: "tunnel", Description: "add a tunnel layer"},
	{Text: "stars", Description: "add a star field layer"},
	{Text: "kaleid", Description: "add a kaleidoscope layer"},
	{Text: "laser", Description: "add a laser layer"},
	{Text: "mountain", Description: "add a spectrum mountain layer"},
	{Text: "text", Description: "add a text layer"},
	{Text: "glitch", Description: "add a glitch layer"},
	{Text: "bloom", Description: "enable bloom"},
	{Text: "chromatic", Description: "enable chromatic aberration"},
	{Text: "noise", Description: "enable film noise"},
	{Text: "analyzer", Description: "toggle the fft overlay"},
	{Text: "preset", Description: "apply a preset scene"},
	{Text: "audio", Description: "load an ambient track"},
	{Text: "play", Description: "start playback"},
	{Text: "pause", Description: "pause playback"},
	{Text: "seek", Description: "move the playhead"},
	{Text: "volume", Description: "preview gain"},
	{Text: "mute", Description: "toggle preview mute"},
	{Text: "invert", Description: "invert paint order"},
	{Text: "ls", Description: "list layers"},
	{Text: "rm", Description: "remove a layer"},
	{Text: "render", Description: "export video"},
	{Text: "script", Description: "dump the scene as commands"},
	{Text: "clear", Description: "remove every non-background layer"},
	{Text: "help", Description: "command list"},
}

func runPrompt(sys *System) {
	completer := func(d prompt.Document) []prompt.Suggest {
		if d.TextBeforeCursor() == "" {
			return nil
		}
		return prompt.FilterHasPrefix(promptSuggestions, d.GetWordBeforeCursor(), true)
	}

	for {
		t := prompt.Input("> ", completer)
		if t == "exit" {
			return
		}
		if err := sys.ProcessCmd(t); err != nil {
			fmt.Println("ERROR:", err)
		}
	}
}

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

var helpText = []string{
	"commands:",
	"  ring [count] [speed]         add a particle rings layer",
	"  tunnel [speed]               add a tunnel layer",
	"  stars [count]                add a star field layer",
	"  kaleid [segments]            add a kaleidoscope layer",
	"  laser [count]                add a laser layer",
	"  mountain [shape]             add a spectrum mountain layer",
	"  text <words...>              add a text layer",
	"  glitch [amount]              add a glitch layer",
	"  bloom [intensity]            enable bloom",
	"  chromatic [x] [y]            enable chromatic aberration",
	"  noise [opacity]              enable film noise",
	"  analyzer                     toggle the fft overlay",
	"  preset vaporwave | techno    apply a preset scene",
	"  audio <path>                 load an ambient track",
	"  play | pause | seek <t>      transport",
	"  volume <0..1> | mute         preview gain",
	"  invert                       invert paint order",
	"  ls | rm <id>                 list / remove layers",
	"  render [preset] [crf]        export video",
	"  script                       dump the scene as commands",
	"  clear                        remove every non-background layer",
	"  help                         this",
}

// System is the terminal surface: it parses one command line at a time
// and turns it into queued document mutations or transport calls. It
// runs on the prompt goroutine, so every edit goes through doc.Do.
type System struct {
	doc   *Document
	clock *Clock
	eng   *Engine
	out   io.Writer

	// StartExport is wired by main; nil means export is unavailable
	// (tests, headless runs without ffmpeg).
	StartExport func(opts ExportOptions)

	ShowAnalyzer bool

	muted bool
}

func NewSystem(doc *Document, clock *Clock, eng *Engine, out io.Writer) *System {
	return &System{doc: doc, clock: clock, eng: eng, out: out}
}

func (s *System) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format+"\n", args...)
}

func numArg(parts []string, n int, def float64) float64 {
	if n >= len(parts) {
		return def
	}
	v, err := strconv.ParseFloat(parts[n], 64)
	if err != nil {
		return def
	}
	return v
}

func intArg(parts []string, n int, def int) int {
	if n >= len(parts) {
		return def
	}
	v, err := strconv.Atoi(parts[n])
	if err != nil {
		return def
	}
	return v
}

func (s *System) addLayer(l *Layer) {
	s.doc.Do(func(d *Document) {
		if err := d.Add(l); err != nil {
			s.printf("ERROR: %v", err)
			return
		}
		s.printf("added %s (%s)", l.Name, l.ID)
	})
}

func (s *System) setEffect(name string, fn func(*EffectParams)) {
	s.doc.Do(func(d *Document) {
		d.UpdateEffect(name, fn)
	})
}

func (s *System) ProcessCmd(cmdl string) error {
	parts := strings.Fields(cmdl)
	if len(parts) == 0 {
		return nil
	}

	switch strings.ToLower(parts[0]) {
	case "help":
		for _, ln := range helpText {
			s.printf("%s", ln)
		}

	case "ring":
		l := NewLayer(KindParticleRings)
		l.Props = RingProps{RingCount: intArg(parts, 1, 4), Speed: numArg(parts, 2, 1)}
		s.addLayer(l)

	case "tunnel":
		l := NewLayer(KindTunnel)
		l.Props = TunnelProps{Speed: numArg(parts, 1, 1)}
		s.addLayer(l)

	case "stars":
		l := NewLayer(KindStarfield)
		l.Props = StarfieldProps{Count: intArg(parts, 1, 800), Speed: 1}
		s.addLayer(l)

	case "kaleid":
		l := NewLayer(KindKaleidoscope)
		l.Props = KaleidoProps{Segments: intArg(parts, 1, 6), Speed: 1}
		s.addLayer(l)

	case "laser":
		l := NewLayer(KindLaser)
		l.Props = LaserProps{LaserCount: intArg(parts, 1, 8)}
		s.addLayer(l)

	case "mountain":
		l := NewLayer(KindSpectrumMountain)
		shape := "line"
		if len(parts) > 1 {
			shape = parts[1]
		}
		l.Props = MountainProps{Shape: shape, Amplitude: 4}
		s.addLayer(l)

	case "text":
		l := NewLayer(KindText)
		if len(parts) > 1 {
			l.Props = TextProps{Content: strings.Join(parts[1:], " ")}
		}
		s.addLayer(l)

	case "glitch":
		l := NewLayer(KindGlitch)
		l.Reactive["glitch"] = Binding{Enabled: true, Source: "energy", Amount: numArg(parts, 1, 1)}
		s.addLayer(l)

	case "bloom":
		v := numArg(parts, 1, 2)
		s.setEffect("bloom", func(p *EffectParams) {
			p.Enabled = true
			p.Intensity = v
		})
		s.printf("bloom on (%.2f)", v)

	case "chromatic":
		x, y := numArg(parts, 1, 0.005), numArg(parts, 2, 0.005)
		s.setEffect("chromaticAberration", func(p *EffectParams) {
			p.Enabled = true
			p.OffsetX = x
			p.OffsetY = y
		})
		s.printf("chromatic on (%.4f, %.4f)", x, y)

	case "noise":
		v := numArg(parts, 1, 0.08)
		s.setEffect("noise", func(p *EffectParams) {
			p.Enabled = true
			p.Opacity = v
		})
		s.printf("noise on (%.2f)", v)

	case "analyzer":
		s.ShowAnalyzer = !s.ShowAnalyzer
		s.printf("analyzer overlay: %v", s.ShowAnalyzer)

	case "preset":
		if len(parts) < 2 {
			s.printf("usage: preset vaporwave | techno")
			return nil
		}
		return s.applyPreset(parts[1])

	case "audio":
		if len(parts) < 2 {
			s.printf("usage: audio <path>")
			return nil
		}
		path := parts[1]
		s.doc.Do(func(d *Document) {
			d.AmbientAudio = path
			s.printf("ambient track: %s", path)
		})

	case "play":
		s.doc.Do(func(d *Document) {
			if err := s.clock.Play(); err != nil {
				s.printf("ERROR: %v", err)
			}
		})

	case "pause":
		s.doc.Do(func(d *Document) { s.clock.Pause() })

	case "seek":
		t := numArg(parts, 1, 0)
		s.doc.Do(func(d *Document) { s.clock.Seek(t) })

	case "volume":
		v := numArg(parts, 1, 1)
		if s.eng != nil {
			s.eng.SetVolume(v)
		}
		s.printf("volume %.2f", v)

	case "mute":
		s.muted = !s.muted
		if s.eng != nil {
			s.eng.SetMutePreview(s.muted)
		}
		s.printf("preview muted: %v", s.muted)

	case "invert":
		s.doc.Do(func(d *Document) {
			d.InvertOrder = !d.InvertOrder
			s.printf("inverted order: %v", d.InvertOrder)
		})

	case "ls":
		s.doc.Do(func(d *Document) {
			for _, l := range d.Layers() {
				mark := " "
				if !l.Visible {
					mark = "."
				}
				s.printf("%s %s  %-14s %-18s %s .. %s", mark, l.ID, l.Kind, l.Name,
					fmtSeconds(l.StartTime), fmtSeconds(l.End()))
			}
		})

	case "rm":
		if len(parts) < 2 {
			s.printf("usage: rm <id>")
			return nil
		}
		id := parts[1]
		s.doc.Do(func(d *Document) {
			d.Remove(id)
			s.printf("removed %s", id)
		})

	case "render":
		if s.StartExport == nil {
			s.printf("ERROR: export not available")
			return nil
		}
		opts := ExportOptions{}
		if len(parts) > 1 {
			opts.Preset = parts[1]
		}
		if len(parts) > 2 {
			opts.CRF = parts[2]
		}
		s.StartExport(opts)

	case "script":
		s.doc.Do(func(d *Document) { s.dumpScript(d) })

	case "clear":
		s.doc.Do(func(d *Document) {
			var doomed []string
			for _, l := range d.Layers() {
				if l.Name != "Background" {
					doomed = append(doomed, l.ID)
				}
			}
			for _, id := range doomed {
				d.Remove(id)
			}
			s.printf("cleared %d layers", len(doomed))
		})

	default:
		return fmt.Errorf("unknown command %q, try 'help'", parts[0])
	}

	return nil
}

func (s *System) applyPreset(name string) error {
	switch name {
	case "vaporwave":
		l := NewLayer(KindSpectrumCircle)
		l.Name = "Vapor Ring"
		l.Color = "#ff71ce"
		l.Scale = 1.5
		l.Reactive["scale"] = Binding{Enabled: true, Source: "bass", Amount: 0.5}
		s.addLayer(l)
		s.setEffect("bloom", func(p *EffectParams) {
			p.Enabled = true
			p.Intensity = 2.5
		})
		s.setEffect("chromaticAberration", func(p *EffectParams) {
			p.Enabled = true
			p.OffsetX = 0.005
			p.OffsetY = 0.005
		})
		s.printf("preset: vaporwave")

	case "techno":
		l := NewLayer(KindGlitch)
		l.Name = "Techno Glitch"
		l.Color = "#00ff00"
		l.Position = [3]float64{}
		l.Reactive["glitch"] = Binding{Enabled: true, Source: "energy", Amount: 2}
		s.addLayer(l)
		s.setEffect("noise", func(p *EffectParams) {
			p.Enabled = true
			p.Opacity = 0.2
		})
		s.printf("preset: techno")

	default:
		return fmt.Errorf("unknown preset %q, try vaporwave or techno", name)
	}
	return nil
}

// dumpScript prints the scene as replayable terminal commands, the
// closest thing to a save file the terminal has.
func (s *System) dumpScript(d *Document) {
	kindCmd := map[Kind]string{
		KindParticleRings:    "ring",
		KindTunnel:           "tunnel",
		KindStarfield:        "stars",
		KindKaleidoscope:     "kaleid",
		KindLaser:            "laser",
		KindSpectrumMountain: "mountain",
		KindText:             "text",
		KindGlitch:           "glitch",
	}

	n := 0
	for _, l := range d.Layers() {
		cmd, ok := kindCmd[l.Kind]
		if !ok {
			continue
		}
		switch p := l.Props.(type) {
		case RingProps:
			s.printf("%s %d %g", cmd, p.RingCount, p.Speed)
		case TunnelProps:
			s.printf("%s %g", cmd, p.Speed)
		case StarfieldProps:
			s.printf("%s %d", cmd, p.Count)
		case KaleidoProps:
			s.printf("%s %d", cmd, p.Segments)
		case LaserProps:
			s.printf("%s %d", cmd, p.LaserCount)
		case MountainProps:
			s.printf("%s %s", cmd, p.Shape)
		case TextProps:
			s.printf("%s %s", cmd, p.Content)
		default:
			s.printf("%s", cmd)
		}
		n++
	}
	s.printf("%d layers scripted", n)
}

package main

import (
	"math/rand"
	"strconv"
)

// Duration value meaning "until the end of the timeline".
const DurationInfinite = 9999

type Kind string

const (
	KindImage            Kind = "image"
	KindVideo            Kind = "video"
	KindText             Kind = "text"
	KindParticles        Kind = "particles"
	KindParticleRings    Kind = "particle-rings"
	KindStarfield        Kind = "starfield"
	KindTunnel           Kind = "tunnel"
	KindKaleidoscope     Kind = "kaleidoscope"
	KindLaser            Kind = "laser"
	KindGlitch           Kind = "glitch"
	KindSpectrumCircle   Kind = "spectrum-circle"
	KindSpectrumMountain Kind = "spectrum-mountain"
	KindWaveform         Kind = "waveform"
	KindAudio            Kind = "audio"
	KindComposition      Kind = "composition"
	KindGroup            Kind = "group"
	KindFXBloom          Kind = "fx-bloom"
	KindFXChromatic      Kind = "fx-chromatic"
	KindFXVignette       Kind = "fx-vignette"
	KindFXNoise          Kind = "fx-noise"
)

func (k Kind) Container() bool {
	return k == KindComposition || k == KindGroup
}

// AudioBearing kinds can carry an audio url and claim the playhead.
func (k Kind) AudioBearing() bool {
	return k == KindAudio || k == KindComposition
}

func (k Kind) ScopedFX() bool {
	switch k {
	case KindFXBloom, KindFXChromatic, KindFXVignette, KindFXNoise:
		return true
	}
	return false
}

// Binding maps one visual parameter to a band with a gain.
type Binding struct {
	Enabled bool
	Source  string
	Amount  float64
}

// Props is the kind-specific payload. Shared fields live on the Layer
// envelope; anything that only exists for one kind lives here.
type Props interface{ props() }

type ImageProps struct{ Content string }
type VideoProps struct{ Content string }
type TextProps struct{ Content string }
type ParticleProps struct{ Count int }
type RingProps struct {
	RingCount int
	Speed     float64
}
type StarfieldProps struct {
	Count int
	Speed float64
}
type TunnelProps struct{ Speed float64 }
type KaleidoProps struct {
	Segments int
	Speed    float64
}
type LaserProps struct{ LaserCount int }
type MountainProps struct {
	Shape     string
	Amplitude float64
}
type AudioProps struct{ AudioURL string }
type CompositionProps struct{ AudioURL string }

func (ImageProps) props()       {}
func (VideoProps) props()       {}
func (TextProps) props()        {}
func (ParticleProps) props()    {}
func (RingProps) props()        {}
func (StarfieldProps) props()   {}
func (TunnelProps) props()      {}
func (KaleidoProps) props()     {}
func (LaserProps) props()       {}
func (MountainProps) props()    {}
func (AudioProps) props()       {}
func (CompositionProps) props() {}

type Layer struct {
	ID       string
	Kind     Kind
	Name     string
	ParentID string // "" means root; ownership lives in the Document
	Visible  bool

	Position [3]float64
	Scale    float64
	Rotation float64 // radians, absolute unless a rotation binding spins it
	SkewX    float64
	SkewY    float64
	FlipH    bool
	FlipV    bool

	StartTime float64
	Duration  float64

	Color   string
	Opacity float64

	Reactive map[string]Binding

	Props Props
}

// AudioURL pulls the bound track out of whichever payload carries one.
func (l *Layer) AudioURL() string {
	switch p := l.Props.(type) {
	case AudioProps:
		return p.AudioURL
	case CompositionProps:
		return p.AudioURL
	}
	return ""
}

func (l *Layer) End() float64 {
	return l.StartTime + l.Duration
}

// InWindow is inclusive-start, exclusive-end. Exactly.
func (l *Layer) InWindow(t float64) bool {
	return t >= l.StartTime && t < l.End()
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func generateID() string {
	b := make([]byte, 7)
	for i := range b {
		b[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return string(b)
}

// NewLayer builds a layer of the given kind with its documented
// defaults filled in. Callers may override any field before Add.
func NewLayer(kind Kind) *Layer {
	l := &Layer{
		ID:       generateID(),
		Kind:     kind,
		Name:     string(kind),
		Visible:  true,
		Scale:    1,
		Opacity:  1,
		Duration: DurationInfinite,
		Color:    "#7b61ff",
		Reactive: map[string]Binding{},
	}

	switch kind {
	case KindImage:
		l.Name = "Image"
		l.Color = "#3b82f6"
		l.Props = ImageProps{}
	case KindVideo:
		l.Name = "Video"
		l.Color = "#a855f7"
		l.Props = VideoProps{}
	case KindText:
		l.Name = "Text"
		l.Color = "#ffffff"
		l.Position = [3]float64{0, 0, 2}
		l.Props = TextProps{Content: "VIBE"}
		l.Reactive["scale"] = Binding{Enabled: true, Source: "bass", Amount: 0.2}
	case KindParticles:
		l.Name = "Particles"
		l.Color = "#eab308"
		l.Position = [3]float64{0, 0, -15}
		l.Props = ParticleProps{Count: 500}
	case KindParticleRings:
		l.Name = "Rings"
		l.Color = "#00ffcc"
		l.Props = RingProps{RingCount: 4, Speed: 1}
	case KindStarfield:
		l.Name = "Stars"
		l.Color = "#ffffff"
		l.Props = StarfieldProps{Count: 800, Speed: 1}
	case KindTunnel:
		l.Name = "Tunnel"
		l.Position = [3]float64{0, 0, -5}
		l.Props = TunnelProps{Speed: 1}
	case KindKaleidoscope:
		l.Name = "Kaleidoscope"
		l.Color = "#ff00ff"
		l.Position = [3]float64{0, 0, -2}
		l.Props = KaleidoProps{Segments: 6, Speed: 1}
	case KindLaser:
		l.Name = "Laser"
		l.Color = "#ff0066"
		l.Position = [3]float64{0, 0, 1}
		l.Props = LaserProps{LaserCount: 8}
	case KindGlitch:
		l.Name = "Glitch"
		l.Color = "#4ade80"
		l.Position = [3]float64{0, 0, 5}
		l.Reactive["glitch"] = Binding{Enabled: true, Source: "energy", Amount: 1}
	case KindSpectrumCircle:
		l.Name = "Neon Circle"
		l.Color = "#ec4899"
		l.Position = [3]float64{0, 0, 1}
	case KindSpectrumMountain:
		l.Name = "Mountain"
		l.Color = "#8b5cf6"
		l.Position = [3]float64{0, 0, 2}
		l.Props = MountainProps{Shape: "line", Amplitude: 4}
	case KindWaveform:
		l.Name = "Waveform"
		l.Color = "#f97316"
	case KindAudio:
		l.Name = "Audio"
		l.Props = AudioProps{}
	case KindComposition:
		l.Name = "Composition"
		l.Color = "#fbbf24"
		l.Props = CompositionProps{}
	case KindGroup:
		l.Name = "Group"
		l.Color = "#fbbf24"
	}
	return l
}

// LayerUpdate is a partial update; nil fields are left alone.
// Reactive merges per parameter, Position replaces all three components.
type LayerUpdate struct {
	Name     *string
	ParentID *string
	Visible  *bool

	Position *[3]float64
	Scale    *float64
	Rotation *float64
	SkewX    *float64
	SkewY    *float64
	FlipH    *bool
	FlipV    *bool

	StartTime *float64
	Duration  *float64

	Color   *string
	Opacity *float64

	Reactive map[string]Binding

	Props Props
}

func fmtSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 2, 64) + "s"
}

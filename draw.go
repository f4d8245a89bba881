package main

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"strconv"
	"unsafe"

	"github.com/veandco/go-sdl2/sdl"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	screenWidth  = 1280
	screenHeight = 720
)

// SDLRenderer draws resolved layers with plain line and rect
// primitives. It keeps a free-running animation phase that advances
// once per presented frame, so interactive and exported renders of the
// same frame sequence animate identically.
type SDLRenderer struct {
	window   *sdl.Window
	renderer *sdl.Renderer

	w, h  int32
	phase float64

	showAnalyzer func() bool

	bands    Bands
	spectrum []float64
	peaks    []float64

	textCache map[string]*sdl.Texture
}

func NewSDLRenderer(title string) (*SDLRenderer, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, fmt.Errorf("init sdl: %w", err)
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		screenWidth, screenHeight, sdl.WINDOW_SHOWN)
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		window.Destroy()
		return nil, fmt.Errorf("create renderer: %w", err)
	}
	renderer.SetDrawBlendMode(sdl.BLENDMODE_BLEND)

	return &SDLRenderer{
		window:    window,
		renderer:  renderer,
		w:         screenWidth,
		h:         screenHeight,
		textCache: map[string]*sdl.Texture{},
	}, nil
}

func (s *SDLRenderer) Close() {
	for _, t := range s.textCache {
		t.Destroy()
	}
	if s.renderer != nil {
		s.renderer.Destroy()
	}
	if s.window != nil {
		s.window.Destroy()
	}
	sdl.Quit()
}

// SetAnalyzerToggle wires the terminal's overlay flag in.
func (s *SDLRenderer) SetAnalyzerToggle(fn func() bool) {
	s.showAnalyzer = fn
}

// SetWaveformPeaks hands the decoded track's peak buckets to the
// waveform layer kind, which otherwise only has the live spectrum.
func (s *SDLRenderer) SetWaveformPeaks(peaks []float64) {
	s.peaks = peaks
}

func (s *SDLRenderer) Begin() {
	s.renderer.SetDrawColor(8, 8, 16, 255)
	s.renderer.Clear()
}

func (s *SDLRenderer) Present() {
	if s.showAnalyzer != nil && s.showAnalyzer() {
		s.drawAnalyzer()
	}
	s.phase += 1.0 / 60
	s.renderer.Present()
}

func (s *SDLRenderer) Layer(rl ResolvedLayer, bands Bands, spectrum []float64) {
	s.bands = bands
	s.spectrum = spectrum

	cx := s.w/2 + int32(rl.Position[0]*40) + int32(rl.JitterX*20)
	cy := s.h/2 - int32(rl.Position[1]*40) + int32(rl.JitterY*20)
	unit := float64(s.h) / 4 * rl.Scale

	r, g, b := parseHexColor(rl.Color)
	a := uint8(rl.Opacity * 255)
	s.renderer.SetDrawColor(r, g, b, a)

	switch rl.Kind {
	case KindSpectrumCircle:
		s.drawSpectrumCircle(cx, cy, unit, rl.Rotation, spectrum)
	case KindSpectrumMountain:
		s.drawMountain(rl, spectrum)
	case KindWaveform:
		s.drawWaveform(cy, spectrum)
	case KindStarfield:
		s.drawStarfield(rl, cx, cy, unit)
	case KindTunnel:
		s.drawTunnel(rl, cx, cy, unit)
	case KindKaleidoscope:
		s.drawKaleidoscope(rl, cx, cy, unit)
	case KindLaser:
		s.drawLaser(rl, cx, cy)
	case KindParticles:
		s.drawParticles(rl, cx, cy, unit)
	case KindParticleRings:
		s.drawRings(rl, cx, cy, unit)
	case KindGlitch:
		s.drawGlitch(rl)
	case KindText:
		s.drawText(rl, cx, cy, unit)
	case KindImage, KindVideo:
		// Media decode is out of scope for the preview; draw the plate
		// bounds so layout still reads.
		s.drawPlate(cx, cy, unit)
	case KindFXBloom, KindFXChromatic, KindFXVignette, KindFXNoise:
		s.drawScopedFX(rl)
	}
}

// drawScopedFX applies an effect pass at the layer's paint position, so
// it only tints what was drawn beneath it.
func (s *SDLRenderer) drawScopedFX(rl ResolvedLayer) {
	fx := map[string]EffectParams{}
	switch rl.Kind {
	case KindFXBloom:
		fx["bloom"] = EffectParams{Enabled: true, Intensity: rl.Opacity * 2}
	case KindFXChromatic:
		fx["chromaticAberration"] = EffectParams{Enabled: true, OffsetX: 0.003 * rl.Opacity, OffsetY: 0.003 * rl.Opacity}
	case KindFXVignette:
		fx["vignette"] = EffectParams{Enabled: true, Darkness: rl.Opacity, Offset: 0.3}
	case KindFXNoise:
		fx["noise"] = EffectParams{Enabled: true, Opacity: rl.Opacity * 0.1}
	}
	s.Effects(fx, s.bands)
}

func (s *SDLRenderer) drawSpectrumCircle(cx, cy int32, radius, rot float64, spectrum []float64) {
	n := 128
	if len(spectrum) < n {
		n = len(spectrum)
	}
	if n < 2 {
		return
	}

	prev := circlePoint(cx, cy, radius, rot, 0, spectrum[0])
	for i := 1; i <= n; i++ {
		p := circlePoint(cx, cy, radius, rot, float64(i)/float64(n), spectrum[i%n])
		s.renderer.DrawLine(prev.X, prev.Y, p.X, p.Y)
		prev = p
	}
}

func circlePoint(cx, cy int32, radius, rot, frac, mag float64) sdl.Point {
	ang := rot + frac*2*math.Pi
	r := radius * (0.6 + mag*2)
	return sdl.Point{
		X: cx + int32(math.Cos(ang)*r),
		Y: cy + int32(math.Sin(ang)*r),
	}
}

func (s *SDLRenderer) drawMountain(rl ResolvedLayer, spectrum []float64) {
	p, _ := rl.Props.(MountainProps)
	amp := p.Amplitude
	if amp == 0 {
		amp = 4
	}

	n := 256
	if len(spectrum) < n {
		n = len(spectrum)
	}
	if n < 2 {
		return
	}

	base := s.h - s.h/6
	for i := 0; i < n-1; i++ {
		x1 := int32(i) * s.w / int32(n-1)
		x2 := int32(i+1) * s.w / int32(n-1)
		y1 := base - int32(spectrum[i]*amp*float64(s.h)/8*rl.Scale)
		y2 := base - int32(spectrum[i+1]*amp*float64(s.h)/8*rl.Scale)
		if p.Shape == "bars" {
			s.renderer.DrawLine(x1, base, x1, y1)
		} else {
			s.renderer.DrawLine(x1, y1, x2, y2)
		}
	}
}

func (s *SDLRenderer) drawWaveform(cy int32, spectrum []float64) {
	// Static track peaks when present, live spectrum otherwise.
	data := s.peaks
	if len(data) == 0 {
		data = spectrum
	}
	n := len(data)
	if n < 2 {
		return
	}
	for i := 0; i < n-1; i++ {
		x1 := int32(i) * s.w / int32(n-1)
		x2 := int32(i+1) * s.w / int32(n-1)
		y1 := cy - int32(data[i]*float64(s.h)/3)
		y2 := cy - int32(data[i+1]*float64(s.h)/3)
		s.renderer.DrawLine(x1, y1, x2, y2)
	}
}

func (s *SDLRenderer) drawStarfield(rl ResolvedLayer, cx, cy int32, unit float64) {
	p, _ := rl.Props.(StarfieldProps)
	count := p.Count
	if count == 0 {
		count = 800
	}
	speed := p.Speed + rl.Speed

	// Stable per-star geometry from a seeded generator; only the phase
	// moves between frames.
	rng := rand.New(rand.NewSource(int64(len(rl.ID)) + 7))
	for i := 0; i < count; i++ {
		ang := rng.Float64() * 2 * math.Pi
		base := rng.Float64()
		d, _ := math.Modf(base + s.phase*speed*0.1)
		r := d * unit * 2
		s.renderer.DrawPoint(cx+int32(math.Cos(ang)*r), cy+int32(math.Sin(ang)*r))
	}
}

func (s *SDLRenderer) drawTunnel(rl ResolvedLayer, cx, cy int32, unit float64) {
	p, _ := rl.Props.(TunnelProps)
	speed := p.Speed + rl.Speed

	rings := 12
	for i := 0; i < rings; i++ {
		d, _ := math.Modf(float64(i)/float64(rings) + s.phase*speed*0.2)
		s.drawCircleOutline(cx, cy, d*d*unit*3, 48)
	}
}

func (s *SDLRenderer) drawKaleidoscope(rl ResolvedLayer, cx, cy int32, unit float64) {
	p, _ := rl.Props.(KaleidoProps)
	segs := p.Segments
	if segs == 0 {
		segs = 6
	}
	speed := p.Speed + rl.Speed

	arm := unit * (1 + s.bands.Mid)
	for i := 0; i < segs; i++ {
		ang := s.phase*speed + float64(i)*2*math.Pi/float64(segs)
		x := cx + int32(math.Cos(ang)*arm)
		y := cy + int32(math.Sin(ang)*arm)
		s.renderer.DrawLine(cx, cy, x, y)
		s.drawCircleOutline(x, y, unit/4*(1+s.bands.Kick), 16)
	}
}

func (s *SDLRenderer) drawLaser(rl ResolvedLayer, cx, cy int32) {
	p, _ := rl.Props.(LaserProps)
	count := p.LaserCount
	if count == 0 {
		count = 8
	}

	reach := float64(s.w)
	for i := 0; i < count; i++ {
		ang := s.phase*0.5 + float64(i)*2*math.Pi/float64(count) + s.bands.Treble*2
		s.renderer.DrawLine(cx, cy,
			cx+int32(math.Cos(ang)*reach),
			cy+int32(math.Sin(ang)*reach))
	}
}

func (s *SDLRenderer) drawParticles(rl ResolvedLayer, cx, cy int32, unit float64) {
	p, _ := rl.Props.(ParticleProps)
	count := p.Count
	if count == 0 {
		count = 500
	}

	spread := unit * (1 + rl.Spread + s.bands.Energy)
	rng := rand.New(rand.NewSource(int64(len(rl.Name)) + 13))
	for i := 0; i < count; i++ {
		ang := rng.Float64()*2*math.Pi + s.phase*0.3
		r := rng.Float64() * spread
		s.renderer.DrawPoint(cx+int32(math.Cos(ang)*r), cy+int32(math.Sin(ang)*r))
	}
}

func (s *SDLRenderer) drawRings(rl ResolvedLayer, cx, cy int32, unit float64) {
	p, _ := rl.Props.(RingProps)
	rings := p.RingCount
	if rings == 0 {
		rings = 4
	}
	speed := p.Speed + rl.Speed

	for i := 0; i < rings; i++ {
		wob := math.Sin(s.phase*speed+float64(i)) * unit / 8
		r := unit*float64(i+1)/float64(rings)*(1+s.bands.Bass) + wob
		s.drawCircleOutline(cx, cy, r, 64)
	}
}

func (s *SDLRenderer) drawGlitch(rl ResolvedLayer) {
	if rl.Glitch <= 0 {
		return
	}
	// Horizontal tear bands, count scaled by the resolved glitch boost.
	n := int(rl.Glitch * 20)
	for i := 0; i < n; i++ {
		y := int32(rand.Intn(int(s.h)))
		h := int32(rand.Intn(6) + 1)
		s.renderer.FillRect(&sdl.Rect{X: 0, Y: y, W: s.w, H: h})
	}
}

func (s *SDLRenderer) drawPlate(cx, cy int32, unit float64) {
	half := int32(unit)
	s.renderer.DrawRect(&sdl.Rect{X: cx - half, Y: cy - half*9/16, W: half * 2, H: half * 9 / 8})
}

func (s *SDLRenderer) drawCircleOutline(cx, cy int32, r float64, steps int) {
	if r <= 0 {
		return
	}
	prevX := cx + int32(r)
	prevY := cy
	for i := 1; i <= steps; i++ {
		ang := float64(i) / float64(steps) * 2 * math.Pi
		x := cx + int32(math.Cos(ang)*r)
		y := cy + int32(math.Sin(ang)*r)
		s.renderer.DrawLine(prevX, prevY, x, y)
		prevX, prevY = x, y
	}
}

// drawText rasterizes the string once with the builtin bitmap face and
// blits it scaled. Textures are cached per content+color.
func (s *SDLRenderer) drawText(rl ResolvedLayer, cx, cy int32, unit float64) {
	p, _ := rl.Props.(TextProps)
	content := p.Content
	if content == "" {
		content = "VIBE"
	}

	key := content + "|" + rl.Color
	tex, ok := s.textCache[key]
	face := basicfont.Face7x13
	tw := font.MeasureString(face, content).Ceil()
	th := face.Metrics().Height.Ceil()

	if !ok {
		img := image.NewRGBA(image.Rect(0, 0, tw, th))
		r, g, b := parseHexColor(rl.Color)
		d := font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.RGBA{R: r, G: g, B: b, A: 255}),
			Face: face,
			Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
		}
		d.DrawString(content)

		var err error
		tex, err = s.renderer.CreateTexture(sdl.PIXELFORMAT_ABGR8888, sdl.TEXTUREACCESS_STATIC, int32(tw), int32(th))
		if err != nil {
			return
		}
		tex.Update(nil, unsafe.Pointer(&img.Pix[0]), img.Stride)
		tex.SetBlendMode(sdl.BLENDMODE_BLEND)
		s.textCache[key] = tex
	}

	tex.SetAlphaMod(uint8(rl.Opacity * 255))
	scale := unit / 40
	dw := int32(float64(tw) * 4 * scale)
	dh := int32(float64(th) * 4 * scale)
	dst := sdl.Rect{X: cx - dw/2, Y: cy - dh/2, W: dw, H: dh}
	s.renderer.CopyEx(tex, nil, &dst, rl.Rotation*180/math.Pi, nil, sdl.FLIP_NONE)
}

// Effects draws the global post passes as cheap overlays: film noise as
// scattered points, vignette as darkened frame bands, chromatic
// aberration as offset edge lines, bloom as a brightness wash scaled by
// bass when audio reactive.
func (s *SDLRenderer) Effects(fx map[string]EffectParams, bands Bands) {
	if p := fx["noise"]; p.Enabled && p.Opacity > 0 {
		s.renderer.SetDrawColor(255, 255, 255, uint8(p.Opacity*255))
		n := int(p.Opacity * 4000)
		for i := 0; i < n; i++ {
			s.renderer.DrawPoint(int32(rand.Intn(int(s.w))), int32(rand.Intn(int(s.h))))
		}
	}

	if p := fx["vignette"]; p.Enabled && p.Darkness > 0 {
		edge := int32(float64(s.h) * p.Offset / 2)
		a := uint8(p.Darkness * 160)
		s.renderer.SetDrawColor(0, 0, 0, a)
		s.renderer.FillRect(&sdl.Rect{X: 0, Y: 0, W: s.w, H: edge})
		s.renderer.FillRect(&sdl.Rect{X: 0, Y: s.h - edge, W: s.w, H: edge})
	}

	if p := fx["chromaticAberration"]; p.Enabled {
		dx := int32(p.OffsetX * float64(s.w))
		dy := int32(p.OffsetY * float64(s.h))
		s.renderer.SetDrawColor(255, 0, 0, 60)
		s.renderer.DrawRect(&sdl.Rect{X: dx, Y: dy, W: s.w - 2*dx, H: s.h - 2*dy})
		s.renderer.SetDrawColor(0, 0, 255, 60)
		s.renderer.DrawRect(&sdl.Rect{X: -dx, Y: -dy, W: s.w, H: s.h})
	}

	if p := fx["bloom"]; p.Enabled {
		boost := p.Intensity
		if p.AudioReactive {
			boost *= 0.5 + bands.Bass
		}
		a := boost * 20
		if a > 80 {
			a = 80
		}
		s.renderer.SetDrawColor(255, 255, 255, uint8(a))
		s.renderer.FillRect(&sdl.Rect{X: 0, Y: 0, W: s.w, H: s.h})
	}
}

func (s *SDLRenderer) drawAnalyzer() {
	n := 100
	if len(s.spectrum) < n {
		n = len(s.spectrum)
	}
	if n < 2 {
		return
	}

	gx, gy := int32(50), int32(50)
	gw, gh := int32(600), int32(150)

	s.renderer.SetDrawColor(0, 0, 0, 180)
	s.renderer.FillRect(&sdl.Rect{X: gx, Y: gy, W: gw, H: gh})

	s.renderer.SetDrawColor(255, 0, 0, 255)
	for i := 0; i < n-1; i++ {
		x1 := gx + int32(float64(i)*float64(gw)/float64(n-1))
		y1 := gy + gh - int32(s.spectrum[i]*float64(gh)*2)
		x2 := gx + int32(float64(i+1)*float64(gw)/float64(n-1))
		y2 := gy + gh - int32(s.spectrum[i+1]*float64(gh)*2)
		s.renderer.DrawLine(x1, y1, x2, y2)
	}
}

// Capture reads the current backbuffer into an RGBA image. Call after
// the frame's draw calls and before the next Begin.
func (s *SDLRenderer) Capture() (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, int(s.w), int(s.h)))
	err := s.renderer.ReadPixels(nil, sdl.PIXELFORMAT_ABGR8888, unsafe.Pointer(&img.Pix[0]), img.Stride)
	if err != nil {
		return nil, fmt.Errorf("read pixels: %w", err)
	}
	return img, nil
}

func parseHexColor(c string) (uint8, uint8, uint8) {
	if len(c) != 7 || c[0] != '#' {
		return 255, 255, 255
	}
	v, err := strconv.ParseUint(c[1:], 16, 32)
	if err != nil {
		return 255, 255, 255
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v)
}

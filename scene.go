package main

import "log"

// Gain applied to accumulated rotation spin per second of tick time.
const spinStepGain = 4.0

// ResolvedLayer is a layer with its reactive offsets folded in: what a
// renderer actually draws.
type ResolvedLayer struct {
	*Layer

	Scale    float64
	Rotation float64
	Opacity  float64

	// Kind-specific additive boosts, consumed by the renderer.
	Speed  float64
	Spread float64
	Glitch float64

	JitterX float64
	JitterY float64
}

// Renderer is the external per-kind drawing capability. The compositor
// guarantees: one Layer call per active visual layer per tick, in paint
// order, with fully resolved parameters; Effects last.
type Renderer interface {
	Begin()
	Layer(rl ResolvedLayer, bands Bands, spectrum []float64)
	Effects(fx map[string]EffectParams, bands Bands)
	Present()
}

// activeLayers returns the paint-order subset that is visible, inside
// its time window, and whose whole ancestor chain passes the same test.
// Inclusive start, exclusive end.
func activeLayers(doc *Document, t float64) []*Layer {
	memo := map[string]bool{}

	var isActive func(l *Layer) bool
	isActive = func(l *Layer) bool {
		if v, ok := memo[l.ID]; ok {
			return v
		}
		active := l.Visible && l.InWindow(t)
		if active && l.ParentID != "" {
			if p := doc.Get(l.ParentID); p != nil {
				active = isActive(p)
			}
		}
		memo[l.ID] = active
		return active
	}

	var out []*Layer
	for _, l := range doc.Layers() {
		if isActive(l) {
			out = append(out, l)
		}
	}
	return out
}

// paintOrder pins the background plate first and, when the invert
// toggle is on, reverses everything else's relative depth.
func paintOrder(doc *Document, actives []*Layer) []*Layer {
	var bg *Layer
	rest := make([]*Layer, 0, len(actives))
	for _, l := range actives {
		if bg == nil && l.Name == "Background" {
			bg = l
			continue
		}
		rest = append(rest, l)
	}

	if doc.InvertOrder {
		for i, j := 0, len(rest)-1; i < j; i, j = i+1, j-1 {
			rest[i], rest[j] = rest[j], rest[i]
		}
	}

	if bg == nil {
		return rest
	}
	return append([]*Layer{bg}, rest...)
}

// Compositor merges static parameters with reactive offsets and hands
// each active layer to the renderer. It owns the per-layer spin state:
// while a rotation binding is enabled the static angle is suppressed
// and spin accumulates like a velocity.
type Compositor struct {
	r    Renderer
	spin map[string]float64
	log  *log.Logger
}

func NewCompositor(r Renderer, l *log.Logger) *Compositor {
	return &Compositor{r: r, spin: map[string]float64{}, log: l}
}

// ResetSpin drops all accumulated rotation spin.
func (c *Compositor) ResetSpin() {
	c.spin = map[string]float64{}
}

func (c *Compositor) Resolve(l *Layer, bands Bands, dt float64) (ResolvedLayer, error) {
	off, err := resolveReactive(l, bands)
	if err != nil {
		return ResolvedLayer{}, err
	}

	rl := ResolvedLayer{
		Layer:   l,
		Scale:   l.Scale + off.Scale,
		Opacity: clamp01(l.Opacity + off.Opacity),
		Speed:   off.Speed,
		Spread:  off.Spread,
		Glitch:  off.Glitch,
	}

	if rotationBound(l) {
		c.spin[l.ID] += off.Rotation * spinStepGain * dt
		rl.Rotation = c.spin[l.ID]
	} else {
		delete(c.spin, l.ID)
		rl.Rotation = l.Rotation
	}

	rl.JitterX, rl.JitterY = shakeJitter(off.Shake)
	return rl, nil
}

func (c *Compositor) Render(doc *Document, bands Bands, spectrum []float64, dt float64) {
	if c.r == nil {
		return
	}

	c.r.Begin()
	for _, l := range paintOrder(doc, activeLayers(doc, doc.CurrentTime)) {
		switch l.Kind {
		case KindAudio, KindComposition, KindGroup:
			// Containers and audio clips have no visual of their own.
			continue
		}

		rl, err := c.Resolve(l, bands, dt)
		if err != nil {
			// Bindings are validated at mutation time, so this only
			// fires on state corruption. Skip the layer, keep the tick.
			if c.log != nil {
				c.log.Printf("resolve %s: %v", l.ID, err)
			}
			continue
		}
		c.r.Layer(rl, bands, spectrum)
	}
	c.r.Effects(doc.Effects, bands)
	c.r.Present()
}

// Pipeline is the one tick function both regimes share: the interactive
// loop calls Tick with measured deltas, the exporter calls RenderAt
// with forced times. Within a tick: queued mutations, then clock
// reconciliation, then analysis, then resolution and rendering.
type Pipeline struct {
	doc      *Document
	clock    *Clock
	analyzer *Analyzer
	comp     *Compositor
}

func NewPipeline(doc *Document, clock *Clock, an *Analyzer, comp *Compositor) *Pipeline {
	return &Pipeline{doc: doc, clock: clock, analyzer: an, comp: comp}
}

func (p *Pipeline) Tick(dt float64) {
	p.doc.DrainPending()
	p.clock.Tick(dt)
	bands := p.analyzer.Sample()
	p.comp.Render(p.doc, bands, p.analyzer.Spectrum(), dt)
}

// ResetMotion clears dt-integrated state so a render run never
// inherits spin from the interactive session.
func (p *Pipeline) ResetMotion() {
	p.comp.ResetSpin()
}

// RenderAt evaluates the full pipeline at an exact time. Used by the
// exporter; it never drains the mutation queue, because export reads
// the document and must not see edits land mid-run.
func (p *Pipeline) RenderAt(t, dt float64) {
	offset, ok := p.clock.Force(t)
	bands := p.analyzer.SampleAt(offset, ok)
	p.comp.Render(p.doc, bands, p.analyzer.Spectrum(), dt)
}

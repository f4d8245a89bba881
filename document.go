package main

import (
	"fmt"
	"sync"
)

// Floor on the timeline length so an empty document is still usable.
const minTimelineSeconds = 120

// EffectParams is one global effect's parameter record. Not every field
// applies to every effect; the effect name decides which are read.
type EffectParams struct {
	Enabled            bool
	Intensity          float64
	LuminanceThreshold float64
	Opacity            float64
	Darkness           float64
	Offset             float64
	OffsetX            float64
	OffsetY            float64
	AudioReactive      bool
}

// Document is the single editable session: the flat paint-order layer
// sequence, the adjacency relation, global effects, and the playhead.
// All mutation goes through the operation set below; callers off the
// tick loop enqueue through Do.
type Document struct {
	layers []*Layer
	idx    map[string]*Layer
	kids   map[string]map[string]struct{}

	Effects      map[string]EffectParams
	CurrentTime  float64
	SelectedID   string
	InvertOrder  bool
	AmbientAudio string // explicitly loaded track, outside any layer

	mu      sync.Mutex
	pending []func(*Document)
}

func NewDocument() *Document {
	return &Document{
		idx:  map[string]*Layer{},
		kids: map[string]map[string]struct{}{},
		Effects: map[string]EffectParams{
			"bloom":               {Enabled: true, Intensity: 1.5, LuminanceThreshold: 0.2, AudioReactive: true},
			"noise":               {Enabled: true, Opacity: 0.05},
			"vignette":            {Enabled: true, Darkness: 0.5, Offset: 0.3},
			"chromaticAberration": {OffsetX: 0.002, OffsetY: 0.002},
		},
	}
}

// SeedDocument is the default scene: a background plate and one
// bass-reactive neon circle.
func SeedDocument() *Document {
	d := NewDocument()

	bg := NewLayer(KindImage)
	bg.Name = "Background"
	bg.Reactive["scale"] = Binding{Source: "bass", Amount: 0.1}
	bg.Reactive["rotation"] = Binding{Source: "kick", Amount: 0.5}
	bg.Reactive["opacity"] = Binding{Source: "mid", Amount: 0.1}
	d.Add(bg)

	circle := NewLayer(KindSpectrumCircle)
	circle.Color = "#7b61ff"
	circle.Reactive["scale"] = Binding{Enabled: true, Source: "bass", Amount: 0.2}
	d.Add(circle)

	d.SelectedID = ""
	return d
}

// Do queues a mutation to run before the next tick. The tick loop is
// the single writer; this is how the terminal and MIDI goroutines get
// their edits in.
func (d *Document) Do(fn func(*Document)) {
	d.mu.Lock()
	d.pending = append(d.pending, fn)
	d.mu.Unlock()
}

// DrainPending applies queued mutations. Called at the top of each tick.
func (d *Document) DrainPending() {
	d.mu.Lock()
	queued := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, fn := range queued {
		fn(d)
	}
}

func (d *Document) Layers() []*Layer { return d.layers }

func (d *Document) Get(id string) *Layer { return d.idx[id] }

func (d *Document) Len() int { return len(d.layers) }

// Add appends the layer at the top of paint order and focuses it.
// A missing id is assigned; a duplicate id is a validation error.
func (d *Document) Add(l *Layer) error {
	if l.ID == "" {
		l.ID = generateID()
	}
	if _, ok := d.idx[l.ID]; ok {
		return fmt.Errorf("add %s: duplicate id", l.ID)
	}
	if l.Reactive == nil {
		l.Reactive = map[string]Binding{}
	}
	for param, b := range l.Reactive {
		if !validBand(b.Source) {
			return fmt.Errorf("add %s param %s: %w: %q", l.ID, param, ErrUnknownBand, b.Source)
		}
	}
	if l.ParentID != "" {
		if err := d.checkParent(l.ID, l.ParentID); err != nil {
			return err
		}
	}

	d.layers = append(d.layers, l)
	d.idx[l.ID] = l
	d.link(l.ParentID, l.ID)
	d.SelectedID = l.ID
	return nil
}

// Update shallow-merges the set fields. Reactive merges per parameter
// (sibling bindings survive), Position replaces whole. Unknown id is a
// no-op. Validation failures apply nothing.
func (d *Document) Update(id string, u LayerUpdate) error {
	l, ok := d.idx[id]
	if !ok {
		return nil
	}

	for param, b := range u.Reactive {
		if !validBand(b.Source) {
			return fmt.Errorf("update %s param %s: %w: %q", id, param, ErrUnknownBand, b.Source)
		}
	}
	if u.ParentID != nil && *u.ParentID != l.ParentID {
		if err := d.checkParent(id, *u.ParentID); err != nil {
			return err
		}
	}

	if u.Name != nil {
		l.Name = *u.Name
	}
	if u.ParentID != nil && *u.ParentID != l.ParentID {
		d.unlink(l.ParentID, id)
		l.ParentID = *u.ParentID
		d.link(l.ParentID, id)
	}
	if u.Visible != nil {
		l.Visible = *u.Visible
	}
	if u.Position != nil {
		l.Position = *u.Position
	}
	if u.Scale != nil {
		l.Scale = *u.Scale
	}
	if u.Rotation != nil {
		l.Rotation = *u.Rotation
	}
	if u.SkewX != nil {
		l.SkewX = *u.SkewX
	}
	if u.SkewY != nil {
		l.SkewY = *u.SkewY
	}
	if u.FlipH != nil {
		l.FlipH = *u.FlipH
	}
	if u.FlipV != nil {
		l.FlipV = *u.FlipV
	}
	if u.StartTime != nil {
		l.StartTime = *u.StartTime
	}
	if u.Duration != nil {
		l.Duration = *u.Duration
	}
	if u.Color != nil {
		l.Color = *u.Color
	}
	if u.Opacity != nil {
		l.Opacity = *u.Opacity
	}
	for param, b := range u.Reactive {
		l.Reactive[param] = b
	}
	if u.Props != nil {
		l.Props = u.Props
	}
	return nil
}

// Remove deletes the layer and reparents its direct children to root.
// Containers never take their contents with them. Unknown id is a
// no-op.
func (d *Document) Remove(id string) {
	l, ok := d.idx[id]
	if !ok {
		return
	}

	for cid := range d.kids[id] {
		child := d.idx[cid]
		child.ParentID = ""
		d.link("", cid)
	}
	delete(d.kids, id)

	d.unlink(l.ParentID, id)
	delete(d.idx, id)
	for i, el := range d.layers {
		if el.ID == id {
			d.layers = append(d.layers[:i], d.layers[i+1:]...)
			break
		}
	}
	if d.SelectedID == id {
		d.SelectedID = ""
	}
}

// Reorder replaces the whole paint order. The new sequence must be an
// exact permutation of the current id set; otherwise nothing changes.
func (d *Document) Reorder(ids []string) error {
	if len(ids) != len(d.layers) {
		return fmt.Errorf("reorder: %w (got %d ids, have %d layers)", ErrNotPermutation, len(ids), len(d.layers))
	}
	seen := make(map[string]bool, len(ids))
	next := make([]*Layer, 0, len(ids))
	for _, id := range ids {
		l, ok := d.idx[id]
		if !ok {
			return fmt.Errorf("reorder: %w (unknown id %s)", ErrNotPermutation, id)
		}
		if seen[id] {
			return fmt.Errorf("reorder: %w (duplicate id %s)", ErrNotPermutation, id)
		}
		seen[id] = true
		next = append(next, l)
	}
	d.layers = next
	return nil
}

// Reparent moves the layer under newParent ("" for root). The parent
// must be a container kind and must not be a descendant of the layer.
func (d *Document) Reparent(id, newParent string) error {
	l, ok := d.idx[id]
	if !ok {
		return fmt.Errorf("reparent %s: %w", id, ErrUnknownLayer)
	}
	if err := d.checkParent(id, newParent); err != nil {
		return err
	}
	d.unlink(l.ParentID, id)
	l.ParentID = newParent
	d.link(newParent, id)
	return nil
}

// ChildrenOf returns direct children in paint order.
func (d *Document) ChildrenOf(id string) []*Layer {
	set := d.kids[id]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Layer, 0, len(set))
	for _, l := range d.layers {
		if _, ok := set[l.ID]; ok {
			out = append(out, l)
		}
	}
	return out
}

// HasAudio reports whether anything can claim the playhead: an
// audio-bearing layer with a track, or an ambient track.
func (d *Document) HasAudio() bool {
	if d.AmbientAudio != "" {
		return true
	}
	for _, l := range d.layers {
		if l.Kind.AudioBearing() && l.AudioURL() != "" {
			return true
		}
	}
	return false
}

// TotalDuration is the timeline length: the furthest layer end, with a
// two minute floor.
func (d *Document) TotalDuration() float64 {
	max := float64(minTimelineSeconds)
	for _, l := range d.layers {
		if end := l.End(); end > max {
			max = end
		}
	}
	return max
}

func (d *Document) UpdateEffect(name string, fn func(*EffectParams)) {
	p := d.Effects[name]
	fn(&p)
	d.Effects[name] = p
}

func (d *Document) checkParent(id, parent string) error {
	if parent == "" {
		return nil
	}
	p, ok := d.idx[parent]
	if !ok {
		return fmt.Errorf("parent %s: %w", parent, ErrUnknownLayer)
	}
	if !p.Kind.Container() {
		return fmt.Errorf("parent %s (%s): %w", parent, p.Kind, ErrNotAContainer)
	}
	// Walk the ancestor chain of the new parent; hitting id means the
	// move would close a loop.
	for cur := p; cur != nil; cur = d.idx[cur.ParentID] {
		if cur.ID == id {
			return fmt.Errorf("reparent %s under %s: %w", id, parent, ErrCycle)
		}
		if cur.ParentID == "" {
			break
		}
	}
	return nil
}

func (d *Document) link(parent, id string) {
	if parent == "" {
		return
	}
	set := d.kids[parent]
	if set == nil {
		set = map[string]struct{}{}
		d.kids[parent] = set
	}
	set[id] = struct{}{}
}

func (d *Document) unlink(parent, id string) {
	if parent == "" {
		return
	}
	delete(d.kids[parent], id)
}

package main

import (
	"errors"
	"testing"
)

func TestSeedDocument(t *testing.T) {
	d := SeedDocument()

	if d.Len() != 2 {
		t.Fatalf("seed has %d layers, want 2", d.Len())
	}
	bg := d.Layers()[0]
	if bg.Name != "Background" || bg.Kind != KindImage {
		t.Fatalf("first layer is %s/%s", bg.Name, bg.Kind)
	}
	if b := bg.Reactive["scale"]; b.Enabled {
		t.Fatal("background bindings ship disabled")
	}

	circle := d.Layers()[1]
	if circle.Kind != KindSpectrumCircle || circle.Color != "#7b61ff" {
		t.Fatalf("second layer is %s %s", circle.Kind, circle.Color)
	}
	if b := circle.Reactive["scale"]; !b.Enabled || b.Source != "bass" || b.Amount != 0.2 {
		t.Fatalf("circle scale binding = %+v", b)
	}
}

func TestAddSelectsAndValidates(t *testing.T) {
	d := NewDocument()

	l := NewLayer(KindTunnel)
	if err := d.Add(l); err != nil {
		t.Fatal(err)
	}
	if d.SelectedID != l.ID {
		t.Fatal("add did not focus the new layer")
	}

	dup := NewLayer(KindLaser)
	dup.ID = l.ID
	if err := d.Add(dup); err == nil {
		t.Fatal("duplicate id accepted")
	}
	if d.Len() != 1 {
		t.Fatal("failed add mutated the document")
	}

	bad := NewLayer(KindLaser)
	bad.Reactive["scale"] = Binding{Source: "wub"}
	if err := d.Add(bad); !errors.Is(err, ErrUnknownBand) {
		t.Fatalf("got %v, want ErrUnknownBand", err)
	}
}

func TestUpdateMergesReactive(t *testing.T) {
	d := NewDocument()
	l := NewLayer(KindSpectrumCircle)
	l.Reactive["scale"] = Binding{Enabled: true, Source: "bass", Amount: 0.2}
	l.Reactive["opacity"] = Binding{Enabled: true, Source: "mid", Amount: 0.1}
	d.Add(l)

	err := d.Update(l.ID, LayerUpdate{
		Reactive: map[string]Binding{
			"scale": {Enabled: true, Source: "kick", Amount: 0.9},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if b := l.Reactive["scale"]; b.Source != "kick" || b.Amount != 0.9 {
		t.Fatalf("scale binding = %+v", b)
	}
	if b := l.Reactive["opacity"]; b.Source != "mid" {
		t.Fatal("sibling binding lost in merge")
	}
}

func TestUpdateAllOrNothing(t *testing.T) {
	d := NewDocument()
	l := NewLayer(KindTunnel)
	d.Add(l)

	name := "Renamed"
	err := d.Update(l.ID, LayerUpdate{
		Name:     &name,
		Reactive: map[string]Binding{"scale": {Source: "wub"}},
	})
	if !errors.Is(err, ErrUnknownBand) {
		t.Fatalf("got %v", err)
	}
	if l.Name == "Renamed" {
		t.Fatal("failed update applied a field")
	}
}

func TestUpdateUnknownIDNoop(t *testing.T) {
	d := NewDocument()
	name := "x"
	if err := d.Update("nope", LayerUpdate{Name: &name}); err != nil {
		t.Fatalf("unknown id must be a no-op, got %v", err)
	}
}

func TestRemoveOrphansChildren(t *testing.T) {
	d := NewDocument()
	g := NewLayer(KindGroup)
	d.Add(g)

	child := NewLayer(KindLaser)
	child.ParentID = g.ID
	d.Add(child)

	d.Remove(g.ID)

	if d.Get(g.ID) != nil {
		t.Fatal("group still present")
	}
	if c := d.Get(child.ID); c == nil || c.ParentID != "" {
		t.Fatal("child was not reparented to root")
	}

	// Unknown id: no-op, no panic.
	d.Remove("nope")
}

func TestReorderPermutationOnly(t *testing.T) {
	d := NewDocument()
	a := NewLayer(KindTunnel)
	b := NewLayer(KindLaser)
	c := NewLayer(KindStarfield)
	d.Add(a)
	d.Add(b)
	d.Add(c)

	if err := d.Reorder([]string{c.ID, a.ID, b.ID}); err != nil {
		t.Fatal(err)
	}
	if d.Layers()[0] != c || d.Layers()[2] != b {
		t.Fatal("reorder did not apply")
	}

	cases := [][]string{
		{a.ID, b.ID},                // missing one
		{a.ID, b.ID, b.ID},          // duplicate
		{a.ID, b.ID, "ghost"},       // unknown
		{a.ID, b.ID, c.ID, "extra"}, // too many
	}
	for _, ids := range cases {
		if err := d.Reorder(ids); !errors.Is(err, ErrNotPermutation) {
			t.Fatalf("reorder %v: got %v", ids, err)
		}
		if d.Layers()[0] != c {
			t.Fatalf("failed reorder %v mutated order", ids)
		}
	}
}

func TestReparentRules(t *testing.T) {
	d := NewDocument()
	outer := NewLayer(KindComposition)
	inner := NewLayer(KindGroup)
	leaf := NewLayer(KindLaser)
	d.Add(outer)
	d.Add(inner)
	d.Add(leaf)

	if err := d.Reparent(inner.ID, outer.ID); err != nil {
		t.Fatal(err)
	}
	if err := d.Reparent(leaf.ID, inner.ID); err != nil {
		t.Fatal(err)
	}

	if err := d.Reparent(outer.ID, inner.ID); !errors.Is(err, ErrCycle) {
		t.Fatalf("cycle allowed: %v", err)
	}
	if err := d.Reparent(inner.ID, leaf.ID); !errors.Is(err, ErrNotAContainer) {
		t.Fatalf("leaf parent allowed: %v", err)
	}
	if err := d.Reparent("ghost", outer.ID); !errors.Is(err, ErrUnknownLayer) {
		t.Fatalf("ghost reparent: %v", err)
	}

	// Back to root.
	if err := d.Reparent(leaf.ID, ""); err != nil {
		t.Fatal(err)
	}
	if leaf.ParentID != "" {
		t.Fatal("root reparent did not apply")
	}
}

func TestChildrenOfPaintOrder(t *testing.T) {
	d := NewDocument()
	g := NewLayer(KindGroup)
	d.Add(g)

	a := NewLayer(KindTunnel)
	a.ParentID = g.ID
	b := NewLayer(KindLaser)
	b.ParentID = g.ID
	d.Add(a)
	d.Add(b)

	kids := d.ChildrenOf(g.ID)
	if len(kids) != 2 || kids[0] != a || kids[1] != b {
		t.Fatalf("children = %v", kids)
	}

	d.Reorder([]string{b.ID, a.ID, g.ID})
	kids = d.ChildrenOf(g.ID)
	if kids[0] != b {
		t.Fatal("children did not follow paint order")
	}
}

func TestTotalDuration(t *testing.T) {
	d := NewDocument()
	if d.TotalDuration() != minTimelineSeconds {
		t.Fatalf("empty timeline = %v", d.TotalDuration())
	}

	l := NewLayer(KindTunnel)
	l.StartTime = 100
	l.Duration = 80
	d.Add(l)
	if d.TotalDuration() != 180 {
		t.Fatalf("timeline = %v, want 180", d.TotalDuration())
	}
}

func TestHasAudio(t *testing.T) {
	d := NewDocument()
	if d.HasAudio() {
		t.Fatal("empty document claims audio")
	}

	visual := NewLayer(KindTunnel)
	d.Add(visual)
	if d.HasAudio() {
		t.Fatal("visual layer counted as audio")
	}

	clip := NewLayer(KindAudio)
	clip.Props = AudioProps{AudioURL: "track.mp3"}
	d.Add(clip)
	if !d.HasAudio() {
		t.Fatal("audio clip not detected")
	}

	d.Remove(clip.ID)
	d.AmbientAudio = "bed.mp3"
	if !d.HasAudio() {
		t.Fatal("ambient track not detected")
	}
}

func TestDoQueuesUntilDrain(t *testing.T) {
	d := NewDocument()
	d.Do(func(d *Document) { d.Add(NewLayer(KindTunnel)) })

	if d.Len() != 0 {
		t.Fatal("mutation applied before drain")
	}
	d.DrainPending()
	if d.Len() != 1 {
		t.Fatal("mutation lost")
	}
}

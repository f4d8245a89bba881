package main

import (
	"log"

	"github.com/rakyll/portmidi"
)

// MidiController maps a hardware controller onto the editor: any pad
// toggles the transport, twisty knobs drive whatever setters got bound
// to them. Purely optional; everything works without a device.
type MidiController struct {
	stream *portmidi.Stream
	log    *log.Logger

	// OnPad fires on every note-on. Wired to play/pause by main.
	OnPad func(note int64)

	knobsSeen map[int64]*knobInfo
	knobBinds map[int64]*knobBind
}

type knobBind struct {
	mapf func(int64) float64
	sf   Setter
}

func (kb *knobBind) Update(val int64) {
	kb.sf(kb.mapf(val))
}

type knobInfo struct {
	lastVal int64
}

type Settable interface {
	GetSetter(string) func(float64)
}

type Setter func(float64)

func OpenController(id portmidi.DeviceID, l *log.Logger) (*MidiController, error) {
	in, err := portmidi.NewInputStream(id, 1024)
	if err != nil {
		return nil, err
	}

	mc := newController(l)
	mc.stream = in
	go mc.run()

	return mc, nil
}

// NewMockController never reads a stream; tests feed events directly
// through handle.
func NewMockController() *MidiController {
	return newController(nil)
}

func newController(l *log.Logger) *MidiController {
	if l == nil {
		l = log.Default()
	}
	return &MidiController{
		log:       l,
		knobsSeen: make(map[int64]*knobInfo),
		knobBinds: make(map[int64]*knobBind),
	}
}

func (mc *MidiController) Shutdown() {
	if mc.stream != nil {
		mc.stream.Close()
	}
}

func (mc *MidiController) run() {
	for {
		events, err := mc.stream.Read(1024)
		if err != nil {
			mc.log.Printf("midi read: %v", err)
			return
		}
		for _, event := range events {
			mc.handle(event)
		}
	}
}

func (mc *MidiController) handle(event portmidi.Event) {
	switch event.Status {
	case 0x90:
		if mc.OnPad != nil {
			mc.OnPad(int64(event.Data1))
		}
	case 0x80:
		// pad release, nothing bound
	case 0xb0:
		// twisty knobs
		ki, ok := mc.knobsSeen[event.Data1]
		if !ok {
			ki = &knobInfo{}
			mc.knobsSeen[event.Data1] = ki
		}
		ki.lastVal = event.Data2

		if kb, ok := mc.knobBinds[event.Data1]; ok {
			kb.Update(event.Data2)
		}
	default:
		mc.log.Printf("midi event: status=%#x d1=%d d2=%d", event.Status, event.Data1, event.Data2)
	}
}

func (mc *MidiController) BindKnob(knobid int64, s Setter, rangeMapFunc func(int64) float64) {
	if s == nil {
		mc.log.Printf("nil setter passed to bind knob %d", knobid)
		return
	}
	mc.knobBinds[knobid] = &knobBind{
		mapf: rangeMapFunc,
		sf:   s,
	}
}

// unitKnob maps the 0..127 controller range onto 0..1.
func unitKnob(v int64) float64 {
	return float64(v) / 127
}

// scaledKnob maps 0..127 onto lo..hi.
func scaledKnob(lo, hi float64) func(int64) float64 {
	return func(v int64) float64 {
		return lo + (hi-lo)*unitKnob(v)
	}
}

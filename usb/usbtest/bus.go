package usbtest

import (
	"context"
	"sync"

	"github.com/moffa90/go-pongo/usb"
)

// Bus is a fake usb.Bus driven by a script of arrival rounds. Each Pump
// consumes one round; arrivals are delivered only if they satisfy the watch
// filter unless Unfiltered is set.
type Bus struct {
	rec *Recorder

	mu       sync.Mutex
	rounds   [][]usb.Descriptor
	devices  map[[2]int]*Device
	watching bool
	watches  int

	// WatchErr fails watch registration when set.
	WatchErr error

	// OpenErr fails every Open when set.
	OpenErr error

	// Unfiltered delivers every scripted arrival, matching or not.
	Unfiltered bool
}

// NewBus returns an empty Bus recording into rec.
func NewBus(rec *Recorder) *Bus {
	return &Bus{rec: rec, devices: make(map[[2]int]*Device)}
}

// Attach makes dev openable and schedules its arrival as a new round.
func (b *Bus) Attach(dev *Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	desc := dev.Descriptor()
	b.devices[[2]int{desc.Bus, desc.Address}] = dev
	b.rounds = append(b.rounds, []usb.Descriptor{desc})
}

// Script appends arrival rounds. Descriptors without an attached Device
// cannot be opened.
func (b *Bus) Script(rounds ...[]usb.Descriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rounds = append(b.rounds, rounds...)
}

// Watching reports whether a watch is registered.
func (b *Bus) Watching() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.watching
}

// Watches returns how many watches were registered in total.
func (b *Bus) Watches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.watches
}

// Remaining returns the number of unconsumed rounds.
func (b *Bus) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rounds)
}

func (b *Bus) Watch(m usb.Match) (usb.Watch, error) {
	b.rec.Record(Call{Op: OpWatch})
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.WatchErr != nil {
		return nil, b.WatchErr
	}
	b.watching = true
	b.watches++
	return &watch{bus: b, match: m}, nil
}

func (b *Bus) Open(d usb.Descriptor) (usb.Device, error) {
	b.rec.Record(Call{Op: OpOpen, Device: d})
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	dev, ok := b.devices[[2]int{d.Bus, d.Address}]
	if !ok {
		return nil, Failure("open "+d.String(), CodeNoDevice)
	}
	return dev, nil
}

type watch struct {
	bus    *Bus
	match  usb.Match
	closed bool
}

func (w *watch) Pump(ctx context.Context) ([]usb.Descriptor, error) {
	w.bus.rec.Record(Call{Op: OpPump})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := w.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	if w.closed {
		return nil, Failure("pump", CodeNotFound)
	}
	if len(b.rounds) == 0 {
		return nil, ErrScriptExhausted
	}
	round := b.rounds[0]
	b.rounds = b.rounds[1:]

	var out []usb.Descriptor
	for _, d := range round {
		if b.Unfiltered || w.match.Matches(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (w *watch) Close() error {
	w.bus.rec.Record(Call{Op: OpUnwatch})
	w.bus.mu.Lock()
	defer w.bus.mu.Unlock()
	w.closed = true
	w.bus.watching = false
	return nil
}

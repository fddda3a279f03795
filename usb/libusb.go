package usb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// DefaultPollInterval is how often LibUSB re-enumerates the bus while a
// watch is pumped.
const DefaultPollInterval = 250 * time.Millisecond

// LibUSB is a Bus backed by a libusb context. The context is owned by the
// LibUSB value and released by Close.
type LibUSB struct {
	ctx          *gousb.Context
	pollInterval time.Duration
	timeout      time.Duration
}

// LibUSBOption configures a LibUSB bus.
type LibUSBOption func(*LibUSB)

// WithPollInterval sets the bus re-enumeration interval used by watches.
func WithPollInterval(d time.Duration) LibUSBOption {
	return func(l *LibUSB) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// WithTransferTimeout sets the timeout applied to every transfer on devices
// opened by this bus. Zero waits indefinitely.
func WithTransferTimeout(d time.Duration) LibUSBOption {
	return func(l *LibUSB) {
		if d >= 0 {
			l.timeout = d
		}
	}
}

// NewLibUSB initializes libusb.
func NewLibUSB(opts ...LibUSBOption) (l *LibUSB, err error) {
	l = &LibUSB{pollInterval: DefaultPollInterval}
	for _, opt := range opts {
		opt(l)
	}

	// gousb panics when libusb_init fails.
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = wrap("libusb init", e)
			} else {
				err = &TransportError{Op: "libusb init", Code: CodeOther, Err: fmt.Errorf("%v", r)}
			}
			l = nil
		}
	}()

	l.ctx = gousb.NewContext()
	return l, nil
}

// Close releases the libusb context. Devices opened from it must be closed
// first.
func (l *LibUSB) Close() error {
	return wrap("libusb exit", l.ctx.Close())
}

// Watch implements Bus.
func (l *LibUSB) Watch(m Match) (Watch, error) {
	return &libusbWatch{bus: l, tracker: newArrivalTracker(m)}, nil
}

// Open implements Bus.
func (l *LibUSB) Open(d Descriptor) (Device, error) {
	devs, err := l.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Bus == d.Bus && desc.Address == d.Address
	})
	if err != nil {
		for _, dev := range devs {
			_ = dev.Close()
		}
		return nil, wrap("open "+d.String(), err)
	}
	if len(devs) == 0 {
		return nil, &TransportError{Op: "open " + d.String(), Code: int(gousb.ErrorNoDevice), Err: gousb.ErrorNoDevice}
	}
	for _, extra := range devs[1:] {
		_ = extra.Close()
	}

	dev := devs[0]
	dev.ControlTimeout = l.timeout

	// Not supported on every platform; claiming still works without it.
	_ = dev.SetAutoDetach(true)

	return &libusbDevice{
		dev:     dev,
		desc:    d,
		timeout: l.timeout,
		ifaces:  make(map[uint8]*gousb.Interface),
		outs:    make(map[uint8]*gousb.OutEndpoint),
	}, nil
}

// enumerate lists every attached device without opening any.
func (l *LibUSB) enumerate() ([]Descriptor, error) {
	var present []Descriptor
	devs, err := l.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		present = append(present, descriptorOf(desc))
		return false
	})
	for _, dev := range devs {
		_ = dev.Close()
	}
	if err != nil {
		return nil, wrap("enumerate devices", err)
	}
	return present, nil
}

func descriptorOf(desc *gousb.DeviceDesc) Descriptor {
	return Descriptor{
		Bus:     desc.Bus,
		Address: desc.Address,
		Vendor:  ID(desc.Vendor),
		Product: ID(desc.Product),
	}
}

type libusbWatch struct {
	bus     *LibUSB
	tracker *arrivalTracker
	primed  bool
	closed  bool
}

func (w *libusbWatch) Pump(ctx context.Context) ([]Descriptor, error) {
	if w.closed {
		return nil, &TransportError{Op: "pump", Code: int(gousb.ErrorInvalidParam), Err: gousb.ErrorInvalidParam}
	}

	// The first round reports devices already attached.
	if w.primed {
		timer := time.NewTimer(w.bus.pollInterval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	w.primed = true

	present, err := w.bus.enumerate()
	if err != nil {
		return nil, err
	}
	return w.tracker.update(present), nil
}

func (w *libusbWatch) Close() error {
	w.closed = true
	return nil
}

// arrivalTracker turns successive bus snapshots into arrival events.
type arrivalTracker struct {
	match Match
	seen  map[[2]int]bool
}

func newArrivalTracker(m Match) *arrivalTracker {
	return &arrivalTracker{match: m, seen: make(map[[2]int]bool)}
}

// update records a snapshot and returns matching devices absent from the
// previous one. A device that leaves and comes back arrives again.
func (t *arrivalTracker) update(present []Descriptor) []Descriptor {
	var arrived []Descriptor
	next := make(map[[2]int]bool, len(present))
	for _, d := range present {
		if !t.match.Matches(d) {
			continue
		}
		key := [2]int{d.Bus, d.Address}
		next[key] = true
		if !t.seen[key] {
			arrived = append(arrived, d)
		}
	}
	t.seen = next
	return arrived
}

type libusbDevice struct {
	dev     *gousb.Device
	cfg     *gousb.Config
	desc    Descriptor
	timeout time.Duration
	ifaces  map[uint8]*gousb.Interface
	outs    map[uint8]*gousb.OutEndpoint
}

func (d *libusbDevice) Descriptor() Descriptor {
	return d.desc
}

func (d *libusbDevice) ControlTransfer(ctx context.Context, requestType, request uint8, value, index uint16, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, err := d.dev.Control(requestType, request, value, index, data)
	if err != nil {
		return n, wrap(fmt.Sprintf("control 0x%02x/%d", requestType, request), err)
	}
	return n, nil
}

func (d *libusbDevice) BulkTransfer(ctx context.Context, endpoint uint8, data []byte) (int, error) {
	out, err := d.outEndpoint(endpoint)
	if err != nil {
		return 0, err
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	n, err := out.WriteContext(ctx, data)
	if err != nil {
		return n, wrap(fmt.Sprintf("bulk ep %d", endpoint), err)
	}
	return n, nil
}

func (d *libusbDevice) outEndpoint(endpoint uint8) (*gousb.OutEndpoint, error) {
	if out, ok := d.outs[endpoint]; ok {
		return out, nil
	}
	for _, intf := range d.ifaces {
		if out, err := intf.OutEndpoint(int(endpoint)); err == nil {
			d.outs[endpoint] = out
			return out, nil
		}
	}
	return nil, &TransportError{
		Op:   fmt.Sprintf("bulk ep %d: no claimed interface has this endpoint", endpoint),
		Code: int(gousb.ErrorNotFound),
		Err:  gousb.ErrorNotFound,
	}
}

func (d *libusbDevice) ClaimInterface(iface uint8) error {
	if _, ok := d.ifaces[iface]; ok {
		return nil
	}

	if d.cfg == nil {
		num, err := d.dev.ActiveConfigNum()
		if err != nil {
			return wrap("active config", err)
		}
		cfg, err := d.dev.Config(num)
		if err != nil {
			return wrap(fmt.Sprintf("set config %d", num), err)
		}
		d.cfg = cfg
	}

	intf, err := d.cfg.Interface(int(iface), 0)
	if err != nil {
		return wrap(fmt.Sprintf("claim interface %d", iface), err)
	}
	d.ifaces[iface] = intf
	return nil
}

func (d *libusbDevice) ReleaseInterface(iface uint8) error {
	intf, ok := d.ifaces[iface]
	if !ok {
		return &TransportError{Op: fmt.Sprintf("release interface %d", iface), Code: int(gousb.ErrorNotFound), Err: gousb.ErrorNotFound}
	}

	intf.Close()
	delete(d.ifaces, iface)
	// Endpoints are owned by the interface they were opened on.
	d.outs = make(map[uint8]*gousb.OutEndpoint)
	return nil
}

func (d *libusbDevice) Close() error {
	for num, intf := range d.ifaces {
		intf.Close()
		delete(d.ifaces, num)
	}
	if d.cfg != nil {
		_ = d.cfg.Close()
		d.cfg = nil
	}
	return wrap("close", d.dev.Close())
}

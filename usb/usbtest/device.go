package usbtest

import (
	"context"
	"sync"

	"github.com/moffa90/go-pongo/protocol"
	"github.com/moffa90/go-pongo/usb"
)

type failure struct {
	match func(Call) bool
	err   error
}

// Device is a fake usb.Device that accepts every transfer unless told to
// fail. Bulk transfers require a claimed interface, as on real hardware.
type Device struct {
	rec  *Recorder
	desc usb.Descriptor

	mu       sync.Mutex
	claimed  map[uint8]bool
	closed   bool
	failures []failure
	output   []byte
	uploaded []byte
	commands []string

	// BulkLimit caps the bytes accepted per bulk transfer when positive.
	BulkLimit int
}

// NewDevice returns a fake device recording into rec.
func NewDevice(rec *Recorder, desc usb.Descriptor) *Device {
	return &Device{rec: rec, desc: desc, claimed: make(map[uint8]bool)}
}

// FailOp makes every call of op fail with err.
func (d *Device) FailOp(op Op, err error) {
	d.FailWhen(func(c Call) bool { return c.Op == op }, err)
}

// FailCall makes calls rendering as name (see Call.String) fail with err.
func (d *Device) FailCall(name string, err error) {
	d.FailWhen(func(c Call) bool { return c.String() == name }, err)
}

// FailWhen makes calls satisfying match fail with err. Failed calls are
// still recorded.
func (d *Device) FailWhen(match func(Call) bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, failure{match: match, err: err})
}

// SetOutput sets the console text served to ReqReadOutput requests.
func (d *Device) SetOutput(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.output = []byte(text)
}

// Uploaded returns the bytes received on the bulk endpoint.
func (d *Device) Uploaded() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.uploaded...)
}

// Commands returns the command lines received, in order.
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// Claimed reports whether iface is currently claimed.
func (d *Device) Claimed(iface uint8) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.claimed[iface]
}

// Closed reports whether Close has been called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Device) Descriptor() usb.Descriptor {
	return d.desc
}

// begin records c and returns the error the call must fail with, if any.
// Caller holds d.mu.
func (d *Device) begin(c Call) error {
	c.Device = d.desc
	d.rec.Record(c)
	if d.closed && c.Op != OpClose {
		return Failure(string(c.Op), CodeNoDevice)
	}
	for _, f := range d.failures {
		if f.match(c) {
			return f.err
		}
	}
	return nil
}

func (d *Device) ControlTransfer(ctx context.Context, requestType, request uint8, value, index uint16, data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := Call{Op: OpControl, RequestType: requestType, Request: request, Length: len(data)}
	in := requestType&0x80 != 0
	if !in {
		c.Data = append([]byte(nil), data...)
	}
	if err := d.begin(c); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if in {
		if requestType == protocol.RequestTypeIn && request == protocol.ReqReadOutput {
			n := copy(data, d.output)
			d.output = d.output[n:]
			return n, nil
		}
		return 0, nil
	}
	if requestType == protocol.RequestTypeOut && request == protocol.ReqCommand {
		d.commands = append(d.commands, protocol.DecodeCommand(data))
	}
	return len(data), nil
}

func (d *Device) BulkTransfer(ctx context.Context, endpoint uint8, data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.begin(Call{Op: OpBulk, Endpoint: endpoint, Length: len(data)}); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !d.claimed[protocol.Interface] || endpoint != protocol.BulkOutEndpoint {
		return 0, Failure("bulk", CodeNotFound)
	}

	n := len(data)
	if d.BulkLimit > 0 && n > d.BulkLimit {
		n = d.BulkLimit
	}
	d.uploaded = append(d.uploaded, data[:n]...)
	return n, nil
}

func (d *Device) ClaimInterface(iface uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.begin(Call{Op: OpClaim, Interface: iface}); err != nil {
		return err
	}
	if d.claimed[iface] {
		return Failure("claim", CodeBusy)
	}
	d.claimed[iface] = true
	return nil
}

func (d *Device) ReleaseInterface(iface uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.begin(Call{Op: OpRelease, Interface: iface}); err != nil {
		return err
	}
	if !d.claimed[iface] {
		return Failure("release", CodeNotFound)
	}
	delete(d.claimed, iface)
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.begin(Call{Op: OpClose})
	d.closed = true
	return err
}

// Package usbtest provides a recording fake of the usb package interfaces.
//
// A Recorder is shared by a Bus, its Devices and any other collaborator that
// should appear in the same trace (such as a settle delay), so tests can
// assert the exact order of operations across them.
package usbtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moffa90/go-pongo/protocol"
	"github.com/moffa90/go-pongo/usb"
)

// Op names a recorded operation.
type Op string

const (
	OpWatch   Op = "watch"
	OpUnwatch Op = "unwatch"
	OpPump    Op = "pump"
	OpOpen    Op = "open"
	OpClaim   Op = "claim"
	OpRelease Op = "release"
	OpControl Op = "control"
	OpBulk    Op = "bulk"
	OpClose   Op = "close"
	OpSleep   Op = "sleep"
)

// Libusb error codes used by injected failures.
const (
	CodeIO       = -1
	CodeNoDevice = -4
	CodeNotFound = -5
	CodeBusy     = -6
	CodePipe     = -9
)

// ErrScriptExhausted is returned by Pump once every scripted round has been
// consumed.
var ErrScriptExhausted = errors.New("usbtest: no more scripted bus rounds")

// PongoDescriptor is a pongoOS device on bus 1, address 4.
var PongoDescriptor = usb.Descriptor{Bus: 1, Address: 4, Vendor: protocol.VendorID, Product: protocol.ProductID}

// Failure builds a *usb.TransportError as the host stack would report it.
func Failure(op string, code int) error {
	return &usb.TransportError{Op: op, Code: code, Err: fmt.Errorf("libusb error %d", code)}
}

// Call is one recorded operation.
type Call struct {
	Op          Op
	RequestType uint8
	Request     uint8
	Interface   uint8
	Endpoint    uint8
	Length      int
	Data        []byte
	Delay       time.Duration
	Device      usb.Descriptor
}

// String renders the call compactly, e.g. control("bootx\n") or bulk(65536, ep2).
func (c Call) String() string {
	switch c.Op {
	case OpClaim, OpRelease:
		return fmt.Sprintf("%s(%d)", c.Op, c.Interface)
	case OpBulk:
		return fmt.Sprintf("bulk(%d, ep%d)", c.Length, c.Endpoint)
	case OpSleep:
		return fmt.Sprintf("sleep(%s)", c.Delay)
	case OpControl:
		switch {
		case c.RequestType == protocol.RequestTypeOut && c.Request == protocol.ReqInitUpload:
			return "control(init)"
		case c.RequestType == protocol.RequestTypeOut && c.Request == protocol.ReqDiscardUpload:
			return "control(discard)"
		case c.RequestType == protocol.RequestTypeOut && c.Request == protocol.ReqCommand:
			return fmt.Sprintf("control(%q)", protocol.DecodeCommand(c.Data))
		case c.RequestType == protocol.RequestTypeIn && c.Request == protocol.ReqReadOutput:
			return "control(read)"
		}
		return fmt.Sprintf("control(0x%02x/%d)", c.RequestType, c.Request)
	}
	return string(c.Op)
}

// Recorder collects calls in order. It is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends c.
func (r *Recorder) Record(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

// Reset forgets every recorded call.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Calls returns a copy of every recorded call.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Ops renders every recorded call.
func (r *Recorder) Ops() []string {
	return render(r.Calls(), nil)
}

// Trace renders the session-level calls: device operations and sleeps,
// without the watch bookkeeping.
func (r *Recorder) Trace() []string {
	return render(r.Calls(), func(c Call) bool {
		return c.Op != OpWatch && c.Op != OpUnwatch && c.Op != OpPump
	})
}

// Count returns how many calls of op were recorded.
func (r *Recorder) Count(op Op) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Sleep records a settle delay without waiting. Its signature matches the
// sleeper used by the session orchestrator.
func (r *Recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.Record(Call{Op: OpSleep, Delay: d})
	return ctx.Err()
}

func render(calls []Call, keep func(Call) bool) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		if keep == nil || keep(c) {
			out = append(out, c.String())
		}
	}
	return out
}

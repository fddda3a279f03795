package usb

import (
	"context"
	"fmt"
)

// ID is a USB vendor or product identifier.
type ID uint16

func (id ID) String() string {
	return fmt.Sprintf("%04x", uint16(id))
}

// Match selects devices by vendor and product ID.
type Match struct {
	Vendor  ID
	Product ID
}

// Matches reports whether d carries the vendor and product IDs of m.
func (m Match) Matches(d Descriptor) bool {
	return d.Vendor == m.Vendor && d.Product == m.Product
}

func (m Match) String() string {
	return m.Vendor.String() + ":" + m.Product.String()
}

// Descriptor identifies one attached device.
type Descriptor struct {
	Bus     int
	Address int
	Vendor  ID
	Product ID
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%03d.%03d %s:%s", d.Bus, d.Address, d.Vendor, d.Product)
}

// Device is an open USB device handle.
//
// Every method blocks until the transfer completes or the host stack reports
// a failure. Failures are returned as *TransportError.
type Device interface {
	// ControlTransfer performs a control transfer. For OUT requests data is
	// sent; for IN requests data is filled. Returns bytes transferred.
	ControlTransfer(ctx context.Context, requestType, request uint8, value, index uint16, data []byte) (int, error)

	// BulkTransfer writes data to the bulk OUT endpoint with the given number.
	// The endpoint must belong to a claimed interface.
	BulkTransfer(ctx context.Context, endpoint uint8, data []byte) (int, error)

	// ClaimInterface claims exclusive access to an interface.
	ClaimInterface(iface uint8) error

	// ReleaseInterface releases a previously claimed interface.
	ReleaseInterface(iface uint8) error

	// Close closes the handle. The device must not be used afterwards.
	Close() error

	// Descriptor returns the identity of the device behind the handle.
	Descriptor() Descriptor
}

// Bus delivers device arrivals and opens arrived devices.
type Bus interface {
	// Watch registers interest in arrivals of devices matching m. Devices
	// already attached when the watch is registered are reported as arrivals.
	Watch(m Match) (Watch, error)

	// Open opens the device described by d.
	Open(d Descriptor) (Device, error)
}

// Watch is a registered arrival watch.
type Watch interface {
	// Pump runs one blocking round of the event loop and returns the
	// arrivals observed during it, possibly none.
	Pump(ctx context.Context) ([]Descriptor, error)

	// Close deregisters the watch.
	Close() error
}

// Package discovery waits for a device to appear on a USB bus.
package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/moffa90/go-pongo/usb"
)

var (
	// ErrWatchFailed is wrapped by errors from watch registration.
	ErrWatchFailed = errors.New("register arrival watch")

	// ErrOpenFailed is wrapped by errors from opening an arrived device.
	ErrOpenFailed = errors.New("open device")
)

// Wait registers an arrival watch for m on bus, pumps it until a matching
// device arrives, opens that device and returns it unclaimed.
//
// Only the first matching arrival is taken; others observed in the same
// round are ignored. The watch is deregistered before Wait returns on every
// path, so later arrivals cannot resolve it again.
func Wait(ctx context.Context, bus usb.Bus, m usb.Match) (dev usb.Device, err error) {
	w, err := bus.Watch(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWatchFailed, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			_ = dev.Close()
			dev, err = nil, fmt.Errorf("deregister arrival watch: %w", cerr)
		}
	}()

	for {
		arrivals, err := w.Pump(ctx)
		if err != nil {
			return nil, err
		}

		for _, desc := range arrivals {
			// The watch filter is a hint; some stacks deliver more.
			if !m.Matches(desc) {
				continue
			}
			dev, err := bus.Open(desc)
			if err != nil {
				return nil, fmt.Errorf("%w %s: %w", ErrOpenFailed, desc, err)
			}
			return dev, nil
		}
	}
}

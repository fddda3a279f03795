package loader

import (
	"github.com/moffa90/go-pongo/protocol"
	"github.com/moffa90/go-pongo/usb"
)

// session owns the open device between discovery and the end of a run.
type session struct {
	device  usb.Device
	claimed bool
	closed  bool
}

// close releases the interface if claimed and closes the device, once.
// Failures are logged and otherwise ignored.
func (s *session) close(l *Loader) {
	if s.closed {
		return
	}
	s.closed = true

	if s.claimed {
		if err := s.device.ReleaseInterface(protocol.Interface); err != nil {
			l.logDebug("release interface", "error", err)
		}
		s.claimed = false
	}
	if err := s.device.Close(); err != nil {
		l.logDebug("close device", "error", err)
	}
}

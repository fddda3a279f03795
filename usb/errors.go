package usb

import (
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// CodeOther is LIBUSB_ERROR_OTHER, reported when the stack gives no code.
const CodeOther = -99

// TransportError is a failure reported by the USB host stack.
// Code is the libusb error code, passed through uninterpreted.
type TransportError struct {
	// Op is the transport operation that failed
	Op string

	// Code is the libusb error code (negative)
	Code int

	// Err is the underlying error
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v (code %d)", e.Op, e.Err, e.Code)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ShortTransferError reports a transfer that completed without error but
// moved fewer bytes than requested.
type ShortTransferError struct {
	Op        string
	Requested int
	Actual    int
}

func (e *ShortTransferError) Error() string {
	return fmt.Sprintf("%s: short transfer: %d of %d bytes", e.Op, e.Actual, e.Requested)
}

// IsTransportError returns true if err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// wrap converts a host stack error into a *TransportError.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	code := CodeOther
	var ue gousb.Error
	var ts gousb.TransferStatus
	switch {
	case errors.As(err, &ue):
		code = int(ue)
	case errors.As(err, &ts):
		code = transferStatusCode(ts)
	}

	return &TransportError{Op: op, Code: code, Err: err}
}

// transferStatusCode maps an asynchronous transfer status to the libusb
// error code the synchronous API reports for it.
func transferStatusCode(ts gousb.TransferStatus) int {
	switch ts {
	case gousb.TransferError:
		return int(gousb.ErrorIO)
	case gousb.TransferTimedOut:
		return int(gousb.ErrorTimeout)
	case gousb.TransferCancelled:
		return int(gousb.ErrorInterrupted)
	case gousb.TransferStall:
		return int(gousb.ErrorPipe)
	case gousb.TransferNoDevice:
		return int(gousb.ErrorNoDevice)
	case gousb.TransferOverflow:
		return int(gousb.ErrorOverflow)
	}
	return CodeOther
}

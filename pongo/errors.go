package pongo

import (
	"fmt"
)

// Upload stages reported by UploadError.
const (
	StageInit     = "init"
	StageTransfer = "transfer"
)

// UploadError indicates that a bulk upload did not complete.
type UploadError struct {
	// Stage is StageInit or StageTransfer
	Stage string

	// Size is the payload size in bytes
	Size int

	// Discarded reports whether a discard request was accepted by the device
	Discarded bool

	// Err is the transport failure
	Err error
}

func (e *UploadError) Error() string {
	msg := fmt.Sprintf("bulk upload %s (%d bytes): %v", e.Stage, e.Size, e.Err)
	if e.Discarded {
		msg += " (upload discarded)"
	}
	return msg
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// CommandError indicates that a command could not be delivered.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("send command %q: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

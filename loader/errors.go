package loader

import "github.com/joomcode/errorx"

var (
	ErrNamespace = errorx.NewNamespace("loader")

	// ArgumentError covers a missing or unusable module path argument.
	ArgumentError = ErrNamespace.NewType("argument")

	// InitError covers USB stack and arrival watch failures.
	InitError = ErrNamespace.NewType("init")

	// DeviceError covers failures to open or claim the device.
	DeviceError = ErrNamespace.NewType("device")

	// FileError covers failures to stat, open or map the module file.
	FileError = ErrNamespace.NewType("file")

	// ProtocolError covers failed upload and command transfers.
	ProtocolError = ErrNamespace.NewType("protocol")

	// CancelledError is returned when the run context ends first.
	CancelledError = ErrNamespace.NewType("cancelled")

	// PropertyState holds the State a failed run was in.
	PropertyState = errorx.RegisterPrintableProperty("state")
)

// FailedState returns the state recorded on a loader error.
func FailedState(err error) (State, bool) {
	v, ok := errorx.ExtractProperty(err, PropertyState)
	if !ok {
		return StateIdle, false
	}
	s, ok := v.(State)
	return s, ok
}

package protocol

import "time"

// Device identification. pongoOS enumerates with Apple's vendor ID and a
// product ID of its own; neither is configurable.
const (
	// VendorID is the USB vendor ID reported by pongoOS (0x05ac)
	VendorID = 0x05ac

	// ProductID is the USB product ID reported by pongoOS (0x4141)
	ProductID = 0x4141

	// Interface is the interface number carrying every pongoOS request
	Interface = 0
)

// bmRequestType values used by pongoOS.
const (
	// RequestTypeOut is host-to-device, class, interface (0x21)
	RequestTypeOut = 0x21

	// RequestTypeIn is device-to-host, class, interface (0xa1)
	RequestTypeIn = 0xa1
)

// bRequest values. The same request number means different things depending
// on the transfer direction.
const (
	// ReqInitUpload announces the start of a bulk upload (OUT, no data)
	ReqInitUpload = 1

	// ReqDiscardUpload aborts a bulk upload in progress (OUT, no data)
	ReqDiscardUpload = 2

	// ReqCommand carries a newline-terminated command line (OUT)
	ReqCommand = 3

	// ReqReadOutput reads the device console buffer (IN)
	ReqReadOutput = 1
)

// BulkOutEndpoint is the bulk OUT endpoint receiving upload payloads.
const BulkOutEndpoint = 2

// OutputBufferSize is the largest console chunk returned by one ReqReadOutput.
const OutputBufferSize = 512

// DefaultSettleDelay is the dead time the firmware needs to consume one
// command before the next may be issued.
const DefaultSettleDelay = 200 * time.Millisecond

// Commands issued by the boot sequence.
const (
	// CmdModload loads the module previously pushed with a bulk upload
	CmdModload = "modload"

	// CmdStalkerPrep prepares the kernel patchfinder state
	CmdStalkerPrep = "stalker-prep"

	// CmdBootx boots the staged kernel
	CmdBootx = "bootx"
)

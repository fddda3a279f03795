// Package protocol describes the pongoOS USB wire contract.
//
// # Protocol Overview
//
// pongoOS exposes a single vendor interface (0) with one bulk OUT endpoint
// (2). Everything else travels as class control requests addressed to the
// interface:
//
//	init upload     0x21  bRequest 1  no data
//	discard upload  0x21  bRequest 2  no data
//	command         0x21  bRequest 3  "text\n" + NUL
//	read output     0xa1  bRequest 1  up to 512 bytes IN
//
// A module is delivered by issuing init upload, then one bulk transfer of the
// whole module to endpoint 2, then the "modload" command.
//
// # Command Encoding
//
// Use EncodeCommand to build a command payload:
//
//	payload := protocol.EncodeCommand(protocol.CmdBootx)
//	// payload == []byte("bootx\n\x00")
//
// The device gives no acknowledgement for commands. Sequencing relies on
// DefaultSettleDelay between consecutive commands.
package protocol

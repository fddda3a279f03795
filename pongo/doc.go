// Package pongo provides a client for the pongoOS USB bootloader.
//
// # Overview
//
// The client implements the two halves of the pongoOS host protocol:
//   - Bulk upload: init request, one bulk transfer, optional discard
//   - Command channel: newline-terminated text commands and console reads
//
// The device must be open and its interface claimed; see package loader for
// the full discovery and boot sequence.
//
// # Basic Usage
//
//	client := pongo.New(device)
//
//	if err := client.Upload(ctx, module); err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.SendCommand(ctx, protocol.CmdModload); err != nil {
//	    log.Fatal(err)
//	}
//
// # Failed Uploads
//
// If the bulk transfer fails after the upload was initialized, the client
// sends a discard request so the device drops the partial payload. The
// returned *UploadError reports the failing stage and whether the discard
// was accepted:
//
//	var uerr *pongo.UploadError
//	if errors.As(err, &uerr) && uerr.Stage == pongo.StageTransfer {
//	    fmt.Println("discarded:", uerr.Discarded)
//	}
//
// Disable this with WithDiscardOnFailure(false).
//
// # Console Output
//
// ReadOutput drains up to 512 bytes of the device console. The boot
// sequence never reads it; it is there for interactive tools.
package pongo

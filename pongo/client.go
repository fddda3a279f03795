package pongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/moffa90/go-pongo/protocol"
	"github.com/moffa90/go-pongo/usb"
)

// ErrEmptyUpload is returned when asked to upload zero bytes.
var ErrEmptyUpload = errors.New("upload payload is empty")

// Client speaks the pongoOS bulk upload and command protocols over an open
// device. The interface must already be claimed.
//
// Client is not safe for concurrent use.
type Client struct {
	device usb.Device
	config Config
}

// New creates a new Client for device.
//
// Example:
//
//	client := pongo.New(device, pongo.WithLogger(logger))
//	if err := client.Upload(ctx, module); err != nil {
//	    return err
//	}
//	err := client.SendCommand(ctx, protocol.CmdModload)
func New(device usb.Device, opts ...Option) *Client {
	if device == nil {
		panic("device cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Client{
		device: device,
		config: cfg,
	}
}

// Upload pushes data into device memory:
//  1. Init upload (control request)
//  2. One bulk transfer of the whole payload
//
// When the transfer fails after a successful init, a discard request is sent
// before returning unless disabled with WithDiscardOnFailure(false). Errors
// are *UploadError.
func (c *Client) Upload(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyUpload
	}

	if err := c.InitUpload(ctx); err != nil {
		return &UploadError{Stage: StageInit, Size: len(data), Err: err}
	}

	if err := c.Transfer(ctx, data); err != nil {
		uerr := &UploadError{Stage: StageTransfer, Size: len(data), Err: err}
		if c.config.DiscardOnFailure {
			if derr := c.DiscardUpload(ctx); derr != nil {
				c.logError("discard upload failed", "error", derr)
			} else {
				uerr.Discarded = true
			}
		}
		return uerr
	}

	c.logDebug("upload complete", "bytes", len(data))
	return nil
}

// InitUpload announces the start of a bulk upload.
func (c *Client) InitUpload(ctx context.Context) error {
	_, err := c.device.ControlTransfer(ctx, protocol.RequestTypeOut, protocol.ReqInitUpload, 0, 0, nil)
	return err
}

// DiscardUpload aborts a bulk upload in progress.
func (c *Client) DiscardUpload(ctx context.Context) error {
	_, err := c.device.ControlTransfer(ctx, protocol.RequestTypeOut, protocol.ReqDiscardUpload, 0, 0, nil)
	return err
}

// Transfer sends data to the bulk endpoint as one logical transfer. The host
// stack may split it into packets; no chunking happens here.
func (c *Client) Transfer(ctx context.Context, data []byte) error {
	n, err := c.device.BulkTransfer(ctx, protocol.BulkOutEndpoint, data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return &usb.ShortTransferError{
			Op:        fmt.Sprintf("bulk ep %d", protocol.BulkOutEndpoint),
			Requested: len(data),
			Actual:    n,
		}
	}
	return nil
}

// SendCommand sends text as one newline-terminated command line. Success
// means the control transfer completed; the device does not acknowledge.
func (c *Client) SendCommand(ctx context.Context, text string) error {
	payload := protocol.EncodeCommand(text)
	if _, err := c.device.ControlTransfer(ctx, protocol.RequestTypeOut, protocol.ReqCommand, 0, 0, payload); err != nil {
		return &CommandError{Command: text, Err: err}
	}

	c.logDebug("command sent", "command", text)
	return nil
}

// ReadOutput reads up to protocol.OutputBufferSize bytes of console output.
// Trailing NUL padding is removed.
func (c *Client) ReadOutput(ctx context.Context) ([]byte, error) {
	buf := make([]byte, protocol.OutputBufferSize)
	n, err := c.device.ControlTransfer(ctx, protocol.RequestTypeIn, protocol.ReqReadOutput, 0, 0, buf)
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	return protocol.TrimOutput(buf[:n]), nil
}

// logDebug logs a debug message if a logger is configured.
func (c *Client) logDebug(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (c *Client) logError(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Error(msg, keysAndValues...)
	}
}

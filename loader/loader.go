package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joomcode/errorx"

	"github.com/moffa90/go-pongo/discovery"
	"github.com/moffa90/go-pongo/module"
	"github.com/moffa90/go-pongo/pongo"
	"github.com/moffa90/go-pongo/protocol"
	"github.com/moffa90/go-pongo/usb"
)

// Match identifies a pongoOS device.
var Match = usb.Match{Vendor: protocol.VendorID, Product: protocol.ProductID}

// Loader runs one pongoOS boot session: wait for the device, upload a
// module, then issue modload, stalker-prep and bootx.
//
// A Loader runs once.
type Loader struct {
	bus        usb.Bus
	config     Config
	state      State
	sleep      func(context.Context, time.Duration) error
	openModule func(string) (mappedModule, error)
}

// mappedModule is the part of module.Buffer a session uses.
type mappedModule interface {
	Bytes() []byte
	Len() int
	Close() error
}

// New creates a Loader that discovers its device on bus.
//
// Example:
//
//	bus, err := usb.NewLibUSB()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer bus.Close()
//
//	err = loader.New(bus).Run(ctx, "kpf.bin")
func New(bus usb.Bus, opts ...Option) *Loader {
	if bus == nil {
		panic("bus cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Loader{
		bus:        bus,
		config:     cfg,
		state:      StateIdle,
		sleep:      sleepContext,
		openModule: openModule,
	}
}

// State returns the current session state.
func (l *Loader) State() State {
	return l.state
}

// Run performs the complete boot session:
//  1. Check the module file
//  2. Wait for a pongoOS device, open it and claim its interface
//  3. Map the module, upload it, send modload, unmap
//  4. Wait the settle delay, send stalker-prep
//  5. Wait the settle delay, send bootx
//  6. Release the interface and close the device
//
// The first failure ends the run in StateFailed. The interface is released
// if claimed and the device closed if open before Run returns, on every
// path. Errors are errorx errors of this package's types carrying
// PropertyState.
func (l *Loader) Run(ctx context.Context, modulePath string) error {
	if l.state != StateIdle {
		return errorx.IllegalState.New("loader already ran (state %s)", l.state)
	}

	if modulePath == "" {
		return l.fail(ArgumentError.New("module path is required"))
	}

	// Fail before blocking on a device that may never come.
	if _, err := module.Stat(modulePath); err != nil {
		return l.fail(FileError.Wrap(err, "check module"))
	}

	l.transition(StateAwaitingDevice)
	l.logInfo("waiting for pongoOS device", "match", Match.String())

	dev, err := discovery.Wait(ctx, l.bus, Match)
	if err != nil {
		return l.fail(classifyDiscovery(err))
	}
	l.logInfo("got pongoOS device", "device", dev.Descriptor().String())

	sess := &session{device: dev}
	defer sess.close(l)

	if err := dev.ClaimInterface(protocol.Interface); err != nil {
		return l.fail(DeviceError.Wrap(err, "claim interface %d", protocol.Interface))
	}
	sess.claimed = true
	l.transition(StateClaimed)

	client := pongo.New(dev,
		pongo.WithLogger(l.config.Logger),
		pongo.WithDiscardOnFailure(l.config.DiscardOnFailure),
	)

	if err := l.loadModule(ctx, client, modulePath); err != nil {
		return l.fail(err)
	}
	l.transition(StateModuleLoaded)

	if err := l.settleAndSend(ctx, client, protocol.CmdStalkerPrep); err != nil {
		return l.fail(err)
	}
	l.transition(StatePreparing)

	if err := l.settleAndSend(ctx, client, protocol.CmdBootx); err != nil {
		return l.fail(err)
	}
	l.transition(StateBooting)

	sess.close(l)
	l.transition(StateDone)
	l.logInfo("boot sequence complete", "module", modulePath)
	return nil
}

// loadModule maps the module, uploads it and sends modload. The mapping is
// released before returning.
func (l *Loader) loadModule(ctx context.Context, client *pongo.Client, path string) *errorx.Error {
	buf, err := l.openModule(path)
	if err != nil {
		return FileError.Wrap(err, "load module")
	}
	defer func() {
		if cerr := buf.Close(); cerr != nil {
			l.logError("release module mapping", "error", cerr)
		}
	}()

	l.logInfo("module mapped", "size", fmt.Sprintf("%#x", buf.Len()))

	if err := client.Upload(ctx, buf.Bytes()); err != nil {
		return ProtocolError.Wrap(err, "upload module")
	}
	if err := client.SendCommand(ctx, protocol.CmdModload); err != nil {
		return ProtocolError.Wrap(err, "load module")
	}
	return nil
}

// settleAndSend waits out the firmware settle delay, then sends cmd.
func (l *Loader) settleAndSend(ctx context.Context, client *pongo.Client, cmd string) *errorx.Error {
	if err := l.sleep(ctx, l.config.SettleDelay); err != nil {
		return CancelledError.Wrap(err, "settle before %s", cmd)
	}
	if err := client.SendCommand(ctx, cmd); err != nil {
		return ProtocolError.Wrap(err, "%s", cmd)
	}
	return nil
}

func (l *Loader) transition(to State) {
	l.logDebug("session state", "from", l.state.String(), "to", to.String())
	l.state = to
}

// fail records err against the current state and moves to StateFailed.
func (l *Loader) fail(err *errorx.Error) error {
	err = err.WithProperty(PropertyState, l.state)
	l.transition(StateFailed)
	return err
}

func classifyDiscovery(err error) *errorx.Error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CancelledError.Wrap(err, "wait for device")
	case errors.Is(err, discovery.ErrOpenFailed):
		return DeviceError.Wrap(err, "open device")
	default:
		return InitError.Wrap(err, "wait for device")
	}
}

func openModule(path string) (mappedModule, error) {
	buf, err := module.Open(path)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// logDebug logs a debug message if a logger is configured.
func (l *Loader) logDebug(msg string, keysAndValues ...interface{}) {
	if l.config.Logger != nil {
		l.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (l *Loader) logInfo(msg string, keysAndValues ...interface{}) {
	if l.config.Logger != nil {
		l.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (l *Loader) logError(msg string, keysAndValues ...interface{}) {
	if l.config.Logger != nil {
		l.config.Logger.Error(msg, keysAndValues...)
	}
}

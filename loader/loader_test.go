package loader

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-pongo/protocol"
	"github.com/moffa90/go-pongo/usb"
	"github.com/moffa90/go-pongo/usb/usbtest"
)

// Mock logger for testing
type MockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	errorMsgs []string
}

func (l *MockLogger) Debug(msg string, kv ...interface{}) {
	l.debugMsgs = append(l.debugMsgs, msg)
}

func (l *MockLogger) Info(msg string, kv ...interface{}) {
	l.infoMsgs = append(l.infoMsgs, msg)
}

func (l *MockLogger) Error(msg string, kv ...interface{}) {
	l.errorMsgs = append(l.errorMsgs, msg)
}

// writeModule writes a module of size bytes into a temp dir.
func writeModule(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "module.bin")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0xa5}, size), 0o644))
	return path
}

type fixture struct {
	rec *usbtest.Recorder
	bus *usbtest.Bus
	dev *usbtest.Device
}

func newFixture() *fixture {
	rec := usbtest.NewRecorder()
	bus := usbtest.NewBus(rec)
	dev := usbtest.NewDevice(rec, usbtest.PongoDescriptor)
	bus.Attach(dev)
	return &fixture{rec: rec, bus: bus, dev: dev}
}

// loader returns a Loader on the fixture bus whose settle delays are
// recorded instead of slept.
func (f *fixture) loader(opts ...Option) *Loader {
	l := New(f.bus, opts...)
	l.sleep = f.rec.Sleep
	return l
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateAwaitingDevice, "awaiting-device"},
		{StateClaimed, "claimed"},
		{StateModuleLoaded, "module-loaded"},
		{StatePreparing, "preparing"},
		{StateBooting, "booting"},
		{StateDone, "done"},
		{StateFailed, "failed"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}

	assert.True(t, StateDone.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateBooting.Terminal())
}

func TestNew(t *testing.T) {
	bus := usbtest.NewBus(usbtest.NewRecorder())

	tests := []struct {
		name        string
		options     []Option
		wantDelay   time.Duration
		wantDiscard bool
	}{
		{
			name:        "with no options",
			wantDelay:   protocol.DefaultSettleDelay,
			wantDiscard: true,
		},
		{
			name:        "with settle delay",
			options:     []Option{WithSettleDelay(time.Second)},
			wantDelay:   time.Second,
			wantDiscard: true,
		},
		{
			name:        "ignores zero settle delay",
			options:     []Option{WithSettleDelay(0)},
			wantDelay:   protocol.DefaultSettleDelay,
			wantDiscard: true,
		},
		{
			name:        "ignores negative settle delay",
			options:     []Option{WithSettleDelay(-time.Second)},
			wantDelay:   protocol.DefaultSettleDelay,
			wantDiscard: true,
		},
		{
			name:        "with all options",
			options:     []Option{WithLogger(&MockLogger{}), WithSettleDelay(50 * time.Millisecond), WithDiscardOnFailure(false)},
			wantDelay:   50 * time.Millisecond,
			wantDiscard: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(bus, tt.options...)
			require.NotNil(t, l)
			assert.Equal(t, tt.wantDelay, l.config.SettleDelay)
			assert.Equal(t, tt.wantDiscard, l.config.DiscardOnFailure)
			assert.Equal(t, StateIdle, l.State())
		})
	}

	assert.Panics(t, func() { New(nil) })
}

func TestRun(t *testing.T) {
	f := newFixture()
	path := writeModule(t, 64*1024)
	logger := &MockLogger{}

	l := f.loader(WithLogger(logger))
	err := l.Run(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"open",
		"claim(0)",
		"control(init)",
		"bulk(65536, ep2)",
		`control("modload\n")`,
		"sleep(200ms)",
		`control("stalker-prep\n")`,
		"sleep(200ms)",
		`control("bootx\n")`,
		"release(0)",
		"close",
	}, f.rec.Trace())

	assert.Equal(t, StateDone, l.State())
	assert.Len(t, f.dev.Uploaded(), 64*1024)
	assert.Equal(t, []string{"modload\n", "stalker-prep\n", "bootx\n"}, f.dev.Commands())
	assert.False(t, f.dev.Claimed(protocol.Interface))
	assert.True(t, f.dev.Closed())
	assert.False(t, f.bus.Watching())
	assert.Equal(t, 1, f.rec.Count(usbtest.OpWatch))
	assert.Equal(t, 1, f.rec.Count(usbtest.OpUnwatch))

	assert.Contains(t, logger.infoMsgs, "waiting for pongoOS device")
	assert.Contains(t, logger.infoMsgs, "got pongoOS device")
	assert.Contains(t, logger.infoMsgs, "module mapped")
	assert.Empty(t, logger.errorMsgs)
}

func TestRunWaitsForLateDevice(t *testing.T) {
	rec := usbtest.NewRecorder()
	bus := usbtest.NewBus(rec)
	other := usb.Descriptor{Bus: 1, Address: 2, Vendor: 0x05ac, Product: 0x1227}
	bus.Script(nil, []usb.Descriptor{other})

	dev := usbtest.NewDevice(rec, usbtest.PongoDescriptor)
	bus.Attach(dev)

	l := New(bus)
	l.sleep = rec.Sleep
	require.NoError(t, l.Run(context.Background(), writeModule(t, 100)))

	assert.Equal(t, 3, rec.Count(usbtest.OpPump))
	assert.Equal(t, 1, rec.Count(usbtest.OpOpen))
	assert.Equal(t, StateDone, l.State())
}

// recordedModule logs unmap into the session trace.
type recordedModule struct {
	mappedModule
	rec *usbtest.Recorder
}

func (m *recordedModule) Close() error {
	m.rec.Record(usbtest.Call{Op: "unmap"})
	return m.mappedModule.Close()
}

func TestRunReleasesModuleAfterModload(t *testing.T) {
	f := newFixture()
	l := f.loader()

	var buf mappedModule
	l.openModule = func(path string) (mappedModule, error) {
		m, err := openModule(path)
		if err != nil {
			return nil, err
		}
		f.rec.Record(usbtest.Call{Op: "map"})
		buf = m
		return &recordedModule{mappedModule: m, rec: f.rec}, nil
	}

	sleeps := 0
	l.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		if sleeps == 1 {
			assert.Nil(t, buf.Bytes(), "module still mapped at first settle delay")
		}
		return f.rec.Sleep(ctx, d)
	}

	require.NoError(t, l.Run(context.Background(), writeModule(t, 4096)))

	assert.Equal(t, []string{
		"open",
		"claim(0)",
		"map",
		"control(init)",
		"bulk(4096, ep2)",
		`control("modload\n")`,
		"unmap",
		"sleep(200ms)",
		`control("stalker-prep\n")`,
		"sleep(200ms)",
		`control("bootx\n")`,
		"release(0)",
		"close",
	}, f.rec.Trace())
}

func TestRunReleasesModuleOnUploadFailure(t *testing.T) {
	f := newFixture()
	f.dev.FailOp(usbtest.OpBulk, usbtest.Failure("bulk", usbtest.CodeIO))
	l := f.loader()

	l.openModule = func(path string) (mappedModule, error) {
		m, err := openModule(path)
		if err != nil {
			return nil, err
		}
		return &recordedModule{mappedModule: m, rec: f.rec}, nil
	}

	require.Error(t, l.Run(context.Background(), writeModule(t, 64)))
	assert.Equal(t, []string{
		"open", "claim(0)", "control(init)", "bulk(64, ep2)", "control(discard)", "unmap", "release(0)", "close",
	}, f.rec.Trace())
}

func TestRunSettleDelay(t *testing.T) {
	f := newFixture()
	l := f.loader(WithSettleDelay(750 * time.Millisecond))

	require.NoError(t, l.Run(context.Background(), writeModule(t, 16)))

	var delays []time.Duration
	for _, c := range f.rec.Calls() {
		if c.Op == usbtest.OpSleep {
			delays = append(delays, c.Delay)
		}
	}
	assert.Equal(t, []time.Duration{750 * time.Millisecond, 750 * time.Millisecond}, delays)
}

func TestRunFailures(t *testing.T) {
	pipe := usbtest.Failure("control", usbtest.CodePipe)

	tests := []struct {
		name      string
		setup     func(f *fixture)
		options   []Option
		wantType  *errorx.Type
		wantState State
		wantTrace []string
	}{
		{
			name:      "open fails",
			setup:     func(f *fixture) { f.bus.OpenErr = usbtest.Failure("open", usbtest.CodeIO) },
			wantType:  DeviceError,
			wantState: StateAwaitingDevice,
			wantTrace: []string{"open"},
		},
		{
			name:      "claim fails",
			setup:     func(f *fixture) { f.dev.FailOp(usbtest.OpClaim, usbtest.Failure("claim", usbtest.CodeBusy)) },
			wantType:  DeviceError,
			wantState: StateAwaitingDevice,
			wantTrace: []string{"open", "claim(0)", "close"},
		},
		{
			name:      "init fails",
			setup:     func(f *fixture) { f.dev.FailCall("control(init)", pipe) },
			wantType:  ProtocolError,
			wantState: StateClaimed,
			wantTrace: []string{"open", "claim(0)", "control(init)", "release(0)", "close"},
		},
		{
			name:      "bulk fails",
			setup:     func(f *fixture) { f.dev.FailOp(usbtest.OpBulk, usbtest.Failure("bulk", usbtest.CodeIO)) },
			wantType:  ProtocolError,
			wantState: StateClaimed,
			wantTrace: []string{"open", "claim(0)", "control(init)", "bulk(64, ep2)", "control(discard)", "release(0)", "close"},
		},
		{
			name:      "bulk fails without discard",
			setup:     func(f *fixture) { f.dev.FailOp(usbtest.OpBulk, usbtest.Failure("bulk", usbtest.CodeIO)) },
			options:   []Option{WithDiscardOnFailure(false)},
			wantType:  ProtocolError,
			wantState: StateClaimed,
			wantTrace: []string{"open", "claim(0)", "control(init)", "bulk(64, ep2)", "release(0)", "close"},
		},
		{
			name:      "modload fails",
			setup:     func(f *fixture) { f.dev.FailCall(`control("modload\n")`, pipe) },
			wantType:  ProtocolError,
			wantState: StateClaimed,
			wantTrace: []string{"open", "claim(0)", "control(init)", "bulk(64, ep2)", `control("modload\n")`, "release(0)", "close"},
		},
		{
			name:      "stalker-prep fails",
			setup:     func(f *fixture) { f.dev.FailCall(`control("stalker-prep\n")`, pipe) },
			wantType:  ProtocolError,
			wantState: StateModuleLoaded,
			wantTrace: []string{
				"open", "claim(0)", "control(init)", "bulk(64, ep2)", `control("modload\n")`,
				"sleep(200ms)", `control("stalker-prep\n")`, "release(0)", "close",
			},
		},
		{
			name:      "bootx fails",
			setup:     func(f *fixture) { f.dev.FailCall(`control("bootx\n")`, pipe) },
			wantType:  ProtocolError,
			wantState: StatePreparing,
			wantTrace: []string{
				"open", "claim(0)", "control(init)", "bulk(64, ep2)", `control("modload\n")`,
				"sleep(200ms)", `control("stalker-prep\n")`,
				"sleep(200ms)", `control("bootx\n")`, "release(0)", "close",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)
			l := f.loader(tt.options...)

			err := l.Run(context.Background(), writeModule(t, 64))
			require.Error(t, err)

			assert.True(t, errorx.IsOfType(err, tt.wantType), "got %v", err)
			state, ok := FailedState(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantState, state)
			assert.Equal(t, StateFailed, l.State())

			assert.Equal(t, tt.wantTrace, f.rec.Trace())
			assert.False(t, f.dev.Claimed(protocol.Interface))
			assert.False(t, f.bus.Watching())
		})
	}
}

func TestRunCleanupErrorsIgnored(t *testing.T) {
	f := newFixture()
	f.dev.FailOp(usbtest.OpRelease, usbtest.Failure("release", usbtest.CodeNoDevice))
	f.dev.FailOp(usbtest.OpClose, usbtest.Failure("close", usbtest.CodeNoDevice))

	l := f.loader()
	require.NoError(t, l.Run(context.Background(), writeModule(t, 64)))
	assert.Equal(t, StateDone, l.State())
	assert.Equal(t, 1, f.rec.Count(usbtest.OpRelease))
	assert.Equal(t, 1, f.rec.Count(usbtest.OpClose))
}

func TestRunMissingModule(t *testing.T) {
	f := newFixture()
	path := filepath.Join(t.TempDir(), "missing.bin")

	l := f.loader()
	err := l.Run(context.Background(), path)
	require.Error(t, err)

	assert.True(t, errorx.IsOfType(err, FileError))
	assert.Contains(t, err.Error(), path)
	state, ok := FailedState(err)
	require.True(t, ok)
	assert.Equal(t, StateIdle, state)

	assert.Empty(t, f.rec.Ops())
	assert.Equal(t, 0, f.bus.Watches())
}

func TestRunEmptyModule(t *testing.T) {
	f := newFixture()
	l := f.loader()

	err := l.Run(context.Background(), writeModule(t, 0))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, FileError))
	assert.Empty(t, f.rec.Ops())
}

func TestRunEmptyPath(t *testing.T) {
	f := newFixture()
	l := f.loader()

	err := l.Run(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, ArgumentError))
	assert.Empty(t, f.rec.Ops())
}

// vanishingBus removes the module file once the watch is registered, so the
// pre-flight check passes but mapping fails.
type vanishingBus struct {
	*usbtest.Bus
	path string
}

func (b *vanishingBus) Watch(m usb.Match) (usb.Watch, error) {
	if err := os.Remove(b.path); err != nil {
		return nil, err
	}
	return b.Bus.Watch(m)
}

func TestRunModuleVanishes(t *testing.T) {
	f := newFixture()
	path := writeModule(t, 64)

	l := New(&vanishingBus{Bus: f.bus, path: path})
	l.sleep = f.rec.Sleep

	err := l.Run(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, FileError))
	assert.Contains(t, err.Error(), path)

	state, ok := FailedState(err)
	require.True(t, ok)
	assert.Equal(t, StateClaimed, state)
	assert.Equal(t, []string{"open", "claim(0)", "release(0)", "close"}, f.rec.Trace())
}

func TestRunWatchFailure(t *testing.T) {
	f := newFixture()
	f.bus.WatchErr = usbtest.Failure("hotplug register", usbtest.CodeNotFound)

	l := f.loader()
	err := l.Run(context.Background(), writeModule(t, 64))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, InitError))
	assert.Equal(t, 0, f.rec.Count(usbtest.OpOpen))

	state, _ := FailedState(err)
	assert.Equal(t, StateAwaitingDevice, state)
}

func TestRunCancelledWhileWaiting(t *testing.T) {
	rec := usbtest.NewRecorder()
	bus := usbtest.NewBus(rec)
	bus.Script(nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := New(bus)
	err := l.Run(ctx, writeModule(t, 64))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, CancelledError))
	assert.Equal(t, 0, rec.Count(usbtest.OpOpen))
	assert.False(t, bus.Watching())
}

func TestRunCancelledWhileSettling(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())

	l := New(f.bus)
	l.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return f.rec.Sleep(ctx, d)
	}

	err := l.Run(ctx, writeModule(t, 64))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, CancelledError))

	state, _ := FailedState(err)
	assert.Equal(t, StateModuleLoaded, state)
	assert.Equal(t, []string{"modload\n"}, f.dev.Commands())
	assert.False(t, f.dev.Claimed(protocol.Interface))
	assert.True(t, f.dev.Closed())
}

func TestRunTwice(t *testing.T) {
	f := newFixture()
	l := f.loader()
	path := writeModule(t, 64)

	require.NoError(t, l.Run(context.Background(), path))

	err := l.Run(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, errorx.IllegalState))
	assert.Equal(t, StateDone, l.State())
}

func TestSleepContext(t *testing.T) {
	start := time.Now()
	require.NoError(t, sleepContext(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleepContext(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

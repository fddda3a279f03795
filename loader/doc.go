// Package loader runs a pongoOS boot session.
//
// A session waits for a pongoOS device to appear, claims its interface,
// uploads a module file and issues the fixed boot sequence:
//
//	modload       load the uploaded module
//	stalker-prep  prepare the checkm8 kernel patch state
//	bootx         boot the XNU kernel
//
// Consecutive commands are separated by a settle delay. Any failure ends the
// session; the interface and device are always released before Run returns.
//
// Basic usage:
//
//	bus, err := usb.NewLibUSB()
//	if err != nil {
//	    return err
//	}
//	defer bus.Close()
//
//	l := loader.New(bus, loader.WithLogger(logger))
//	if err := l.Run(ctx, "/path/to/module.bin"); err != nil {
//	    return err
//	}
package loader

// Package usb is the transport layer between pongoOS sessions and the host
// USB stack.
//
// Device and Bus describe the few primitives a session needs: control and
// bulk transfers, interface claim and release, and arrival watches. LibUSB
// implements them on libusb through github.com/google/gousb; package usbtest
// provides a recording fake.
//
// Transfers block until the host stack completes them. With the default
// transfer timeout of zero they wait indefinitely, which is what the
// bootloader expects while it digests a large upload.
//
// Arrival watches on LibUSB poll: each Pump after the first waits one poll
// interval, re-enumerates the bus and reports matching devices that were not
// present in the previous snapshot.
package usb

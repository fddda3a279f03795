// Package module loads pongoOS module files.
//
// A module is an opaque binary (usually a Mach-O image) pushed to the device
// as-is. Open maps it read-only so the upload reads straight from the page
// cache; callers release the mapping with Close as soon as the device has
// taken the payload.
//
// On unix hosts the mapping uses mmap(2) via golang.org/x/sys/unix. Other
// hosts read the file into memory.
package module

package module

import (
	"errors"
	"io/fs"
	"math"
	"os"
)

// Buffer is a read-only view of a module file. The bytes stay valid until
// Close.
type Buffer struct {
	path   string
	data   []byte
	unmap  func([]byte) error
	closed bool
}

// Stat checks that path names a non-empty regular file and returns its
// info.
func Stat(path string) (fs.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Op: "stat", Path: path, Err: unwrapPath(err)}
	}
	if !info.Mode().IsRegular() {
		return nil, &Error{Op: "stat", Path: path, Err: ErrNotRegular}
	}
	if info.Size() == 0 {
		return nil, &Error{Op: "stat", Path: path, Err: ErrEmpty}
	}
	if info.Size() > math.MaxInt {
		return nil, &Error{Op: "stat", Path: path, Err: ErrTooLarge}
	}
	return info, nil
}

// Open maps the module file at path read-only.
//
// Example:
//
//	buf, err := module.Open("kpf.bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer buf.Close()
//	fmt.Printf("Module size %#x\n", buf.Len())
func Open(path string) (*Buffer, error) {
	info, err := Stat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Op: "open", Path: path, Err: unwrapPath(err)}
	}
	// The mapping outlives the descriptor.
	defer func() { _ = f.Close() }()

	data, unmap, err := mapFile(f, int(info.Size()))
	if err != nil {
		return nil, &Error{Op: "map", Path: path, Err: err}
	}

	return &Buffer{path: path, data: data, unmap: unmap}, nil
}

// Bytes returns the module contents, or nil after Close.
func (b *Buffer) Bytes() []byte {
	if b.closed {
		return nil
	}
	return b.data
}

// Len returns the module size in bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Path returns the file the buffer was mapped from.
func (b *Buffer) Path() string {
	return b.path
}

// Close releases the mapping. It is safe to call more than once.
func (b *Buffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	data := b.data
	b.data = nil
	if err := b.unmap(data); err != nil {
		return &Error{Op: "unmap", Path: b.path, Err: err}
	}
	return nil
}

// unwrapPath drops the *fs.PathError layer; Error already carries the path.
func unwrapPath(err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

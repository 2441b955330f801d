package fio

import "errors"

// ErrReadOnly is returned by write operations on read-only managers.
var ErrReadOnly = errors.New("fio: io manager is read-only")

// IOManager can be custom in options
type IOManager interface {
	// Read fills buf from the absolute offset, positional, no seek state
	Read(buf []byte, offset int64) (int, error)
	// Write appends data at the end of the file
	Write(data []byte) (int, error)
	Sync() error
	Close() error
	Size() (int64, error)
	// Truncate drops everything past size; used to cut a torn tail
	Truncate(size int64) error
}

// IOManagerCreator opens an IOManager for the file at path.
// readonly managers may reject Write and Truncate with ErrReadOnly.
type IOManagerCreator func(path string, readonly bool) (IOManager, error)

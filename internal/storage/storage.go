// Package storage abstracts where downloaded pieces are kept.
package storage

import "io"

// Storage opens the file that holds the data of a torrent.
type Storage interface {
	// Open returns the named file resized to size, creating it if needed.
	// exists reports whether the file was there before the call.
	Open(name string, size int64) (f File, exists bool, err error)
}

// File is random access storage for pieces.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

//go:build !linux

package filestorage

import "os"

// Access pattern hints are only given on Linux.
func adviseRandomAccess(*os.File) error { return nil }

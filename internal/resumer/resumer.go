// Package resumer defines how a running download persists its progress.
package resumer

// Resumer is called by the downloader after every verified piece.
type Resumer interface {
	// WriteBitfield saves the bitfield of verified pieces.
	WriteBitfield([]byte) error
	WriteStats(Stats) error
}

// Stats are the byte counters that survive restarts.
type Stats struct {
	BytesDownloaded int64
	// Bytes of pieces that failed the hash check.
	BytesWasted int64
}

// Package tracker defines the announce exchange with BitTorrent trackers.
package tracker

import (
	"context"
	"errors"
	"net"
	"time"
)

// Tracker is a source of peers for a torrent.
type Tracker interface {
	// Announce reports our transfer state and returns the peers the tracker knows about.
	Announce(ctx context.Context, req AnnounceRequest) (*AnnounceResponse, error)
	// URL is used in logs and stats.
	URL() string
}

// Event is the optional "event" parameter of an announce.
type Event int32

// Values match the ones used by UDP trackers.
const (
	EventNone Event = iota
	EventCompleted
	EventStarted
	EventStopped
)

// String returns the query value of the event. EventNone is sent as an empty string.
func (e Event) String() string {
	switch e {
	case EventCompleted:
		return "completed"
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	default:
		return ""
	}
}

// Torrent is the transfer state reported to trackers.
type Torrent struct {
	InfoHash        [20]byte
	PeerID          [20]byte
	Port            int
	BytesUploaded   int64
	BytesDownloaded int64
	BytesLeft       int64
}

// AnnounceRequest contains the parameters of an announce.
type AnnounceRequest struct {
	Torrent Torrent
	Event   Event
	NumWant int
}

// AnnounceResponse is a successful reply of a tracker.
type AnnounceResponse struct {
	Interval       time.Duration
	MinInterval    time.Duration
	Seeders        int32
	Leechers       int32
	WarningMessage string
	Peers          []*net.TCPAddr
}

// ErrDecode is wrapped by errors returned for malformed tracker replies.
var ErrDecode = errors.New("cannot decode response")

// Error is a "failure reason" sent by the tracker.
// Requests failed with an Error are not retried before RetryIn passes.
type Error struct {
	FailureReason string
	RetryIn       time.Duration
}

func (e *Error) Error() string { return e.FailureReason }

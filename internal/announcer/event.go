package announcer

import (
	"context"
	"sync"
	"time"

	"github.com/drizzlebt/drizzle/internal/logger"
	"github.com/drizzlebt/drizzle/internal/tracker"
)

// AnnounceEvent sends event to all trackers concurrently and waits for the responses until timeout.
// It is used for the completed and stopped events at the end of a download.
func AnnounceEvent(trackers []tracker.Tracker, event tracker.Event, torrent tracker.Torrent, timeout time.Duration, l logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, trk := range trackers {
		wg.Add(1)
		go func(trk tracker.Tracker) {
			defer wg.Done()
			req := tracker.AnnounceRequest{
				Torrent: torrent,
				Event:   event,
			}
			if _, err := trk.Announce(ctx, req); err != nil {
				l.Debugf("cannot send %s event to %s: %s", event, trk.URL(), err)
			}
		}(trk)
	}
	wg.Wait()
}

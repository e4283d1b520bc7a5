// Package announcer sends announce requests to trackers on behalf of a download.
package announcer

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/drizzlebt/drizzle/internal/logger"
	"github.com/drizzlebt/drizzle/internal/tracker"
)

var newRetryBackOff = func() *backoff.ExponentialBackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         30 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Clock:               backoff.SystemClock,
	}
}

// Announce sends a single announce to the tracker.
// Transport errors are retried at most maxRetries times with exponential backoff.
// A failure reason sent by the tracker is returned immediately as *tracker.Error.
func Announce(ctx context.Context, trk tracker.Tracker, req tracker.AnnounceRequest, maxRetries uint64, l logger.Logger) (*tracker.AnnounceResponse, error) {
	var resp *tracker.AnnounceResponse
	op := func() error {
		var err error
		resp, err = trk.Announce(ctx, req)
		var terr *tracker.Error
		if errors.As(err, &terr) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		l.Debugf("announce to %s failed: %s, retrying in %s", trk.URL(), err, d)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(newRetryBackOff(), maxRetries), ctx)
	err := backoff.RetryNotify(op, bo, notify)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return resp, nil
}

func announce(
	ctx context.Context,
	trk tracker.Tracker,
	e tracker.Event,
	numWant int,
	torrent tracker.Torrent,
	responseC chan *tracker.AnnounceResponse,
	errC chan error,
) {
	annReq := tracker.AnnounceRequest{
		Torrent: torrent,
		Event:   e,
		NumWant: numWant,
	}
	annResp, err := trk.Announce(ctx, annReq)
	if errors.Is(err, context.Canceled) {
		return
	}
	if err != nil {
		select {
		case errC <- err:
		case <-ctx.Done():
		}
		return
	}
	select {
	case responseC <- annResp:
	case <-ctx.Done():
	}
}

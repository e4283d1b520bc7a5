package tracker

import (
	"context"
	"math/rand"
	"sync"
)

// Tier is a group of equivalent trackers from an announce-list.
// Announces go to one tracker at a time. A tracker that fails is skipped on the next
// announce and a tracker that succeeds is moved to the front of the tier.
type Tier struct {
	mu       sync.Mutex
	trackers []Tracker
	current  int
}

var _ Tracker = (*Tier)(nil)

// NewTier returns a Tier with trackers in random order.
func NewTier(trackers []Tracker) *Tier {
	t := &Tier{trackers: append([]Tracker(nil), trackers...)}
	rand.Shuffle(len(t.trackers), func(i, j int) { t.trackers[i], t.trackers[j] = t.trackers[j], t.trackers[i] })
	return t
}

// Announce to the current tracker of the tier.
func (t *Tier) Announce(ctx context.Context, req AnnounceRequest) (*AnnounceResponse, error) {
	t.mu.Lock()
	i := t.current
	trk := t.trackers[i]
	t.mu.Unlock()

	resp, err := trk.Announce(ctx, req)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.trackers[t.current] != trk {
		// Another announce has already moved the tier.
		return resp, err
	}
	if err != nil {
		t.current = (i + 1) % len(t.trackers)
		return resp, err
	}
	copy(t.trackers[1:i+1], t.trackers[:i])
	t.trackers[0] = trk
	t.current = 0
	return resp, nil
}

// URL of the tracker that the next announce goes to.
func (t *Tier) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trackers[t.current].URL()
}

// Trackers returns the trackers in their current order.
func (t *Tier) Trackers() []Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Tracker(nil), t.trackers...)
}

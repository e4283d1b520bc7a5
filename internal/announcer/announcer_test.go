package announcer

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/drizzlebt/drizzle/internal/logger"
	"github.com/drizzlebt/drizzle/internal/tracker"
	"github.com/drizzlebt/drizzle/internal/tracker/httptracker"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTracker struct {
	m      sync.Mutex
	errs   []error
	resp   *tracker.AnnounceResponse
	events []tracker.Event
	calls  int
}

func (t *fakeTracker) URL() string { return "http://tracker.test/announce" }

func (t *fakeTracker) Announce(ctx context.Context, req tracker.AnnounceRequest) (*tracker.AnnounceResponse, error) {
	t.m.Lock()
	defer t.m.Unlock()
	t.calls++
	t.events = append(t.events, req.Event)
	if len(t.errs) > 0 {
		err := t.errs[0]
		t.errs = t.errs[1:]
		return nil, err
	}
	return t.resp, nil
}

func (t *fakeTracker) Events() []tracker.Event {
	t.m.Lock()
	defer t.m.Unlock()
	return append([]tracker.Event(nil), t.events...)
}

func fastBackOff(t *testing.T) {
	orig := newRetryBackOff
	newRetryBackOff = func() *backoff.ExponentialBackOff {
		b := orig()
		b.InitialInterval = time.Millisecond
		b.MaxInterval = time.Millisecond
		return b
	}
	t.Cleanup(func() { newRetryBackOff = orig })
}

var testPeers = []*net.TCPAddr{{IP: net.IPv4(127, 0, 0, 1), Port: 6881}}

func TestAnnounceRetry(t *testing.T) {
	fastBackOff(t)
	trk := &fakeTracker{
		errs: []error{errors.New("connection reset"), errors.New("connection reset")},
		resp: &tracker.AnnounceResponse{Interval: time.Minute, Peers: testPeers},
	}
	resp, err := Announce(context.Background(), trk, tracker.AnnounceRequest{}, 3, logger.New("test"))
	require.NoError(t, err)
	assert.Equal(t, testPeers, resp.Peers)
	assert.Equal(t, 3, trk.calls)
}

func TestAnnounceRetryExhausted(t *testing.T) {
	fastBackOff(t)
	errReset := errors.New("connection reset")
	trk := &fakeTracker{errs: []error{errReset, errReset, errReset}}
	_, err := Announce(context.Background(), trk, tracker.AnnounceRequest{}, 1, logger.New("test"))
	assert.Equal(t, errReset, err)
	assert.Equal(t, 2, trk.calls)
}

func TestAnnounceFailureReasonNotRetried(t *testing.T) {
	fastBackOff(t)
	trk := &fakeTracker{errs: []error{&tracker.Error{FailureReason: "unregistered torrent"}}}
	_, err := Announce(context.Background(), trk, tracker.AnnounceRequest{}, 3, logger.New("test"))
	var terr *tracker.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "unregistered torrent", terr.FailureReason)
	assert.Equal(t, 1, trk.calls)
}

func TestAnnounceCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	trk := &fakeTracker{errs: []error{errors.New("connection reset")}}
	_, err := Announce(ctx, trk, tracker.AnnounceRequest{}, 3, logger.New("test"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPeriodicalAnnouncer(t *testing.T) {
	defer leaktest.Check(t)()

	trk := &fakeTracker{resp: &tracker.AnnounceResponse{Interval: time.Hour, Seeders: 4, Leechers: 2, Peers: testPeers}}
	newPeers := make(chan []*net.TCPAddr)
	getTorrent := func() tracker.Torrent { return tracker.Torrent{BytesLeft: 100} }
	a := NewPeriodicalAnnouncer(trk, 50, time.Minute, getTorrent, newPeers, logger.New("test"))
	go a.Run()
	defer a.Close()

	select {
	case peers := <-newPeers:
		assert.Equal(t, testPeers, peers)
	case <-time.After(time.Second):
		t.Fatal("no peers received")
	}
	stats := a.Stats()
	assert.Equal(t, Working, stats.Status)
	assert.Equal(t, 4, stats.Seeders)
	assert.Equal(t, 2, stats.Leechers)
	assert.Nil(t, stats.Error)

	// Need more peers makes the next announce use min interval from now on.
	a.NeedMorePeers(true)
	assert.Equal(t, []tracker.Event{tracker.EventStarted}, trk.Events())
}

func TestPeriodicalAnnouncerError(t *testing.T) {
	defer leaktest.Check(t)()

	trk := &fakeTracker{errs: []error{&tracker.Error{FailureReason: "banned", RetryIn: time.Hour}}}
	newPeers := make(chan []*net.TCPAddr)
	a := NewPeriodicalAnnouncer(trk, 50, time.Minute, func() tracker.Torrent { return tracker.Torrent{} }, newPeers, logger.New("test"))
	go a.Run()
	defer a.Close()

	require.Eventually(t, func() bool { return a.Stats().Status == NotWorking }, time.Second, 10*time.Millisecond)
	stats := a.Stats()
	require.NotNil(t, stats.Error)
	assert.Equal(t, "announce error: banned", stats.Error.Message)
	assert.False(t, stats.Error.Unknown)
}

func TestAnnounceErrorMessages(t *testing.T) {
	e := newAnnounceError(&httptracker.StatusError{Code: 404})
	assert.Equal(t, "tracker returned http status: 404", e.Message)

	e = newAnnounceError(&net.DNSError{Name: "tracker.invalid", IsNotFound: true})
	assert.Equal(t, "host not found: tracker.invalid", e.Message)

	e = newAnnounceError(errors.New("boom"))
	assert.True(t, e.Unknown)
	assert.Equal(t, "*errors.errorString: boom", e.ErrorWithType())
}

func TestAnnounceEvent(t *testing.T) {
	defer leaktest.Check(t)()

	t1 := &fakeTracker{resp: &tracker.AnnounceResponse{}}
	t2 := &fakeTracker{errs: []error{errors.New("down")}}
	AnnounceEvent([]tracker.Tracker{t1, t2}, tracker.EventStopped, tracker.Torrent{}, time.Second, logger.New("test"))
	assert.Equal(t, []tracker.Event{tracker.EventStopped}, t1.Events())
	assert.Equal(t, []tracker.Event{tracker.EventStopped}, t2.Events())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "working", Working.String())
	assert.Equal(t, "unknown", Status(42).String())
}

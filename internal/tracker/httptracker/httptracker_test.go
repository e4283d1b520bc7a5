package httptracker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/drizzlebt/drizzle/internal/tracker"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const timeout = 2 * time.Second

var infoHash = [20]byte{0xd6, 0x9f, 0x91, 0xe6, 0xb2, 0xae, 0x4c, 0x54, 0x24, 0x68, 0xd1, 0x07, 0x3a, 0x71, 0xd4, 0xea, 0x13, 0x87, 0x9a, 0x7f}

func newTracker(t *testing.T, rawURL string, maxResponseLength int64) *HTTPTracker {
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return New(rawURL, u, timeout, new(http.Transport), "drizzle-test", maxResponseLength)
}

func request() tracker.AnnounceRequest {
	return tracker.AnnounceRequest{
		Torrent: tracker.Torrent{
			InfoHash:  infoHash,
			PeerID:    [20]byte{'-', 'D', 'Z', '0', '1', '0', '0', '-', ' ', '+', '&', '=', 0xff},
			Port:      6881,
			BytesLeft: 1000,
		},
		Event:   tracker.EventStarted,
		NumWant: 50,
	}
}

func TestAnnounce(t *testing.T) {
	defer leaktest.Check(t)()
	var query url.Values
	var rawQuery string
	var userAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		query = r.URL.Query()
		userAgent = r.UserAgent()
		_, _ = w.Write([]byte("d8:intervali1800e5:peers6:\x7f\x00\x00\x01\x1a\xe1e"))
	}))
	defer srv.Close()

	trk := newTracker(t, srv.URL+"/announce?passkey=secret", 1<<20)
	defer trk.Close()
	resp, err := trk.Announce(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, resp.Interval)
	require.Len(t, resp.Peers, 1)
	assert.Equal(t, "127.0.0.1:6881", resp.Peers[0].String())

	req := request()
	assert.Equal(t, string(infoHash[:]), query.Get("info_hash"))
	assert.Equal(t, string(req.Torrent.PeerID[:]), query.Get("peer_id"))
	assert.Equal(t, "secret", query.Get("passkey"))
	assert.Equal(t, "6881", query.Get("port"))
	assert.Equal(t, "0", query.Get("uploaded"))
	assert.Equal(t, "0", query.Get("downloaded"))
	assert.Equal(t, "1000", query.Get("left"))
	assert.Equal(t, "1", query.Get("compact"))
	assert.Equal(t, "started", query.Get("event"))
	assert.Equal(t, "50", query.Get("numwant"))
	assert.Equal(t, "drizzle-test", userAgent)
	assert.Contains(t, rawQuery, "info_hash=%D6%9F%91%E6%B2%AELT%24h%D1%07%3Aq%D4%EA%13%87%9A%7F")
	assert.Contains(t, rawQuery, "peer_id=-DZ0100-%20%2B%26%3D%FF")
}

func TestAnnounceNoEvent(t *testing.T) {
	defer leaktest.Check(t)()
	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte("d8:intervali60e5:peers0:e"))
	}))
	defer srv.Close()

	trk := newTracker(t, srv.URL, 1<<20)
	defer trk.Close()
	req := request()
	req.Event = tracker.EventNone
	req.NumWant = 0
	resp, err := trk.Announce(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, resp.Peers)
	_, ok := query["event"]
	assert.False(t, ok)
	_, ok = query["numwant"]
	assert.False(t, ok)
}

func TestAnnounceErrors(t *testing.T) {
	defer leaktest.Check(t)()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/failure":
			_, _ = w.Write([]byte("d14:failure reason13:not authorizee"))
		case "/status":
			http.Error(w, "gone", http.StatusNotFound)
		case "/large":
			_, _ = w.Write([]byte("d8:intervali60e5:peers30:" + strings.Repeat("x", 30) + "e"))
		case "/garbage":
			_, _ = w.Write([]byte("<html>"))
		}
	}))
	defer srv.Close()

	trk := newTracker(t, srv.URL+"/failure", 1<<20)
	_, err := trk.Announce(context.Background(), request())
	var terr *tracker.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "not authorize", terr.FailureReason)
	trk.Close()

	trk = newTracker(t, srv.URL+"/status", 1<<20)
	_, err = trk.Announce(context.Background(), request())
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusNotFound, serr.Code)
	trk.Close()

	trk = newTracker(t, srv.URL+"/large", 32)
	_, err = trk.Announce(context.Background(), request())
	assert.Error(t, err)
	trk.Close()

	trk = newTracker(t, srv.URL+"/garbage", 1<<20)
	_, err = trk.Announce(context.Background(), request())
	assert.True(t, errors.Is(err, tracker.ErrDecode))
	trk.Close()
}

func TestAnnounceCancel(t *testing.T) {
	defer leaktest.Check(t)()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	trk := newTracker(t, srv.URL, 1<<20)
	defer trk.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := trk.Announce(ctx, request())
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "%v", err)
}

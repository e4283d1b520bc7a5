// Package httptracker implements the HTTP transport of the tracker announce protocol.
package httptracker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/drizzlebt/drizzle/internal/logger"
	"github.com/drizzlebt/drizzle/internal/tracker"
)

// StatusError is returned when the tracker replies with a status other than 200 OK.
type StatusError struct {
	Code int
	// Start of the response body, for logs.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected http status: %d %s", e.Code, http.StatusText(e.Code))
}

// HTTPTracker announces to a tracker over HTTP.
type HTTPTracker struct {
	rawURL            string
	url               *url.URL
	log               logger.Logger
	http              *http.Client
	transport         *http.Transport
	userAgent         string
	maxResponseLength int64
}

var _ tracker.Tracker = (*HTTPTracker)(nil)

// New returns a new HTTPTracker.
func New(rawURL string, u *url.URL, timeout time.Duration, t *http.Transport, userAgent string, maxResponseLength int64) *HTTPTracker {
	return &HTTPTracker{
		rawURL:            rawURL,
		url:               u,
		log:               logger.New("tracker " + u.String()),
		transport:         t,
		userAgent:         userAgent,
		maxResponseLength: maxResponseLength,
		http: &http.Client{
			Timeout:   timeout,
			Transport: t,
		},
	}
}

// URL returns the URL of the tracker.
func (t *HTTPTracker) URL() string {
	return t.rawURL
}

// Announce the torrent to the tracker and return the peers.
func (t *HTTPTracker) Announce(ctx context.Context, req tracker.AnnounceRequest) (*tracker.AnnounceResponse, error) {
	u := *t.url
	u.RawQuery = announceQuery(t.url.RawQuery, req)
	t.log.Debugf("making request to: %q", u.String())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if t.userAgent != "" {
		httpReq.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxResponseLength+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > t.maxResponseLength {
		return nil, fmt.Errorf("tracker response is larger than %d bytes", t.maxResponseLength)
	}

	response, err := tracker.ParseResponse(body)
	if err != nil {
		return nil, err
	}
	if response.WarningMessage != "" {
		t.log.Warning(response.WarningMessage)
	}
	return response, nil
}

// announceQuery returns the query string of an announce, appended to the query already present in the tracker URL.
// Binary parameters are escaped byte by byte.
func announceQuery(base string, req tracker.AnnounceRequest) string {
	q := url.Values{}
	q.Set("port", strconv.Itoa(req.Torrent.Port))
	q.Set("uploaded", strconv.FormatInt(req.Torrent.BytesUploaded, 10))
	q.Set("downloaded", strconv.FormatInt(req.Torrent.BytesDownloaded, 10))
	q.Set("left", strconv.FormatInt(req.Torrent.BytesLeft, 10))
	q.Set("compact", "1")
	q.Set("no_peer_id", "1")
	if req.NumWant > 0 {
		q.Set("numwant", strconv.Itoa(req.NumWant))
	}
	if req.Event != tracker.EventNone {
		q.Set("event", req.Event.String())
	}

	var sb strings.Builder
	if base != "" {
		sb.WriteString(base)
		sb.WriteByte('&')
	}
	sb.WriteString("info_hash=")
	sb.WriteString(escapeBytes(req.Torrent.InfoHash[:]))
	sb.WriteString("&peer_id=")
	sb.WriteString(escapeBytes(req.Torrent.PeerID[:]))
	sb.WriteByte('&')
	sb.WriteString(q.Encode())
	return sb.String()
}

func escapeBytes(b []byte) string {
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	for _, c := range b {
		if isUnreserved(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0x0f])
	}
	return sb.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}

// Close idle connections of the transport.
func (t *HTTPTracker) Close() error {
	t.transport.CloseIdleConnections()
	return nil
}

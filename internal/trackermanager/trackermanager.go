// Package trackermanager creates Tracker instances from announce URLs.
package trackermanager

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/drizzlebt/drizzle/internal/resolver"
	"github.com/drizzlebt/drizzle/internal/tracker"
	"github.com/drizzlebt/drizzle/internal/tracker/httptracker"
)

// ErrUnsupportedScheme is returned for tracker URLs other than http and https.
var ErrUnsupportedScheme = errors.New("unsupported tracker scheme")

// TrackerManager shares a single HTTP transport between all trackers it creates.
type TrackerManager struct {
	httpTransport *http.Transport
	httpTimeout   time.Duration
	userAgent     string
	maxLength     int64
}

// New returns a TrackerManager.
// Tracker host names are resolved to IPv4 addresses within dnsTimeout. dialTimeout limits the TCP connect time.
func New(dnsTimeout, dialTimeout, httpTimeout time.Duration, userAgent string, maxResponseLength int64) *TrackerManager {
	m := &TrackerManager{
		httpTransport: new(http.Transport),
		httpTimeout:   httpTimeout,
		userAgent:     userAgent,
		maxLength:     maxResponseLength,
	}
	m.httpTransport.Proxy = http.ProxyFromEnvironment
	m.httpTransport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		taddr, err := resolver.ResolveTCP(ctx, addr, dnsTimeout)
		if err != nil {
			return nil, err
		}
		d := net.Dialer{Timeout: dialTimeout}
		return d.DialContext(ctx, "tcp4", taddr.String())
	}
	return m
}

// Get returns a Tracker for the URL s.
func (m *TrackerManager) Get(s string) (tracker.Tracker, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https":
		return httptracker.New(s, u, m.httpTimeout, m.httpTransport, m.userAgent, m.maxLength), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
}

// GetTiers returns one Tracker per tier of announceList.
// Tiers with more than one tracker announce to the next tracker in the tier after an error.
// If announceList has no usable tracker, announce is used alone.
func (m *TrackerManager) GetTiers(announce string, announceList [][]string) ([]tracker.Tracker, error) {
	var ret []tracker.Tracker
	for _, tier := range announceList {
		var trackers []tracker.Tracker
		for _, s := range tier {
			trk, err := m.Get(s)
			if err != nil {
				continue
			}
			trackers = append(trackers, trk)
		}
		switch len(trackers) {
		case 0:
		case 1:
			ret = append(ret, trackers[0])
		default:
			ret = append(ret, tracker.NewTier(trackers))
		}
	}
	if len(ret) > 0 {
		return ret, nil
	}
	trk, err := m.Get(announce)
	if err != nil {
		return nil, err
	}
	return []tracker.Tracker{trk}, nil
}

// Close releases idle connections to trackers.
func (m *TrackerManager) Close() {
	m.httpTransport.CloseIdleConnections()
}

package announcer

import (
	"context"
	"errors"
	"math"
	"net"
	"reflect"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/drizzlebt/drizzle/internal/logger"
	"github.com/drizzlebt/drizzle/internal/tracker"
	"github.com/drizzlebt/drizzle/internal/tracker/httptracker"
)

// Status of the announcer as seen by the user.
type Status int

const (
	NotContactedYet Status = iota
	Contacting
	Working
	NotWorking
)

var statusNames = [...]string{
	"not contacted yet",
	"contacting",
	"working",
	"not working",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// PeriodicalAnnouncer announces to a single tracker in a loop until closed.
// Peers returned by the tracker are sent to the newPeers channel.
// The completed and stopped events are sent with AnnounceEvent when the download ends.
type PeriodicalAnnouncer struct {
	Tracker    tracker.Tracker
	numWant    int
	getTorrent func() tracker.Torrent
	newPeers   chan []*net.TCPAddr
	backoff    backoff.BackOff
	log        logger.Logger

	minInterval  time.Duration
	interval     time.Duration
	lastAnnounce time.Time

	m         sync.Mutex
	status    Status
	seeders   int
	leechers  int
	lastError *AnnounceError

	needMorePeers  bool
	mNeedMorePeers sync.RWMutex
	needMorePeersC chan struct{}

	responseC chan *tracker.AnnounceResponse
	errC      chan error
	closeC    chan struct{}
	doneC     chan struct{}
}

// NewPeriodicalAnnouncer returns an announcer for trk.
func NewPeriodicalAnnouncer(trk tracker.Tracker, numWant int, minInterval time.Duration, getTorrent func() tracker.Torrent, newPeers chan []*net.TCPAddr, l logger.Logger) *PeriodicalAnnouncer {
	return &PeriodicalAnnouncer{
		Tracker:        trk,
		numWant:        numWant,
		getTorrent:     getTorrent,
		newPeers:       newPeers,
		minInterval:    minInterval,
		log:            l,
		status:         NotContactedYet,
		needMorePeersC: make(chan struct{}, 1),
		responseC:      make(chan *tracker.AnnounceResponse),
		errC:           make(chan error),
		closeC:         make(chan struct{}),
		doneC:          make(chan struct{}),
		backoff: &backoff.ExponentialBackOff{
			InitialInterval:     5 * time.Second,
			RandomizationFactor: 0.5,
			Multiplier:          2,
			MaxInterval:         30 * time.Minute,
			MaxElapsedTime:      0, // never stop
			Clock:               backoff.SystemClock,
		},
	}
}

// Close stops the announce loop and waits for it to exit.
func (a *PeriodicalAnnouncer) Close() {
	close(a.closeC)
	<-a.doneC
}

// NeedMorePeers makes the announcer use the minimum interval instead of the regular one.
func (a *PeriodicalAnnouncer) NeedMorePeers(val bool) {
	a.mNeedMorePeers.Lock()
	a.needMorePeers = val
	a.mNeedMorePeers.Unlock()
	select {
	case a.needMorePeersC <- struct{}{}:
	default:
	}
}

func (a *PeriodicalAnnouncer) wantsMorePeers() bool {
	a.mNeedMorePeers.RLock()
	defer a.mNeedMorePeers.RUnlock()
	return a.needMorePeers
}

func (a *PeriodicalAnnouncer) setStatus(s Status) {
	a.m.Lock()
	a.status = s
	a.m.Unlock()
}

// Run announces "started" first and then keeps announcing at the interval returned by the tracker.
func (a *PeriodicalAnnouncer) Run() {
	defer close(a.doneC)
	a.backoff.Reset()

	timer := time.NewTimer(math.MaxInt64)
	defer timer.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	contacting := true
	go a.announce(ctx, tracker.EventStarted, a.numWant)
	a.setStatus(Contacting)
	for {
		select {
		case <-timer.C:
			if contacting {
				break
			}
			contacting = true
			go a.announce(ctx, tracker.EventNone, a.numWant)
			a.setStatus(Contacting)
		case resp := <-a.responseC:
			contacting = false
			a.lastAnnounce = time.Now()
			a.interval = resp.Interval
			if resp.MinInterval > 0 {
				a.minInterval = resp.MinInterval
			}
			a.m.Lock()
			a.status = Working
			a.seeders = int(resp.Seeders)
			a.leechers = int(resp.Leechers)
			a.lastError = nil
			a.m.Unlock()
			a.backoff.Reset()
			if a.wantsMorePeers() {
				timer.Reset(a.minInterval)
			} else {
				timer.Reset(a.interval)
			}
			if len(resp.Peers) > 0 {
				select {
				case a.newPeers <- resp.Peers:
				case <-a.closeC:
					return
				}
			}
		case err := <-a.errC:
			contacting = false
			a.lastAnnounce = time.Now()
			aerr := newAnnounceError(err)
			a.m.Lock()
			a.status = NotWorking
			a.lastError = aerr
			a.m.Unlock()
			if aerr.Unknown {
				a.log.Errorln("announce error:", aerr.ErrorWithType())
			} else {
				a.log.Debugln("announce error:", aerr.Err.Error())
			}
			var terr *tracker.Error
			if errors.As(err, &terr) && terr.RetryIn > 0 {
				timer.Reset(terr.RetryIn)
			} else {
				timer.Reset(a.backoff.NextBackOff())
			}
		case <-a.needMorePeersC:
			if contacting || a.lastAnnounce.IsZero() {
				break
			}
			if a.wantsMorePeers() {
				timer.Reset(time.Until(a.lastAnnounce.Add(a.minInterval)))
			} else {
				timer.Reset(time.Until(a.lastAnnounce.Add(a.interval)))
			}
		case <-a.closeC:
			return
		}
	}
}

func (a *PeriodicalAnnouncer) announce(ctx context.Context, event tracker.Event, numWant int) {
	announce(ctx, a.Tracker, event, numWant, a.getTorrent(), a.responseC, a.errC)
}

// Stats is a snapshot of the announcer state.
type Stats struct {
	Status   Status
	Error    *AnnounceError
	Seeders  int
	Leechers int
}

// Stats returns the current state of the announcer. It is safe to call from any goroutine.
func (a *PeriodicalAnnouncer) Stats() Stats {
	a.m.Lock()
	defer a.m.Unlock()
	return Stats{
		Status:   a.status,
		Error:    a.lastError,
		Seeders:  a.seeders,
		Leechers: a.leechers,
	}
}

// AnnounceError wraps an announce error with a message that can be shown to the user.
type AnnounceError struct {
	Err     error
	Message string
	Unknown bool
}

func newAnnounceError(err error) *AnnounceError {
	e := &AnnounceError{Err: err}
	var (
		dnsErr    *net.DNSError
		statusErr *httptracker.StatusError
		trkErr    *tracker.Error
		netErr    net.Error
	)
	switch {
	case errors.As(err, &trkErr):
		e.Message = "announce error: " + trkErr.FailureReason
	case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
		e.Message = "host not found: " + dnsErr.Name
	case errors.Is(err, syscall.ECONNREFUSED):
		e.Message = "tracker refused the connection"
	case errors.As(err, &netErr) && netErr.Timeout():
		e.Message = "timeout contacting tracker"
	case errors.As(err, &statusErr):
		e.Message = "tracker returned http status: " + strconv.Itoa(statusErr.Code)
	case errors.Is(err, tracker.ErrDecode):
		e.Message = "invalid response from tracker"
	default:
		e.Message = "unknown error in announce"
		e.Unknown = true
	}
	return e
}

func (e *AnnounceError) Error() string { return e.Message }

// ErrorWithType returns the error string prefixed with the type of the underlying error.
func (e *AnnounceError) ErrorWithType() string {
	return reflect.TypeOf(e.Err).String() + ": " + e.Err.Error()
}

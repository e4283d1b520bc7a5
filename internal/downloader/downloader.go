// Package downloader downloads a torrent from many peers in parallel.
package downloader

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/drizzlebt/drizzle/internal/addrlist"
	"github.com/drizzlebt/drizzle/internal/announcer"
	"github.com/drizzlebt/drizzle/internal/bitfield"
	"github.com/drizzlebt/drizzle/internal/logger"
	"github.com/drizzlebt/drizzle/internal/metainfo"
	"github.com/drizzlebt/drizzle/internal/peersession"
	"github.com/drizzlebt/drizzle/internal/piece"
	"github.com/drizzlebt/drizzle/internal/piecepicker"
	"github.com/drizzlebt/drizzle/internal/resumer"
	"github.com/drizzlebt/drizzle/internal/semaphore"
	"github.com/drizzlebt/drizzle/internal/storage"
	"github.com/drizzlebt/drizzle/internal/tracker"
	"github.com/drizzlebt/drizzle/internal/worker"
)

// Config for Downloader.
type Config struct {
	// Maximum number of peer sessions running at the same time.
	MaxPeers int
	// Maximum number of peer addresses waiting to be connected.
	MaxPeerAddresses int
	// Port that is reported to trackers.
	Port int
	// Number of peers requested from trackers.
	NumWant int
	// Announce interval when more peers are needed.
	MinAnnounceInterval time.Duration
	// Time to wait for trackers to respond to the completed and stopped events.
	StoppedEventTimeout time.Duration
	// Config of each peer session.
	Session peersession.Config
}

// DefaultConfig for Downloader.
var DefaultConfig = Config{
	MaxPeers:            10,
	MaxPeerAddresses:    2000,
	Port:                6881,
	NumWant:             50,
	MinAnnounceInterval: time.Minute,
	StoppedEventTimeout: 5 * time.Second,
	Session:             peersession.DefaultConfig,
}

// Downloader runs a worker for each connected peer. Workers claim pieces from a shared PiecePicker,
// so a piece is downloaded by a single peer at a time and never downloaded again after it is written.
type Downloader struct {
	info      *metainfo.Info
	pieces    []piece.Piece
	picker    *piecepicker.PiecePicker
	file      storage.File
	resumer   resumer.Resumer
	trackers  []tracker.Tracker
	peerID    [20]byte
	config    Config
	log       logger.Logger
	createdAt time.Time
	metrics   *downloadMetrics

	// Set if the download was already complete when started.
	completedAtStart bool

	announcers []*announcer.PeriodicalAnnouncer
	newPeers   chan []*net.TCPAddr

	mAddrs    sync.Mutex
	addrs     *addrlist.AddrList
	connected map[string]struct{}

	sem       *semaphore.Semaphore
	workers   worker.Workers
	peerDoneC chan string
	errC      chan error

	mWrite sync.Mutex
}

// New returns a Downloader that writes pieces of info to file.
// Pieces set in completed are assumed to be verified already. completed and res may be nil.
func New(info *metainfo.Info, file storage.File, completed *bitfield.Bitfield, res resumer.Resumer, stats resumer.Stats, trackers []tracker.Tracker, peerID [20]byte, cfg Config, l logger.Logger) *Downloader {
	if cfg.MaxPeers <= 0 {
		cfg.MaxPeers = DefaultConfig.MaxPeers
	}
	if cfg.MaxPeerAddresses <= 0 {
		cfg.MaxPeerAddresses = DefaultConfig.MaxPeerAddresses
	}
	pieces := piece.NewPieces(info)
	d := &Downloader{
		info:      info,
		pieces:    pieces,
		picker:    piecepicker.New(pieces, completed),
		file:      file,
		resumer:   res,
		trackers:  trackers,
		peerID:    peerID,
		config:    cfg,
		log:       l,
		createdAt: time.Now(),
		newPeers:  make(chan []*net.TCPAddr),
		addrs:     addrlist.New(cfg.MaxPeerAddresses, cfg.Port),
		connected: make(map[string]struct{}),
		sem:       semaphore.New(cfg.MaxPeers),
		peerDoneC: make(chan string),
		errC:      make(chan error, 1),
	}
	d.completedAtStart = d.picker.Remaining() == 0
	d.initMetrics(stats.BytesDownloaded, stats.BytesWasted)
	for _, trk := range trackers {
		an := announcer.NewPeriodicalAnnouncer(trk, cfg.NumWant, cfg.MinAnnounceInterval, d.announceTorrent, d.newPeers, l)
		d.announcers = append(d.announcers, an)
	}
	return d
}

func (d *Downloader) announceTorrent() tracker.Torrent {
	return tracker.Torrent{
		BytesDownloaded: d.metrics.BytesDownloaded.Count(),
		BytesLeft:       d.picker.BytesLeft(),
		InfoHash:        d.info.Hash,
		PeerID:          d.peerID,
		Port:            d.config.Port,
	}
}

// AddPeers adds addresses to connect to, in addition to the ones returned by trackers.
// It must be called before Run.
func (d *Downloader) AddPeers(addrs []*net.TCPAddr) {
	d.mAddrs.Lock()
	d.addrs.Push(addrs)
	d.mAddrs.Unlock()
}

// Completed returns the pieces that are written to storage.
func (d *Downloader) Completed() *bitfield.Bitfield {
	return d.picker.Completed()
}

// Run downloads until all pieces are written or ctx is done.
// The error of the first failed storage write is returned.
func (d *Downloader) Run(ctx context.Context) error {
	defer d.metrics.Close()

	select {
	case <-d.picker.Done():
		d.log.Info("All pieces are already downloaded")
		return nil
	default:
	}

	for _, an := range d.announcers {
		go an.Run()
	}
	d.startPeers()

	var err error
	completed := false
	for {
		select {
		case addrs := <-d.newPeers:
			d.mAddrs.Lock()
			d.addrs.Push(addrs)
			d.mAddrs.Unlock()
			d.startPeers()
			continue
		case addr := <-d.peerDoneC:
			d.mAddrs.Lock()
			delete(d.connected, addr)
			d.mAddrs.Unlock()
			d.sem.Release()
			d.startPeers()
			continue
		case <-d.picker.Done():
			d.log.Info("Download completed")
			completed = true
		case err = <-d.errC:
			d.log.Errorln("Download stopped:", err)
		case <-ctx.Done():
			err = ctx.Err()
		}
		break
	}

	d.stop()
	if completed && !d.completedAtStart {
		announcer.AnnounceEvent(d.trackers, tracker.EventCompleted, d.announceTorrent(), d.config.StoppedEventTimeout, d.log)
	}
	announcer.AnnounceEvent(d.trackers, tracker.EventStopped, d.announceTorrent(), d.config.StoppedEventTimeout, d.log)
	return err
}

func (d *Downloader) stop() {
	for _, an := range d.announcers {
		an.Close()
	}
	// peerDoneC is not read anymore.
	go func() {
		for range d.peerDoneC {
		}
	}()
	d.workers.Stop()
	close(d.peerDoneC)
}

// startPeers starts sessions for waiting addresses while there are free slots.
func (d *Downloader) startPeers() {
	d.mAddrs.Lock()
	defer d.mAddrs.Unlock()
	for d.addrs.Len() > 0 && d.sem.TryAcquire() {
		var addr *net.TCPAddr
		for addr = d.addrs.Pop(); addr != nil; addr = d.addrs.Pop() {
			if _, ok := d.connected[addr.String()]; !ok {
				break
			}
		}
		if addr == nil {
			d.sem.Release()
			break
		}
		key := addr.String()
		d.connected[key] = struct{}{}
		d.workers.StartWithOnFinishHandler(worker.WorkerFunc(func(ctx context.Context) {
			d.runPeer(ctx, key)
		}), func() {
			d.peerDoneC <- key
		})
	}
	needMorePeers := d.addrs.Len() == 0 && d.sem.Free() > 0
	for _, an := range d.announcers {
		an.NeedMorePeers(needMorePeers)
	}
}

func (d *Downloader) runPeer(ctx context.Context, addr string) {
	l := logger.New("peer " + addr)
	s, err := peersession.Dial(ctx, addr, d.info.Hash, d.peerID, d.info.NumPieces, d.config.Session)
	if err != nil {
		l.Debugln("cannot connect to peer:", err)
		return
	}
	defer s.Close()
	d.metrics.Peers.Inc(1)
	defer d.metrics.Peers.Dec(1)

	for {
		pi, changedC := d.picker.Claim(s.HasPiece)
		if pi == nil {
			if changedC == nil {
				l.Debugln("peer has no piece that we need")
				return
			}
			select {
			case <-changedC:
				continue
			case <-ctx.Done():
				return
			}
		}
		data, err := s.DownloadPiece(ctx, pi)
		if err != nil {
			d.picker.Release(pi.Index)
			if errors.Is(err, peersession.ErrIntegrity) {
				d.metrics.PiecesFailed.Inc(1)
				d.metrics.BytesWasted.Inc(int64(pi.Length))
			}
			if !errors.Is(err, context.Canceled) {
				l.Debugf("cannot download piece #%d: %s", pi.Index, err)
			}
			return
		}
		d.metrics.BytesDownloaded.Inc(int64(len(data)))
		d.metrics.SpeedDownload.Mark(int64(len(data)))
		if err = d.writePiece(pi, data); err != nil {
			d.picker.Release(pi.Index)
			select {
			case d.errC <- err:
			default:
			}
			return
		}
	}
}

// writePiece writes a verified piece to storage, then records it as completed.
func (d *Downloader) writePiece(pi *piece.Piece, data []byte) error {
	d.mWrite.Lock()
	defer d.mWrite.Unlock()
	if _, err := d.file.WriteAt(data, d.info.PieceOffset(pi.Index)); err != nil {
		return err
	}
	d.metrics.SpeedWrite.Mark(int64(len(data)))
	if !d.picker.Complete(pi.Index) {
		return nil
	}
	d.log.Debugf("Piece #%d is written, %d remaining", pi.Index, d.picker.Remaining())
	if d.resumer == nil {
		return nil
	}
	if err := d.resumer.WriteBitfield(d.picker.Completed().Bytes()); err != nil {
		return err
	}
	return d.resumer.WriteStats(resumer.Stats{
		BytesDownloaded: d.metrics.BytesDownloaded.Count(),
		BytesWasted:     d.metrics.BytesWasted.Count(),
	})
}

// Package drizzle is a BitTorrent client that downloads single-file torrents over HTTP trackers.
package drizzle

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/drizzlebt/drizzle/internal/announcer"
	"github.com/drizzlebt/drizzle/internal/btconn"
	"github.com/drizzlebt/drizzle/internal/logger"
	"github.com/drizzlebt/drizzle/internal/metainfo"
	"github.com/drizzlebt/drizzle/internal/peersession"
	"github.com/drizzlebt/drizzle/internal/piece"
	"github.com/drizzlebt/drizzle/internal/tracker"
	"github.com/drizzlebt/drizzle/internal/trackermanager"
	"github.com/gofrs/uuid"
	"github.com/juju/ratelimit"
)

// Version of the client. Set when building: "$ go build -ldflags "-X github.com/drizzlebt/drizzle.Version=0002" ./cmd/drizzle"
var Version = "0001"

// ErrNoPeers is returned when trackers do not return any peer.
var ErrNoPeers = errors.New("no peers")

// ErrPieceNotDownloaded is matched by the error returned when no peer could deliver a piece.
var ErrPieceNotDownloaded = errors.New("piece could not be downloaded")

// Client talks to trackers and peers with a fixed peer ID.
type Client struct {
	config   Config
	peerID   [20]byte
	trackers *trackermanager.TrackerManager
	bucket   *ratelimit.Bucket
	log      logger.Logger
}

// New returns a new Client. A nil config means DefaultConfig.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		c := DefaultConfig
		cfg = &c
	}
	peerID, err := NewPeerID(cfg.PeerIDPrefix)
	if err != nil {
		return nil, err
	}
	c := &Client{
		config:   *cfg,
		peerID:   peerID,
		trackers: trackermanager.New(cfg.Tracker.DNSTimeout, cfg.Tracker.DialTimeout, cfg.Tracker.HTTPTimeout, cfg.Tracker.UserAgent, cfg.Tracker.MaxResponseLength),
		log:      logger.New("client"),
	}
	if cfg.Download.SpeedLimit > 0 {
		c.bucket = ratelimit.NewBucketWithRate(float64(cfg.Download.SpeedLimit), cfg.Download.SpeedLimit)
	}
	return c, nil
}

// NewPeerID returns a peer ID that starts with prefix and ends with random bytes.
// Prefixes longer than 20 bytes are truncated.
func NewPeerID(prefix string) ([20]byte, error) {
	var id [20]byte
	n := copy(id[:], prefix)
	u, err := uuid.NewV4()
	if err != nil {
		return id, err
	}
	copy(id[n:], u.Bytes())
	return id, nil
}

// PeerID returns the ID sent to trackers and peers.
func (c *Client) PeerID() [20]byte {
	return c.peerID
}

// Close releases the connections to trackers.
func (c *Client) Close() {
	c.trackers.Close()
}

func (c *Client) getTrackers(mi *metainfo.MetaInfo) ([]tracker.Tracker, error) {
	return c.trackers.GetTiers(mi.Announce, mi.AnnounceList)
}

// Peers announces to the trackers of the torrent and returns the peer addresses of the first tracker that responds.
func (c *Client) Peers(ctx context.Context, mi *metainfo.MetaInfo) ([]*net.TCPAddr, error) {
	trackers, err := c.getTrackers(mi)
	if err != nil {
		return nil, err
	}
	req := tracker.AnnounceRequest{
		Torrent: tracker.Torrent{
			BytesLeft: mi.Info.Length,
			InfoHash:  mi.Info.Hash,
			PeerID:    c.peerID,
			Port:      c.config.Port,
		},
		NumWant: c.config.Tracker.NumWant,
	}
	var errs []error
	for _, trk := range trackers {
		resp, err := announcer.Announce(ctx, trk, req, c.config.Tracker.AnnounceRetries, c.log)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warningf("announce to %s failed: %s", trk.URL(), err)
			errs = append(errs, fmt.Errorf("%s: %w", trk.URL(), err))
			continue
		}
		if len(resp.Peers) > 0 {
			return resp.Peers, nil
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNoPeers
}

// HandshakeResult is what the remote peer tells about itself in the handshake.
type HandshakeResult struct {
	PeerID             [20]byte
	SupportsExtensions bool
}

// Handshake connects to the peer at addr, does the BitTorrent handshake and closes the connection.
func (c *Client) Handshake(ctx context.Context, mi *metainfo.MetaInfo, addr string) (*HandshakeResult, error) {
	ourExt := btconn.NewExtensions(c.config.Download.Extensions)
	conn, ext, id, err := btconn.Dial(ctx, addr, c.config.Download.DialTimeout, c.config.Download.HandshakeTimeout, ourExt, mi.Info.Hash, c.peerID)
	if err != nil {
		return nil, err
	}
	_ = conn.Close()
	return &HandshakeResult{PeerID: id, SupportsExtensions: btconn.SupportsExtensions(ext)}, nil
}

// DownloadPiece downloads a single piece from the peers returned by the trackers.
// Peers are tried in order. The list is walked at most Download.PieceAttempts times.
func (c *Client) DownloadPiece(ctx context.Context, mi *metainfo.MetaInfo, index uint32) ([]byte, error) {
	if index >= mi.Info.NumPieces {
		return nil, fmt.Errorf("piece index out of range: %d (torrent has %d pieces)", index, mi.Info.NumPieces)
	}
	peers, err := c.Peers(ctx, mi)
	if err != nil {
		return nil, err
	}
	return c.downloadPieceFrom(ctx, mi, index, peers)
}

func (c *Client) downloadPieceFrom(ctx context.Context, mi *metainfo.MetaInfo, index uint32, peers []*net.TCPAddr) ([]byte, error) {
	pi := piece.NewPieces(&mi.Info)[index]
	cfg := c.config.sessionConfig(c.bucket)
	attempts := c.config.Download.PieceAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for round := 0; round < attempts; round++ {
		for _, addr := range peers {
			data, err := c.downloadPieceFromPeer(ctx, mi, &pi, addr.String(), cfg)
			if err == nil {
				return data, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Debugf("round %d: cannot download piece #%d from %s: %s", round+1, index, addr, err)
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = ErrNoPeers
	}
	return nil, fmt.Errorf("%w: #%d: %w", ErrPieceNotDownloaded, index, lastErr)
}

func (c *Client) downloadPieceFromPeer(ctx context.Context, mi *metainfo.MetaInfo, pi *piece.Piece, addr string, cfg peersession.Config) ([]byte, error) {
	s, err := peersession.Dial(ctx, addr, mi.Info.Hash, c.peerID, mi.Info.NumPieces, cfg)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.DownloadPiece(ctx, pi)
}

// Package peersession implements the downloading side of a connection to a single peer.
package peersession

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/drizzlebt/drizzle/internal/bitfield"
	"github.com/drizzlebt/drizzle/internal/btconn"
	"github.com/drizzlebt/drizzle/internal/logger"
	"github.com/drizzlebt/drizzle/internal/peerconn"
	"github.com/drizzlebt/drizzle/internal/peerprotocol"
	"github.com/drizzlebt/drizzle/internal/piece"
	"github.com/drizzlebt/drizzle/internal/piecedownloader"
	"github.com/drizzlebt/drizzle/internal/stringutil"
	"github.com/juju/ratelimit"
)

// Config for Session.
type Config struct {
	// Number of block requests in flight.
	PipelineDepth int
	// Time to wait for a TCP connection.
	DialTimeout time.Duration
	// Time to complete the BitTorrent handshake.
	HandshakeTimeout time.Duration
	// Time to wait for any message from the peer.
	ReadTimeout time.Duration
	// Frames larger than this are protocol violations.
	MaxMessageLength uint32
	// Do the extension handshake with peers that support it.
	Extensions bool
	// Sent to peers in the extension handshake.
	ClientVersion string
	// Shared by all sessions to limit download speed. Nil means no limit.
	Bucket *ratelimit.Bucket
}

// DefaultConfig for Session.
var DefaultConfig = Config{
	PipelineDepth:    5,
	DialTimeout:      10 * time.Second,
	HandshakeTimeout: 10 * time.Second,
	ReadTimeout:      peerconn.DefaultReadTimeout,
	MaxMessageLength: peerprotocol.DefaultMaxMessageLength,
	Extensions:       true,
}

// Session downloads pieces from a single peer.
// Methods of Session must not be called concurrently.
type Session struct {
	// ID of the remote peer, set after handshake.
	ID [20]byte

	netConn   net.Conn
	conn      *peerconn.Conn
	addr      string
	config    Config
	infoHash  [20]byte
	ourID     [20]byte
	numPieces uint32
	log       logger.Logger

	state          State
	err            error
	extensions     [8]byte
	bitfield       *bitfield.Bitfield
	peerChoking    bool
	pipelineDepth  int
	peerExtensions map[string]uint8
}

// New returns a session on an established connection. Handshake must be called before downloading pieces.
func New(conn net.Conn, infoHash, ourID [20]byte, numPieces uint32, cfg Config) *Session {
	if cfg.PipelineDepth <= 0 {
		cfg.PipelineDepth = DefaultConfig.PipelineDepth
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultConfig.HandshakeTimeout
	}
	addr := conn.RemoteAddr().String()
	return &Session{
		netConn:       conn,
		addr:          addr,
		config:        cfg,
		infoHash:      infoHash,
		ourID:         ourID,
		numPieces:     numPieces,
		log:           logger.New("peer " + addr),
		state:         Connected,
		bitfield:      bitfield.New(numPieces),
		peerChoking:   true,
		pipelineDepth: cfg.PipelineDepth,
	}
}

// Dial connects to the peer at addr, does the handshake and waits for the peer to tell which pieces it has.
func Dial(ctx context.Context, addr string, infoHash, ourID [20]byte, numPieces uint32, cfg Config) (*Session, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultConfig.DialTimeout
	}
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ConnError{Err: err}
	}
	s := New(conn, infoHash, ourID, numPieces, cfg)
	if err = s.Handshake(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Addr returns the address of the peer.
func (s *Session) Addr() string { return s.addr }

// State returns the current state of the session.
func (s *Session) State() State { return s.state }

// Err returns the error that caused the session to fail.
func (s *Session) Err() error { return s.err }

// HasPiece returns true if the peer has told us that it has the piece.
func (s *Session) HasPiece(index uint32) bool {
	return index < s.numPieces && s.bitfield.Test(index)
}

// Bitfield returns a copy of the pieces the peer has.
func (s *Session) Bitfield() *bitfield.Bitfield {
	return s.bitfield.Copy()
}

// SupportsExtensions returns true if the peer has set the extension protocol bit in its handshake.
func (s *Session) SupportsExtensions() bool {
	return btconn.SupportsExtensions(s.extensions)
}

// PeerExtensions returns the extension names and IDs sent by the peer in the extension handshake.
func (s *Session) PeerExtensions() map[string]uint8 {
	return s.peerExtensions
}

// BytesDownloaded returns the size of the block data received from the peer.
func (s *Session) BytesDownloaded() int64 {
	if s.conn == nil {
		return 0
	}
	return s.conn.BytesDownloaded()
}

// Close the connection to the peer.
func (s *Session) Close() error {
	if s.state == Failed {
		return nil
	}
	s.state = Failed
	s.err = ErrClosed
	return s.netConn.Close()
}

// fail moves the session to the terminal state and releases the connection.
func (s *Session) fail(err error) error {
	if s.state == Failed {
		return s.err
	}
	s.log.Debugln("Session failed:", err)
	s.state = Failed
	s.err = err
	s.netConn.Close()
	return err
}

// Handshake does the BitTorrent handshake, the extension handshake if both sides support it,
// then waits for the first message of the peer and sends interested.
//
// A peer that sends any message other than bitfield first is treated as having no pieces.
func (s *Session) Handshake(ctx context.Context) error {
	if s.state != Connected {
		if s.state == Failed {
			return s.err
		}
		return errors.New("handshake is already done")
	}
	ourExtensions := btconn.NewExtensions(s.config.Extensions)
	ext, id, err := btconn.Handshake(ctx, s.netConn, s.config.HandshakeTimeout, ourExtensions, s.infoHash, s.ourID)
	if err != nil {
		return s.fail(s.classify(ctx, err))
	}
	s.ID = id
	s.extensions = ext
	s.conn = peerconn.New(s.netConn, s.log, s.config.ReadTimeout, s.config.MaxMessageLength, s.config.Bucket)
	s.state = Handshaken
	s.log.Debugf("Handshake done with peer id %q (client %s)", id[:], stringutil.PeerIDClient(id))

	stop := context.AfterFunc(ctx, s.conn.Interrupt)
	defer stop()

	if s.config.Extensions && s.SupportsExtensions() {
		msg, err := peerprotocol.NewExtensionMessage(peerprotocol.ExtensionIDHandshake, peerprotocol.NewExtensionHandshake(s.config.ClientVersion, 0))
		if err != nil {
			return s.fail(err)
		}
		if err = s.conn.WriteMessage(msg); err != nil {
			return s.fail(s.classify(ctx, err))
		}
	}

	s.state = AwaitingBitfield
	for {
		if err = ctx.Err(); err != nil {
			return s.fail(err)
		}
		msg, err := s.conn.ReadMessage()
		if err != nil {
			return s.fail(s.classify(ctx, err))
		}
		switch msg := msg.(type) {
		case peerprotocol.KeepAliveMessage:
			continue
		case peerprotocol.ExtensionMessage:
			if err = s.handleExtension(msg); err != nil {
				return s.fail(err)
			}
			continue
		case peerprotocol.BitfieldMessage:
			bf, err := bitfield.NewBytes(msg.Data, s.numPieces)
			if err != nil {
				return s.fail(&ProtocolError{Reason: err.Error()})
			}
			s.bitfield = bf
		default:
			s.log.Debugf("Peer did not send bitfield, got %s", msg.ID())
			if err = s.handleMessage(msg, nil); err != nil {
				return s.fail(err)
			}
		}
		break
	}

	if err = s.conn.WriteMessage(peerprotocol.InterestedMessage{}); err != nil {
		return s.fail(s.classify(ctx, err))
	}
	// The connection is unusable if the interrupt has fired.
	if !stop() {
		return s.fail(ctx.Err())
	}
	s.updateChokeState()
	return nil
}

// DownloadPiece requests all blocks of the piece from the peer, keeping at most pipeline depth requests in flight,
// and returns the piece data after verifying its hash.
//
// ErrPieceNotAvailable is returned if the peer does not have the piece and the session can be used again.
// Any other error is terminal and closes the connection.
func (s *Session) DownloadPiece(ctx context.Context, pi *piece.Piece) ([]byte, error) {
	switch s.state {
	case Failed:
		return nil, s.err
	case Connected, Handshaken, AwaitingBitfield:
		return nil, errors.New("handshake is not done")
	}
	if !s.HasPiece(pi.Index) {
		return nil, ErrPieceNotAvailable
	}
	s.updateChokeState()

	stop := context.AfterFunc(ctx, s.conn.Interrupt)
	defer stop()

	pd := piecedownloader.New(pi, requester{s.conn})
	defer pd.Release()

	for !pd.Done() {
		if err := ctx.Err(); err != nil {
			return nil, s.fail(err)
		}
		if !s.peerChoking {
			if err := pd.RequestBlocks(s.pipelineDepth); err != nil {
				return nil, s.fail(s.classify(ctx, err))
			}
			if pd.Outstanding() > 0 {
				s.state = Downloading
			}
		}
		msg, err := s.conn.ReadMessage()
		if err != nil {
			return nil, s.fail(s.classify(ctx, err))
		}
		if err = s.handleMessage(msg, pd); err != nil {
			return nil, s.fail(err)
		}
	}

	if !stop() {
		return nil, s.fail(ctx.Err())
	}
	data, err := pd.Assemble()
	if err != nil {
		return nil, s.fail(err)
	}
	if !pi.VerifyHash(data) {
		return nil, s.fail(&IntegrityError{Index: pi.Index})
	}
	s.log.Debugf("Piece #%d is downloaded", pi.Index)
	s.state = PieceComplete
	return data, nil
}

func (s *Session) updateChokeState() {
	if s.peerChoking {
		s.state = Choked
	} else {
		s.state = Unchoked
	}
}

// handleMessage processes a message received after the first one. pd is nil if no piece is being downloaded.
func (s *Session) handleMessage(msg peerprotocol.Message, pd *piecedownloader.PieceDownloader) error {
	switch msg := msg.(type) {
	case peerprotocol.ChokeMessage:
		s.peerChoking = true
		if pd != nil {
			pd.Choked()
		}
		s.state = Choked
	case peerprotocol.UnchokeMessage:
		s.peerChoking = false
		s.state = Unchoked
	case peerprotocol.HaveMessage:
		if msg.Index >= s.numPieces {
			return &ProtocolError{Reason: "have message with invalid index"}
		}
		s.bitfield.Set(msg.Index)
	case peerprotocol.BitfieldMessage:
		return &ProtocolError{Reason: "bitfield can only be sent after handshake"}
	case peerprotocol.PieceMessage:
		if pd == nil || msg.Index != pd.Piece.Index {
			s.log.Debugf("Ignoring block of piece #%d", msg.Index)
			return nil
		}
		switch err := pd.GotBlock(msg.Begin, msg.Data); err {
		case nil:
		case piecedownloader.ErrBlockInvalid:
			return &ProtocolError{Reason: "block length does not match request"}
		default:
			s.log.Debugf("Ignoring block at offset %d of piece #%d: %s", msg.Begin, msg.Index, err)
		}
	case peerprotocol.ExtensionMessage:
		return s.handleExtension(msg)
	default:
		// Uploading is not supported. Requests and interest from the peer are ignored.
	}
	return nil
}

func (s *Session) handleExtension(msg peerprotocol.ExtensionMessage) error {
	if msg.ExtendedMessageID != peerprotocol.ExtensionIDHandshake {
		return nil
	}
	if !s.config.Extensions {
		s.log.Debugln("Ignoring extension handshake, extensions are disabled")
		return nil
	}
	hm, err := peerprotocol.ParseExtensionHandshake(msg)
	if err != nil {
		return &ProtocolError{Reason: "invalid extension handshake: " + err.Error()}
	}
	s.peerExtensions = hm.M
	if hm.RequestQueue > 0 && hm.RequestQueue < s.pipelineDepth {
		s.pipelineDepth = hm.RequestQueue
	}
	s.log.Debugf("Peer extensions: %v, client: %q", hm.M, hm.V)
	return nil
}

// classify maps errors from the connection to the errors returned from the session.
func (s *Session) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var nerr net.Error
	switch {
	case errors.Is(err, peerconn.ErrInterrupted):
		// Interrupted only by the context, which is done by now.
		return context.Canceled
	case errors.Is(err, ErrTimeout):
		return ErrTimeout
	case errors.As(err, &nerr) && nerr.Timeout():
		return ErrTimeout
	case errors.Is(err, peerprotocol.ErrMalformedMessage):
		return &ProtocolError{Reason: err.Error()}
	case errors.Is(err, ErrHandshakeMismatch):
		return err
	case errors.As(err, new(*btconn.Error)):
		return err
	default:
		return &ConnError{Err: err}
	}
}

type requester struct {
	conn *peerconn.Conn
}

func (r requester) RequestPiece(index, begin, length uint32) error {
	return r.conn.WriteMessage(peerprotocol.RequestMessage{Index: index, Begin: begin, Length: length})
}

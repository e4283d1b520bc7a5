// Package peerconn wraps a handshaken connection for reading and writing peer protocol messages.
package peerconn

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/drizzlebt/drizzle/internal/logger"
	"github.com/drizzlebt/drizzle/internal/peerprotocol"
	"github.com/juju/ratelimit"
)

const (
	// DefaultReadTimeout is the time to wait for a message. Peer must send keep-alive messages to keep connection alive.
	DefaultReadTimeout = 30 * time.Second
	// length + msgid + piece header + block
	readBufferSize = 4 + 1 + 8 + 16*1024
)

var (
	// ErrTimeout is returned when the peer does not send a message or accept our message in time.
	ErrTimeout = errors.New("timeout")
	// ErrInterrupted is returned from all reads and writes after Interrupt is called.
	ErrInterrupted = errors.New("connection interrupted")
)

// Conn is a peer connection that provides methods for receiving and sending messages.
// Reads and writes must not be called concurrently with other reads or other writes.
type Conn struct {
	conn             net.Conn
	r                *bufio.Reader
	log              logger.Logger
	readTimeout      time.Duration
	writeTimeout     time.Duration
	maxMessageLength uint32
	downloaded       atomic.Int64
	interrupted      atomic.Bool
}

// New returns a new Conn by wrapping a net.Conn.
// If bucket is not nil, reads from the connection are limited by the bucket.
func New(conn net.Conn, l logger.Logger, readTimeout time.Duration, maxMessageLength uint32, bucket *ratelimit.Bucket) *Conn {
	if readTimeout == 0 {
		readTimeout = DefaultReadTimeout
	}
	var r io.Reader = conn
	if bucket != nil {
		r = ratelimit.Reader(conn, bucket)
	}
	return &Conn{
		conn:             conn,
		r:                bufio.NewReaderSize(r, readBufferSize),
		log:              l,
		readTimeout:      readTimeout,
		writeTimeout:     readTimeout,
		maxMessageLength: maxMessageLength,
	}
}

// Addr returns the address of the peer.
func (p *Conn) Addr() net.Addr {
	return p.conn.RemoteAddr()
}

// String returns the remote address as string.
func (p *Conn) String() string {
	return p.conn.RemoteAddr().String()
}

// Logger for the peer that logs messages prefixed with peer address.
func (p *Conn) Logger() logger.Logger {
	return p.log
}

// Close closes the underlying net.Conn.
func (p *Conn) Close() error {
	return p.conn.Close()
}

// Interrupt makes blocked reads and writes return immediately.
// The Conn cannot be used for reading or writing afterwards.
func (p *Conn) Interrupt() {
	p.interrupted.Store(true)
	_ = p.conn.SetDeadline(time.Now())
}

// setDeadline must be called before every read and write.
// The flag is checked after the deadline is set so an Interrupt racing with it is not lost.
func (p *Conn) setDeadline(set func(time.Time) error, timeout time.Duration) error {
	if err := set(time.Now().Add(timeout)); err != nil {
		return err
	}
	if p.interrupted.Load() {
		return ErrInterrupted
	}
	return nil
}

// BytesDownloaded returns the total size of block data received from the peer.
func (p *Conn) BytesDownloaded() int64 {
	return p.downloaded.Load()
}

// ReadMessage waits for the next message from the peer.
// Returns ErrTimeout if no complete message is received in read timeout.
func (p *Conn) ReadMessage() (peerprotocol.Message, error) {
	if err := p.setDeadline(p.conn.SetReadDeadline, p.readTimeout); err != nil {
		return nil, err
	}
	msg, err := peerprotocol.ReadMessage(p.r, p.maxMessageLength)
	if err != nil {
		return nil, p.classify(err)
	}
	if pm, ok := msg.(peerprotocol.PieceMessage); ok {
		p.downloaded.Add(int64(len(pm.Data)))
	}
	p.log.Debugf("Received %s", msg.ID())
	return msg, nil
}

// WriteMessage sends a message to the peer.
func (p *Conn) WriteMessage(msg peerprotocol.Message) error {
	if err := p.setDeadline(p.conn.SetWriteDeadline, p.writeTimeout); err != nil {
		return err
	}
	p.log.Debugf("Sending %s", msg.ID())
	return p.classify(peerprotocol.WriteMessage(p.conn, msg))
}

func (p *Conn) classify(err error) error {
	if err == nil {
		return nil
	}
	if p.interrupted.Load() {
		return ErrInterrupted
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return ErrTimeout
	}
	return err
}

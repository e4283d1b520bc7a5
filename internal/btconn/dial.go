// Package btconn provides support for dialing and accepting BitTorrent connections.
package btconn

import (
	"context"
	"net"
	"time"

	"github.com/drizzlebt/drizzle/internal/logger"
)

// Dial new connection to the address. Does the BitTorrent protocol handshake.
// Returns a net.Conn that is ready for sending/receiving BitTorrent peer protocol messages.
func Dial(
	ctx context.Context,
	addr string,
	dialTimeout, handshakeTimeout time.Duration,
	ourExtensions [8]byte,
	ih [20]byte,
	ourID [20]byte) (
	conn net.Conn, peerExtensions [8]byte, peerID [20]byte, err error) {
	log := logger.New("conn -> " + addr)

	log.Debug("Connecting to peer...")
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err = dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return
	}
	log.Debug("Connected")

	peerExtensions, peerID, err = Handshake(ctx, conn, handshakeTimeout, ourExtensions, ih, ourID)
	if err != nil {
		log.Debugln("Handshake has failed:", err)
		conn.Close()
		conn = nil
	}
	return
}

// Handshake does the outgoing BitTorrent protocol handshake over an already established connection.
// The handshake must be completed in handshakeTimeout. The deadline is cleared on success.
// The caller owns conn and must close it if an error is returned.
func Handshake(
	ctx context.Context,
	conn net.Conn,
	handshakeTimeout time.Duration,
	ourExtensions [8]byte,
	ih [20]byte,
	ourID [20]byte) (
	peerExtensions [8]byte, peerID [20]byte, err error) {
	// Unblock reads and writes when ctx is done.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer func() {
		if !stop() {
			err = ctx.Err()
		}
	}()

	if err = conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return
	}

	if _, err = conn.Write(appendHandshake(make([]byte, 0, HandshakeLength), ih, ourID, ourExtensions)); err != nil {
		return
	}

	// Read BT handshake
	var ihRead [20]byte
	peerExtensions, ihRead, err = readHandshake1(conn)
	if err != nil {
		return
	}
	if ihRead != ih {
		err = errInvalidInfoHash
		return
	}

	peerID, err = readHandshake2(conn)
	if err != nil {
		return
	}
	if peerID == ourID {
		err = errOwnConnection
		return
	}
	err = conn.SetDeadline(time.Time{})
	return
}

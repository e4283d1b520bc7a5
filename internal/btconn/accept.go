package btconn

import (
	"net"
	"time"
)

// Accept does the incoming side of the handshake on conn.
// hasInfoHash is called with the info hash the remote side asks for. Our handshake is
// sent only after it returns true. The deadline of conn is cleared on success.
func Accept(
	conn net.Conn,
	handshakeTimeout time.Duration,
	hasInfoHash func([20]byte) bool,
	ourExtensions [8]byte,
	ourID [20]byte,
) (peerExtensions [8]byte, peerID [20]byte, infoHash [20]byte, err error) {
	if err = conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return
	}
	if peerExtensions, infoHash, err = readHandshake1(conn); err != nil {
		return
	}
	if !hasInfoHash(infoHash) {
		err = errInvalidInfoHash
		return
	}
	if _, err = conn.Write(appendHandshake(nil, infoHash, ourID, ourExtensions)); err != nil {
		return
	}
	if peerID, err = readHandshake2(conn); err != nil {
		return
	}
	if peerID == ourID {
		err = errOwnConnection
		return
	}
	err = conn.SetDeadline(time.Time{})
	return
}

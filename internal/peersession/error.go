package peersession

import (
	"errors"
	"fmt"

	"github.com/drizzlebt/drizzle/internal/btconn"
	"github.com/drizzlebt/drizzle/internal/peerconn"
)

var (
	// ErrHandshakeMismatch is matched when the peer sends a wrong protocol string or a different info hash.
	ErrHandshakeMismatch = btconn.ErrHandshakeMismatch
	// ErrProtocolViolation is matched by ProtocolError.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrIntegrity is matched by IntegrityError.
	ErrIntegrity = errors.New("piece hash mismatch")
	// ErrTimeout is returned when the peer does not send a message in read timeout.
	ErrTimeout = peerconn.ErrTimeout
	// ErrConnection is matched by ConnError.
	ErrConnection = errors.New("connection error")
	// ErrPieceNotAvailable is returned when the peer does not have the requested piece.
	// The session can still be used for other pieces.
	ErrPieceNotAvailable = errors.New("peer does not have the piece")
	// ErrClosed is returned from methods of a closed session.
	ErrClosed = errors.New("session is closed")
)

// ProtocolError is returned when the peer sends a message that is not allowed at that point.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "protocol violation: " + e.Reason }

// Unwrap returns ErrProtocolViolation.
func (e *ProtocolError) Unwrap() error { return ErrProtocolViolation }

// IntegrityError is returned when the hash of a downloaded piece does not match.
type IntegrityError struct {
	Index uint32
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("piece #%d hash mismatch", e.Index)
}

// Unwrap returns ErrIntegrity.
func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// ConnError wraps an I/O error on the peer connection.
type ConnError struct {
	Err error
}

func (e *ConnError) Error() string { return "connection error: " + e.Err.Error() }

// Unwrap returns both ErrConnection and the underlying error.
func (e *ConnError) Unwrap() []error { return []error{ErrConnection, e.Err} }

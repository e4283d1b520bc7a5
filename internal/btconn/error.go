package btconn

import "errors"

// ErrHandshakeMismatch is matched by errors returned when the remote handshake
// has a wrong protocol string or a different info hash.
var ErrHandshakeMismatch = errors.New("handshake mismatch")

var (
	errInvalidProtocol = &Error{"invalid protocol", true}
	errInvalidInfoHash = &Error{"invalid info hash", true}
	errOwnConnection   = &Error{"dropped own connection", false}
)

// Error is returned when the remote side of the connection sends an unacceptable handshake.
type Error struct {
	message  string
	mismatch bool
}

func (e *Error) Error() string {
	return e.message
}

// Unwrap returns ErrHandshakeMismatch for protocol and info hash errors.
func (e *Error) Unwrap() error {
	if e.mismatch {
		return ErrHandshakeMismatch
	}
	return nil
}

package peerprotocol

import "strconv"

// MessageID is the byte that follows the length prefix of a frame.
type MessageID uint8

// Message IDs of BEP 3, plus Port from BEP 5 and Extension from BEP 10.
const (
	Choke         MessageID = 0
	Unchoke       MessageID = 1
	Interested    MessageID = 2
	NotInterested MessageID = 3
	Have          MessageID = 4
	Bitfield      MessageID = 5
	Request       MessageID = 6
	Piece         MessageID = 7
	Cancel        MessageID = 8
	Port          MessageID = 9
	Extension     MessageID = 20

	// KeepAlive does not exist on the wire. A keep-alive is a zero-length frame with no ID byte,
	// so this value is only used to give it an ID in memory.
	KeepAlive MessageID = 255
)

// String returns the name of a known ID and the decimal value of an unknown one.
func (m MessageID) String() string {
	switch m {
	case Choke:
		return "choke"
	case Unchoke:
		return "unchoke"
	case Interested:
		return "interested"
	case NotInterested:
		return "not interested"
	case Have:
		return "have"
	case Bitfield:
		return "bitfield"
	case Request:
		return "request"
	case Piece:
		return "piece"
	case Cancel:
		return "cancel"
	case Port:
		return "port"
	case Extension:
		return "extension"
	case KeepAlive:
		return "keep alive"
	default:
		return strconv.Itoa(int(m))
	}
}

package peersession

// State of a peer session.
type State int

// Session states in the order they are normally entered.
const (
	// Connected means the TCP connection is established.
	Connected State = iota
	// Handshaken means the BitTorrent handshake is done and the info hash is validated.
	Handshaken
	// AwaitingBitfield means we are waiting for the first message of the peer.
	AwaitingBitfield
	// Choked means we have sent interested and the peer does not allow us to request blocks.
	Choked
	// Unchoked means we can request blocks.
	Unchoked
	// Downloading means there are block requests in flight.
	Downloading
	// PieceComplete means the last requested piece is downloaded and verified.
	PieceComplete
	// Failed is terminal. The connection is closed.
	Failed
)

var stateStrings = [...]string{
	Connected:        "connected",
	Handshaken:       "handshaken",
	AwaitingBitfield: "awaiting bitfield",
	Choked:           "choked",
	Unchoked:         "unchoked",
	Downloading:      "downloading",
	PieceComplete:    "piece complete",
	Failed:           "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateStrings) {
		return "unknown"
	}
	return stateStrings[s]
}

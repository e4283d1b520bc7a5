package peerprotocol

import (
	"bytes"

	"github.com/zeebo/bencode"
)

const (
	// ExtensionIDHandshake is ID for extension handshake message.
	ExtensionIDHandshake = iota
	// ExtensionIDMetadata is the ID we ask peers to use for metadata extension messages.
	ExtensionIDMetadata
)

// ExtensionKeyMetadata is the key for the metadata extension.
const ExtensionKeyMetadata = "ut_metadata"

// ExtensionMessage is extension to BitTorrent protocol.
// Payload holds the bencoded dictionary following the extended message ID.
type ExtensionMessage struct {
	ExtendedMessageID uint8
	Payload           []byte
}

// ID returns the type of a peer message.
func (m ExtensionMessage) ID() MessageID { return Extension }

// MarshalBinary returns the bytes of the message payload.
func (m ExtensionMessage) MarshalBinary() ([]byte, error) {
	b := make([]byte, 1+len(m.Payload))
	b[0] = m.ExtendedMessageID
	copy(b[1:], m.Payload)
	return b, nil
}

// NewExtensionMessage bencodes v and wraps it into an extension message with the given extended message ID.
func NewExtensionMessage(id uint8, v interface{}) (ExtensionMessage, error) {
	var buf bytes.Buffer
	err := bencode.NewEncoder(&buf).Encode(v)
	return ExtensionMessage{ExtendedMessageID: id, Payload: buf.Bytes()}, err
}

// DecodePayload decodes the bencoded payload of the message into v.
func (m ExtensionMessage) DecodePayload(v interface{}) error {
	return bencode.DecodeBytes(m.Payload, v)
}

// ExtensionHandshakeMessage contains the information to do the extension handshake.
type ExtensionHandshakeMessage struct {
	M            map[string]uint8 `bencode:"m"`
	V            string           `bencode:"v,omitempty"`
	MetadataSize int              `bencode:"metadata_size,omitempty"`
	RequestQueue int              `bencode:"reqq,omitempty"`
}

// NewExtensionHandshake returns a new ExtensionHandshakeMessage by filling the struct with given values.
func NewExtensionHandshake(version string, requestQueueLength int) ExtensionHandshakeMessage {
	return ExtensionHandshakeMessage{
		M: map[string]uint8{
			ExtensionKeyMetadata: ExtensionIDMetadata,
		},
		V:            version,
		RequestQueue: requestQueueLength,
	}
}

// ParseExtensionHandshake decodes the payload of an extension message with ExtensionIDHandshake.
func ParseExtensionHandshake(m ExtensionMessage) (ExtensionHandshakeMessage, error) {
	var hm ExtensionHandshakeMessage
	err := m.DecodePayload(&hm)
	if hm.MetadataSize < 0 {
		hm.MetadataSize = 0
	}
	if hm.RequestQueue < 0 {
		hm.RequestQueue = 0
	}
	return hm, err
}

package peerprotocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxMessageLength is the largest frame accepted by ReadMessage when no limit is given.
const DefaultMaxMessageLength = 1 << 20

// ErrMalformedMessage is matched by every MalformedMessageError.
var ErrMalformedMessage = errors.New("malformed message")

// MalformedMessageError is returned when a frame read from a peer cannot be a valid message.
type MalformedMessageError struct {
	ID     MessageID
	Length uint32
	Reason string
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed %s message of length %d: %s", e.ID, e.Length, e.Reason)
}

// Unwrap returns ErrMalformedMessage.
func (e *MalformedMessageError) Unwrap() error { return ErrMalformedMessage }

// payload sizes of fixed size messages
var fixedLength = map[MessageID]uint32{
	Choke:         0,
	Unchoke:       0,
	Interested:    0,
	NotInterested: 0,
	Have:          4,
	Request:       12,
	Cancel:        12,
	Port:          2,
}

// ReadMessage reads a single length prefixed message from r.
// Frames longer than maxLength bytes are rejected before their payload is read.
// A maxLength of zero means DefaultMaxMessageLength.
func ReadMessage(r io.Reader, maxLength uint32) (Message, error) {
	if maxLength == 0 {
		maxLength = DefaultMaxMessageLength
	}
	var length uint32
	err := binary.Read(r, binary.BigEndian, &length)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return KeepAliveMessage{}, nil
	}

	var id MessageID
	err = binary.Read(r, binary.BigEndian, &id)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, err
	}
	if length > maxLength {
		return nil, &MalformedMessageError{ID: id, Length: length, Reason: "message too large"}
	}
	length--

	if want, ok := fixedLength[id]; ok && length != want {
		return nil, &MalformedMessageError{ID: id, Length: length, Reason: fmt.Sprintf("payload must be %d bytes", want)}
	}

	payload := make([]byte, length)
	_, err = io.ReadFull(r, payload)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, err
	}

	switch id {
	case Choke:
		return ChokeMessage{}, nil
	case Unchoke:
		return UnchokeMessage{}, nil
	case Interested:
		return InterestedMessage{}, nil
	case NotInterested:
		return NotInterestedMessage{}, nil
	case Have:
		return HaveMessage{Index: binary.BigEndian.Uint32(payload)}, nil
	case Bitfield:
		return BitfieldMessage{Data: payload}, nil
	case Request:
		return parseRequest(payload), nil
	case Cancel:
		return CancelMessage{parseRequest(payload)}, nil
	case Piece:
		if length < 8 {
			return nil, &MalformedMessageError{ID: id, Length: length, Reason: "payload must be at least 8 bytes"}
		}
		return PieceMessage{
			Index: binary.BigEndian.Uint32(payload[0:4]),
			Begin: binary.BigEndian.Uint32(payload[4:8]),
			Data:  payload[8:],
		}, nil
	case Port:
		return PortMessage{Port: binary.BigEndian.Uint16(payload)}, nil
	case Extension:
		if length < 1 {
			return nil, &MalformedMessageError{ID: id, Length: length, Reason: "missing extended message id"}
		}
		return ExtensionMessage{ExtendedMessageID: payload[0], Payload: payload[1:]}, nil
	default:
		return UnknownMessage{Type: id, Payload: payload}, nil
	}
}

func parseRequest(b []byte) RequestMessage {
	return RequestMessage{
		Index:  binary.BigEndian.Uint32(b[0:4]),
		Begin:  binary.BigEndian.Uint32(b[4:8]),
		Length: binary.BigEndian.Uint32(b[8:12]),
	}
}

// WriteMessage writes msg to w in a single Write call, prefixed with its length and ID.
func WriteMessage(w io.Writer, msg Message) error {
	if _, ok := msg.(KeepAliveMessage); ok {
		_, err := w.Write([]byte{0, 0, 0, 0})
		return err
	}
	payload, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("cannot marshal message [%v]: %w", msg.ID(), err)
	}
	buf := bytes.NewBuffer(make([]byte, 0, 4+1+len(payload)))
	var header = struct {
		Length uint32
		ID     MessageID
	}{
		Length: uint32(1 + len(payload)),
		ID:     msg.ID(),
	}
	_ = binary.Write(buf, binary.BigEndian, &header)
	buf.Write(payload)
	_, err = w.Write(buf.Bytes())
	return err
}

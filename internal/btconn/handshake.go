package btconn

import (
	"io"

	"github.com/drizzlebt/drizzle/internal/bitfield"
)

// HandshakeLength is the size of the handshake message in bytes.
const HandshakeLength = 68

// ExtensionProtocolBit is the reserved bit that signals support for the extension protocol.
// Bits are counted from the most significant bit of the first reserved byte,
// so this is 0x10 of the sixth byte.
const ExtensionProtocolBit = 43

var pstr = [20]byte{19, 'B', 'i', 't', 'T', 'o', 'r', 'r', 'e', 'n', 't', ' ', 'p', 'r', 'o', 't', 'o', 'c', 'o', 'l'}

// NewExtensions returns the reserved bytes to put into our handshake.
func NewExtensions(extensionProtocol bool) [8]byte {
	var ext [8]byte
	bf := bitfield.New(64)
	if extensionProtocol {
		bf.Set(ExtensionProtocolBit)
	}
	copy(ext[:], bf.Bytes())
	return ext
}

// SupportsExtensions returns true if the reserved bytes of a handshake have the extension protocol bit set.
func SupportsExtensions(ext [8]byte) bool {
	bf, _ := bitfield.NewBytes(ext[:], 64)
	return bf.Test(ExtensionProtocolBit)
}

// appendHandshake appends the 68-byte handshake to b.
func appendHandshake(b []byte, ih [20]byte, id [20]byte, extensions [8]byte) []byte {
	b = append(b, pstr[:]...)
	b = append(b, extensions[:]...)
	b = append(b, ih[:]...)
	return append(b, id[:]...)
}

func readHandshake1(r io.Reader) (extensions [8]byte, ih [20]byte, err error) {
	_, err = io.ReadFull(r, ih[:])
	if err != nil {
		return
	}
	if ih != pstr {
		err = errInvalidProtocol
		return
	}
	_, err = io.ReadFull(r, extensions[:])
	if err != nil {
		return
	}
	_, err = io.ReadFull(r, ih[:])
	return
}

func readHandshake2(r io.Reader) (id [20]byte, err error) {
	_, err = io.ReadFull(r, id[:])
	return
}

package stringutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsciify(t *testing.T) {
	assert.Equal(t, "a_b", Asciify("a\x00b"))
	assert.Equal(t, "__", Asciify("é"))
}

func TestPrintable(t *testing.T) {
	assert.Equal(t, "héllo�", Printable("héllo\x07"))
}

func TestPeerIDClient(t *testing.T) {
	var id [20]byte
	copy(id[:], "-DZ0001-abcdefghijkl")
	assert.Equal(t, "DZ0001", PeerIDClient(id))

	copy(id[:], "M7-2-0--\xff\xfe")
	assert.Equal(t, "M7-2-0--", PeerIDClient(id))

	id = [20]byte{}
	assert.Equal(t, "________", PeerIDClient(id))
}

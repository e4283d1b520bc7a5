package addrlist

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddrList(t *testing.T) {
	al := New(2, 5000)

	al.Push([]*net.TCPAddr{newAddr("1.1.1.1", 1)})
	assert.Equal(t, 1, al.Len())

	// Same addr again
	al.Push([]*net.TCPAddr{newAddr("1.1.1.1", 1)})
	assert.Equal(t, 1, al.Len())

	// Invalid and own addresses
	al.Push([]*net.TCPAddr{newAddr("2.2.2.2", 0), newAddr("127.0.0.1", 5000)})
	assert.Equal(t, 1, al.Len())

	al.Push([]*net.TCPAddr{newAddr("2.2.2.2", 1)})
	al.Push([]*net.TCPAddr{newAddr("3.3.3.3", 1)})
	assert.Equal(t, 2, al.Len())

	assert.Equal(t, "3.3.3.3:1", al.Pop().String())
	assert.Equal(t, "2.2.2.2:1", al.Pop().String())
	assert.Nil(t, al.Pop())
}

func newAddr(ip string, port int) *net.TCPAddr {
	return &net.TCPAddr{IP: net.ParseIP(ip), Port: port}
}

func TestAddrListRefresh(t *testing.T) {
	al := New(2, 0)
	al.Push([]*net.TCPAddr{newAddr("1.1.1.1", 1), newAddr("2.2.2.2", 1)})
	// Seen again, so 2.2.2.2 is now the oldest and gets dropped.
	al.Push([]*net.TCPAddr{newAddr("1.1.1.1", 1)})
	al.Push([]*net.TCPAddr{newAddr("3.3.3.3", 1)})

	assert.Equal(t, 2, al.Len())
	assert.Equal(t, "3.3.3.3:1", al.Pop().String())
	assert.Equal(t, "1.1.1.1:1", al.Pop().String())
	assert.Equal(t, 0, al.Len())
}

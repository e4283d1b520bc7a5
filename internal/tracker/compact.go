package tracker

import (
	"encoding/binary"
	"fmt"
	"net"
)

const compactPeerLen = net.IPv4len + 2

// AppendCompact appends the 6-byte form of an IPv4 address to b.
// The address must be an IPv4 address.
func AppendCompact(b []byte, addr *net.TCPAddr) []byte {
	b = append(b, addr.IP.To4()...)
	return binary.BigEndian.AppendUint16(b, uint16(addr.Port))
}

// DecodePeersCompact parses the compact "peers" string of a tracker response.
func DecodePeersCompact(b []byte) ([]*net.TCPAddr, error) {
	if len(b)%compactPeerLen != 0 {
		return nil, fmt.Errorf("%w: compact peer list length %d is not a multiple of %d", ErrDecode, len(b), compactPeerLen)
	}
	addrs := make([]*net.TCPAddr, 0, len(b)/compactPeerLen)
	for ; len(b) > 0; b = b[compactPeerLen:] {
		ip := make(net.IP, net.IPv4len)
		copy(ip, b[:net.IPv4len])
		port := binary.BigEndian.Uint16(b[net.IPv4len:compactPeerLen])
		addrs = append(addrs, &net.TCPAddr{IP: ip, Port: int(port)})
	}
	return addrs, nil
}

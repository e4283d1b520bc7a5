// Package resolver turns tracker host:port strings into IPv4 TCP addresses.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

var (
	// ErrNotIPv4Address is returned when the host has no IPv4 address.
	ErrNotIPv4Address = errors.New("not ipv4 address")
	// ErrInvalidPort is returned for ports outside 1-65535.
	ErrInvalidPort = errors.New("invalid port number")
)

// Lookup is the host lookup function. Tests replace it to avoid DNS.
var Lookup = net.DefaultResolver.LookupIPAddr

// ResolveTCP parses hostport and resolves the host part to an IPv4 address.
// IP literals are used as they are. The DNS lookup is limited by timeout.
func ResolveTCP(ctx context.Context, hostport string, timeout time.Duration) (*net.TCPAddr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPort, portStr)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip = ip.To4(); ip == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotIPv4Address, host)
		}
		return &net.TCPAddr{IP: ip, Port: int(port)}, nil
	}
	ip, err := lookupIPv4(ctx, host, timeout)
	if err != nil {
		return nil, err
	}
	return &net.TCPAddr{IP: ip, Port: int(port)}, nil
}

func lookupIPv4(ctx context.Context, host string, timeout time.Duration) (net.IP, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	addrs, err := Lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		if ip := a.IP.To4(); ip != nil {
			return ip, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotIPv4Address, host)
}

package tracker

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/drizzlebt/drizzle/internal/bencode"
	"github.com/mitchellh/mapstructure"
)

type dictPeer struct {
	IP     string `mapstructure:"ip"`
	Port   int    `mapstructure:"port"`
	PeerID string `mapstructure:"peer id"`
}

// ParseResponse decodes the bencoded body of an announce response.
// Peers may be in the compact binary form or a list of dictionaries.
// If the tracker has sent a failure reason, the returned error is *Error.
func ParseResponse(b []byte) (*AnnounceResponse, error) {
	v, err := bencode.DecodeBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecode, err)
	}
	d, ok := v.(bencode.Dict)
	if !ok {
		return nil, fmt.Errorf("%w: response is not a dictionary", ErrDecode)
	}
	if reason, ok := d.Bytes("failure reason"); ok {
		return nil, &Error{
			FailureReason: string(reason),
			RetryIn:       parseRetryIn(d),
		}
	}

	resp := new(AnnounceResponse)
	if interval, ok := d.Int("interval"); ok {
		resp.Interval = time.Duration(interval) * time.Second
	}
	if interval, ok := d.Int("min interval"); ok {
		resp.MinInterval = time.Duration(interval) * time.Second
	}
	if n, ok := d.Int("complete"); ok {
		resp.Seeders = int32(n)
	}
	if n, ok := d.Int("incomplete"); ok {
		resp.Leechers = int32(n)
	}
	if msg, ok := d.Bytes("warning message"); ok {
		resp.WarningMessage = string(msg)
	}

	switch peers := d["peers"].(type) {
	case nil:
	case bencode.String:
		resp.Peers, err = DecodePeersCompact(peers)
	case bencode.List:
		resp.Peers, err = decodePeersDictionary(peers)
	default:
		err = fmt.Errorf("invalid peers type: %s", peers.Kind())
	}
	if err != nil {
		if !errors.Is(err, ErrDecode) {
			err = fmt.Errorf("%w: %s", ErrDecode, err)
		}
		return nil, err
	}
	return resp, nil
}

func decodePeersDictionary(l bencode.List) ([]*net.TCPAddr, error) {
	var peers []dictPeer
	err := mapstructure.Decode(bencode.ToInterface(l), &peers)
	if err != nil {
		return nil, err
	}
	addrs := make([]*net.TCPAddr, 0, len(peers))
	for _, p := range peers {
		ip := net.ParseIP(p.IP)
		if ip == nil {
			return nil, fmt.Errorf("invalid peer ip: %q", p.IP)
		}
		if p.Port <= 0 || p.Port > 65535 {
			return nil, fmt.Errorf("invalid peer port: %d", p.Port)
		}
		if ip4 := ip.To4(); ip4 != nil {
			ip = ip4
		}
		addrs = append(addrs, &net.TCPAddr{IP: ip, Port: p.Port})
	}
	return addrs, nil
}

// parseRetryIn returns the "retry in" value in minutes as sent by some trackers. Zero means never.
func parseRetryIn(d bencode.Dict) time.Duration {
	if n, ok := d.Int("retry in"); ok && n > 0 {
		return time.Duration(n) * time.Minute
	}
	if s, ok := d.Bytes("retry in"); ok {
		if n, err := strconv.Atoi(string(s)); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	}
	return 0
}

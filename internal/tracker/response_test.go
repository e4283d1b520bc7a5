package tracker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponseCompact(t *testing.T) {
	b := []byte("d8:completei3e10:incompletei7e8:intervali1800e12:min intervali60e5:peers12:" +
		"\x7f\x00\x00\x01\x1a\xe1\x0a\x00\x00\x02\xc8\xd5e")
	resp, err := ParseResponse(b)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, resp.Interval)
	assert.Equal(t, time.Minute, resp.MinInterval)
	assert.Equal(t, int32(3), resp.Seeders)
	assert.Equal(t, int32(7), resp.Leechers)
	require.Len(t, resp.Peers, 2)
	assert.Equal(t, "127.0.0.1:6881", resp.Peers[0].String())
	assert.Equal(t, "10.0.0.2:51413", resp.Peers[1].String())
}

func TestParseResponseDictionary(t *testing.T) {
	b := []byte("d8:intervali900e5:peersld2:ip9:127.0.0.17:peer id20:aaaaaaaaaaaaaaaaaaaa4:porti6881eed2:ip8:10.0.0.24:porti51413eeee")
	resp, err := ParseResponse(b)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, resp.Interval)
	require.Len(t, resp.Peers, 2)
	assert.Equal(t, "127.0.0.1:6881", resp.Peers[0].String())
	assert.Equal(t, "10.0.0.2:51413", resp.Peers[1].String())
}

func TestParseResponseFailure(t *testing.T) {
	resp, err := ParseResponse([]byte("d14:failure reason14:torrent banned8:retry ini5ee"))
	assert.Nil(t, resp)
	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "torrent banned", terr.FailureReason)
	assert.Equal(t, 5*time.Minute, terr.RetryIn)
}

func TestParseResponseInvalid(t *testing.T) {
	for _, s := range []string{
		"",
		"i42e",
		"d8:intervali900e5:peers5:abcdee",
		"d8:intervali900e5:peersi1ee",
		"d5:peersld2:ip3:foo4:porti1eeee",
		"d5:peersld2:ip9:127.0.0.14:porti70000eeee",
		"d5:peersld2:ip9:127.0.0.14:port3:abceee",
	} {
		_, err := ParseResponse([]byte(s))
		assert.True(t, errors.Is(err, ErrDecode), "%q: %v", s, err)
	}
}

func TestParseResponseNoPeers(t *testing.T) {
	resp, err := ParseResponse([]byte("d8:intervali60e15:warning message4:slowe"))
	require.NoError(t, err)
	assert.Empty(t, resp.Peers)
	assert.Equal(t, "slow", resp.WarningMessage)
}

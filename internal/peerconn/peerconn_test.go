package peerconn

import (
	"net"
	"testing"
	"time"

	"github.com/drizzlebt/drizzle/internal/logger"
	"github.com/drizzlebt/drizzle/internal/peerprotocol"
	"github.com/fortytw2/leaktest"
	"github.com/juju/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipe(t *testing.T) (net.Conn, net.Conn) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	acceptC := make(chan net.Conn, 1)
	go func() {
		conn, _ := l.Accept()
		acceptC <- conn
	}()
	c1, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	c2 := <-acceptC
	require.NotNil(t, c2)
	return c1, c2
}

func TestReadWrite(t *testing.T) {
	defer leaktest.Check(t)()
	c1, c2 := pipe(t)
	defer c1.Close()
	defer c2.Close()

	bucket := ratelimit.NewBucketWithRate(1<<20, 1<<20)
	a := New(c1, logger.New("a"), time.Second, 0, nil)
	b := New(c2, logger.New("b"), time.Second, 0, bucket)

	require.NoError(t, a.WriteMessage(peerprotocol.InterestedMessage{}))
	require.NoError(t, a.WriteMessage(peerprotocol.PieceMessage{Index: 1, Begin: 0, Data: make([]byte, 100)}))

	msg, err := b.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, peerprotocol.InterestedMessage{}, msg)
	msg, err = b.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, peerprotocol.Piece, msg.ID())
	assert.Equal(t, int64(100), b.BytesDownloaded())
	assert.Equal(t, int64(0), a.BytesDownloaded())
}

func TestReadTimeout(t *testing.T) {
	defer leaktest.Check(t)()
	c1, c2 := pipe(t)
	defer c1.Close()
	defer c2.Close()

	b := New(c2, logger.New("b"), 50*time.Millisecond, 0, nil)
	_, err := b.ReadMessage()
	assert.Equal(t, ErrTimeout, err)
}

func TestInterrupt(t *testing.T) {
	defer leaktest.Check(t)()
	c1, c2 := pipe(t)
	defer c1.Close()
	defer c2.Close()

	b := New(c2, logger.New("b"), 10*time.Second, 0, nil)
	go func() {
		time.Sleep(50 * time.Millisecond)
		b.Interrupt()
	}()
	start := time.Now()
	_, err := b.ReadMessage()
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestInterruptIsSticky(t *testing.T) {
	defer leaktest.Check(t)()
	c1, c2 := pipe(t)
	defer c1.Close()
	defer c2.Close()

	a := New(c1, logger.New("a"), 10*time.Second, 0, nil)
	b := New(c2, logger.New("b"), 10*time.Second, 0, nil)
	require.NoError(t, a.WriteMessage(peerprotocol.UnchokeMessage{}))

	b.Interrupt()
	// A message is waiting but the read must not consume it.
	_, err := b.ReadMessage()
	assert.Equal(t, ErrInterrupted, err)
	assert.Equal(t, ErrInterrupted, b.WriteMessage(peerprotocol.InterestedMessage{}))
	_, err = b.ReadMessage()
	assert.Equal(t, ErrInterrupted, err)
}

package piecedownloader

import (
	"bytes"
	"errors"
	"testing"

	"github.com/drizzlebt/drizzle/internal/peerprotocol"
	"github.com/drizzlebt/drizzle/internal/piece"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Message = peerprotocol.RequestMessage

const blockSize = piece.BlockSize

type TestPeer struct {
	requested []Message
	err       error
}

func (p *TestPeer) RequestPiece(index, begin, length uint32) error {
	if p.err != nil {
		return p.err
	}
	msg := Message{
		Index:  index,
		Begin:  begin,
		Length: length,
	}
	p.requested = append(p.requested, msg)
	return nil
}

func TestPieceDownloader(t *testing.T) {
	pi := &piece.Piece{
		Index:  1,
		Length: 9*blockSize + 21,
	}
	pe := &TestPeer{}
	d := New(pi, pe)
	assert.Equal(t, 10, d.Remaining())
	assert.Equal(t, 0, d.Outstanding())
	assert.Equal(t, 0, len(d.done))
	assert.False(t, d.Done())

	require.NoError(t, d.RequestBlocks(4))
	assert.Equal(t, 6, d.Remaining())
	assert.Equal(t, 4, d.Outstanding())
	assert.Equal(t, 0, len(d.done))
	assert.False(t, d.Done())
	assert.Equal(t, []Message{
		{Index: 1, Begin: 0 * blockSize, Length: blockSize},
		{Index: 1, Begin: 1 * blockSize, Length: blockSize},
		{Index: 1, Begin: 2 * blockSize, Length: blockSize},
		{Index: 1, Begin: 3 * blockSize, Length: blockSize},
	}, pe.requested)

	require.NoError(t, d.RequestBlocks(4))
	assert.Equal(t, 6, d.Remaining())
	assert.Equal(t, 4, d.Outstanding())
	assert.Len(t, pe.requested, 4)

	assert.Nil(t, d.GotBlock(0, make([]byte, blockSize)))
	assert.Equal(t, 4, len(pe.requested))
	assert.Equal(t, 6, d.Remaining())
	assert.Equal(t, 3, d.Outstanding())
	assert.Equal(t, 1, len(d.done))
	assert.False(t, d.Done())

	require.NoError(t, d.RequestBlocks(4))
	assert.Equal(t, 5, d.Remaining())
	assert.Equal(t, 4, d.Outstanding())
	assert.Equal(t, 1, len(d.done))
	assert.Equal(t, Message{Index: 1, Begin: 4 * blockSize, Length: blockSize}, pe.requested[4])

	assert.Nil(t, d.GotBlock(1*blockSize, make([]byte, blockSize)))
	assert.Nil(t, d.GotBlock(2*blockSize, make([]byte, blockSize)))
	assert.Nil(t, d.GotBlock(3*blockSize, make([]byte, blockSize)))
	assert.Nil(t, d.GotBlock(4*blockSize, make([]byte, blockSize)))
	assert.Equal(t, 5, d.Remaining())
	assert.Equal(t, 0, d.Outstanding())
	assert.Equal(t, 5, len(d.done))
	assert.False(t, d.Done())

	require.NoError(t, d.RequestBlocks(4))
	assert.Equal(t, 1, d.Remaining())
	assert.Equal(t, 4, d.Outstanding())
	assert.Equal(t, 9, len(pe.requested))

	assert.Nil(t, d.GotBlock(5*blockSize, make([]byte, blockSize)))
	assert.Equal(t, 1, d.Remaining())
	assert.Equal(t, 3, d.Outstanding())
	assert.Equal(t, 6, len(d.done))
	assert.False(t, d.Done())

	d.Choked()
	assert.Equal(t, 4, d.Remaining())
	assert.Equal(t, 0, d.Outstanding())
	assert.Equal(t, 6, len(d.done))
	assert.False(t, d.Done())

	require.NoError(t, d.RequestBlocks(99))
	assert.Equal(t, []Message{
		{Index: 1, Begin: 6 * blockSize, Length: blockSize},
		{Index: 1, Begin: 7 * blockSize, Length: blockSize},
		{Index: 1, Begin: 8 * blockSize, Length: blockSize},
		{Index: 1, Begin: 9 * blockSize, Length: 21},
	}, pe.requested[9:])
	assert.Nil(t, d.GotBlock(6*blockSize, make([]byte, blockSize)))
	assert.Nil(t, d.GotBlock(7*blockSize, make([]byte, blockSize)))
	assert.Nil(t, d.GotBlock(8*blockSize, make([]byte, blockSize)))
	assert.Nil(t, d.GotBlock(9*blockSize, make([]byte, 21)))
	assert.Equal(t, 0, d.Remaining())
	assert.Equal(t, 0, d.Outstanding())
	assert.Equal(t, 10, len(d.done))
	assert.True(t, d.Done())
}

func TestOutOfOrder(t *testing.T) {
	pi := &piece.Piece{Index: 0, Length: 3 * blockSize}
	d := New(pi, &TestPeer{})
	require.NoError(t, d.RequestBlocks(5))
	assert.Equal(t, []uint32{0, blockSize, 2 * blockSize}, d.Pending())

	blocks := [][]byte{
		bytes.Repeat([]byte{'a'}, blockSize),
		bytes.Repeat([]byte{'b'}, blockSize),
		bytes.Repeat([]byte{'c'}, blockSize),
	}
	_, err := d.Assemble()
	assert.Equal(t, ErrNotDone, err)

	require.NoError(t, d.GotBlock(0, blocks[0]))
	require.NoError(t, d.GotBlock(2*blockSize, blocks[2]))
	require.NoError(t, d.GotBlock(blockSize, blocks[1]))

	data, err := d.Assemble()
	require.NoError(t, err)
	assert.Equal(t, bytes.Join(blocks, nil), data)

	d.Release()
	_, err = d.Assemble()
	assert.Equal(t, ErrNotDone, err)
}

func TestGotBlockErrors(t *testing.T) {
	pi := &piece.Piece{Index: 0, Length: 3 * blockSize}
	d := New(pi, &TestPeer{})
	require.NoError(t, d.RequestBlocks(1))

	assert.Equal(t, ErrBlockNotRequested, d.GotBlock(blockSize, make([]byte, blockSize)))
	assert.Equal(t, ErrBlockNotRequested, d.GotBlock(5, make([]byte, blockSize)))
	assert.Equal(t, ErrBlockInvalid, d.GotBlock(0, make([]byte, 10)))
	assert.Equal(t, 1, d.Outstanding())

	require.NoError(t, d.GotBlock(0, make([]byte, blockSize)))
	assert.Equal(t, ErrBlockDuplicate, d.GotBlock(0, make([]byte, blockSize)))
	assert.Equal(t, 0, d.Outstanding())
	assert.Equal(t, 2, d.Remaining())
}

func TestRequestError(t *testing.T) {
	pi := &piece.Piece{Index: 0, Length: 3 * blockSize}
	pe := &TestPeer{err: errors.New("broken pipe")}
	d := New(pi, pe)
	assert.Error(t, d.RequestBlocks(5))
	assert.Equal(t, 0, d.Outstanding())
	assert.Equal(t, 3, d.Remaining())
}

func TestChokeRequeuesInOrder(t *testing.T) {
	pi := &piece.Piece{Index: 0, Length: 6 * blockSize}
	pe := &TestPeer{}
	d := New(pi, pe)
	require.NoError(t, d.RequestBlocks(5))
	require.NoError(t, d.GotBlock(3*blockSize, make([]byte, blockSize)))
	d.Choked()
	assert.Equal(t, 0, d.Outstanding())

	pe.requested = nil
	require.NoError(t, d.RequestBlocks(5))
	var begins []uint32
	for _, r := range pe.requested {
		begins = append(begins, r.Begin)
	}
	assert.Equal(t, []uint32{0, blockSize, 2 * blockSize, 4 * blockSize, 5 * blockSize}, begins)
}

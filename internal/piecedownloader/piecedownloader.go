// Package piecedownloader schedules pipelined block requests for a single piece and reassembles the received blocks.
package piecedownloader

import (
	"errors"

	"github.com/drizzlebt/drizzle/internal/piece"
	"github.com/google/btree"
)

var (
	// ErrBlockDuplicate is returned from PieceDownloader.GotBlock method when the received block is already present.
	ErrBlockDuplicate = errors.New("received duplicate block")
	// ErrBlockNotRequested is returned from PieceDownloader.GotBlock method when the received block is not in request list.
	ErrBlockNotRequested = errors.New("received not requested block")
	// ErrBlockInvalid is returned from PieceDownloader.GotBlock method when the length of a requested block does not match.
	ErrBlockInvalid = errors.New("received block is invalid")
	// ErrNotDone is returned from PieceDownloader.Assemble method if some blocks are missing.
	ErrNotDone = errors.New("piece is not downloaded completely")
)

const btreeDegree = 8

// blockItem is a block in an ordered set, ordered by offset in piece.
type blockItem struct {
	begin, length uint32
}

func (b blockItem) Less(than btree.Item) bool {
	return b.begin < than.(blockItem).begin
}

// PieceDownloader downloads all blocks of a piece from a peer.
type PieceDownloader struct {
	Piece *piece.Piece
	Peer  Peer

	buffer    []byte              // piece data, blocks are copied at their offsets
	blocks    map[uint32]uint32   // begin -> length
	remaining *btree.BTree        // blocks to be requested
	pending   *btree.BTree        // in-flight requests
	done      map[uint32]struct{} // downloaded blocks
}

// Peer that the blocks are requested from.
type Peer interface {
	RequestPiece(index, begin, length uint32) error
}

// New returns a new PieceDownloader.
func New(pi *piece.Piece, pe Peer) *PieceDownloader {
	blocks := pi.CalculateBlocks()
	d := &PieceDownloader{
		Piece:     pi,
		Peer:      pe,
		buffer:    make([]byte, pi.Length),
		blocks:    make(map[uint32]uint32, len(blocks)),
		remaining: btree.New(btreeDegree),
		pending:   btree.New(btreeDegree),
		done:      make(map[uint32]struct{}, len(blocks)),
	}
	for _, blk := range blocks {
		d.blocks[blk.Begin] = blk.Length
		d.remaining.ReplaceOrInsert(blockItem{begin: blk.Begin, length: blk.Length})
	}
	return d
}

// Choked must be called when the peer has choked us.
// Pending requests are void after a choke, they are moved back to the remaining set
// to be requested again in ascending order after the peer unchokes us.
func (d *PieceDownloader) Choked() {
	for d.pending.Len() > 0 {
		item := d.pending.DeleteMin()
		d.remaining.ReplaceOrInsert(item)
	}
}

// GotBlock must be called when a block is received from the peer.
// Only blocks that are pending are stored.
func (d *PieceDownloader) GotBlock(begin uint32, data []byte) error {
	if _, ok := d.done[begin]; ok {
		return ErrBlockDuplicate
	}
	item := d.pending.Get(blockItem{begin: begin})
	if item == nil {
		return ErrBlockNotRequested
	}
	if item.(blockItem).length != uint32(len(data)) {
		return ErrBlockInvalid
	}
	copy(d.buffer[begin:], data)
	d.pending.Delete(item)
	d.done[begin] = struct{}{}
	return nil
}

// RequestBlocks is called to request remaining blocks of the piece until there are `queueLength` requests in flight.
// Blocks are requested in ascending offset order.
func (d *PieceDownloader) RequestBlocks(queueLength int) error {
	for d.pending.Len() < queueLength && d.remaining.Len() > 0 {
		item := d.remaining.Min().(blockItem)
		if err := d.Peer.RequestPiece(d.Piece.Index, item.begin, item.length); err != nil {
			return err
		}
		d.remaining.Delete(item)
		d.pending.ReplaceOrInsert(item)
	}
	return nil
}

// Pending returns the offsets of requests in flight in ascending order.
func (d *PieceDownloader) Pending() []uint32 {
	ret := make([]uint32, 0, d.pending.Len())
	d.pending.Ascend(func(i btree.Item) bool {
		ret = append(ret, i.(blockItem).begin)
		return true
	})
	return ret
}

// Outstanding returns the number of requests in flight.
func (d *PieceDownloader) Outstanding() int {
	return d.pending.Len()
}

// Remaining returns the number of blocks that are not requested yet.
func (d *PieceDownloader) Remaining() int {
	return d.remaining.Len()
}

// Done returns true if all blocks of the piece has been downloaded.
func (d *PieceDownloader) Done() bool {
	return len(d.done) == len(d.blocks)
}

// Assemble returns the piece data after all blocks are downloaded.
func (d *PieceDownloader) Assemble() ([]byte, error) {
	if !d.Done() {
		return nil, ErrNotDone
	}
	return d.buffer, nil
}

// Release drops the buffered data and all requests.
// The PieceDownloader must not be used after Release.
func (d *PieceDownloader) Release() {
	d.buffer = nil
	d.remaining.Clear(false)
	d.pending.Clear(false)
	d.done = nil
}

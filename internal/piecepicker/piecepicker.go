// Package piecepicker keeps the shared record of completed and claimed pieces.
package piecepicker

import (
	"sync"

	"github.com/drizzlebt/drizzle/internal/bitfield"
	"github.com/drizzlebt/drizzle/internal/piece"
)

/*

A piece is in one of three states:

  * Missing: nobody is downloading it.
  * Claimed: a single peer session is downloading it.
  * Completed: hash checked and written to storage.

A piece is claimed by at most one session at a time and a completed piece is never claimed again.

*/

// PiecePicker selects the next piece to download from a peer.
// Pieces are picked in ascending index order. It is safe for concurrent use.
type PiecePicker struct {
	pieces []piece.Piece

	m         sync.Mutex
	completed *bitfield.Bitfield
	claimed   *bitfield.Bitfield
	changedC  chan struct{}
	doneC     chan struct{}
}

// New returns a new PiecePicker. Pieces set in completed are not downloaded again. completed may be nil.
func New(pieces []piece.Piece, completed *bitfield.Bitfield) *PiecePicker {
	n := uint32(len(pieces))
	p := &PiecePicker{
		pieces:    pieces,
		completed: bitfield.New(n),
		claimed:   bitfield.New(n),
		changedC:  make(chan struct{}),
		doneC:     make(chan struct{}),
	}
	if completed != nil {
		for i := uint32(0); i < n && i < completed.Len(); i++ {
			if completed.Test(i) {
				p.completed.Set(i)
			}
		}
	}
	if p.completed.All() {
		close(p.doneC)
	}
	return p
}

// Claim returns the first piece that the peer has and is neither completed nor claimed.
// If the peer only has pieces claimed by other sessions, Claim returns a nil piece and a channel
// that is closed when a claim is released or a piece is completed.
// If the peer has nothing we need, both return values are nil.
func (p *PiecePicker) Claim(has func(index uint32) bool) (*piece.Piece, <-chan struct{}) {
	p.m.Lock()
	defer p.m.Unlock()
	var waiting bool
	for i := range p.pieces {
		index := uint32(i)
		if p.completed.Test(index) || !has(index) {
			continue
		}
		if p.claimed.Test(index) {
			waiting = true
			continue
		}
		p.claimed.Set(index)
		return &p.pieces[i], nil
	}
	if waiting {
		return nil, p.changedC
	}
	return nil, nil
}

// Release gives up the claim on the piece so it can be downloaded from another peer.
func (p *PiecePicker) Release(index uint32) {
	p.m.Lock()
	defer p.m.Unlock()
	if !p.claimed.Test(index) {
		return
	}
	p.claimed.Clear(index)
	p.notify()
}

// Complete marks the piece as completed and drops its claim.
// It returns false if the piece was already completed.
func (p *PiecePicker) Complete(index uint32) bool {
	p.m.Lock()
	defer p.m.Unlock()
	p.claimed.Clear(index)
	if p.completed.Test(index) {
		return false
	}
	p.completed.Set(index)
	p.notify()
	if p.completed.All() {
		close(p.doneC)
	}
	return true
}

func (p *PiecePicker) notify() {
	close(p.changedC)
	p.changedC = make(chan struct{})
}

// Done returns a channel that is closed when all pieces are completed.
func (p *PiecePicker) Done() <-chan struct{} {
	return p.doneC
}

// Completed returns a copy of the completed pieces.
func (p *PiecePicker) Completed() *bitfield.Bitfield {
	p.m.Lock()
	defer p.m.Unlock()
	return p.completed.Copy()
}

// Remaining returns the number of pieces that are not completed yet.
func (p *PiecePicker) Remaining() uint32 {
	p.m.Lock()
	defer p.m.Unlock()
	return p.completed.Len() - p.completed.Count()
}

// BytesLeft returns the total length of pieces that are not completed yet.
func (p *PiecePicker) BytesLeft() int64 {
	p.m.Lock()
	defer p.m.Unlock()
	var n int64
	for i := range p.pieces {
		if !p.completed.Test(uint32(i)) {
			n += int64(p.pieces[i].Length)
		}
	}
	return n
}

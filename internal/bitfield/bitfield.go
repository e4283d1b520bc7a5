// Package bitfield tracks which pieces of a torrent are present.
package bitfield

import (
	"encoding/hex"
	"fmt"
)

// Bitfield is a fixed length bit set. Bit 0 is the most significant bit of the first byte,
// matching the layout of the BitTorrent bitfield message.
type Bitfield struct {
	b      []byte
	length uint32
}

// New creates a new Bitfield value of length bits.
func New(length uint32) *Bitfield {
	return &Bitfield{make([]byte, NumBytes(length)), length}
}

// NumBytes returns the number of bytes needed to hold length bits.
func NumBytes(length uint32) uint32 {
	return (length + 7) / 8
}

// NewBytes returns a new Bitfield value from b.
// Bytes in b are copied. Unused bits in last byte are cleared.
// Returns an error if b does not have exactly the number of bytes needed for length bits.
func NewBytes(b []byte, length uint32) (*Bitfield, error) {
	if uint32(len(b)) != NumBytes(length) {
		return nil, fmt.Errorf("invalid bitfield length: %d bytes for %d bits", len(b), length)
	}
	bf := &Bitfield{make([]byte, len(b)), length}
	copy(bf.b, b)
	if mod := length % 8; mod != 0 {
		bf.b[len(bf.b)-1] &= ^byte(0xff >> mod)
	}
	return bf, nil
}

// Bytes returns bytes in b. If you modify the returned slice the bits in b are modified too.
func (b *Bitfield) Bytes() []byte { return b.b }

// Len returns the number of bits as given to New.
func (b *Bitfield) Len() uint32 { return b.length }

// Hex returns bytes as string. If not all the bits in last byte are used, they encode as not set.
func (b *Bitfield) Hex() string { return hex.EncodeToString(b.b) }

// Copy returns a new Bitfield with the same bits.
func (b *Bitfield) Copy() *Bitfield {
	c := &Bitfield{make([]byte, len(b.b)), b.length}
	copy(c.b, b.b)
	return c
}

// Set bit i. Panics if i >= b.Len().
func (b *Bitfield) Set(i uint32) {
	b.checkIndex(i)
	b.b[i/8] |= 1 << (7 - i%8)
}

// Clear bit i. Panics if i >= b.Len().
func (b *Bitfield) Clear(i uint32) {
	b.checkIndex(i)
	b.b[i/8] &= ^(1 << (7 - i%8))
}

// Test bit i. Panics if i >= b.Len().
func (b *Bitfield) Test(i uint32) bool {
	b.checkIndex(i)
	return b.b[i/8]&(1<<(7-i%8)) != 0
}

// Count returns the count of set bits.
func (b *Bitfield) Count() uint32 {
	var total uint32
	for _, v := range b.b {
		for ; v != 0; v &= v - 1 {
			total++
		}
	}
	return total
}

// All returns true if all bits are set, false otherwise.
func (b *Bitfield) All() bool {
	return b.Count() == b.length
}

func (b *Bitfield) checkIndex(i uint32) {
	if i >= b.length {
		panic("index out of bound")
	}
}

// Package piece describes pieces of a torrent and the blocks they are requested in.
package piece

import (
	"bytes"
	"crypto/sha1" // nolint: gosec

	"github.com/drizzlebt/drizzle/internal/metainfo"
)

// BlockSize is the size of the blocks requested from peers.
const BlockSize = 16 * 1024

// Block is a request unit inside a Piece.
type Block struct {
	Index  uint32 // position of the block in the piece
	Begin  uint32 // byte offset in the piece
	Length uint32 // BlockSize except for the last block of a short piece
}

// Piece of a torrent.
type Piece struct {
	Index  uint32 // index in torrent
	Length uint32 // always equal to piece length in info except last piece.
	Hash   []byte // correct hash value
}

// NewPieces returns the pieces of the torrent described by info.
func NewPieces(info *metainfo.Info) []Piece {
	pieces := make([]Piece, info.NumPieces)
	for i := uint32(0); i < info.NumPieces; i++ {
		pieces[i] = Piece{
			Index:  i,
			Length: info.PieceLengthAt(i),
			Hash:   info.HashOf(i),
		}
	}
	return pieces
}

// NumBlocks returns the number of blocks in the piece.
func (p *Piece) NumBlocks() int {
	div, mod := divMod32(p.Length, BlockSize)
	numBlocks := div
	if mod != 0 {
		numBlocks++
	}
	return int(numBlocks)
}

// CalculateBlocks returns all blocks of the piece in ascending offset order.
// Every block is BlockSize bytes long except the last one, which may be shorter.
func (p *Piece) CalculateBlocks() []Block {
	div, mod := divMod32(p.Length, BlockSize)
	numBlocks := p.NumBlocks()
	blocks := make([]Block, numBlocks)
	for j := uint32(0); j < div; j++ {
		blocks[j] = Block{
			Index:  j,
			Begin:  j * BlockSize,
			Length: BlockSize,
		}
	}
	if mod != 0 {
		blocks[numBlocks-1] = Block{
			Index:  uint32(numBlocks - 1),
			Begin:  uint32(numBlocks-1) * BlockSize,
			Length: mod,
		}
	}
	return blocks
}

// GetBlock returns the block at index in the piece.
func (p *Piece) GetBlock(index uint32) (Block, bool) {
	if index >= uint32(p.NumBlocks()) {
		return Block{}, false
	}
	length := uint32(BlockSize)
	if index == uint32(p.NumBlocks()-1) {
		if mod := p.Length % BlockSize; mod != 0 {
			length = mod
		}
	}
	return Block{
		Index:  index,
		Begin:  index * BlockSize,
		Length: length,
	}, true
}

// FindBlock returns the block at offset begin if it has exactly the given length.
func (p *Piece) FindBlock(begin, length uint32) (Block, bool) {
	idx, mod := divMod32(begin, BlockSize)
	if mod != 0 {
		return Block{}, false
	}
	b, ok := p.GetBlock(idx)
	if !ok || b.Length != length {
		return Block{}, false
	}
	return b, true
}

// VerifyHash returns true if the SHA-1 hash of data equals to the hash of the piece.
func (p *Piece) VerifyHash(data []byte) bool {
	if uint32(len(data)) != p.Length {
		return false
	}
	sum := sha1.Sum(data) // nolint: gosec
	return bytes.Equal(sum[:], p.Hash)
}

func divMod32(a, b uint32) (uint32, uint32) { return a / b, a % b }

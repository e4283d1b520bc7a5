package metainfo

import (
	"crypto/sha1" // nolint: gosec
	"math"

	"github.com/drizzlebt/drizzle/internal/bencode"
)

// Info contains information about torrent.
type Info struct {
	Name        string
	PieceLength uint32
	Length      int64  // Single File Mode
	Pieces      []byte // concatenated SHA-1 hashes

	// Calculated fields
	Hash      [20]byte
	NumPieces uint32
	Bytes     []byte // canonical encoding of the info dictionary
}

// NewInfo returns info from a decoded info dictionary.
// The info hash is calculated from the canonical re-encoding of d,
// so it does not depend on how the source file was formatted.
func NewInfo(d bencode.Dict) (*Info, error) {
	var i Info
	name, ok := d.Bytes("name")
	if !ok {
		return nil, schemaError(d, "info.name", bencode.KindString)
	}
	i.Name = string(name)

	pieceLength, ok := d.Int("piece length")
	if !ok {
		return nil, schemaError(d, "info.piece length", bencode.KindInteger)
	}
	if pieceLength <= 0 || pieceLength > math.MaxUint32 {
		return nil, &SchemaError{Field: "info.piece length", Reason: "out of range"}
	}
	i.PieceLength = uint32(pieceLength)

	if _, ok := d["files"]; ok {
		if _, ok := d["length"]; !ok {
			return nil, &SchemaError{Field: "info.files", Reason: "multi-file torrents are not supported"}
		}
	}
	length, ok := d.Int("length")
	if !ok {
		return nil, schemaError(d, "info.length", bencode.KindInteger)
	}
	if length < 0 {
		return nil, &SchemaError{Field: "info.length", Reason: "negative"}
	}
	i.Length = length

	pieces, ok := d.Bytes("pieces")
	if !ok {
		return nil, schemaError(d, "info.pieces", bencode.KindString)
	}
	if len(pieces)%sha1.Size != 0 {
		return nil, &SchemaError{Field: "info.pieces", Reason: "length is not a multiple of 20"}
	}
	i.Pieces = pieces
	i.NumPieces = uint32(len(pieces) / sha1.Size)

	totalPieceDataLength := int64(i.PieceLength) * int64(i.NumPieces)
	delta := totalPieceDataLength - i.Length
	if delta >= int64(i.PieceLength) || delta < 0 {
		return nil, &SchemaError{Field: "info.pieces", Reason: "piece count does not match length"}
	}

	i.Bytes = bencode.Encode(d)
	i.Hash = sha1.Sum(i.Bytes) // nolint: gosec
	return &i, nil
}

// HashOf returns the expected SHA-1 hash of the piece at index.
func (i *Info) HashOf(index uint32) []byte {
	begin := index * sha1.Size
	end := begin + sha1.Size
	return i.Pieces[begin:end]
}

// PieceLengthAt returns the length of the piece at index.
// All pieces have PieceLength bytes except the last one, which may be shorter.
func (i *Info) PieceLengthAt(index uint32) uint32 {
	if index == i.NumPieces-1 {
		return uint32(i.Length - int64(i.PieceLength)*int64(i.NumPieces-1))
	}
	return i.PieceLength
}

// PieceOffset returns the offset of the piece at index in the file.
func (i *Info) PieceOffset(index uint32) int64 {
	return int64(index) * int64(i.PieceLength)
}

// NewInfoDict creates a single-file info dictionary by hashing data in pieces of pieceLength bytes.
func NewInfoDict(name string, pieceLength uint32, data []byte) bencode.Dict {
	var pieces []byte
	for begin := 0; begin < len(data); begin += int(pieceLength) {
		end := begin + int(pieceLength)
		if end > len(data) {
			end = len(data)
		}
		sum := sha1.Sum(data[begin:end]) // nolint: gosec
		pieces = append(pieces, sum[:]...)
	}
	return bencode.Dict{
		"name":         bencode.String(name),
		"piece length": bencode.Integer(pieceLength),
		"length":       bencode.Integer(len(data)),
		"pieces":       bencode.String(pieces),
	}
}

// Package verifier checks the pieces already written to storage.
package verifier

import (
	"context"
	"io"

	"github.com/drizzlebt/drizzle/internal/bitfield"
	"github.com/drizzlebt/drizzle/internal/piece"
)

// Progress information about the verification.
type Progress struct {
	Checked uint32
	OK      uint32
}

// Verify reads the pieces set in candidates from r and returns the ones whose hash matches.
// If candidates is nil, all pieces are checked. The piece offset in r is Index * pieceLength.
// progress is called after every checked piece if not nil.
func Verify(ctx context.Context, r io.ReaderAt, pieces []piece.Piece, pieceLength uint32, candidates *bitfield.Bitfield, progress func(Progress)) (*bitfield.Bitfield, error) {
	bf := bitfield.New(uint32(len(pieces)))
	if len(pieces) == 0 {
		return bf, nil
	}
	buf := make([]byte, pieces[0].Length)
	var p Progress
	for i := range pieces {
		pi := &pieces[i]
		if candidates != nil && (pi.Index >= candidates.Len() || !candidates.Test(pi.Index)) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf = buf[:pi.Length]
		_, err := r.ReadAt(buf, int64(pi.Index)*int64(pieceLength))
		if err != nil {
			return nil, err
		}
		p.Checked++
		if pi.VerifyHash(buf) {
			bf.Set(pi.Index)
			p.OK++
		}
		if progress != nil {
			progress(p)
		}
	}
	return bf, nil
}

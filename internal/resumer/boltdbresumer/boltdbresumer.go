// Package boltdbresumer keeps resume information of downloads in a Bolt database.
package boltdbresumer

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/drizzlebt/drizzle/internal/resumer"
	"go.etcd.io/bbolt"
)

// Keys for the persistent storage.
var Keys = struct {
	InfoHash        []byte
	Name            []byte
	Dest            []byte
	Length          []byte
	PieceLength     []byte
	Bitfield        []byte
	AddedAt         []byte
	BytesDownloaded []byte
	BytesWasted     []byte
}{
	InfoHash:        []byte("info_hash"),
	Name:            []byte("name"),
	Dest:            []byte("dest"),
	Length:          []byte("length"),
	PieceLength:     []byte("piece_length"),
	Bitfield:        []byte("bitfield"),
	AddedAt:         []byte("added_at"),
	BytesDownloaded: []byte("bytes_downloaded"),
	BytesWasted:     []byte("bytes_wasted"),
}

// ErrNotFound is returned from Read when there is no resume information for the download.
var ErrNotFound = errors.New("resume info not found")

// Spec is the resume information of a single download.
type Spec struct {
	InfoHash []byte
	Name     string
	// Directory the file is saved into.
	Dest string
	// Shape of the torrent when the spec was written. A bitfield is only usable if both match.
	Length      int64
	PieceLength uint32
	Bitfield    []byte
	AddedAt     time.Time

	BytesDownloaded int64
	BytesWasted     int64
}

// Open opens the database file at path, creating it if needed.
// It fails after a second if another process holds the database.
func Open(path string) (*bbolt.DB, error) {
	return bbolt.Open(path, 0640, &bbolt.Options{Timeout: time.Second})
}

// Resumer saves and loads Specs. Each download has a nested bucket under bucket.
type Resumer struct {
	db     *bbolt.DB
	bucket []byte
}

// New returns a new Resumer, creating bucket if needed.
func New(db *bbolt.DB, bucket []byte) (*Resumer, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Resumer{db: db, bucket: bucket}, nil
}

// Write replaces the spec of the download with torrentID.
func (r *Resumer) Write(torrentID string, spec *Spec) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		parent := tx.Bucket(r.bucket)
		if err := parent.DeleteBucket([]byte(torrentID)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		b, err := parent.CreateBucket([]byte(torrentID))
		if err != nil {
			return err
		}
		return putAll(b,
			Keys.InfoHash, spec.InfoHash,
			Keys.Name, []byte(spec.Name),
			Keys.Dest, []byte(spec.Dest),
			Keys.Length, formatInt(spec.Length),
			Keys.PieceLength, formatInt(int64(spec.PieceLength)),
			Keys.Bitfield, spec.Bitfield,
			Keys.AddedAt, []byte(spec.AddedAt.Format(time.RFC3339)),
			Keys.BytesDownloaded, formatInt(spec.BytesDownloaded),
			Keys.BytesWasted, formatInt(spec.BytesWasted),
		)
	})
}

// WriteBitfield replaces the bitfield of a download. It does nothing if the download has no spec.
func (r *Resumer) WriteBitfield(torrentID string, value []byte) error {
	return r.update(torrentID, func(b *bbolt.Bucket) error {
		return b.Put(Keys.Bitfield, value)
	})
}

// WriteStats replaces the byte counters of a download. It does nothing if the download has no spec.
func (r *Resumer) WriteStats(torrentID string, stats resumer.Stats) error {
	return r.update(torrentID, func(b *bbolt.Bucket) error {
		return putAll(b,
			Keys.BytesDownloaded, formatInt(stats.BytesDownloaded),
			Keys.BytesWasted, formatInt(stats.BytesWasted),
		)
	})
}

func (r *Resumer) update(torrentID string, f func(b *bbolt.Bucket) error) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket).Bucket([]byte(torrentID))
		if b == nil {
			return nil
		}
		return f(b)
	})
}

// Delete removes the resume information of a download.
func (r *Resumer) Delete(torrentID string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(r.bucket).DeleteBucket([]byte(torrentID))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

// Read returns the spec of the download with torrentID.
// ErrNotFound is returned if nothing was written for it.
func (r *Resumer) Read(torrentID string) (*Spec, error) {
	spec := new(Spec)
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket).Bucket([]byte(torrentID))
		if b == nil {
			return ErrNotFound
		}
		value := b.Get(Keys.InfoHash)
		if value == nil {
			return fmt.Errorf("key not found: %q", string(Keys.InfoHash))
		}
		// Values are only valid inside the transaction.
		spec.InfoHash = append([]byte(nil), value...)
		spec.Name = string(b.Get(Keys.Name))
		spec.Dest = string(b.Get(Keys.Dest))
		if value = b.Get(Keys.Bitfield); len(value) > 0 {
			spec.Bitfield = append([]byte(nil), value...)
		}
		if value = b.Get(Keys.AddedAt); value != nil {
			t, err := time.Parse(time.RFC3339, string(value))
			if err != nil {
				return fmt.Errorf("invalid %s: %w", Keys.AddedAt, err)
			}
			spec.AddedAt = t
		}
		var pieceLength int64
		for _, f := range []struct {
			key []byte
			dst *int64
		}{
			{Keys.Length, &spec.Length},
			{Keys.PieceLength, &pieceLength},
			{Keys.BytesDownloaded, &spec.BytesDownloaded},
			{Keys.BytesWasted, &spec.BytesWasted},
		} {
			if err := parseInt(b.Get(f.key), f.dst); err != nil {
				return fmt.Errorf("invalid %s: %w", f.key, err)
			}
		}
		spec.PieceLength = uint32(pieceLength)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// For returns a resumer.Resumer that writes to the download with torrentID.
func (r *Resumer) For(torrentID string) resumer.Resumer {
	return &downloadResumer{r: r, id: torrentID}
}

type downloadResumer struct {
	r  *Resumer
	id string
}

func (d *downloadResumer) WriteBitfield(b []byte) error { return d.r.WriteBitfield(d.id, b) }

func (d *downloadResumer) WriteStats(s resumer.Stats) error { return d.r.WriteStats(d.id, s) }

func putAll(b *bbolt.Bucket, kv ...[]byte) error {
	for i := 0; i < len(kv); i += 2 {
		if err := b.Put(kv[i], kv[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func formatInt(i int64) []byte { return strconv.AppendInt(nil, i, 10) }

// parseInt leaves dst unchanged if value is missing.
func parseInt(value []byte, dst *int64) error {
	if value == nil {
		return nil
	}
	i, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return err
	}
	*dst = i
	return nil
}

package drizzle

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/drizzlebt/drizzle/internal/bitfield"
	"github.com/drizzlebt/drizzle/internal/downloader"
	"github.com/drizzlebt/drizzle/internal/logger"
	"github.com/drizzlebt/drizzle/internal/metainfo"
	"github.com/drizzlebt/drizzle/internal/piece"
	"github.com/drizzlebt/drizzle/internal/resumer"
	"github.com/drizzlebt/drizzle/internal/resumer/boltdbresumer"
	"github.com/drizzlebt/drizzle/internal/storage"
	"github.com/drizzlebt/drizzle/internal/storage/filestorage"
	"github.com/drizzlebt/drizzle/internal/verifier"
	"github.com/mitchellh/go-homedir"
	"go.etcd.io/bbolt"
)

var resumeBucket = []byte("downloads")

// Download writes a torrent to a single file on disk.
type Download struct {
	d    *downloader.Downloader
	file storage.File
	db   *bbolt.DB
	log  logger.Logger
}

// NewDownload prepares the download of the torrent to dest.
// If dest already exists, pieces in it are verified first and only the missing pieces are downloaded.
// Resume information is kept in the database from the config, if set.
func (c *Client) NewDownload(ctx context.Context, mi *metainfo.MetaInfo, dest string) (*Download, error) {
	trackers, err := c.getTrackers(mi)
	if err != nil {
		return nil, err
	}
	dest, err = filepath.Abs(dest)
	if err != nil {
		return nil, err
	}
	sto, err := filestorage.New(filepath.Dir(dest))
	if err != nil {
		return nil, err
	}
	f, exists, err := sto.Open(filepath.Base(dest), mi.Info.Length)
	if err != nil {
		return nil, err
	}
	l := logger.New("download " + mi.Info.Name)
	dl := &Download{file: f, log: l}
	var (
		res       resumer.Resumer
		stats     resumer.Stats
		completed *bitfield.Bitfield
	)
	if c.config.Database != "" {
		res, stats, completed, err = dl.openResumer(c.config.Database, &mi.Info, dest, exists)
		if err != nil {
			dl.Close()
			return nil, err
		}
	}
	if exists {
		completed, err = dl.verify(ctx, &mi.Info, completed)
		if err != nil {
			dl.Close()
			return nil, err
		}
	}
	dl.d = downloader.New(&mi.Info, f, completed, res, stats, trackers, c.peerID, c.config.downloaderConfig(c.bucket), l)
	return dl, nil
}

// openResumer reads the resume information of the torrent, creating it if not present.
// The returned bitfield is nil if nothing was downloaded before or the file was removed.
func (dl *Download) openResumer(dbPath string, info *metainfo.Info, dest string, exists bool) (resumer.Resumer, resumer.Stats, *bitfield.Bitfield, error) {
	var stats resumer.Stats
	dbPath, err := homedir.Expand(dbPath)
	if err != nil {
		return nil, stats, nil, err
	}
	if err = os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, stats, nil, err
	}
	dl.db, err = boltdbresumer.Open(dbPath)
	if err != nil {
		return nil, stats, nil, err
	}
	r, err := boltdbresumer.New(dl.db, resumeBucket)
	if err != nil {
		return nil, stats, nil, err
	}
	id := hex.EncodeToString(info.Hash[:])
	spec, err := r.Read(id)
	switch {
	case errors.Is(err, boltdbresumer.ErrNotFound) || (err == nil && !resumable(spec, info, dest, exists)):
		spec = &boltdbresumer.Spec{
			InfoHash:    info.Hash[:],
			Name:        info.Name,
			Dest:        dest,
			Length:      info.Length,
			PieceLength: info.PieceLength,
			AddedAt:     time.Now().UTC(),
		}
		if err = r.Write(id, spec); err != nil {
			return nil, stats, nil, err
		}
		return r.For(id), stats, nil, nil
	case err != nil:
		return nil, stats, nil, err
	}
	stats.BytesDownloaded = spec.BytesDownloaded
	stats.BytesWasted = spec.BytesWasted
	var bf *bitfield.Bitfield
	if len(spec.Bitfield) > 0 {
		bf, err = bitfield.NewBytes(spec.Bitfield, info.NumPieces)
		if err != nil {
			dl.log.Warningln("ignoring invalid resume bitfield:", err)
			bf = nil
		}
	}
	return r.For(id), stats, bf, nil
}

// resumable reports whether a saved spec describes the same data at the same place.
func resumable(spec *boltdbresumer.Spec, info *metainfo.Info, dest string, exists bool) bool {
	return exists && spec.Dest == dest && spec.Length == info.Length && spec.PieceLength == info.PieceLength
}

// verify checks the pieces in candidates, or every piece if candidates is nil.
func (dl *Download) verify(ctx context.Context, info *metainfo.Info, candidates *bitfield.Bitfield) (*bitfield.Bitfield, error) {
	pieces := piece.NewPieces(info)
	bf, err := verifier.Verify(ctx, dl.file, pieces, info.PieceLength, candidates, nil)
	if err != nil {
		return nil, err
	}
	dl.log.Infof("%d of %d pieces are verified on disk", bf.Count(), info.NumPieces)
	return bf, nil
}

// Run downloads until all pieces are written or ctx is done.
func (dl *Download) Run(ctx context.Context) error {
	return dl.d.Run(ctx)
}

// Stats returns the current statistics of the download.
func (dl *Download) Stats() downloader.Stats {
	return dl.d.Stats()
}

// Close releases the file and the resume database.
func (dl *Download) Close() {
	if dl.file != nil {
		_ = dl.file.Close()
	}
	if dl.db != nil {
		_ = dl.db.Close()
	}
}

// Download downloads the torrent to dest and returns when the download is complete or ctx is done.
func (c *Client) Download(ctx context.Context, mi *metainfo.MetaInfo, dest string) error {
	dl, err := c.NewDownload(ctx, mi, dest)
	if err != nil {
		return err
	}
	defer dl.Close()
	return dl.Run(ctx)
}

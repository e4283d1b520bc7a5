package downloader

import (
	"time"

	"github.com/drizzlebt/drizzle/internal/announcer"
	"github.com/rcrowley/go-metrics"
)

type downloadMetrics struct {
	registry metrics.Registry

	Peers           metrics.Counter
	BytesDownloaded metrics.Counter
	BytesWasted     metrics.Counter
	PiecesFailed    metrics.Counter
	SpeedDownload   metrics.Meter
	SpeedWrite      metrics.Meter
	PiecesCompleted metrics.Gauge
	Uptime          metrics.Gauge
}

func (d *Downloader) initMetrics(downloaded, wasted int64) {
	r := metrics.NewRegistry()
	d.metrics = &downloadMetrics{
		registry: r,

		Peers:           metrics.NewRegisteredCounter("peers", r),
		BytesDownloaded: metrics.NewRegisteredCounter("bytes_downloaded", r),
		BytesWasted:     metrics.NewRegisteredCounter("bytes_wasted", r),
		PiecesFailed:    metrics.NewRegisteredCounter("pieces_failed", r),
		SpeedDownload:   metrics.NewRegisteredMeter("speed_download", r),
		SpeedWrite:      metrics.NewRegisteredMeter("speed_write", r),
		PiecesCompleted: metrics.NewRegisteredFunctionalGauge("pieces_completed", r, func() int64 {
			return int64(d.info.NumPieces - d.picker.Remaining())
		}),
		Uptime: metrics.NewRegisteredFunctionalGauge("uptime", r, func() int64 {
			return int64(time.Since(d.createdAt) / time.Second)
		}),
	}
	d.metrics.BytesDownloaded.Inc(downloaded)
	d.metrics.BytesWasted.Inc(wasted)
}

func (m *downloadMetrics) Close() {
	m.SpeedDownload.Stop()
	m.SpeedWrite.Stop()
	m.registry.UnregisterAll()
}

// Stats contains statistics about a download.
type Stats struct {
	Name   string
	Pieces struct {
		Total     uint32
		Completed uint32
		Failed    int64
	}
	Bytes struct {
		Total      int64
		Left       int64
		Downloaded int64
		Wasted     int64
	}
	Peers struct {
		Connected int64
		Waiting   int
	}
	// Bytes per second averaged over the last minute.
	Speed struct {
		Download int
		Write    int
	}
	Trackers []TrackerStats
}

// TrackerStats is the announce state of a single tracker.
type TrackerStats struct {
	URL      string
	Status   string
	Seeders  int
	Leechers int
	Error    string
}

// Stats returns the current statistics of the download. It is safe to call from any goroutine.
func (d *Downloader) Stats() Stats {
	var s Stats
	s.Name = d.info.Name
	s.Pieces.Total = d.info.NumPieces
	s.Pieces.Completed = uint32(d.metrics.PiecesCompleted.Value())
	s.Pieces.Failed = d.metrics.PiecesFailed.Count()
	s.Bytes.Total = d.info.Length
	s.Bytes.Left = d.picker.BytesLeft()
	s.Bytes.Downloaded = d.metrics.BytesDownloaded.Count()
	s.Bytes.Wasted = d.metrics.BytesWasted.Count()
	s.Peers.Connected = d.metrics.Peers.Count()
	d.mAddrs.Lock()
	s.Peers.Waiting = d.addrs.Len()
	d.mAddrs.Unlock()
	s.Speed.Download = int(d.metrics.SpeedDownload.Rate1())
	s.Speed.Write = int(d.metrics.SpeedWrite.Rate1())
	for _, an := range d.announcers {
		s.Trackers = append(s.Trackers, newTrackerStats(an.Tracker.URL(), an.Stats()))
	}
	return s
}

func newTrackerStats(url string, as announcer.Stats) TrackerStats {
	ts := TrackerStats{
		URL:      url,
		Status:   as.Status.String(),
		Seeders:  as.Seeders,
		Leechers: as.Leechers,
	}
	if as.Error != nil {
		ts.Error = as.Error.Message
	}
	return ts
}

package drizzle

import (
	"os"
	"path/filepath"
	"time"

	"github.com/drizzlebt/drizzle/internal/downloader"
	"github.com/drizzlebt/drizzle/internal/peersession"
	"github.com/juju/ratelimit"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v2"
)

// DefaultConfigPath is where the CLI looks for the config file.
const DefaultConfigPath = "~/.drizzle.yaml"

// Config for Client.
type Config struct {
	// Port reported to trackers. Incoming connections are not accepted.
	Port int `yaml:"port"`
	// Prefix of the peer ID sent to trackers and peers.
	PeerIDPrefix string `yaml:"peer_id_prefix"`
	// Database file for resume information. Empty disables resuming.
	Database string `yaml:"database"`
	// One of debug, info, notice, warning, error, critical.
	LogLevel string `yaml:"log_level"`

	Download DownloadConfig `yaml:"download"`
	Tracker  TrackerConfig  `yaml:"tracker"`
}

// DownloadConfig contains the options for peer connections.
type DownloadConfig struct {
	// Number of block requests in flight to a single peer.
	PipelineDepth int `yaml:"pipeline_depth"`
	// Number of peers to download from at the same time.
	MaxPeers int `yaml:"max_peers"`
	// Number of rounds over the peer list when downloading a single piece.
	PieceAttempts int `yaml:"piece_attempts"`
	// Time to wait for TCP connection to open.
	DialTimeout time.Duration `yaml:"dial_timeout"`
	// Time to wait for BitTorrent handshake to complete.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// The connection is closed if the peer does not send any message in this duration.
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// Messages longer than this are protocol violations.
	MaxMessageLength uint32 `yaml:"max_message_length"`
	// Download speed limit in bytes per second. Zero means no limit.
	SpeedLimit int64 `yaml:"speed_limit"`
	// Do the extension handshake with peers that support it.
	Extensions bool `yaml:"extensions"`
}

// TrackerConfig contains the options for announcing to trackers.
type TrackerConfig struct {
	// Number of peer addresses to request in announce request.
	NumWant int `yaml:"num_want"`
	// Total time to wait for the response of a HTTP tracker.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	// Time to wait for resolving the host name of a tracker.
	DNSTimeout time.Duration `yaml:"dns_timeout"`
	// TCP connect timeout for HTTP trackers.
	DialTimeout time.Duration `yaml:"dial_timeout"`
	// User-Agent header sent to HTTP trackers.
	UserAgent string `yaml:"user_agent"`
	// Responses larger than this are rejected.
	MaxResponseLength int64 `yaml:"max_response_length"`
	// Number of retries of a failed announce before giving up.
	AnnounceRetries uint64 `yaml:"announce_retries"`
	// When the client needs new peer addresses, it waits this long before announcing again.
	MinAnnounceInterval time.Duration `yaml:"min_announce_interval"`
	// Time to wait for announcing stopped event.
	StoppedEventTimeout time.Duration `yaml:"stopped_event_timeout"`
}

// DefaultConfig for Client.
var DefaultConfig = Config{
	Port:         6881,
	PeerIDPrefix: "-DZ" + Version + "-",
	Database:     "~/.drizzle/resume.db",
	LogLevel:     "info",
	Download: DownloadConfig{
		PipelineDepth:    5,
		MaxPeers:         10,
		PieceAttempts:    3,
		DialTimeout:      10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      30 * time.Second,
		MaxMessageLength: 1 << 20,
		Extensions:       true,
	},
	Tracker: TrackerConfig{
		NumWant:             50,
		HTTPTimeout:         30 * time.Second,
		DNSTimeout:          5 * time.Second,
		DialTimeout:         5 * time.Second,
		UserAgent:           "drizzle/" + Version,
		MaxResponseLength:   2 << 20,
		AnnounceRetries:     3,
		MinAnnounceInterval: time.Minute,
		StoppedEventTimeout: 5 * time.Second,
	},
}

// LoadConfig reads the YAML file at path over DefaultConfig. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path) // nolint: gosec
	if os.IsNotExist(err) {
		return &c, nil
	}
	if err != nil {
		return nil, err
	}
	if err = yaml.UnmarshalStrict(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Save writes the config as YAML to path.
func (c *Config) Save(path string) error {
	path, err := homedir.Expand(path)
	if err != nil {
		return err
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0640)
}

func (c *Config) sessionConfig(bucket *ratelimit.Bucket) peersession.Config {
	return peersession.Config{
		PipelineDepth:    c.Download.PipelineDepth,
		DialTimeout:      c.Download.DialTimeout,
		HandshakeTimeout: c.Download.HandshakeTimeout,
		ReadTimeout:      c.Download.ReadTimeout,
		MaxMessageLength: c.Download.MaxMessageLength,
		Extensions:       c.Download.Extensions,
		ClientVersion:    "drizzle " + Version,
		Bucket:           bucket,
	}
}

func (c *Config) downloaderConfig(bucket *ratelimit.Bucket) downloader.Config {
	return downloader.Config{
		MaxPeers:            c.Download.MaxPeers,
		Port:                c.Port,
		NumWant:             c.Tracker.NumWant,
		MinAnnounceInterval: c.Tracker.MinAnnounceInterval,
		StoppedEventTimeout: c.Tracker.StoppedEventTimeout,
		Session:             c.sessionConfig(bucket),
	}
}

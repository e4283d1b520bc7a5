// Package metainfo support for reading and writing torrent files.
package metainfo

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/drizzlebt/drizzle/internal/bencode"
)

// Creator is the string that is put into the created torrent by NewBytes function.
var Creator string

// ErrSchema is matched by every SchemaError.
var ErrSchema = errors.New("invalid torrent")

// SchemaError is returned when a well-formed bencode document is not a valid torrent.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid torrent: %s: %s", e.Field, e.Reason)
}

// Unwrap returns ErrSchema.
func (e *SchemaError) Unwrap() error { return ErrSchema }

func schemaError(d bencode.Dict, field string, want bencode.Kind) error {
	key := field[strings.LastIndexByte(field, '.')+1:]
	v, ok := d[key]
	if !ok {
		return &SchemaError{Field: field, Reason: "missing"}
	}
	return &SchemaError{Field: field, Reason: fmt.Sprintf("expected %s, got %s", want, v.Kind())}
}

// MetaInfo file dictionary
type MetaInfo struct {
	Announce     string
	AnnounceList [][]string
	Info         Info
}

// New returns a torrent from bencoded stream.
func New(r io.Reader) (*MetaInfo, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse returns a torrent from bencoded bytes.
func Parse(b []byte) (*MetaInfo, error) {
	v, err := bencode.DecodeBytes(b)
	if err != nil {
		return nil, err
	}
	t, ok := v.(bencode.Dict)
	if !ok {
		return nil, &SchemaError{Field: "torrent", Reason: fmt.Sprintf("expected dictionary, got %s", v.Kind())}
	}
	announce, ok := t.Bytes("announce")
	if !ok {
		return nil, schemaError(t, "announce", bencode.KindString)
	}
	d, ok := t.Dict("info")
	if !ok {
		return nil, schemaError(t, "info", bencode.KindDict)
	}
	info, err := NewInfo(d)
	if err != nil {
		return nil, err
	}
	ret := &MetaInfo{
		Announce: string(announce),
		Info:     *info,
	}
	// announce-list is optional and ignored if malformed.
	if tiers, ok := t.List("announce-list"); ok {
		for _, tier := range tiers {
			l, ok := tier.(bencode.List)
			if !ok {
				continue
			}
			var ti []string
			for _, u := range l {
				if s, ok := u.(bencode.String); ok && isTrackerSupported(string(s)) {
					ti = append(ti, string(s))
				}
			}
			if len(ti) > 0 {
				ret.AnnounceList = append(ret.AnnounceList, ti)
			}
		}
	}
	return ret, nil
}

// Trackers returns the tracker URLs in announce-list order, falling back to announce.
func (m *MetaInfo) Trackers() []string {
	var ret []string
	seen := make(map[string]struct{})
	for _, tier := range m.AnnounceList {
		for _, u := range tier {
			if _, ok := seen[u]; !ok {
				seen[u] = struct{}{}
				ret = append(ret, u)
			}
		}
	}
	if _, ok := seen[m.Announce]; !ok && isTrackerSupported(m.Announce) {
		ret = append([]string{m.Announce}, ret...)
	}
	return ret
}

func isTrackerSupported(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// NewBytes creates a new torrent metadata file from given information.
func NewBytes(announce string, info bencode.Dict, comment string) []byte {
	mi := bencode.Dict{
		"announce":      bencode.String(announce),
		"info":          info,
		"creation date": bencode.Integer(time.Now().UTC().Unix()),
	}
	if comment != "" {
		mi["comment"] = bencode.String(comment)
	}
	if Creator != "" {
		mi["created by"] = bencode.String(Creator)
	}
	return bencode.Encode(mi)
}

// Package meta models provider metadata entries, aggregates the providers and
// merges their tag sets into one canonical record.
package meta

import (
	"fmt"
	"strings"

	"cdrip/internal/shared"
	"cdrip/internal/toc"
)

// MusicBrainzLabel identifies the MusicBrainz provider in server lists and
// entry source labels.
const MusicBrainzLabel = "musicbrainz"

// Tag is one uppercase key with a text value.
type Tag struct {
	Key   string
	Value string
}

// NewTag uppercases the key.
func NewTag(key, value string) Tag {
	return Tag{Key: strings.ToUpper(key), Value: value}
}

// CoverArt carries downloaded artwork, or just the promise that artwork
// exists (Available without Data).
type CoverArt struct {
	Data      []byte
	MIMEType  string
	IsFront   bool
	Available bool
}

// HasData reports whether artwork bytes are present.
func (c *CoverArt) HasData() bool {
	return len(c.Data) > 0
}

// Clone copies the artwork bytes.
func (c *CoverArt) Clone() CoverArt {
	out := *c
	if c.Data != nil {
		out.Data = append([]byte(nil), c.Data...)
	}
	return out
}

// Entry is one candidate metadata record for a disc: album-level tags plus
// one tag list per track.
type Entry struct {
	CddbDiscID  string
	SourceLabel string
	SourceURL   string
	FetchedAt   string
	AlbumTags   []Tag
	Tracks      [][]Tag
	CoverArt    CoverArt
}

// AlbumTag returns the first album-level value for key (case-insensitive).
func (e *Entry) AlbumTag(key string) string {
	key = strings.ToUpper(key)
	for _, t := range e.AlbumTags {
		if strings.ToUpper(t.Key) == key {
			return t.Value
		}
	}
	return ""
}

// TrackTag returns the first value for key on the zero-based track index.
func (e *Entry) TrackTag(index int, key string) string {
	if index < 0 || index >= len(e.Tracks) {
		return ""
	}
	key = strings.ToUpper(key)
	for _, t := range e.Tracks[index] {
		if strings.ToUpper(t.Key) == key {
			return t.Value
		}
	}
	return ""
}

// AddAlbumTag appends an album tag, dropping empty values.
func (e *Entry) AddAlbumTag(key, value string) {
	if value != "" {
		e.AlbumTags = append(e.AlbumTags, NewTag(key, value))
	}
}

// AddTrackTag appends a track tag, dropping empty values.
func (e *Entry) AddTrackTag(index int, key, value string) {
	if value == "" || index < 0 || index >= len(e.Tracks) {
		return
	}
	e.Tracks[index] = append(e.Tracks[index], NewTag(key, value))
}

// HasRealSource reports whether the entry came from an actual provider as
// opposed to the offline fallback stub.
func (e *Entry) HasRealSource() bool {
	return e.SourceLabel != "" || e.SourceURL != ""
}

// ReleaseKey identifies a MusicBrainz entry as "release[:medium]" for
// de-duplication. Empty when the entry has no release id.
func (e *Entry) ReleaseKey() string {
	release := strings.TrimSpace(e.AlbumTag("MUSICBRAINZ_RELEASE"))
	if release == "" {
		return ""
	}
	if medium := strings.TrimSpace(e.AlbumTag("MUSICBRAINZ_MEDIUM")); medium != "" {
		return release + ":" + medium
	}
	return release
}

// NewFallbackEntry builds the offline stub used when no provider matched.
func NewFallbackEntry(t *toc.DiscTOC) *Entry {
	discid := t.CddbDiscID
	if discid == "" {
		discid = "unknown"
	}
	e := &Entry{
		CddbDiscID: discid,
		FetchedAt:  shared.NowTimestampISO(),
		AlbumTags: []Tag{
			{Key: "ARTIST"}, {Key: "ALBUM"}, {Key: "GENRE"}, {Key: "DATE"},
		},
		Tracks: make([][]Tag, len(t.Tracks)),
	}
	for i := range e.Tracks {
		e.Tracks[i] = []Tag{{Key: "TITLE", Value: fmt.Sprintf("Track %d", i+1)}}
	}
	return e
}

// EnsureTrackTitles resizes the per-track tag lists to count tracks and adds
// a "Track N" title wherever none is present.
func (e *Entry) EnsureTrackTitles(count int) {
	rebuilt := make([][]Tag, count)
	for i := 0; i < count; i++ {
		if i < len(e.Tracks) {
			rebuilt[i] = e.Tracks[i]
		}
		hasTitle := false
		for _, t := range rebuilt[i] {
			if strings.ToUpper(t.Key) == "TITLE" && t.Value != "" {
				hasTitle = true
				break
			}
		}
		if !hasTitle {
			rebuilt[i] = append(rebuilt[i], Tag{Key: "TITLE", Value: fmt.Sprintf("Track %d", i+1)})
		}
	}
	e.Tracks = rebuilt
}

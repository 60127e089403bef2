package meta

import (
	"fmt"
	"strconv"
	"strings"

	"cdrip/internal/shared"
	"cdrip/internal/toc"
)

// TagMode selects the tag-layering flavour.
type TagMode int

const (
	// TagModeRip is used while ripping; MUSICBRAINZ_MEDIUMTITLE is dropped
	// because it only feeds path rendering, and the disc-id tags are emitted
	// only for source-less entries.
	TagModeRip TagMode = iota
	// TagModeRetag preserves MUSICBRAINZ_MEDIUMTITLE and always emits the
	// MusicBrainz disc-id tags the TOC carries.
	TagModeRetag
)

func cddbOffsets(t *toc.DiscTOC) string {
	parts := make([]string, 0, len(t.Tracks))
	for _, track := range t.Tracks {
		parts = append(parts, strconv.FormatInt(track.Start, 10))
	}
	return strings.Join(parts, ",")
}

// BuildTags layers the final Vorbis-comment tag set for one track: derived
// defaults first, then the entry's album tags, then its per-track tags.
// Empty values are pruned.
func BuildTags(entry *Entry, t *toc.DiscTOC, trackNumber, trackTotal int, mode TagMode) map[string]string {
	title := ""
	if trackNumber > 0 {
		title = entry.TrackTag(trackNumber-1, "TITLE")
	}
	if title == "" {
		n := trackNumber
		if n <= 0 {
			n = 1
		}
		title = fmt.Sprintf("Track %d", n)
	}

	discid := entry.CddbDiscID
	if discid == "" {
		discid = t.CddbDiscID
	}
	totalSeconds := ""
	if t.LengthSeconds > 0 {
		totalSeconds = strconv.Itoa(t.LengthSeconds)
	}

	tags := map[string]string{
		"TITLE":              title,
		"ARTIST":             entry.AlbumTag("ARTIST"),
		"ALBUM":              entry.AlbumTag("ALBUM"),
		"GENRE":              entry.AlbumTag("GENRE"),
		"DATE":               entry.AlbumTag("DATE"),
		"TRACKTOTAL":         strconv.Itoa(trackTotal),
		"CDDB_DISCID":        discid,
		"CDDB_OFFSETS":       cddbOffsets(t),
		"CDDB_TOTAL_SECONDS": totalSeconds,
	}
	if trackNumber > 0 {
		tags["TRACKNUMBER"] = strconv.Itoa(trackNumber)
	}

	ignoreSource := !entry.HasRealSource()
	fetchedAt := entry.FetchedAt
	if fetchedAt == "" {
		fetchedAt = shared.NowTimestampISO()
	}
	switch mode {
	case TagModeRip:
		if !ignoreSource {
			tags["CDDB"] = entry.SourceLabel
			tags["CDDB_DATE"] = fetchedAt
			// CDDB_URL intentionally skipped.
		}
	case TagModeRetag:
		tags["CDDB"] = entry.SourceLabel
		tags["CDDB_DATE"] = fetchedAt
	}

	mbDiscTags := func() {
		if t.MBDiscID == "" {
			return
		}
		tags["MUSICBRAINZ_DISCID"] = t.MBDiscID
		if leadout := t.Leadout(); leadout > 0 {
			tags["MUSICBRAINZ_LEADOUT"] = strconv.FormatInt(leadout+toc.LeadInFrames, 10)
		}
	}
	if mode == TagModeRetag {
		mbDiscTags()
		if t.MBReleaseID != "" {
			tags["MUSICBRAINZ_RELEASE"] = t.MBReleaseID
		}
		if t.MBMediumID != "" {
			tags["MUSICBRAINZ_MEDIUM"] = t.MBMediumID
		}
	}

	overlay := func(list []Tag) {
		for _, kv := range list {
			key := strings.ToUpper(kv.Key)
			if key == "" || kv.Value == "" {
				continue
			}
			if mode == TagModeRip && key == "MUSICBRAINZ_MEDIUMTITLE" {
				continue
			}
			tags[key] = kv.Value
		}
	}
	overlay(entry.AlbumTags)
	if trackNumber > 0 && trackNumber-1 < len(entry.Tracks) {
		overlay(entry.Tracks[trackNumber-1])
	}

	if mode == TagModeRip && ignoreSource {
		mbDiscTags()
	}

	for key, value := range tags {
		if value == "" {
			delete(tags, key)
		}
	}
	delete(tags, "MUSICBRAINZ_MEDIUMTITLE_RAW")
	return tags
}

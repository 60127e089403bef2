package musicbrainz

import (
	"strconv"
	"strings"

	"cdrip/internal/meta"
	"cdrip/internal/shared"
	"cdrip/internal/toc"
)

// joinArtistCredit concatenates the ordered artist-credit array, each name
// followed by its join phrase.
func joinArtistCredit(credits []ArtistCredit) string {
	var sb strings.Builder
	for _, credit := range credits {
		name := credit.Name
		if name == "" {
			name = credit.Artist.Name
		}
		sb.WriteString(name)
		sb.WriteString(credit.JoinPhrase)
	}
	return strings.TrimSpace(sb.String())
}

// extractDiscogsReleaseID scans the release relations for a discogs link and
// returns the trailing integer of its /release/{n} segment.
func extractDiscogsReleaseID(release *Release) string {
	for _, rel := range release.Relations {
		if !strings.EqualFold(rel.Type, "discogs") {
			continue
		}
		if id := discogsIDFromURL(rel.URL.Resource); id != "" {
			return id
		}
	}
	return ""
}

func discogsIDFromURL(resource string) string {
	const marker = "/release/"
	lower := strings.ToLower(resource)
	pos := strings.Index(lower, marker)
	if pos < 0 {
		return ""
	}
	start := pos + len(marker)
	end := start
	for end < len(resource) && resource[end] >= '0' && resource[end] <= '9' {
		end++
	}
	if end == start {
		return ""
	}
	return resource[start:end]
}

func offsetsMatch(discOffsets, expected []int64) bool {
	if len(expected) == 0 || len(discOffsets) != len(expected) {
		return false
	}
	for i := range expected {
		if discOffsets[i] != expected[i] {
			return false
		}
	}
	return true
}

func mediumMatches(medium *Media, t *toc.DiscTOC, offsets []int64, discid, preferredMedium string) bool {
	if preferredMedium != "" && medium.ID != "" && medium.ID == preferredMedium {
		return true
	}
	for _, disc := range medium.Discs {
		if discid != "" && disc.ID != "" && disc.ID == discid {
			return true
		}
		if offsetsMatch(disc.Offsets, offsets) {
			return true
		}
	}
	return false
}

// selectMatchingMedia picks the media of a release that correspond to the
// local disc: an exact disc-id match wins outright, then preferred medium /
// offsets, then equal track count, then the first medium as a last resort.
func selectMatchingMedia(media []Media, t *toc.DiscTOC, offsets []int64, discid, preferredMedium string) []*Media {
	if len(media) == 0 {
		return nil
	}

	if discid != "" {
		var discidMatches []*Media
		for i := range media {
			for _, disc := range media[i].Discs {
				if disc.ID != "" && disc.ID == discid {
					discidMatches = append(discidMatches, &media[i])
					break
				}
			}
		}
		if len(discidMatches) > 0 {
			return discidMatches
		}
	}

	var matches, sameTracks []*Media
	for i := range media {
		if mediumMatches(&media[i], t, offsets, discid, preferredMedium) {
			matches = append(matches, &media[i])
		} else if media[i].TrackCount > 0 && media[i].TrackCount == len(t.Tracks) {
			sameTracks = append(sameTracks, &media[i])
		}
	}
	if len(matches) > 0 {
		return matches
	}
	if len(sameTracks) > 0 {
		return sameTracks
	}
	return []*Media{&media[0]}
}

func appendUnique(dest []string, value string) []string {
	if value == "" {
		return dest
	}
	for _, existing := range dest {
		if existing == value {
			return dest
		}
	}
	return append(dest, value)
}

func collectGenres(dest []string, genres []NamedTag, genreList []string, tags []NamedTag, tagList []string) []string {
	for _, g := range genres {
		dest = appendUnique(dest, g.Name)
	}
	for _, g := range genreList {
		dest = appendUnique(dest, g)
	}
	for _, t := range tags {
		dest = appendUnique(dest, t.Name)
	}
	for _, t := range tagList {
		dest = appendUnique(dest, t)
	}
	return dest
}

func fillTrackTags(entry *meta.Entry, index int, track *MediaTrack, fallbackArtist string) {
	entry.AddTrackTag(index, "TITLE", track.Title)

	trackArtist := joinArtistCredit(track.ArtistCredit)
	if trackArtist == "" {
		trackArtist = fallbackArtist
	}
	entry.AddTrackTag(index, "ARTIST", trackArtist)
	entry.AddTrackTag(index, "MUSICBRAINZ_TRACKID", track.ID)
	entry.AddTrackTag(index, "MUSICBRAINZ_RECORDINGID", track.Recording.ID)
	if len(track.Recording.ISRCs) > 0 {
		entry.AddTrackTag(index, "ISRC", strings.Join(track.Recording.ISRCs, "; "))
	}
	// Recording-level artist credit wins when present; later tags override
	// in the final layering.
	if recArtist := joinArtistCredit(track.Recording.ArtistCredit); recArtist != "" {
		entry.AddTrackTag(index, "ARTIST", recArtist)
	}
}

// buildEntriesFromRelease emits one entry per matching medium of the release.
func buildEntriesFromRelease(t *toc.DiscTOC, requestURL string, release *Release, offsets []int64, discid string) []*meta.Entry {
	if release == nil || len(release.Media) == 0 {
		return nil
	}
	media := selectMatchingMedia(release.Media, t, offsets, discid, t.MBMediumID)
	if len(media) == 0 {
		return nil
	}

	albumArtist := joinArtistCredit(release.ArtistCredit)
	discogsReleaseID := extractDiscogsReleaseID(release)
	genres := collectGenres(nil, release.Genres, release.GenreList, release.Tags, release.TagList)
	genres = collectGenres(genres, release.ReleaseGroup.Genres, release.ReleaseGroup.GenreList,
		release.ReleaseGroup.Tags, release.ReleaseGroup.TagList)
	genreText := strings.Join(genres, "; ")
	hasCoverArtwork := release.CoverArtArchive.Artwork || release.CoverArtArchive.Front
	mediumTotal := len(release.Media)

	var entries []*meta.Entry
	for _, medium := range media {
		entry := &meta.Entry{
			CddbDiscID:  t.CddbDiscID,
			SourceLabel: meta.MusicBrainzLabel,
			SourceURL:   requestURL,
			FetchedAt:   shared.NowTimestampISO(),
			Tracks:      make([][]meta.Tag, len(t.Tracks)),
		}
		if hasCoverArtwork {
			entry.CoverArt.Available = true
			entry.CoverArt.IsFront = true
		}

		entry.AddAlbumTag("ALBUM", release.Title)
		entry.AddAlbumTag("ARTIST", albumArtist)
		entry.AddAlbumTag("ALBUMARTIST", albumArtist)
		entry.AddAlbumTag("DATE", release.Date)
		entry.AddAlbumTag("RELEASECOUNTRY", release.Country)
		entry.AddAlbumTag("BARCODE", release.Barcode)
		entry.AddAlbumTag("RELEASESTATUS", release.Status)
		entry.AddAlbumTag("GENRE", genreText)
		entry.AddAlbumTag("MEDIA", medium.Format)
		entry.AddAlbumTag("MUSICBRAINZ_RELEASE", release.ID)
		entry.AddAlbumTag("MUSICBRAINZ_MEDIUM", medium.ID)
		entry.AddAlbumTag("MUSICBRAINZ_MEDIUMTITLE", medium.Title)
		entry.AddAlbumTag("MUSICBRAINZ_RELEASEGROUPID", release.ReleaseGroup.ID)
		entry.AddAlbumTag("DISCOGS_RELEASE", discogsReleaseID)
		if medium.TrackCount > 0 {
			entry.AddAlbumTag("TRACKTOTAL", strconv.Itoa(medium.TrackCount))
		}
		if medium.Position > 0 {
			entry.AddAlbumTag("DISCNUMBER", strconv.Itoa(medium.Position))
		}
		if mediumTotal > 0 {
			entry.AddAlbumTag("DISCTOTAL", strconv.Itoa(mediumTotal))
		}
		for _, li := range release.LabelInfo {
			entry.AddAlbumTag("LABEL", li.Label.Name)
			entry.AddAlbumTag("CATALOGNUMBER", li.CatalogNumber)
		}

		fallbackIndex := 0
		for i := range medium.Tracks {
			track := &medium.Tracks[i]
			position := track.Position
			if position <= 0 && track.Number != "" {
				if parsed, err := strconv.Atoi(track.Number); err == nil {
					position = parsed
				}
			}
			index := fallbackIndex
			if position > 0 {
				index = position - 1
			}
			if index >= len(entry.Tracks) {
				continue
			}
			fillTrackTags(entry, index, track, albumArtist)
			fallbackIndex++
		}

		entries = append(entries, entry)
	}
	return entries
}

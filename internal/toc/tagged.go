package toc

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-flac/flacvorbis"
	goflac "github.com/go-flac/go-flac"

	"cdrip/internal/shared"
)

// TaggedTOC is a table of contents reconstructed from the Vorbis comments of
// an existing FLAC file, so the metadata engine can retag a library offline.
type TaggedTOC struct {
	Path        string
	TOC         *DiscTOC
	TrackNumber int
	Valid       bool
	Reason      string
}

func invalidTagged(path, reason string, trackNumber int) TaggedTOC {
	return TaggedTOC{Path: path, TrackNumber: trackNumber, Reason: reason}
}

func isFlacFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".flac")
}

// ReadVorbisComments collects the Vorbis comments of a FLAC file into a map
// with uppercased keys. Later duplicates win.
func ReadVorbisComments(path string) (map[string]string, error) {
	f, err := goflac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse FLAC file: %w", err)
	}
	tags := make(map[string]string)
	found := false
	for _, block := range f.Meta {
		if block.Type != goflac.VorbisComment {
			continue
		}
		cmt, err := flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			continue
		}
		found = true
		for _, comment := range cmt.Comments {
			eq := strings.IndexByte(comment, '=')
			if eq <= 0 {
				continue
			}
			key := strings.ToUpper(comment[:eq])
			tags[key] = comment[eq+1:]
		}
	}
	if !found {
		return nil, fmt.Errorf("no Vorbis comment block in %s", path)
	}
	return tags, nil
}

// parseOffsets parses a comma- or whitespace-separated integer list.
func parseOffsets(raw string) ([]int64, bool) {
	var offsets []int64
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		value, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, false
		}
		offsets = append(offsets, value)
	}
	return offsets, true
}

// CollectTagged walks path (a FLAC file or a directory tree of FLAC files)
// and reconstructs a TaggedTOC per file. Files that cannot be reconstructed
// are returned invalid with a reason instead of failing the whole walk.
func CollectTagged(path string) ([]TaggedTOC, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, shared.Errorf(shared.KindIOError, "path not found or unsupported: %s", path)
	}

	var targets []string
	if info.IsDir() {
		walkErr := filepath.WalkDir(path, func(p string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.Type().IsRegular() && isFlacFile(p) {
				targets = append(targets, p)
			}
			return nil
		})
		if walkErr != nil {
			return nil, shared.WrapError(shared.KindIOError, "failed to scan directory "+path, walkErr)
		}
	} else if isFlacFile(path) {
		targets = append(targets, path)
	} else {
		return nil, shared.Errorf(shared.KindIOError, "path not found or unsupported: %s", path)
	}

	items := make([]TaggedTOC, 0, len(targets))
	for _, target := range targets {
		items = append(items, buildTaggedTOC(target))
	}
	return items, nil
}

func buildTaggedTOC(path string) TaggedTOC {
	tags, err := ReadVorbisComments(path)
	if err != nil {
		return invalidTagged(path, "Failed to read Vorbis comments", 0)
	}
	get := func(key string) string {
		return strings.TrimSpace(tags[key])
	}

	cddbDiscID := get("CDDB_DISCID")
	offsetsRaw := get("CDDB_OFFSETS")
	totalSecRaw := get("CDDB_TOTAL_SECONDS")
	trackTotalRaw := get("TRACKTOTAL")
	trackNumberRaw := get("TRACKNUMBER")
	mbReleaseID := get("MUSICBRAINZ_RELEASE")
	mbMediumID := get("MUSICBRAINZ_MEDIUM")
	mbDiscIDTag := get("MUSICBRAINZ_DISCID")
	mbLeadoutTag := get("MUSICBRAINZ_LEADOUT")

	trackTotal, _ := strconv.Atoi(trackTotalRaw)
	trackNumber, _ := strconv.Atoi(trackNumberRaw)
	totalSeconds, _ := strconv.Atoi(totalSecRaw)

	offsets, offsetsOK := parseOffsets(offsetsRaw)
	if !offsetsOK {
		return invalidTagged(path, "Invalid CDDB_OFFSETS", trackNumber)
	}
	if trackTotal == 0 {
		trackTotal = len(offsets)
	}
	if cddbDiscID == "" || len(offsets) == 0 || totalSeconds <= 0 || trackTotal <= 0 {
		return invalidTagged(path, "Missing CDDB tags", trackNumber)
	}
	if trackTotal != len(offsets) {
		return invalidTagged(path, "Offsets count mismatch with track total", trackNumber)
	}

	discFrames := int64(totalSeconds) * FramesPerSecond
	if discFrames <= 0 {
		return invalidTagged(path, "Invalid disc length", trackNumber)
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] <= offsets[i-1] {
			return invalidTagged(path, "Offsets are not strictly increasing", trackNumber)
		}
	}

	t := &DiscTOC{
		CddbDiscID:  cddbDiscID,
		MBReleaseID: mbReleaseID,
		MBMediumID:  mbMediumID,
		MBDiscID:    mbDiscIDTag,
	}
	if mbLeadoutTag != "" {
		if mbLeadout, err := strconv.ParseInt(mbLeadoutTag, 10, 64); err == nil && mbLeadout > LeadInFrames {
			t.LeadoutSector = mbLeadout - LeadInFrames
		}
	}
	if t.LeadoutSector <= 0 {
		t.LeadoutSector = discFrames
	}
	t.LengthSeconds = totalSeconds

	t.Tracks = make([]TrackInfo, 0, len(offsets))
	for i, start := range offsets {
		end := discFrames - 1
		if i+1 < len(offsets) {
			end = offsets[i+1] - 1
		}
		if end < start {
			return invalidTagged(path, "Offsets length inconsistency", trackNumber)
		}
		t.Tracks = append(t.Tracks, TrackInfo{
			Number:  i + 1,
			Start:   start,
			End:     end,
			IsAudio: true,
		})
	}

	// Recompute the MusicBrainz disc id for later queries when only the
	// leadout survived in the tags.
	if t.MBDiscID == "" && mbLeadoutTag != "" {
		if id, err := ComputeMBDiscID(t); err == nil {
			t.MBDiscID = id
		}
	}

	return TaggedTOC{Path: path, TOC: t, TrackNumber: trackNumber, Valid: true}
}

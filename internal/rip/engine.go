package rip

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cdrip/internal/drive"
	"cdrip/internal/flacenc"
	"cdrip/internal/meta"
	"cdrip/internal/shared"
	"cdrip/internal/toc"
)

const (
	channels         = 2
	bitsPerSample    = 16
	sampleRate       = 44100
	samplesPerSector = drive.RawSectorSize / (channels * 2)
	chunkSectors     = 128
)

// Engine rips single tracks from an open drive. It must not be invoked
// concurrently against the same drive handle.
type Engine struct {
	Drive  drive.Drive
	Format string
	// CompressionLevel below zero selects the mode default (1 fast, 5 best).
	CompressionLevel int
	FastMode         bool
	SpeedFast        bool

	// NewEncoder overrides the encoder factory, primarily for tests.
	NewEncoder flacenc.Factory
}

func (e *Engine) encoderFactory() flacenc.Factory {
	if e.NewEncoder != nil {
		return e.NewEncoder
	}
	return flacenc.New
}

// buildAlbumMedia derives the ALBUMMEDIA path tag: the plain album for single
// discs, otherwise the album with the medium title or a CD<n> suffix.
func buildAlbumMedia(pathTags map[string]string, entry *meta.Entry) string {
	album := strings.TrimSpace(TruncateOnNewline(pathTags["ALBUM"]))
	discTotal, _ := strconv.Atoi(strings.TrimSpace(TruncateOnNewline(pathTags["DISCTOTAL"])))
	if discTotal <= 1 {
		return album
	}

	mediumTitle := strings.TrimSpace(TruncateOnNewline(entry.AlbumTag("MUSICBRAINZ_MEDIUMTITLE")))
	if mediumTitle != "" {
		if album == "" {
			return mediumTitle
		}
		return album + " " + mediumTitle
	}

	discNumber := strings.TrimSpace(TruncateOnNewline(pathTags["DISCNUMBER"]))
	if discNumber == "" {
		return album
	}
	if album == "" {
		return "CD" + discNumber
	}
	return album + " CD" + discNumber
}

// RipTrack rips one track: tag layering, destination rendering, paranoid
// read, streaming FLAC encode, metadata attach and atomic publish.
func (e *Engine) RipTrack(
	track toc.TrackInfo,
	entry *meta.Entry,
	t *toc.DiscTOC,
	progress ProgressFunc,
	totalTracks int,
	completedBeforeSec float64,
	totalAlbumSec float64,
	wallStart time.Time,
) error {
	if entry == nil || t == nil {
		return shared.NewError(shared.KindInvalidTOC, "invalid arguments to RipTrack")
	}
	if !track.IsAudio {
		shared.ColorInfo.Printf("Skipping data track %d\n", track.Number)
		return nil
	}
	sectors := track.Sectors()
	if sectors <= 0 {
		return shared.Errorf(shared.KindInvalidTOC, "track %d has invalid length", track.Number)
	}

	tags := meta.BuildTags(entry, t, track.Number, totalTracks, meta.TagModeRip)

	pathTags := make(map[string]string, len(tags)+2)
	for key, value := range tags {
		pathTags[key] = TruncateOnNewline(value)
	}
	trackName := TruncateOnNewline(pathTags["TITLE"])
	pathTags["TITLE"] = trackName
	safeTitle := strings.TrimRight(trackName, trailingTrimChars)
	safeTitle = strings.Map(func(r rune) rune {
		if r < 0x80 && strings.IndexByte(replaceChars, byte(r)) >= 0 {
			return '_'
		}
		return r
	}, safeTitle)
	pathTags["SAFETITLE"] = safeTitle
	pathTags["ALBUMMEDIA"] = buildAlbumMedia(pathTags, entry)

	outfile := RenderFilename(e.Format, BuildFormatTags(pathTags))
	tmpFile := outfile + ".tmp"

	if parent := filepath.Dir(outfile); parent != "" && parent != "." {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return shared.WrapError(shared.KindIOError,
				"failed to create directories for "+tmpFile, err)
		}
	}

	scratch, err := os.CreateTemp("", "cdrip*.flac")
	if err != nil {
		return shared.WrapError(shared.KindIOError, "failed to create temporary file", err)
	}
	scratchPath := scratch.Name()
	scratch.Close()
	defer os.Remove(scratchPath)

	cleanupTmp := func() {
		os.Remove(tmpFile)
	}

	compression := e.CompressionLevel
	if compression < 0 {
		if e.FastMode {
			compression = 1
		} else {
			compression = 5
		}
	}

	// Request rip speed; not all drives support it, errors are ignored by the
	// backend.
	e.Drive.SetSpeed(e.SpeedFast)

	encoder, err := e.encoderFactory()(scratchPath, flacenc.Options{
		SampleRate:           sampleRate,
		Channels:             channels,
		BitsPerSample:        bitsPerSample,
		CompressionLevel:     compression,
		TotalSamplesEstimate: sectors * samplesPerSector,
	})
	if err != nil {
		return shared.WrapError(shared.KindEncodeError, "failed to init FLAC stream encoder", err)
	}

	reader := e.Drive.Reader()
	if err := reader.Seek(track.Start); err != nil {
		encoder.Close()
		return shared.WrapError(shared.KindReadError,
			fmt.Sprintf("failed to seek to track %d", track.Number), err)
	}

	wallTrackStart := time.Since(wallStart).Seconds()
	sector := make([]byte, drive.RawSectorSize)
	samples := make([]int32, chunkSectors*samplesPerSector*channels)

	processed := int64(0)
	for processed < sectors {
		chunk := int64(chunkSectors)
		if remaining := sectors - processed; remaining < chunk {
			chunk = remaining
		}

		for c := int64(0); c < chunk; c++ {
			if err := reader.ReadSector(sector); err != nil {
				encoder.Finish()
				encoder.Close()
				cleanupTmp()
				return shared.WrapError(shared.KindReadError,
					fmt.Sprintf("read error on track %d", track.Number), err)
			}
			base := int(c) * samplesPerSector * channels
			for i := 0; i < samplesPerSector*channels; i++ {
				samples[base+i] = int32(int16(binary.LittleEndian.Uint16(sector[i*2:])))
			}
		}

		samplesInChunk := int(chunk) * samplesPerSector
		if err := encoder.ProcessInterleaved(samples[:samplesInChunk*channels], samplesInChunk); err != nil {
			encoder.Finish()
			encoder.Close()
			cleanupTmp()
			return shared.WrapError(shared.KindEncodeError,
				fmt.Sprintf("FLAC encoding error on track %d", track.Number), err)
		}
		processed += chunk

		if progress != nil {
			progress(buildProgress(progressInput{
				track:           track,
				totalTracks:     totalTracks,
				processed:       processed,
				sectors:         sectors,
				completedBefore: completedBeforeSec,
				totalAlbumSec:   totalAlbumSec,
				wallStart:       wallStart,
				wallTrackStart:  wallTrackStart,
				title:           tags["TITLE"],
				trackName:       trackName,
				safeTitle:       safeTitle,
				destination:     outfile,
			}))
		}
	}

	if err := encoder.Finish(); err != nil {
		encoder.Close()
		cleanupTmp()
		return shared.WrapError(shared.KindEncodeError,
			fmt.Sprintf("FLAC encoding error on track %d", track.Number), err)
	}
	encoder.Close()

	if err := attachMetadata(scratchPath, tags, &entry.CoverArt); err != nil {
		cleanupTmp()
		return err
	}

	if err := copyFile(scratchPath, tmpFile); err != nil {
		cleanupTmp()
		return shared.WrapError(shared.KindIOError,
			"failed to copy to temporary destination "+tmpFile, err)
	}
	// Delete a stale destination first so the rename below is a clean
	// replace on every platform.
	os.Remove(outfile)
	if err := os.Rename(tmpFile, outfile); err != nil {
		cleanupTmp()
		return shared.WrapError(shared.KindIOError,
			"failed to finalize file "+outfile, err)
	}
	return nil
}

type progressInput struct {
	track           toc.TrackInfo
	totalTracks     int
	processed       int64
	sectors         int64
	completedBefore float64
	totalAlbumSec   float64
	wallStart       time.Time
	wallTrackStart  float64
	title           string
	trackName       string
	safeTitle       string
	destination     string
}

func buildProgress(in progressInput) *Progress {
	elapsedTrack := float64(in.processed) * samplesPerSector / sampleRate
	wallElapsed := time.Since(in.wallStart).Seconds()

	p := &Progress{
		TrackNumber:         in.track.Number,
		TotalTracks:         in.totalTracks,
		Percent:             float64(in.processed) / float64(in.sectors) * 100.0,
		ElapsedTrackSec:     elapsedTrack,
		TrackTotalSec:       float64(in.sectors) * samplesPerSector / sampleRate,
		ElapsedAlbumSec:     in.completedBefore + elapsedTrack,
		TotalAlbumSec:       in.totalAlbumSec,
		WallElapsedSec:      wallElapsed,
		WallTrackElapsedSec: wallElapsed - in.wallTrackStart,
		Title:               in.title,
		TrackName:           in.trackName,
		SafeTitle:           in.safeTitle,
		Path:                in.destination,
	}

	audioDone := p.ElapsedAlbumSec
	audioRemain := in.totalAlbumSec - audioDone
	if audioRemain < 0 {
		audioRemain = 0
	}
	if wallElapsed > 0 && audioDone > 0 {
		throughput := audioDone / wallElapsed
		p.WallTotalSec = wallElapsed + audioRemain/throughput
		p.WallTrackTotalSec = p.TrackTotalSec / throughput
	}
	return p
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

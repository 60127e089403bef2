package rip

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cdrip/internal/drive"
	"cdrip/internal/flacenc"
	"cdrip/internal/meta"
	"cdrip/internal/shared"
	"cdrip/internal/toc"
)

// fakeDrive serves deterministic sector data from memory.
type fakeDrive struct {
	tracks  []drive.Track
	readErr error
	pos     int64
}

func (d *fakeDrive) Tracks() ([]drive.Track, error) { return d.tracks, nil }

func (d *fakeDrive) LastSector() (int64, error) {
	last := d.tracks[len(d.tracks)-1]
	return last.End, nil
}

func (d *fakeDrive) SetSpeed(fast bool) {}

func (d *fakeDrive) Reader() drive.Reader { return (*fakeReader)(d) }

func (d *fakeDrive) Close() error { return nil }

type fakeReader fakeDrive

func (r *fakeReader) Seek(sector int64) error {
	r.pos = sector
	return nil
}

func (r *fakeReader) ReadSector(buf []byte) error {
	if r.readErr != nil {
		return r.readErr
	}
	for i := 0; i < len(buf)/2; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(r.pos+int64(i)))
	}
	r.pos++
	return nil
}

// stubEncoder records submitted samples and writes a minimal FLAC container
// on creation so the metadata attach stage has a parseable file.
type stubEncoder struct {
	samplesPerChannel int
	finished          bool
	processErr        error
}

func stubFactory(enc *stubEncoder) flacenc.Factory {
	return func(path string, opts flacenc.Options) (flacenc.Encoder, error) {
		data := append([]byte("fLaC"), 0x80, 0x00, 0x00, 34)
		data = append(data, make([]byte, 34)...)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, err
		}
		return enc, nil
	}
}

func (e *stubEncoder) ProcessInterleaved(samples []int32, samplesPerChannel int) error {
	if e.processErr != nil {
		return e.processErr
	}
	e.samplesPerChannel += samplesPerChannel
	return nil
}

func (e *stubEncoder) Finish() error {
	e.finished = true
	return nil
}

func (e *stubEncoder) Close() {}

func engineTOC() *toc.DiscTOC {
	return &toc.DiscTOC{
		Tracks: []toc.TrackInfo{
			{Number: 1, Start: 0, End: 199, IsAudio: true},
			{Number: 2, Start: 200, End: 449, IsAudio: true},
		},
		LeadoutSector: 450,
		LengthSeconds: 6,
		CddbDiscID:    "abc1202",
	}
}

func engineEntry() *meta.Entry {
	e := &meta.Entry{
		SourceLabel: "musicbrainz",
		SourceURL:   "https://musicbrainz.org/ws/2/discid/x",
		FetchedAt:   "2024-05-01T10:00:00+09:00",
		Tracks:      make([][]meta.Tag, 2),
	}
	e.AddAlbumTag("ALBUM", "The Album")
	e.AddAlbumTag("ARTIST", "The Artist")
	e.AddAlbumTag("DISCTOTAL", "2")
	e.AddAlbumTag("DISCNUMBER", "1")
	e.AddAlbumTag("MUSICBRAINZ_MEDIUMTITLE", "Bonus Disc")
	e.AddTrackTag(0, "TITLE", "Intro")
	e.AddTrackTag(1, "TITLE", "Outro")
	return e
}

func newTestEngine(t *testing.T, d drive.Drive, enc *stubEncoder) *Engine {
	t.Helper()
	dir := t.TempDir()
	return &Engine{
		Drive:            d,
		Format:           filepath.Join(dir, "{albummedia}/{tracknumber:02d}_{safetitle}.flac"),
		CompressionLevel: -1,
		NewEncoder:       stubFactory(enc),
	}
}

func TestRipTrackPublishesAtomically(t *testing.T) {
	d := &fakeDrive{tracks: []drive.Track{
		{Number: 1, Start: 0, End: 199, IsAudio: true},
		{Number: 2, Start: 200, End: 449, IsAudio: true},
	}}
	enc := &stubEncoder{}
	engine := newTestEngine(t, d, enc)
	discTOC := engineTOC()
	entry := engineEntry()

	var lastProgress *Progress
	err := engine.RipTrack(discTOC.Tracks[0], entry, discTOC, func(p *Progress) {
		lastProgress = p
	}, 2, 0, 12.0, time.Now())
	if err != nil {
		t.Fatalf("RipTrack failed: %v", err)
	}

	// Multi-disc release with a medium title renders the scenario path.
	want := filepath.Join(filepath.Dir(filepath.Dir(engine.Format)), "The Album Bonus Disc", "01_Intro.flac")
	if _, statErr := os.Stat(want); statErr != nil {
		t.Fatalf("expected output at %s: %v", want, statErr)
	}
	if _, statErr := os.Stat(want + ".tmp"); !os.IsNotExist(statErr) {
		t.Error("sibling .tmp file must not survive")
	}

	if !enc.finished {
		t.Error("encoder was not finalised")
	}
	if wantSamples := 200 * samplesPerSector; enc.samplesPerChannel != wantSamples {
		t.Errorf("encoded %d samples, want %d", enc.samplesPerChannel, wantSamples)
	}

	if lastProgress == nil {
		t.Fatal("no progress delivered")
	}
	if lastProgress.Percent != 100 {
		t.Errorf("final percent = %v", lastProgress.Percent)
	}
	if lastProgress.TrackName != "Intro" || lastProgress.SafeTitle != "Intro" {
		t.Errorf("progress titles = %q/%q", lastProgress.TrackName, lastProgress.SafeTitle)
	}
	if lastProgress.TotalAlbumSec != 12.0 {
		t.Errorf("album total = %v", lastProgress.TotalAlbumSec)
	}
	wantTrackSec := float64(200*samplesPerSector) / sampleRate
	if lastProgress.TrackTotalSec != wantTrackSec {
		t.Errorf("track total sec = %v, want %v", lastProgress.TrackTotalSec, wantTrackSec)
	}

	// The published file carries the layered tags.
	tags, err := toc.ReadVorbisComments(want)
	if err != nil {
		t.Fatalf("reading published tags: %v", err)
	}
	if tags["TITLE"] != "Intro" || tags["ALBUM"] != "The Album" {
		t.Errorf("published tags = %v", tags)
	}
	if tags["CDDB"] != "musicbrainz" {
		t.Errorf("CDDB source tag = %q", tags["CDDB"])
	}
}

func TestRipTrackSkipsDataTracks(t *testing.T) {
	d := &fakeDrive{}
	engine := newTestEngine(t, d, &stubEncoder{})
	discTOC := engineTOC()
	track := toc.TrackInfo{Number: 1, Start: 0, End: 199, IsAudio: false}

	called := false
	err := engine.RipTrack(track, engineEntry(), discTOC, func(p *Progress) { called = true },
		2, 0, 12.0, time.Now())
	if err != nil {
		t.Fatalf("data track skip failed: %v", err)
	}
	if called {
		t.Error("data tracks must not report progress")
	}
}

func TestRipTrackReadErrorCleansUp(t *testing.T) {
	d := &fakeDrive{
		tracks:  []drive.Track{{Number: 1, Start: 0, End: 199, IsAudio: true}},
		readErr: errors.New("scratched disc"),
	}
	engine := newTestEngine(t, d, &stubEncoder{})
	discTOC := engineTOC()

	err := engine.RipTrack(discTOC.Tracks[0], engineEntry(), discTOC, nil, 2, 0, 12.0, time.Now())
	if err == nil {
		t.Fatal("read error must fail the track")
	}
	if !shared.IsKind(err, shared.KindReadError) {
		t.Errorf("kind = %v, want ReadError", shared.KindOf(err))
	}

	root := filepath.Dir(filepath.Dir(engine.Format))
	filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err == nil && !entry.IsDir() {
			t.Errorf("partial output left behind: %s", path)
		}
		return nil
	})
}

func TestRipTrackEncoderErrorCleansUp(t *testing.T) {
	d := &fakeDrive{tracks: []drive.Track{{Number: 1, Start: 0, End: 199, IsAudio: true}}}
	enc := &stubEncoder{processErr: errors.New("encoder exploded")}
	engine := newTestEngine(t, d, enc)
	discTOC := engineTOC()

	err := engine.RipTrack(discTOC.Tracks[0], engineEntry(), discTOC, nil, 2, 0, 12.0, time.Now())
	if err == nil {
		t.Fatal("encoder error must fail the track")
	}
	if !shared.IsKind(err, shared.KindEncodeError) {
		t.Errorf("kind = %v, want EncodeError", shared.KindOf(err))
	}
}

func TestRipTrackInvalidLength(t *testing.T) {
	d := &fakeDrive{}
	engine := newTestEngine(t, d, &stubEncoder{})
	track := toc.TrackInfo{Number: 1, Start: 100, End: 50, IsAudio: true}
	if err := engine.RipTrack(track, engineEntry(), engineTOC(), nil, 1, 0, 0, time.Now()); err == nil {
		t.Error("negative-length track must fail")
	}
}

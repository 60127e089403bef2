// Package toc models an audio CD table of contents and derives the disc
// identifiers used by the metadata providers.
package toc

import "cdrip/internal/shared"

// FramesPerSecond is the CD sector rate (75 sectors per second of audio).
const FramesPerSecond = 75

// LeadInFrames is the 2-second lead-in MusicBrainz adds to every offset.
const LeadInFrames = 150

// TrackInfo describes one track of a disc.
type TrackInfo struct {
	Number  int
	Start   int64
	End     int64
	IsAudio bool
}

// Sectors returns the number of sectors the track spans.
func (t TrackInfo) Sectors() int64 {
	return t.End - t.Start + 1
}

// DiscTOC is an immutable table of contents plus the derived identifiers.
type DiscTOC struct {
	Tracks        []TrackInfo
	LeadoutSector int64
	LengthSeconds int

	CddbDiscID string
	MBDiscID   string

	// Preferred MusicBrainz release/medium, when recovered from tags.
	MBReleaseID string
	MBMediumID  string
}

// Validate checks the structural invariants of the TOC.
func (d *DiscTOC) Validate() error {
	if len(d.Tracks) == 0 {
		return shared.NewError(shared.KindInvalidTOC, "TOC has no tracks")
	}
	prev := int64(-1)
	for i, t := range d.Tracks {
		if t.Number < 1 {
			return shared.Errorf(shared.KindInvalidTOC, "track %d has invalid number %d", i+1, t.Number)
		}
		if t.End < t.Start {
			return shared.Errorf(shared.KindInvalidTOC, "track %d has end before start", t.Number)
		}
		if t.Start <= prev {
			return shared.Errorf(shared.KindInvalidTOC, "track %d sectors are not increasing", t.Number)
		}
		prev = t.End
	}
	if d.LeadoutSector <= d.Tracks[len(d.Tracks)-1].End {
		return shared.NewError(shared.KindInvalidTOC, "leadout does not follow the last track")
	}
	return nil
}

// Leadout returns the leadout sector, deriving it from the last track when
// the builder left it unset.
func (d *DiscTOC) Leadout() int64 {
	if d.LeadoutSector > 0 {
		return d.LeadoutSector
	}
	if len(d.Tracks) == 0 {
		return 0
	}
	return d.Tracks[len(d.Tracks)-1].End + 1
}

// MBOffsets returns the per-track MusicBrainz frame offsets (start + 150)
// and the MusicBrainz leadout (leadout + 150).
func (d *DiscTOC) MBOffsets() (offsets []int64, leadout int64) {
	if len(d.Tracks) == 0 {
		return nil, 0
	}
	leadout = d.Leadout() + LeadInFrames
	offsets = make([]int64, 0, len(d.Tracks))
	for _, t := range d.Tracks {
		offsets = append(offsets, t.Start+LeadInFrames)
	}
	return offsets, leadout
}

package toc

import (
	"cdrip/internal/drive"
	"cdrip/internal/shared"
)

// BuildFromDrive reads the table of contents from an open drive and derives
// the disc identifiers.
func BuildFromDrive(d drive.Drive) (*DiscTOC, error) {
	tracks, err := d.Tracks()
	if err != nil {
		return nil, shared.WrapError(shared.KindNoMedia, "no tracks found on disc", err)
	}
	if len(tracks) == 0 {
		return nil, shared.NewError(shared.KindNoMedia, "no tracks found on disc")
	}

	t := &DiscTOC{Tracks: make([]TrackInfo, 0, len(tracks))}
	for _, tr := range tracks {
		t.Tracks = append(t.Tracks, TrackInfo{
			Number:  tr.Number,
			Start:   tr.Start,
			End:     tr.End,
			IsAudio: tr.IsAudio,
		})
	}

	last, err := d.LastSector()
	if err != nil {
		return nil, shared.WrapError(shared.KindReadError, "failed to read disc last sector", err)
	}
	t.LeadoutSector = last + 1
	t.LengthSeconds = int(t.LeadoutSector / FramesPerSecond)

	if err := t.ComputeIDs(); err != nil {
		return nil, err
	}
	return t, nil
}

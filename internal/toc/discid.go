package toc

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"

	"cdrip/internal/shared"
)

// cddbDigitSum folds the decimal digits of n.
func cddbDigitSum(n int64) int64 {
	sum := int64(0)
	for n > 0 {
		sum += n % 10
		n /= 10
	}
	return sum
}

// ComputeCddbDiscID derives the legacy 32-bit CDDB identifier from the TOC,
// rendered as lowercase hex without leading zeros.
func ComputeCddbDiscID(d *DiscTOC) (string, error) {
	if len(d.Tracks) == 0 {
		return "", shared.NewError(shared.KindInvalidTOC, "cannot compute CDDB disc id without tracks")
	}
	checksum := int64(0)
	for _, t := range d.Tracks {
		checksum += cddbDigitSum(t.Start / FramesPerSecond)
	}
	length := int64(d.LengthSeconds)
	if length <= 0 {
		length = d.Leadout() / FramesPerSecond
	}
	id := uint32(checksum%255)<<24 | uint32(length&0xffff)<<8 | uint32(len(d.Tracks)&0xff)
	return fmt.Sprintf("%x", id), nil
}

// mbBase64 substitutes the MusicBrainz base64 variant characters.
var mbBase64 = strings.NewReplacer("+", ".", "/", "_", "=", "-")

// ComputeMBDiscID derives the 28-character MusicBrainz disc id: SHA-1 over an
// uppercase hex string of first track, last track and 100 frame offsets
// (slot 0 is the leadout), base64 with '.', '_', '-' substitutions.
func ComputeMBDiscID(d *DiscTOC) (string, error) {
	if len(d.Tracks) == 0 {
		return "", shared.NewError(shared.KindInvalidTOC, "cannot compute MusicBrainz disc id without tracks")
	}
	if len(d.Tracks) > 99 {
		return "", shared.Errorf(shared.KindInvalidTOC, "disc has %d tracks, MusicBrainz supports at most 99", len(d.Tracks))
	}
	first := d.Tracks[0].Number
	last := d.Tracks[len(d.Tracks)-1].Number
	if first <= 0 || last < first {
		return "", shared.NewError(shared.KindInvalidTOC, "invalid first/last track numbers")
	}

	var offsets [100]int64
	trackOffsets, leadout := d.MBOffsets()
	offsets[0] = leadout
	for i, off := range trackOffsets {
		offsets[i+1] = off
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%02X%02X", first, last)
	for _, off := range offsets {
		fmt.Fprintf(&sb, "%08X", off)
	}

	digest := sha1.Sum([]byte(sb.String()))
	encoded := base64.StdEncoding.EncodeToString(digest[:])
	return mbBase64.Replace(encoded), nil
}

// ComputeIDs fills in both disc identifiers, leaving already present values
// untouched. The MusicBrainz id is best-effort: a disc with more than 99
// tracks keeps an empty id.
func (d *DiscTOC) ComputeIDs() error {
	if d.CddbDiscID == "" {
		id, err := ComputeCddbDiscID(d)
		if err != nil {
			return err
		}
		d.CddbDiscID = id
	}
	if d.MBDiscID == "" {
		if id, err := ComputeMBDiscID(d); err == nil {
			d.MBDiscID = id
		}
	}
	return nil
}

// Package retag rewrites the metadata blocks of existing FLAC files with a
// freshly aggregated entry.
package retag

import (
	goflac "github.com/go-flac/go-flac"

	"cdrip/internal/meta"
	"cdrip/internal/rip"
	"cdrip/internal/shared"
	"cdrip/internal/toc"
)

// Update replaces the Vorbis-comment blocks of the tagged file with the tag
// layering of the chosen entry, and the PICTURE blocks when the entry carries
// new cover bytes. On failure the file is left unmodified.
func Update(tagged *toc.TaggedTOC, entry *meta.Entry) error {
	if tagged == nil || entry == nil || tagged.Path == "" || tagged.TOC == nil {
		return shared.NewError(shared.KindInvalidTOC, "invalid arguments to retag update")
	}

	trackNumber := tagged.TrackNumber
	if trackNumber < 0 {
		trackNumber = 0
	}
	tags := meta.BuildTags(entry, tagged.TOC, trackNumber, len(tagged.TOC.Tracks), meta.TagModeRetag)
	replacePicture := entry.CoverArt.HasData()

	f, err := goflac.ParseFile(tagged.Path)
	if err != nil {
		return shared.WrapError(shared.KindIOError, "failed to read FLAC metadata: "+tagged.Path, err)
	}

	// Remove every existing Vorbis-comment block, and every PICTURE block
	// when new artwork replaces them.
	filtered := make([]*goflac.MetaDataBlock, 0, len(f.Meta))
	for _, block := range f.Meta {
		if block.Type == goflac.VorbisComment {
			continue
		}
		if replacePicture && block.Type == goflac.Picture {
			continue
		}
		filtered = append(filtered, block)
	}
	f.Meta = filtered

	f.Meta = append(f.Meta, rip.BuildVorbisBlock(tags))
	if replacePicture {
		picture, err := rip.BuildPictureBlock(&entry.CoverArt)
		if err != nil {
			return err
		}
		if picture == nil {
			return shared.NewError(shared.KindEncodeError, "failed to build picture block")
		}
		f.Meta = append(f.Meta, picture)
	}

	if err := f.Save(tagged.Path); err != nil {
		return shared.WrapError(shared.KindIOError, "failed to write FLAC metadata", err)
	}
	return nil
}

package rip

import (
	"fmt"
	"sort"

	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	goflac "github.com/go-flac/go-flac"

	"cdrip/internal/cover"
	"cdrip/internal/meta"
	"cdrip/internal/shared"
)

// BuildVorbisBlock marshals the tag map into a Vorbis-comment metadata block
// with deterministic key order.
func BuildVorbisBlock(tags map[string]string) *goflac.MetaDataBlock {
	comment := flacvorbis.New()
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if tags[key] != "" {
			comment.Add(key, tags[key])
		}
	}
	block := comment.Marshal()
	return &block
}

// BuildPictureBlock builds and validates a PICTURE metadata block from the
// cover art. Returns nil when no usable artwork is attached.
func BuildPictureBlock(art *meta.CoverArt) (*goflac.MetaDataBlock, error) {
	if art == nil || !art.HasData() {
		return nil, nil
	}
	if len(art.Data) > cover.MaxFlacPictureBytes {
		return nil, shared.NewError(shared.KindPictureTooLarge, "cover art exceeds FLAC picture size limit")
	}
	mime := art.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	pictureType := flacpicture.PictureTypeFrontCover
	if !art.IsFront {
		pictureType = flacpicture.PictureTypeOther
	}
	// NewFromImageData parses the image header, so the stored dimensions
	// match the real PNG IHDR.
	picture, err := flacpicture.NewFromImageData(pictureType, "", art.Data, mime)
	if err != nil {
		return nil, shared.WrapError(shared.KindEncodeError, "failed to build picture metadata", err)
	}
	block := picture.Marshal()
	return &block, nil
}

// attachMetadata rewrites the freshly encoded FLAC with the final Vorbis
// comment and picture blocks.
func attachMetadata(path string, tags map[string]string, art *meta.CoverArt) error {
	f, err := goflac.ParseFile(path)
	if err != nil {
		return shared.WrapError(shared.KindEncodeError, "failed to parse encoded FLAC file", err)
	}

	filtered := f.Meta[:0]
	for _, block := range f.Meta {
		if block.Type != goflac.VorbisComment && block.Type != goflac.Picture {
			filtered = append(filtered, block)
		}
	}
	f.Meta = filtered

	f.Meta = append(f.Meta, BuildVorbisBlock(tags))
	picture, err := BuildPictureBlock(art)
	if err != nil {
		return err
	}
	if picture != nil {
		f.Meta = append(f.Meta, picture)
	}

	if err := f.Save(path); err != nil {
		return shared.WrapError(shared.KindIOError, fmt.Sprintf("failed to save FLAC metadata to %s", path), err)
	}
	return nil
}

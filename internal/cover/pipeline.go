// Package cover fetches front-cover artwork and normalises it to an sRGB PNG
// that fits the FLAC embedded-picture size limit.
package cover

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/nfnt/resize"

	"cdrip/internal/shared"
)

const (
	// DefaultMaxWidth bounds the normalised artwork width in pixels.
	DefaultMaxWidth = 512
	// MaxFlacPictureBytes is the FLAC metadata block payload limit.
	MaxFlacPictureBytes = 16*1024*1024 - 1
)

// PixelLayout identifies the decoded pixel format.
type PixelLayout int

const (
	LayoutGray8 PixelLayout = iota
	LayoutRGB8
	LayoutRGBA8
	LayoutCMYK8
)

// DecodedImage is the codec-independent record the colour-conversion stage
// operates on.
type DecodedImage struct {
	Width  int
	Height int
	Layout PixelLayout
	// Pixels is tightly packed: 1, 3 or 4 bytes per pixel depending on
	// Layout.
	Pixels     []byte
	ICCProfile []byte
	// CMYKInverted is set for JPEGs carrying the Adobe APP14 marker. The
	// standard library decoder already un-inverts the sample values, so this
	// is informational for the formula fallback on raw buffers.
	CMYKInverted bool
}

func isPNGData(data []byte) bool {
	return len(data) >= 8 && bytes.Equal(data[:8], pngSignature)
}

func isJPEGData(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8
}

// Decode decodes a PNG or JPEG buffer, carrying pixel layout and any embedded
// ICC profile through to the conversion stage.
func Decode(input []byte) (*DecodedImage, error) {
	switch {
	case isPNGData(input):
		img, err := png.Decode(bytes.NewReader(input))
		if err != nil {
			return nil, shared.WrapError(shared.KindDecodeError, "failed to decode PNG", err)
		}
		decoded := fromImage(img)
		decoded.ICCProfile = pngICCProfile(input)
		return decoded, nil
	case isJPEGData(input):
		img, err := jpeg.Decode(bytes.NewReader(input))
		if err != nil {
			return nil, shared.WrapError(shared.KindDecodeError, "failed to decode JPEG", err)
		}
		decoded := fromImage(img)
		decoded.ICCProfile = jpegICCProfile(input)
		decoded.CMYKInverted = jpegHasAdobeMarker(input)
		return decoded, nil
	}
	return nil, shared.NewError(shared.KindDecodeError, "unsupported image format")
}

// fromImage repacks a decoded image into the tight per-layout buffer.
func fromImage(img image.Image) *DecodedImage {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := &DecodedImage{Width: w, Height: h}

	switch src := img.(type) {
	case *image.Gray:
		out.Layout = LayoutGray8
		out.Pixels = make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(out.Pixels[y*w:(y+1)*w], src.Pix[y*src.Stride:y*src.Stride+w])
		}
	case *image.CMYK:
		out.Layout = LayoutCMYK8
		out.Pixels = make([]byte, w*h*4)
		for y := 0; y < h; y++ {
			copy(out.Pixels[y*w*4:(y+1)*w*4], src.Pix[y*src.Stride:y*src.Stride+w*4])
		}
	case *image.NRGBA:
		out.Layout = LayoutRGBA8
		out.Pixels = make([]byte, w*h*4)
		for y := 0; y < h; y++ {
			copy(out.Pixels[y*w*4:(y+1)*w*4], src.Pix[y*src.Stride:y*src.Stride+w*4])
		}
	case *image.RGBA:
		out.Layout = LayoutRGBA8
		out.Pixels = make([]byte, w*h*4)
		for y := 0; y < h; y++ {
			copy(out.Pixels[y*w*4:(y+1)*w*4], src.Pix[y*src.Stride:y*src.Stride+w*4])
		}
	default:
		// YCbCr and friends: sample through the colour model.
		out.Layout = LayoutRGB8
		out.Pixels = make([]byte, w*h*3)
		i := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, _ := img.At(x, y).RGBA()
				out.Pixels[i] = byte(r >> 8)
				out.Pixels[i+1] = byte(g >> 8)
				out.Pixels[i+2] = byte(b >> 8)
				i += 3
			}
		}
	}
	return out
}

func expandGrayToRGB(d *DecodedImage) {
	rgb := make([]byte, d.Width*d.Height*3)
	for i, g := range d.Pixels {
		rgb[i*3] = g
		rgb[i*3+1] = g
		rgb[i*3+2] = g
	}
	d.Pixels = rgb
	d.Layout = LayoutRGB8
}

// convertCMYKToRGB applies the profile-less CMYK approximation
// R=(255−C)(255−K)/255 and friends. invert first un-inverts Adobe samples
// when they were not already normalised by the decoder.
func convertCMYKToRGB(d *DecodedImage, invert bool) {
	count := d.Width * d.Height
	rgb := make([]byte, count*3)
	for i := 0; i < count; i++ {
		c := int(d.Pixels[i*4])
		m := int(d.Pixels[i*4+1])
		y := int(d.Pixels[i*4+2])
		k := int(d.Pixels[i*4+3])
		if invert {
			c, m, y, k = 255-c, 255-m, 255-y, 255-k
		}
		rgb[i*3] = byte((255 - c) * (255 - k) / 255)
		rgb[i*3+1] = byte((255 - m) * (255 - k) / 255)
		rgb[i*3+2] = byte((255 - y) * (255 - k) / 255)
	}
	d.Pixels = rgb
	d.Layout = LayoutRGB8
}

// ConvertToSRGB transforms the decoded image to sRGB in place. An embedded
// RGB matrix-shaper profile is applied with perceptual intent; otherwise Gray
// expands by duplication, CMYK uses the approximation formula and RGB/RGBA
// pass through.
func (d *DecodedImage) ConvertToSRGB() error {
	if d.Width <= 0 || d.Height <= 0 {
		return shared.NewError(shared.KindDecodeError, "invalid image dimensions")
	}

	if len(d.ICCProfile) > 0 {
		if profile, err := parseICCProfile(d.ICCProfile); err == nil && profile.isRGBMatrix() {
			switch d.Layout {
			case LayoutRGB8:
				profile.transformRGB(d.Pixels, 3)
				d.ICCProfile = nil
				return nil
			case LayoutRGBA8:
				profile.transformRGB(d.Pixels, 4)
				d.ICCProfile = nil
				return nil
			case LayoutGray8:
				expandGrayToRGB(d)
				profile.transformRGB(d.Pixels, 3)
				d.ICCProfile = nil
				return nil
			}
		}
		// Non-matrix or non-RGB profiles fall through to the formula paths.
		d.ICCProfile = nil
	}

	switch d.Layout {
	case LayoutGray8:
		expandGrayToRGB(d)
	case LayoutCMYK8:
		// The stdlib JPEG decoder already normalises Adobe-inverted samples.
		convertCMYKToRGB(d, false)
	}
	return nil
}

func (d *DecodedImage) toImage() image.Image {
	if d.Layout == LayoutRGBA8 {
		img := image.NewNRGBA(image.Rect(0, 0, d.Width, d.Height))
		for y := 0; y < d.Height; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+d.Width*4], d.Pixels[y*d.Width*4:(y+1)*d.Width*4])
		}
		return img
	}
	img := image.NewNRGBA(image.Rect(0, 0, d.Width, d.Height))
	for i := 0; i < d.Width*d.Height; i++ {
		img.Pix[i*4] = d.Pixels[i*3]
		img.Pix[i*4+1] = d.Pixels[i*3+1]
		img.Pix[i*4+2] = d.Pixels[i*3+2]
		img.Pix[i*4+3] = 255
	}
	return img
}

// Normalize decodes, colour-converts, downscales and re-encodes artwork as an
// sRGB PNG no larger than the FLAC picture limit. The width budget is halved
// until the encoding fits; reaching one pixel is PictureTooLarge.
func Normalize(input []byte, maxWidth int) ([]byte, error) {
	decoded, err := Decode(input)
	if err != nil {
		return nil, err
	}
	if err := decoded.ConvertToSRGB(); err != nil {
		return nil, err
	}
	if decoded.Layout != LayoutRGB8 && decoded.Layout != LayoutRGBA8 {
		return nil, shared.NewError(shared.KindDecodeError, "unexpected pixel layout after conversion")
	}

	effectiveMaxWidth := maxWidth
	if effectiveMaxWidth <= 0 {
		effectiveMaxWidth = DefaultMaxWidth
	}
	if effectiveMaxWidth > decoded.Width {
		effectiveMaxWidth = decoded.Width
	}
	if effectiveMaxWidth < 1 {
		effectiveMaxWidth = 1
	}

	src := decoded.toImage()
	for {
		targetW := effectiveMaxWidth
		if targetW > decoded.Width {
			targetW = decoded.Width
		}
		scaled := src
		if targetW != decoded.Width {
			targetH := int(math.Round(float64(decoded.Height) * float64(targetW) / float64(decoded.Width)))
			if targetH < 1 {
				targetH = 1
			}
			scaled = resize.Resize(uint(targetW), uint(targetH), src, resize.Bilinear)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, scaled); err != nil {
			return nil, shared.WrapError(shared.KindEncodeError, "failed to encode PNG", err)
		}
		// Indicate sRGB; omit embedded ICC to maximise compatibility.
		encoded := insertSRGBChunk(buf.Bytes())

		if len(encoded) <= MaxFlacPictureBytes {
			return encoded, nil
		}
		if effectiveMaxWidth <= 1 {
			return nil, shared.NewError(shared.KindPictureTooLarge, "PNG exceeds FLAC picture size limit")
		}
		effectiveMaxWidth /= 2
		if effectiveMaxWidth < 1 {
			effectiveMaxWidth = 1
		}
	}
}

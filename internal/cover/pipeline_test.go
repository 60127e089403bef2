package cover

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"cdrip/internal/shared"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func gradientImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	return img
}

func TestNormalizeDownscalesToBudget(t *testing.T) {
	input := encodePNG(t, gradientImage(2048, 2048))
	out, err := Normalize(input, 512)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a valid PNG: %v", err)
	}
	if got := decoded.Bounds().Dx(); got != 512 {
		t.Errorf("output width = %d, want 512", got)
	}
	if got := decoded.Bounds().Dy(); got != 512 {
		t.Errorf("output height = %d, want 512", got)
	}
	if len(out) > MaxFlacPictureBytes {
		t.Errorf("output exceeds picture cap: %d bytes", len(out))
	}

	width, height, ok := ParsePNGDimensions(out)
	if !ok || width != 512 || height != 512 {
		t.Errorf("IHDR dimensions = %dx%d ok=%v", width, height, ok)
	}
}

func TestNormalizeKeepsSmallImages(t *testing.T) {
	input := encodePNG(t, gradientImage(256, 128))
	out, err := Normalize(input, 512)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	width, height, _ := ParsePNGDimensions(out)
	if width != 256 || height != 128 {
		t.Errorf("small image resized: %dx%d", width, height)
	}
}

func TestNormalizeOnePixelWide(t *testing.T) {
	input := encodePNG(t, gradientImage(1, 64))
	out, err := Normalize(input, 512)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	width, _, _ := ParsePNGDimensions(out)
	if width != 1 {
		t.Errorf("width = %d, want 1", width)
	}
}

func TestNormalizeAspectRatio(t *testing.T) {
	input := encodePNG(t, gradientImage(1024, 512))
	out, err := Normalize(input, 512)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	width, height, _ := ParsePNGDimensions(out)
	if width != 512 || height != 256 {
		t.Errorf("got %dx%d, want 512x256", width, height)
	}
}

func TestNormalizeOutputHasSRGBChunk(t *testing.T) {
	input := encodePNG(t, gradientImage(64, 64))
	out, err := Normalize(input, 512)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	found := false
	pngChunks(out, func(chunkType string, payload []byte, _, _ int) bool {
		if chunkType == "sRGB" {
			found = true
			return false
		}
		if chunkType == "iCCP" {
			t.Error("output must not embed an ICC profile")
		}
		return true
	})
	if !found {
		t.Error("output PNG is missing the sRGB chunk")
	}
}

func TestNormalizeJPEGInput(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradientImage(640, 480), &jpeg.Options{Quality: 85}); err != nil {
		t.Fatal(err)
	}
	out, err := Normalize(buf.Bytes(), 512)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	width, height, _ := ParsePNGDimensions(out)
	if width != 512 || height != 384 {
		t.Errorf("got %dx%d, want 512x384", width, height)
	}
}

func TestNormalizeGrayJPEG(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 100, 100))
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gray, nil); err != nil {
		t.Fatal(err)
	}
	out, err := Normalize(buf.Bytes(), 512)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("invalid output PNG: %v", err)
	}
	r, g, b, _ := decoded.At(50, 50).RGBA()
	if r != g || g != b {
		t.Errorf("gray expansion should keep channels equal: %d %d %d", r, g, b)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, err := Normalize([]byte("not an image at all"), 512)
	if err == nil {
		t.Fatal("garbage input must fail")
	}
	if !shared.IsKind(err, shared.KindDecodeError) {
		t.Errorf("kind = %v, want DecodeError", shared.KindOf(err))
	}
}

func TestConvertCMYKToRGBFormula(t *testing.T) {
	img := &DecodedImage{
		Width:  1,
		Height: 1,
		Layout: LayoutCMYK8,
		Pixels: []byte{0, 255, 255, 0}, // pure cyan
	}
	convertCMYKToRGB(img, false)
	if img.Pixels[0] != 255 || img.Pixels[1] != 0 || img.Pixels[2] != 0 {
		// R=(255-0)(255-0)/255=255, G=(255-255)(255)/255=0, B=0
		t.Errorf("cyan converted to %v, want [255 0 0]", img.Pixels)
	}

	black := &DecodedImage{Width: 1, Height: 1, Layout: LayoutCMYK8, Pixels: []byte{0, 0, 0, 255}}
	convertCMYKToRGB(black, false)
	if black.Pixels[0] != 0 || black.Pixels[1] != 0 || black.Pixels[2] != 0 {
		t.Errorf("black converted to %v", black.Pixels)
	}
}

func TestConvertCMYKInverted(t *testing.T) {
	img := &DecodedImage{
		Width:  1,
		Height: 1,
		Layout: LayoutCMYK8,
		Pixels: []byte{255, 0, 0, 255}, // inverted pure cyan
	}
	convertCMYKToRGB(img, true)
	if img.Pixels[0] != 255 || img.Pixels[1] != 0 || img.Pixels[2] != 0 {
		t.Errorf("inverted cyan converted to %v, want [255 0 0]", img.Pixels)
	}
}

func TestGrayExpansion(t *testing.T) {
	img := &DecodedImage{Width: 2, Height: 1, Layout: LayoutGray8, Pixels: []byte{10, 200}}
	if err := img.ConvertToSRGB(); err != nil {
		t.Fatal(err)
	}
	if img.Layout != LayoutRGB8 {
		t.Fatalf("layout = %v", img.Layout)
	}
	want := []byte{10, 10, 10, 200, 200, 200}
	if !bytes.Equal(img.Pixels, want) {
		t.Errorf("pixels = %v, want %v", img.Pixels, want)
	}
}

func TestInsertSRGBChunkOnce(t *testing.T) {
	base := encodePNG(t, gradientImage(8, 8))
	once := insertSRGBChunk(base)
	twice := insertSRGBChunk(once)
	if !bytes.Equal(once, twice) {
		t.Error("sRGB chunk inserted twice")
	}
	if _, err := png.Decode(bytes.NewReader(once)); err != nil {
		t.Errorf("chunk insertion corrupted the PNG: %v", err)
	}
}

func TestPNGICCProfileExtraction(t *testing.T) {
	// The stdlib encoder writes no iCCP chunk, so extraction returns nil.
	base := encodePNG(t, gradientImage(8, 8))
	if profile := pngICCProfile(base); profile != nil {
		t.Errorf("unexpected profile %d bytes", len(profile))
	}
}

func TestICCTransformAdobeRGBRed(t *testing.T) {
	// A synthetic matrix-shaper profile with Adobe RGB (1998) primaries and
	// gamma 563/256: pure red must stay saturated red in sRGB.
	profile := &iccProfile{
		colorSpace: "RGB ",
		hasMatrix:  true,
		matrix: [3][3]float64{
			{0.60974, 0.20528, 0.14919},
			{0.31111, 0.62567, 0.06322},
			{0.01947, 0.06087, 0.74457},
		},
		curves: [3]iccCurve{{gamma: 2.19921875}, {gamma: 2.19921875}, {gamma: 2.19921875}},
	}
	pixels := []byte{255, 0, 0}
	profile.transformRGB(pixels, 3)
	if pixels[0] != 255 {
		t.Errorf("red channel = %d, want 255", pixels[0])
	}
	if pixels[1] > 60 || pixels[2] > 60 {
		t.Errorf("Adobe RGB red should map near sRGB red, got %v", pixels)
	}

	// Neutral gray stays neutral.
	gray := []byte{128, 128, 128}
	profile.transformRGB(gray, 3)
	maxDelta := 0
	for i := 1; i < 3; i++ {
		delta := int(gray[i]) - int(gray[0])
		if delta < 0 {
			delta = -delta
		}
		if delta > maxDelta {
			maxDelta = delta
		}
	}
	if maxDelta > 3 {
		t.Errorf("neutral gray drifted: %v", gray)
	}
}

func TestParseICCProfileRejectsGarbage(t *testing.T) {
	if _, err := parseICCProfile([]byte("tiny")); err == nil {
		t.Error("short profile must fail")
	}
}

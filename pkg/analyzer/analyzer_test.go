package analyzer

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/chai2010/webp"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Fill with a gradient pattern
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			b := uint8(128)
			img.Set(x, y, color.RGBA{r, g, b, 255})
		}
	}

	return img
}

func encode(t *testing.T, format string, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		err = jpeg.Encode(&buf, img, nil)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	case "webp":
		err = webp.Encode(&buf, img, &webp.Options{Lossless: true})
	}
	if err != nil {
		t.Fatalf("encode %s: %v", format, err)
	}
	return buf.Bytes()
}

func TestNew(t *testing.T) {
	analyzer := New()
	if analyzer == nil {
		t.Fatal("New() returned nil")
	}

	if analyzer.config.MinImageSize != 1 {
		t.Errorf("Expected min size 1, got %d", analyzer.config.MinImageSize)
	}
	if analyzer.config.MaxBytes != 20<<20 {
		t.Errorf("Expected 20 MiB limit, got %d", analyzer.config.MaxBytes)
	}
}

func TestNewWithConfig(t *testing.T) {
	cfg := Config{
		SupportedFormats: []string{"png"},
		MinImageSize:     200,
		MaxBytes:         1024,
	}

	analyzer := NewWithConfig(cfg)
	if analyzer.config.MinImageSize != 200 {
		t.Errorf("Expected min size 200, got %d", analyzer.config.MinImageSize)
	}
}

func TestLoadImageFromBytes(t *testing.T) {
	analyzer := New()
	img := createTestImage(40, 30)

	for _, format := range []string{"png", "jpeg", "gif", "webp"} {
		t.Run(format, func(t *testing.T) {
			decoded, err := analyzer.LoadImageFromBytes(encode(t, format, img))
			if err != nil {
				t.Fatalf("LoadImageFromBytes failed: %v", err)
			}
			if decoded.Format != format {
				t.Errorf("Expected format %s, got %s", format, decoded.Format)
			}
			if decoded.Info.Width != 40 || decoded.Info.Height != 30 {
				t.Errorf("Expected 40x30, got %dx%d", decoded.Info.Width, decoded.Info.Height)
			}
		})
	}
}

func TestLoadImageRejectsBadInput(t *testing.T) {
	analyzer := New()

	if _, err := analyzer.LoadImageFromBytes(nil); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("Expected ErrInvalidImage for empty upload, got %v", err)
	}
	if _, err := analyzer.LoadImageFromBytes([]byte("not an image")); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("Expected ErrInvalidImage for garbage, got %v", err)
	}

	pngOnly := NewWithConfig(Config{SupportedFormats: []string{"png"}, MinImageSize: 1, MaxBytes: 1 << 20})
	_, err := pngOnly.LoadImageFromBytes(encode(t, "gif", createTestImage(8, 8)))
	if !errors.Is(err, ErrInvalidImage) || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("Expected unsupported format error, got %v", err)
	}
}

func TestLoadImageFromReaderLimit(t *testing.T) {
	data := encode(t, "png", createTestImage(64, 64))
	small := NewWithConfig(Config{SupportedFormats: []string{"png"}, MinImageSize: 1, MaxBytes: int64(len(data) - 1)})

	if _, err := small.LoadImageFromReader(bytes.NewReader(data)); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("Expected size limit error, got %v", err)
	}

	exact := NewWithConfig(Config{SupportedFormats: []string{"png"}, MinImageSize: 1, MaxBytes: int64(len(data))})
	if _, err := exact.LoadImageFromReader(bytes.NewReader(data)); err != nil {
		t.Errorf("Expected upload at the limit to pass, got %v", err)
	}
}

func TestGetImageInfo(t *testing.T) {
	analyzer := New()
	img := createTestImage(400, 300)

	info := analyzer.GetImageInfo(img)

	if info.Width != 400 {
		t.Errorf("Expected width 400, got %d", info.Width)
	}

	if info.Height != 300 {
		t.Errorf("Expected height 300, got %d", info.Height)
	}

	expectedRatio := float64(400) / float64(300)
	if info.AspectRatio != expectedRatio {
		t.Errorf("Expected aspect ratio %f, got %f", expectedRatio, info.AspectRatio)
	}

	if info.Area != 120000 {
		t.Errorf("Expected area 120000, got %d", info.Area)
	}
}

func TestValidateImage(t *testing.T) {
	analyzer := NewWithConfig(Config{MinImageSize: 100})

	if err := analyzer.ValidateImage(createTestImage(200, 200)); err != nil {
		t.Errorf("Valid image should pass validation: %v", err)
	}

	if err := analyzer.ValidateImage(createTestImage(50, 50)); err == nil {
		t.Error("Small image should fail validation")
	}

	if err := New().ValidateImage(image.NewRGBA(image.Rect(0, 0, 0, 10))); err == nil {
		t.Error("Empty image should fail validation")
	}
}

func TestIsFormatSupported(t *testing.T) {
	analyzer := New()

	for _, format := range []string{"jpeg", "png", "gif", "webp", "PNG", "WEBP"} {
		if !analyzer.isFormatSupported(format) {
			t.Errorf("Format %s should be supported", format)
		}
	}

	for _, format := range []string{"bmp", "tiff"} {
		if analyzer.isFormatSupported(format) {
			t.Errorf("Format %s should not be supported", format)
		}
	}
}

func BenchmarkGetImageInfo(b *testing.B) {
	analyzer := New()
	img := createTestImage(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		analyzer.GetImageInfo(img)
	}
}

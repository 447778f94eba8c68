package analyzer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/chai2010/webp"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImage is returned for uploads that cannot be used as analysis input
var ErrInvalidImage = errors.New("invalid image")

// ImageAnalyzer decodes and validates uploaded images
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	SupportedFormats []string
	MinImageSize     int
	MaxBytes         int64
}

// DefaultConfig accepts JPEG, PNG, GIF and WebP uploads up to 20 MiB
func DefaultConfig() Config {
	return Config{
		SupportedFormats: []string{"jpeg", "png", "gif", "webp"},
		MinImageSize:     1,
		MaxBytes:         20 << 20,
	}
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{config: DefaultConfig()}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// Decoded is an uploaded image with its detected format
type Decoded struct {
	Image  image.Image
	Format string
	Info   ImageInfo
}

// LoadImageFromReader reads at most MaxBytes and decodes the image
func (a *ImageAnalyzer) LoadImageFromReader(reader io.Reader) (*Decoded, error) {
	limit := a.config.MaxBytes
	if limit <= 0 {
		limit = DefaultConfig().MaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrInvalidImage, limit)
	}
	return a.LoadImageFromBytes(data)
}

// LoadImageFromBytes decodes and validates an encoded image
func (a *ImageAnalyzer) LoadImageFromBytes(data []byte) (*Decoded, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidImage)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// Some WebP variants only decode with libwebp
		wimg, werr := webp.Decode(bytes.NewReader(data))
		if werr != nil {
			return nil, fmt.Errorf("%w: failed to decode image: %v", ErrInvalidImage, err)
		}
		img, format = wimg, "webp"
	}

	if !a.isFormatSupported(format) {
		return nil, fmt.Errorf("%w: unsupported image format: %s", ErrInvalidImage, format)
	}
	if err := a.ValidateImage(img); err != nil {
		return nil, err
	}

	return &Decoded{Image: img, Format: format, Info: a.GetImageInfo(img)}, nil
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   width * height,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// ValidateImage checks if an image meets minimum requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize || bounds.Empty() {
		return fmt.Errorf("%w: image too small: %dx%d (minimum: %d)",
			ErrInvalidImage, bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	return nil
}

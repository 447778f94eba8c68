package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// DefaultMaxImageSize is the longest side sent to the model
const DefaultMaxImageSize = 640

// MIME types produced by the encoder
const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMEWebP = "image/webp"
)

// Processor handles image processing operations
type Processor struct {
	MaxImageSize int
	Quality      int
}

// NewProcessor creates a new image processor
func NewProcessor(maxImageSize int) *Processor {
	if maxImageSize <= 0 {
		maxImageSize = DefaultMaxImageSize
	}
	return &Processor{MaxImageSize: maxImageSize, Quality: 90}
}

// Prepared is an image resized and encoded for the model
type Prepared struct {
	Image   image.Image
	PNG     []byte
	Width   int
	Height  int
	Resized bool
}

// DataURI returns the PNG as a data URI for storage
func (p *Prepared) DataURI() string {
	return DataURI(MIMEPNG, p.PNG)
}

// Prepare resizes img so that neither side exceeds MaxImageSize, keeping the
// aspect ratio, and encodes it as PNG
func (p *Processor) Prepare(img image.Image) (*Prepared, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	resized := false

	if w > p.MaxImageSize || h > p.MaxImageSize {
		if w >= h {
			img = imaging.Resize(img, p.MaxImageSize, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, p.MaxImageSize, imaging.Lanczos)
		}
		resized = true
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	nb := img.Bounds()
	return &Prepared{
		Image:   img,
		PNG:     buf.Bytes(),
		Width:   nb.Dx(),
		Height:  nb.Dy(),
		Resized: resized,
	}, nil
}

// Encode writes img in the given format ("png", "jpg"/"jpeg" or "webp") and
// returns the bytes and content type
func (p *Processor) Encode(img image.Image, format string) ([]byte, string, error) {
	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "", "png":
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), MIMEPNG, nil
	case "jpg", "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.Quality}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), MIMEJPEG, nil
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(p.Quality)}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), MIMEWebP, nil
	}
	return nil, "", fmt.Errorf("unsupported output format: %s", format)
}

// SaveImage saves an image to a file, picking the format from the extension
func (p *Processor) SaveImage(img image.Image, path string) error {
	ext := strings.TrimPrefix(strings.ToLower(path[strings.LastIndex(path, ".")+1:]), ".")
	data, _, err := p.Encode(img, ext)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DataURIPrefix returns "data:<mime>;base64,"
func DataURIPrefix(mime string) string {
	return "data:" + mime + ";base64,"
}

// DataURI base64-encodes data behind a data URI prefix
func DataURI(mime string, data []byte) string {
	return DataURIPrefix(mime) + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI returns the payload and MIME type of a base64 data URI. A bare
// base64 string is accepted and reported as PNG.
func DecodeDataURI(uri string) ([]byte, string, error) {
	mime := MIMEPNG
	payload := strings.TrimSpace(uri)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.Index(payload, ",")
		if comma < 0 {
			return nil, "", fmt.Errorf("malformed data URI")
		}
		header := payload[len("data:"):comma]
		if !strings.HasSuffix(header, ";base64") {
			return nil, "", fmt.Errorf("data URI is not base64 encoded")
		}
		mime = strings.TrimSuffix(header, ";base64")
		payload = payload[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}
	return data, mime, nil
}

// ReadSource reads image bytes from a file path or an http(s) URL
func ReadSource(source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return readURL(source)
	}
	return os.ReadFile(source)
}

func readURL(imageURL string) ([]byte, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", "Spatial-Understanding/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	return io.ReadAll(resp.Body)
}

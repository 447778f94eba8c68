package processing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// Minimum side and inset of generated fallback masks
const (
	fallbackMaskMinSide = 100
	fallbackMaskMaxSide = 1000
	fallbackMaskInset   = 10
)

// FallbackMask renders a grayscale PNG mask for a box given on the model
// scale: black background with a white rectangle inset by 10px. Both sides
// are between 100px and the 1000px model scale.
func FallbackMask(xmin, ymin, xmax, ymax int) ([]byte, error) {
	w := clampSide(xmax - xmin)
	h := clampSide(ymax - ymin)

	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := fallbackMaskInset; y <= h-fallbackMaskInset && y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x := fallbackMaskInset; x <= w-fallbackMaskInset && x < w; x++ {
			row[x] = 0xff
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clampSide(n int) int {
	if n < fallbackMaskMinSide {
		return fallbackMaskMinSide
	}
	if n > fallbackMaskMaxSide {
		return fallbackMaskMaxSide
	}
	return n
}

// DecodeMask decodes a mask data URI into an image
func DecodeMask(uri string) (image.Image, error) {
	data, mime, err := DecodeDataURI(uri)
	if err != nil {
		return nil, err
	}
	if mime == MIMEWebP {
		return webp.Decode(bytes.NewReader(data))
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode mask: %w", err)
	}
	return img, nil
}

// TintMask resizes mask to w×h and colors it with c, taking each pixel's
// alpha from the mask's red channel scaled by opacity
func TintMask(mask image.Image, w, h int, c color.NRGBA, opacity float64) *image.NRGBA {
	resized := imaging.Resize(mask, w, h, imaging.NearestNeighbor)
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i+3 < len(resized.Pix); i += 4 {
		out.Pix[i+0] = c.R
		out.Pix[i+1] = c.G
		out.Pix[i+2] = c.B
		out.Pix[i+3] = uint8(float64(resized.Pix[i]) * opacity)
	}
	return out
}

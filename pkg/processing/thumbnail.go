package processing

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/spatial-understanding/pkg/geometry"
	"github.com/menta2k/spatial-understanding/pkg/types"
)

// DefaultThumbnailSize is the side of a thumbnail when none is requested
const DefaultThumbnailSize = 256

// SubjectCenter returns the normalized center of the largest detection, or
// the image center when there are none
func SubjectCenter(dets types.Detections, w, h int) (float64, float64) {
	rects := DetectionRects(dets, w, h)
	best := -1
	for i, r := range rects {
		if best < 0 || r.Area() > rects[best].Area() {
			best = i
		}
	}
	if best < 0 {
		return 0.5, 0.5
	}
	r := rects[best]
	return geometry.Clamp(r.X+r.W/2, 0, 1), geometry.Clamp(r.Y+r.H/2, 0, 1)
}

// CalculateOptimalCropBox calculates the largest crop box of the target
// aspect ratio centered as close to (centerX, centerY) as the image allows
func CalculateOptimalCropBox(centerX, centerY float64, targetWidth, targetHeight, imgWidth, imgHeight int, zoom float64) geometry.Rect {
	if zoom <= 0 {
		zoom = 1
	}

	r := float64(targetWidth) / float64(targetHeight)

	// Clamp the center so the crop can reach full size on the short side
	fw, fh := float64(imgWidth), float64(imgHeight)
	maxWidthPx := math.Min(fw, r*fh) * geometry.Clamp(zoom, 0.01, 1.0)
	heightPx := maxWidthPx / r

	cx := centerX * fw
	cy := centerY * fh
	x0 := geometry.Clamp(cx-maxWidthPx/2, 0, fw-maxWidthPx)
	y0 := geometry.Clamp(cy-heightPx/2, 0, fh-heightPx)

	return geometry.Rect{
		X: x0 / fw,
		Y: y0 / fh,
		W: maxWidthPx / fw,
		H: heightPx / fh,
	}
}

// Thumbnail crops a square around the main subject and scales it to size.
// Without detections the most salient region is used.
func (p *Processor) Thumbnail(img image.Image, dets types.Detections, size int) (image.Image, error) {
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image")
	}

	cx, cy := SubjectCenter(dets, w, h)
	if dets.Len() == 0 {
		cx, cy, _ = SalientCenter(img)
	}
	box := CalculateOptimalCropBox(cx, cy, 1, 1, w, h, 1)
	rect := box.ToPixels(w, h).Add(b.Min).Intersect(b)
	if rect.Empty() {
		return nil, fmt.Errorf("empty crop rectangle")
	}

	cropped := imaging.Crop(img, rect)
	return imaging.Fill(cropped, size, size, imaging.Center, imaging.Lanczos), nil
}

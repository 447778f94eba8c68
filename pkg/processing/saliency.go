package processing

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Saliency is estimated on a downscaled grayscale copy
const (
	saliencySide     = 128
	edgeWeight       = 0.3
	brightnessWeight = 0.2
	flatTolerance    = 1e-4
)

// SalientCenter estimates the normalized center of the most salient square
// region, scoring pixels by local contrast and brightness. ok is false when
// the image is too small or uniformly flat.
func SalientCenter(img image.Image) (cx, cy float64, ok bool) {
	gray := imaging.Grayscale(imaging.Fit(img, saliencySide, saliencySide, imaging.Box))
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if w < 3 || h < 3 {
		return 0.5, 0.5, false
	}

	lum := func(x, y int) float64 {
		return float64(gray.Pix[y*gray.Stride+x*4]) / 255
	}

	// summed-area table of the saliency map, (w+1)x(h+1)
	sum := make([]float64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var row float64
		for x := 0; x < w; x++ {
			c := lum(x, y)
			s := brightnessWeight * c
			// edges need a full 3x3 neighbourhood
			if x > 0 && y > 0 && x < w-1 && y < h-1 {
				var edge float64
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if dx != 0 || dy != 0 {
							edge += math.Abs(c - lum(x+dx, y+dy))
						}
					}
				}
				s += edgeWeight * edge / 8
			}
			row += s
			sum[(y+1)*(w+1)+x+1] = sum[y*(w+1)+x+1] + row
		}
	}
	windowMean := func(x, y, side int) float64 {
		total := sum[(y+side)*(w+1)+x+side] - sum[y*(w+1)+x+side] - sum[(y+side)*(w+1)+x] + sum[y*(w+1)+x]
		return total / float64(side*side)
	}

	short := minInt(w, h)
	best, worst := math.Inf(-1), math.Inf(1)
	var bx, by, bside int
	for _, div := range []int{8, 4, 2} {
		side := short / div
		if side < 4 {
			continue
		}
		step := side / 4
		if step < 1 {
			step = 1
		}
		for y := 0; y+side <= h; y += step {
			for x := 0; x+side <= w; x += step {
				m := windowMean(x, y, side)
				if m > best {
					best, bx, by, bside = m, x, y, side
				}
				if m < worst {
					worst = m
				}
			}
		}
	}
	if bside == 0 || best-worst < flatTolerance {
		return 0.5, 0.5, false
	}

	cx = (float64(bx) + float64(bside)/2) / float64(w)
	cy = (float64(by) + float64(bside)/2) / float64(h)
	return cx, cy, true
}

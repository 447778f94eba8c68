// Package geometry converts normalized detection coordinates into display
// space: fitting an image inside a container, mapping boxes and points to
// pixels, picking the detection under a pointer and projecting 3D boxes.
package geometry

import (
	"image"
	"math"
	"sort"
)

// Size is a width/height pair in pixels
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FitContain scales media to the largest size that fits inside container
// while keeping its aspect ratio. A degenerate media or container size
// yields a zero Size.
func FitContain(media, container Size) Size {
	if media.Width <= 0 || media.Height <= 0 || container.Width <= 0 || container.Height <= 0 {
		return Size{}
	}
	aspect := media.Width / media.Height
	containerAspect := container.Width / container.Height

	if aspect < containerAspect {
		return Size{Width: container.Height * aspect, Height: container.Height}
	}
	return Size{Width: container.Width, Height: container.Width / aspect}
}

// Offset returns the top-left of inner when centered inside outer
func Offset(inner, outer Size) (float64, float64) {
	return (outer.Width - inner.Width) / 2, (outer.Height - inner.Height) / 2
}

// Rect is an axis-aligned rectangle. Normalized rects use [0,1] coordinates.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Area returns W*H
func (r Rect) Area() float64 {
	return r.W * r.H
}

// Contains reports whether (x, y) lies strictly inside r
func (r Rect) Contains(x, y float64) bool {
	return x > r.X && x < r.X+r.W && y > r.Y && y < r.Y+r.H
}

// Scale maps a normalized rect onto a w×h area
func (r Rect) Scale(w, h float64) Rect {
	return Rect{X: r.X * w, Y: r.Y * h, W: r.W * w, H: r.H * h}
}

// ToPixels converts a normalized rect to an image rectangle, clamped to the
// image and at least one pixel wide and tall
func (r Rect) ToPixels(w, h int) image.Rectangle {
	x0 := int(Clamp(r.X, 0, 1)*float64(w) + 0.5)
	y0 := int(Clamp(r.Y, 0, 1)*float64(h) + 0.5)
	x1 := int(Clamp(r.X+r.W, 0, 1)*float64(w) + 0.5)
	y1 := int(Clamp(r.Y+r.H, 0, 1)*float64(h) + 0.5)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return image.Rect(x0, y0, x1, y1)
}

// PointToPixels converts a normalized point to integer pixel coordinates
func PointToPixels(x, y float64, w, h int) image.Point {
	return image.Pt(
		int(Clamp(x, 0, 1)*float64(w)+0.5),
		int(Clamp(y, 0, 1)*float64(h)+0.5),
	)
}

// CenteredSquare returns a side×side rect centered on (cx, cy)
func CenteredSquare(cx, cy, side float64) Rect {
	return Rect{X: cx - side/2, Y: cy - side/2, W: side, H: side}
}

// HitTest returns the index of the smallest rect that strictly contains
// (x, y). Rects of equal area keep their original order.
func HitTest(rects []Rect, x, y float64) (int, bool) {
	order := make([]int, len(rects))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rects[order[a]].Area() < rects[order[b]].Area()
	})
	for _, i := range order {
		if rects[i].Contains(x, y) {
			return i, true
		}
	}
	return -1, false
}

// Bounds returns the smallest rect containing all points
func Bounds(pts [][2]float64) Rect {
	if len(pts) == 0 {
		return Rect{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX = math.Min(minX, p[0])
		minY = math.Min(minY, p[1])
		maxX = math.Max(maxX, p[0])
		maxY = math.Max(maxY, p[1])
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Clamp limits v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DegreesToRadians converts an angle
func DegreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

package processing

import (
	"image"
	"image/color"
	"image/draw"
	"log"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/menta2k/spatial-understanding/pkg/geometry"
	"github.com/menta2k/spatial-understanding/pkg/types"
)

// SegmentationPalette colors masks by index
var SegmentationPalette = []color.NRGBA{
	{0xE6, 0x19, 0x4B, 0xff},
	{0x3C, 0x89, 0xD0, 0xff},
	{0x3C, 0xB4, 0x4B, 0xff},
	{0xFF, 0xE1, 0x19, 0xff},
	{0x91, 0x1E, 0xB4, 0xff},
	{0x42, 0xD4, 0xF4, 0xff},
	{0xF5, 0x82, 0x31, 0xff},
	{0xF0, 0x32, 0xE6, 0xff},
	{0xBF, 0xEF, 0x45, 0xff},
	{0x46, 0x99, 0x90, 0xff},
}

var (
	boxColor   = color.NRGBA{0x3B, 0x68, 0xFF, 0xff}
	pointColor = color.NRGBA{0xF5, 0x9E, 0x0B, 0xff}
	white      = color.NRGBA{0xff, 0xff, 0xff, 0xff}
)

// PointMarkerSize is the on-screen size of a point marker in pixels
const PointMarkerSize = 24

const maskOpacity = 0.5

// maskAlpha is maskOpacity as an 8-bit alpha
const maskAlpha uint8 = 128

// PaletteColor returns the segmentation color for index i
func PaletteColor(i int) color.NRGBA {
	return SegmentationPalette[i%len(SegmentationPalette)]
}

// RenderOverlay draws detections on a copy of img
func (p *Processor) RenderOverlay(img image.Image, dets types.Detections) *image.NRGBA {
	out := imaging.Clone(img)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	stroke := int(math.Max(2, 0.004*float64(minInt(w, h))))

	switch dets.Type {
	case types.Boxes2D:
		for _, b := range dets.Boxes2D {
			r := geometry.Rect{X: b.X, Y: b.Y, W: b.Width, H: b.Height}.ToPixels(w, h)
			drawRect(out, r, boxColor, stroke)
			drawLabel(out, b.Label, r.Min, boxColor)
		}

	case types.SegmentationMasks:
		for i, m := range dets.Masks {
			c := PaletteColor(i)
			r := geometry.Rect{X: m.X, Y: m.Y, W: m.Width, H: m.Height}.ToPixels(w, h)
			switch {
			case m.ImageData != "":
				mask, err := DecodeMask(m.ImageData)
				if err != nil {
					log.Printf("Skipping mask %d (%s): %v", i, m.Label, err)
					break
				}
				tinted := TintMask(mask, r.Dx(), r.Dy(), c, maskOpacity)
				draw.Draw(out, r, tinted, image.Point{}, draw.Over)
			case len(m.Polygon) >= 3:
				fillPolygon(out, m.Polygon, c)
			}
			drawRect(out, r, c, stroke)
			drawLabel(out, m.Label, r.Min, c)
		}

	case types.Points:
		radius := float64(PointMarkerSize) / 4
		for _, pt := range dets.Points {
			px := geometry.PointToPixels(pt.Point.X, pt.Point.Y, w, h)
			fillCircle(out, px, radius+2, white)
			fillCircle(out, px, radius, pointColor)
			drawLabel(out, pt.Label, image.Pt(px.X+int(radius)+4, px.Y-int(radius)), pointColor)
		}

	case types.Boxes3D:
		for i, b := range dets.Boxes3D {
			c := PaletteColor(i)
			proj := geometry.Project3D(b.Center, b.Size, b.RPY, w, h, geometry.DefaultFOV)
			for _, e := range geometry.Box3DEdges {
				if !proj.Visible[e[0]] || !proj.Visible[e[1]] {
					continue
				}
				a, z := proj.Corners[e[0]], proj.Corners[e[1]]
				drawLine(out, a[0], a[1], z[0], z[1], c, stroke)
			}
			if vis := proj.VisibleCorners(); len(vis) > 0 {
				bb := geometry.Bounds(vis)
				drawLabel(out, b.Label, image.Pt(int(bb.X), int(bb.Y)), c)
			}
		}
	}
	return out
}

// drawLabel writes text on a filled background with its bottom-left at the
// top-left of anchor, or just inside when that would leave the image
func drawLabel(img *image.NRGBA, text string, anchor image.Point, bg color.NRGBA) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(white), Face: face}
	tw := d.MeasureString(text).Ceil()
	th := face.Metrics().Height.Ceil()

	x := anchor.X
	y := anchor.Y - th - 2
	if y < 0 {
		y = anchor.Y
	}
	bgRect := image.Rect(x, y, x+tw+4, y+th+2)
	draw.Draw(img, bgRect, image.NewUniform(bg), image.Point{}, draw.Src)

	d.Dot = fixed.P(x+2, y+face.Metrics().Ascent.Ceil()+1)
	d.DrawString(text)
}

func fillPolygon(img *image.NRGBA, poly [][2]float64, c color.NRGBA) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	r := vector.NewRasterizer(w, h)
	r.MoveTo(float32(poly[0][0]*float64(w)), float32(poly[0][1]*float64(h)))
	for _, pt := range poly[1:] {
		r.LineTo(float32(pt[0]*float64(w)), float32(pt[1]*float64(h)))
	}
	r.ClosePath()
	fill := c
	fill.A = maskAlpha
	r.Draw(img, img.Bounds(), image.NewUniform(fill), image.Point{})
}

func fillCircle(img *image.NRGBA, center image.Point, radius float64, c color.NRGBA) {
	r2 := radius * radius
	ri := int(math.Ceil(radius))
	for dy := -ri; dy <= ri; dy++ {
		for dx := -ri; dx <= ri; dx++ {
			if float64(dx*dx+dy*dy) <= r2 {
				setPixel(img, center.X+dx, center.Y+dy, c)
			}
		}
	}
}

// drawLine draws a segment with a square brush of the given stroke
func drawLine(img *image.NRGBA, x0, y0, x1, y1 float64, c color.NRGBA, stroke int) {
	steps := int(math.Ceil(math.Max(math.Abs(x1-x0), math.Abs(y1-y0))))
	if steps > 10000 {
		steps = 10000
	}
	half := stroke / 2
	for i := 0; i <= steps; i++ {
		t := 0.0
		if steps > 0 {
			t = float64(i) / float64(steps)
		}
		x := int(math.Round(x0 + (x1-x0)*t))
		y := int(math.Round(y0 + (y1-y0)*t))
		for dy := -half; dy < stroke-half; dy++ {
			for dx := -half; dx < stroke-half; dx++ {
				setPixel(img, x+dx, y+dy, c)
			}
		}
	}
}

func setPixel(img *image.NRGBA, x, y int, c color.NRGBA) {
	if !image.Pt(x, y).In(img.Rect) {
		return
	}
	i := img.PixOffset(x, y)
	img.Pix[i+0] = c.R
	img.Pix[i+1] = c.G
	img.Pix[i+2] = c.B
	img.Pix[i+3] = c.A
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}

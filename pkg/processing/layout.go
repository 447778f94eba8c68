package processing

import (
	"github.com/menta2k/spatial-understanding/pkg/geometry"
	"github.com/menta2k/spatial-understanding/pkg/types"
)

// DetectionRects returns one normalized rect per detection, in detection
// order. Points become a PointMarkerSize square on a w×h image and 3D boxes
// the bounds of their projected corners.
func DetectionRects(dets types.Detections, w, h int) []geometry.Rect {
	if w <= 0 || h <= 0 {
		return nil
	}
	out := make([]geometry.Rect, 0, dets.Len())

	switch dets.Type {
	case types.Boxes2D:
		for _, b := range dets.Boxes2D {
			out = append(out, geometry.Rect{X: b.X, Y: b.Y, W: b.Width, H: b.Height})
		}
	case types.SegmentationMasks:
		for _, m := range dets.Masks {
			out = append(out, geometry.Rect{X: m.X, Y: m.Y, W: m.Width, H: m.Height})
		}
	case types.Points:
		sw := float64(PointMarkerSize) / float64(w)
		sh := float64(PointMarkerSize) / float64(h)
		for _, p := range dets.Points {
			out = append(out, geometry.Rect{X: p.Point.X - sw/2, Y: p.Point.Y - sh/2, W: sw, H: sh})
		}
	case types.Boxes3D:
		for _, b := range dets.Boxes3D {
			proj := geometry.Project3D(b.Center, b.Size, b.RPY, w, h, geometry.DefaultFOV)
			px := geometry.Bounds(proj.VisibleCorners())
			out = append(out, geometry.Rect{
				X: px.X / float64(w),
				Y: px.Y / float64(h),
				W: px.W / float64(w),
				H: px.H / float64(h),
			})
		}
	}
	return out
}

// Layout describes how an image is displayed inside a container
type Layout struct {
	Media     geometry.Size `json:"media"`
	Container geometry.Size `json:"container"`
	Rendered  geometry.Size `json:"rendered"`
	OffsetX   float64       `json:"offset_x"`
	OffsetY   float64       `json:"offset_y"`
}

// NewLayout fits media inside container and centers it
func NewLayout(media, container geometry.Size) Layout {
	rendered := geometry.FitContain(media, container)
	ox, oy := geometry.Offset(rendered, container)
	return Layout{Media: media, Container: container, Rendered: rendered, OffsetX: ox, OffsetY: oy}
}

// ContainerRects maps detections to container pixels. Point markers keep
// their on-screen size regardless of scale.
func (l Layout) ContainerRects(dets types.Detections) []geometry.Rect {
	rw, rh := int(l.Rendered.Width+0.5), int(l.Rendered.Height+0.5)
	rects := DetectionRects(dets, rw, rh)
	for i, r := range rects {
		s := r.Scale(l.Rendered.Width, l.Rendered.Height)
		s.X += l.OffsetX
		s.Y += l.OffsetY
		rects[i] = s
	}
	return rects
}

// HitTest returns the index of the detection under container pixel (x, y)
func (l Layout) HitTest(dets types.Detections, x, y float64) (int, bool) {
	return geometry.HitTest(l.ContainerRects(dets), x, y)
}

package geometry

import "math"

// DefaultFOV is the horizontal field of view assumed for 3D projection, in degrees
const DefaultFOV = 60.0

// Box3DEdges lists the corner index pairs forming a box wireframe. Corner i
// has x sign bit 0, y sign bit 1 and z sign bit 2.
var Box3DEdges = [12][2]int{
	{0, 1}, {2, 3}, {4, 5}, {6, 7}, // along x
	{0, 2}, {1, 3}, {4, 6}, {5, 7}, // along y
	{0, 4}, {1, 5}, {2, 6}, {3, 7}, // along z
}

// ProjectedBox holds the image-space corners of a 3D box
type ProjectedBox struct {
	Corners [8][2]float64
	Visible [8]bool
}

// VisibleCorners returns only the corners in front of the camera
func (p ProjectedBox) VisibleCorners() [][2]float64 {
	out := make([][2]float64, 0, 8)
	for i, c := range p.Corners {
		if p.Visible[i] {
			out = append(out, c)
		}
	}
	return out
}

// rotation builds R = Rz(yaw) * Ry(pitch) * Rx(roll)
func rotation(roll, pitch, yaw float64) [3][3]float64 {
	cr, sr := math.Cos(roll), math.Sin(roll)
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	cy, sy := math.Cos(yaw), math.Sin(yaw)
	return [3][3]float64{
		{cy * cp, cy*sp*sr - sy*cr, cy*sp*cr + sy*sr},
		{sy * cp, sy*sp*sr + cy*cr, sy*sp*cr - cy*sr},
		{-sp, cp * sr, cp * cr},
	}
}

// Project3D projects the corners of a camera-frame box onto a w×h image
// with a pinhole camera of the given horizontal field of view. Camera axes:
// x right, y down, z forward. rpy is in radians.
func Project3D(center, size, rpy [3]float64, w, h int, fovDeg float64) ProjectedBox {
	if fovDeg <= 0 || fovDeg >= 180 {
		fovDeg = DefaultFOV
	}
	f := float64(w) / (2 * math.Tan(DegreesToRadians(fovDeg)/2))
	cx, cy := float64(w)/2, float64(h)/2
	rot := rotation(rpy[0], rpy[1], rpy[2])

	var out ProjectedBox
	for i := 0; i < 8; i++ {
		local := [3]float64{size[0] / 2, size[1] / 2, size[2] / 2}
		for axis := 0; axis < 3; axis++ {
			if i&(1<<axis) == 0 {
				local[axis] = -local[axis]
			}
		}
		var world [3]float64
		for r := 0; r < 3; r++ {
			world[r] = center[r] + rot[r][0]*local[0] + rot[r][1]*local[1] + rot[r][2]*local[2]
		}
		if world[2] <= 1e-6 {
			continue
		}
		out.Corners[i] = [2]float64{f*world[0]/world[2] + cx, f*world[1]/world[2] + cy}
		out.Visible[i] = true
	}
	return out
}

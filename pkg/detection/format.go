package detection

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/menta2k/spatial-understanding/pkg/geometry"
	"github.com/menta2k/spatial-understanding/pkg/processing"
	"github.com/menta2k/spatial-understanding/pkg/types"
)

// ModelScale is the coordinate range the models answer in
const ModelScale = 1000.0

// Source tells the formatter which answer shape to expect for masks:
// function calls carry polygons, prompt answers carry base64 bitmaps.
type Source int

const (
	FromTool Source = iota
	FromPrompt
)

func (s Source) String() string {
	if s == FromTool {
		return "function_calling"
	}
	return "prompt_engineering"
}

// Format converts raw model entries into normalized detections for dt.
// Malformed entries are logged and skipped.
func Format(dt types.DetectionType, items []map[string]any, src Source) (types.Detections, error) {
	out := types.Detections{Type: dt}

	for i, item := range items {
		var err error
		switch dt {
		case types.Boxes2D:
			var b types.Box2D
			if b, err = formatBox2D(item); err == nil {
				out.Boxes2D = append(out.Boxes2D, b)
			}
		case types.Boxes3D:
			var b types.Box3D
			if b, err = formatBox3D(item); err == nil {
				out.Boxes3D = append(out.Boxes3D, b)
			}
		case types.SegmentationMasks:
			var m types.Mask
			if m, err = formatMask(item, src); err == nil {
				out.Masks = append(out.Masks, m)
			}
		case types.Points:
			var p types.DetectedPoint
			if p, err = formatPoint(item); err == nil {
				out.Points = append(out.Points, p)
			}
		default:
			return out, fmt.Errorf("%w: %q", types.ErrUnknownDetectionType, dt)
		}
		if err != nil {
			log.Printf("Skipping %s entry %d: %v", dt, i, err)
		}
	}

	if dt == types.SegmentationMasks {
		sort.SliceStable(out.Masks, func(a, b int) bool {
			return out.Masks[a].Area() > out.Masks[b].Area()
		})
	}
	return out, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// numbers reads at least n numeric values from a JSON array field
func numbers(item map[string]any, key string, n int) ([]float64, error) {
	raw, ok := item[key].([]any)
	if !ok {
		return nil, fmt.Errorf("missing %q", key)
	}
	if len(raw) < n {
		return nil, fmt.Errorf("%q has %d values, need %d", key, len(raw), n)
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := number(v)
		if !ok {
			return nil, fmt.Errorf("%q[%d] is not a number", key, i)
		}
		out[i] = f
	}
	return out, nil
}

func label(item map[string]any) (string, error) {
	l, ok := item["label"].(string)
	if !ok {
		return "", fmt.Errorf("missing label")
	}
	return l, nil
}

func confidence(item map[string]any) *float64 {
	if f, ok := number(item["confidence"]); ok {
		return &f
	}
	return nil
}

// modelBox reads box_2d and clamps it to the model scale
func modelBox(item map[string]any) ([]float64, error) {
	v, err := numbers(item, "box_2d", 4)
	if err != nil {
		return nil, err
	}
	for i := 0; i < 4; i++ {
		v[i] = geometry.Clamp(v[i], 0, ModelScale)
	}
	return v, nil
}

// box2D converts [ymin, xmin, ymax, xmax] on the model scale
func box2D(v []float64) (x, y, w, h float64) {
	return v[1] / ModelScale, v[0] / ModelScale, (v[3] - v[1]) / ModelScale, (v[2] - v[0]) / ModelScale
}

func formatBox2D(item map[string]any) (types.Box2D, error) {
	v, err := modelBox(item)
	if err != nil {
		return types.Box2D{}, err
	}
	l, err := label(item)
	if err != nil {
		return types.Box2D{}, err
	}
	x, y, w, h := box2D(v)
	return types.Box2D{X: x, Y: y, Width: w, Height: h, Label: l, Confidence: confidence(item)}, nil
}

func formatPoint(item map[string]any) (types.DetectedPoint, error) {
	v, err := numbers(item, "point", 2)
	if err != nil {
		return types.DetectedPoint{}, err
	}
	l, err := label(item)
	if err != nil {
		return types.DetectedPoint{}, err
	}
	return types.DetectedPoint{
		Point:      types.Point{X: v[1] / ModelScale, Y: v[0] / ModelScale},
		Label:      l,
		Confidence: confidence(item),
	}, nil
}

func formatBox3D(item map[string]any) (types.Box3D, error) {
	v, err := numbers(item, "box_3d", 9)
	if err != nil {
		return types.Box3D{}, err
	}
	l, err := label(item)
	if err != nil {
		return types.Box3D{}, err
	}
	b := types.Box3D{Label: l, Confidence: confidence(item)}
	copy(b.Center[:], v[0:3])
	copy(b.Size[:], v[3:6])
	for i := 0; i < 3; i++ {
		b.RPY[i] = geometry.DegreesToRadians(v[6+i])
	}
	return b, nil
}

func formatMask(item map[string]any, src Source) (types.Mask, error) {
	v, err := modelBox(item)
	if err != nil {
		return types.Mask{}, err
	}
	l, err := label(item)
	if err != nil {
		return types.Mask{}, err
	}
	x, y, w, h := box2D(v)
	m := types.Mask{X: x, Y: y, Width: w, Height: h, Label: l, Confidence: confidence(item)}

	if src == FromTool {
		m.Polygon = polygon(item)
		if len(m.Polygon) == 0 {
			m.Polygon = [][2]float64{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}}
		}
		return m, nil
	}

	if data, _ := item["mask"].(string); data != "" {
		m.ImageData = maskDataURI(data)
		return m, nil
	}
	fallback, err := processing.FallbackMask(int(v[1]), int(v[0]), int(v[3]), int(v[2]))
	if err != nil {
		return types.Mask{}, fmt.Errorf("fallback mask: %w", err)
	}
	m.ImageData = processing.DataURI(processing.MIMEPNG, fallback)
	return m, nil
}

// polygon reads [x, y] pairs on the model scale, skipping short pairs
func polygon(item map[string]any) [][2]float64 {
	raw, ok := item["polygon"].([]any)
	if !ok {
		return nil
	}
	out := make([][2]float64, 0, len(raw))
	for _, p := range raw {
		pair, ok := p.([]any)
		if !ok || len(pair) < 2 {
			continue
		}
		px, okx := number(pair[0])
		py, oky := number(pair[1])
		if !okx || !oky {
			continue
		}
		out = append(out, [2]float64{px / ModelScale, py / ModelScale})
	}
	return out
}

func maskDataURI(data string) string {
	data = strings.TrimSpace(data)
	if strings.HasPrefix(data, "data:") {
		return data
	}
	return processing.DataURIPrefix(processing.MIMEPNG) + data
}

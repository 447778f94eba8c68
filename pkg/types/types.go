package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DetectionType selects which kind of output the vision model produces
type DetectionType string

const (
	Boxes2D           DetectionType = "2D bounding boxes"
	Boxes3D           DetectionType = "3D bounding boxes"
	SegmentationMasks DetectionType = "Segmentation masks"
	Points            DetectionType = "Points"
)

// ErrUnknownDetectionType is returned for detect_type values outside the four supported modes
var ErrUnknownDetectionType = errors.New("unknown detection type")

// AllDetectionTypes lists the supported detection types in display order
func AllDetectionTypes() []DetectionType {
	return []DetectionType{Boxes2D, Boxes3D, SegmentationMasks, Points}
}

// ParseDetectionType validates a detect_type form value
func ParseDetectionType(s string) (DetectionType, error) {
	for _, dt := range AllDetectionTypes() {
		if string(dt) == s {
			return dt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDetectionType, s)
}

// Box2D represents a normalized bounding box with coordinates in [0,1] range
type Box2D struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Width      float64  `json:"width"`
	Height     float64  `json:"height"`
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Area returns the normalized area of the box
func (b Box2D) Area() float64 {
	return b.Width * b.Height
}

// Box3D is a camera-frame box: center and size in model units, rpy in radians
type Box3D struct {
	Center     [3]float64 `json:"center"`
	Size       [3]float64 `json:"size"`
	RPY        [3]float64 `json:"rpy"`
	Label      string     `json:"label"`
	Confidence *float64   `json:"confidence,omitempty"`
}

// Mask is a segmentation result. ImageData holds a PNG data URI when the
// model returned a bitmap, Polygon holds normalized [x, y] pairs when it
// returned an outline.
type Mask struct {
	X          float64      `json:"x"`
	Y          float64      `json:"y"`
	Width      float64      `json:"width"`
	Height     float64      `json:"height"`
	Label      string       `json:"label"`
	ImageData  string       `json:"imageData,omitempty"`
	Polygon    [][2]float64 `json:"polygon,omitempty"`
	Confidence *float64     `json:"confidence,omitempty"`
}

// Area returns the normalized area of the mask's bounding box
func (m Mask) Area() float64 {
	return m.Width * m.Height
}

// Point is a normalized image coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DetectedPoint is a labelled key point
type DetectedPoint struct {
	Point      Point    `json:"point"`
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Detections holds the results of one analysis. Exactly one list is
// populated, matching Type.
type Detections struct {
	Type    DetectionType
	Boxes2D []Box2D
	Boxes3D []Box3D
	Masks   []Mask
	Points  []DetectedPoint
}

// Len returns the number of detections regardless of type
func (d Detections) Len() int {
	switch d.Type {
	case Boxes2D:
		return len(d.Boxes2D)
	case Boxes3D:
		return len(d.Boxes3D)
	case SegmentationMasks:
		return len(d.Masks)
	case Points:
		return len(d.Points)
	}
	return 0
}

// Labels returns the label of every detection in order
func (d Detections) Labels() []string {
	out := make([]string, 0, d.Len())
	switch d.Type {
	case Boxes2D:
		for _, b := range d.Boxes2D {
			out = append(out, b.Label)
		}
	case Boxes3D:
		for _, b := range d.Boxes3D {
			out = append(out, b.Label)
		}
	case SegmentationMasks:
		for _, m := range d.Masks {
			out = append(out, m.Label)
		}
	case Points:
		for _, p := range d.Points {
			out = append(out, p.Label)
		}
	}
	return out
}

// MarshalJSON writes the populated list as a bare JSON array
func (d Detections) MarshalJSON() ([]byte, error) {
	switch d.Type {
	case Boxes2D:
		return marshalList(d.Boxes2D)
	case Boxes3D:
		return marshalList(d.Boxes3D)
	case SegmentationMasks:
		return marshalList(d.Masks)
	case Points:
		return marshalList(d.Points)
	}
	return []byte("[]"), nil
}

func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

// DecodeDetections restores a stored result list for the given type
func DecodeDetections(dt DetectionType, raw []byte) (Detections, error) {
	d := Detections{Type: dt}
	if len(raw) == 0 {
		return d, nil
	}
	var err error
	switch dt {
	case Boxes2D:
		err = json.Unmarshal(raw, &d.Boxes2D)
	case Boxes3D:
		err = json.Unmarshal(raw, &d.Boxes3D)
	case SegmentationMasks:
		err = json.Unmarshal(raw, &d.Masks)
	case Points:
		err = json.Unmarshal(raw, &d.Points)
	default:
		return d, fmt.Errorf("%w: %q", ErrUnknownDetectionType, dt)
	}
	if err != nil {
		return d, fmt.Errorf("decode %s results: %w", dt, err)
	}
	return d, nil
}

// AnalysisRequest carries the user-facing parameters of one analysis
type AnalysisRequest struct {
	DetectType           DetectionType `json:"detect_type"`
	TargetPrompt         string        `json:"target_prompt"`
	LabelPrompt          string        `json:"label_prompt"`
	SegmentationLanguage string        `json:"segmentation_language"`
	Temperature          float64       `json:"temperature"`
}

// Defaults used when a form field is omitted
const (
	DefaultTargetPrompt         = "items"
	DefaultSegmentationLanguage = "English"
	DefaultTemperature          = 0.4
)

// WithDefaults fills empty optional fields
func (r AnalysisRequest) WithDefaults() AnalysisRequest {
	if r.TargetPrompt == "" {
		r.TargetPrompt = DefaultTargetPrompt
	}
	if r.SegmentationLanguage == "" {
		r.SegmentationLanguage = DefaultSegmentationLanguage
	}
	return r
}

// Validate checks the request parameters
func (r AnalysisRequest) Validate() error {
	if _, err := ParseDetectionType(string(r.DetectType)); err != nil {
		return err
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", r.Temperature)
	}
	return nil
}

// VisionResponse is the envelope returned by /analyze
type VisionResponse struct {
	Success      bool       `json:"success"`
	Data         Detections `json:"data"`
	Error        *string    `json:"error"`
	PredictionID *int64     `json:"prediction_id,omitempty"`
}

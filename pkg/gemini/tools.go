package gemini

import (
	"fmt"

	"github.com/google/generative-ai-go/genai"

	"github.com/menta2k/spatial-understanding/pkg/types"
)

// Function names declared to the model, one per detection type
const (
	FuncDetect2D       = "detect_2d_bounding_boxes"
	FuncDetect3D       = "detect_3d_bounding_boxes"
	FuncDetectSegments = "detect_segmentation_masks"
	FuncDetectPoints   = "detect_key_points"
)

func numberArray(description string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeArray,
		Description: description,
		Items:       &genai.Schema{Type: genai.TypeNumber},
	}
}

func labelSchema(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description}
}

func confidenceSchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeNumber, Description: "Confidence score between 0 and 1"}
}

// detectionsParams wraps an item schema in the {"detections": [...]} object every tool takes
func detectionsParams(listDescription string, item *genai.Schema) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"detections": {
				Type:        genai.TypeArray,
				Description: listDescription,
				Items:       item,
			},
		},
		Required: []string{"detections"},
	}
}

var box2DDecl = &genai.FunctionDeclaration{
	Name:        FuncDetect2D,
	Description: "Detect objects in an image and return 2D bounding boxes with labels",
	Parameters: detectionsParams("List of detected objects with 2D bounding boxes", &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"box_2d":     numberArray("2D bounding box coordinates as [ymin, xmin, ymax, xmax] in pixels (0-1000 scale)"),
			"label":      labelSchema("Descriptive label for the detected object"),
			"confidence": confidenceSchema(),
		},
		Required: []string{"box_2d", "label"},
	}),
}

var box3DDecl = &genai.FunctionDeclaration{
	Name:        FuncDetect3D,
	Description: "Detect objects in an image and return 3D bounding boxes with spatial information",
	Parameters: detectionsParams("List of detected objects with 3D bounding boxes", &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"box_3d":     numberArray("3D bounding box as [center_x, center_y, center_z, size_x, size_y, size_z, roll, pitch, yaw] where angles are in degrees"),
			"label":      labelSchema("Descriptive label for the detected object"),
			"confidence": confidenceSchema(),
		},
		Required: []string{"box_3d", "label"},
	}),
}

var segmentationDecl = &genai.FunctionDeclaration{
	Name:        FuncDetectSegments,
	Description: "Detect objects in an image and return segmentation polygon coordinates",
	Parameters: detectionsParams("List of detected objects with segmentation polygon coordinates", &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"box_2d": numberArray("2D bounding box coordinates as [ymin, xmin, ymax, xmax] in pixels (0-1000 scale)"),
			"polygon": {
				Type:        genai.TypeArray,
				Description: "Segmentation polygon as array of [x, y] coordinate pairs in 0-1000 scale, tracing the object outline",
				Items:       &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeNumber}},
			},
			"label":      labelSchema("Descriptive label for the detected object"),
			"confidence": confidenceSchema(),
		},
		Required: []string{"box_2d", "polygon", "label"},
	}),
}

var pointsDecl = &genai.FunctionDeclaration{
	Name:        FuncDetectPoints,
	Description: "Detect key points or landmarks in an image",
	Parameters: detectionsParams("List of detected key points", &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"point":      numberArray("Point coordinates as [y, x] in pixels (0-1000 scale)"),
			"label":      labelSchema("Descriptive label for the detected point"),
			"confidence": confidenceSchema(),
		},
		Required: []string{"point", "label"},
	}),
}

// DeclarationFor returns the function declaration used for a detection type
func DeclarationFor(dt types.DetectionType) (*genai.FunctionDeclaration, error) {
	switch dt {
	case types.Boxes2D:
		return box2DDecl, nil
	case types.Boxes3D:
		return box3DDecl, nil
	case types.SegmentationMasks:
		return segmentationDecl, nil
	case types.Points:
		return pointsDecl, nil
	}
	return nil, fmt.Errorf("%w: %q", types.ErrUnknownDetectionType, dt)
}

// ToolFor wraps the declaration for dt in a single-function tool
func ToolFor(dt types.DetectionType) (*genai.Tool, error) {
	decl, err := DeclarationFor(dt)
	if err != nil {
		return nil, err
	}
	return &genai.Tool{FunctionDeclarations: []*genai.FunctionDeclaration{decl}}, nil
}

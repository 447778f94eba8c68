package detection

import (
	"fmt"
	"strings"

	"github.com/menta2k/spatial-understanding/pkg/types"
)

// MaxBoxes2D caps the number of 2D boxes requested by the fallback prompt
const MaxBoxes2D = 20

func isEnglish(language string) bool {
	return language == "" || strings.EqualFold(strings.TrimSpace(language), "english")
}

// ToolPrompt builds the instruction sent together with a forced function call
func ToolPrompt(req types.AnalysisRequest) string {
	req = req.WithDefaults()

	switch req.DetectType {
	case types.Boxes2D:
		labelInstruction := " Provide descriptive labels."
		if req.LabelPrompt != "" {
			labelInstruction = fmt.Sprintf(" Label each detection with %s.", req.LabelPrompt)
		}
		return fmt.Sprintf("Analyze this image and detect %s. You MUST use the detect_2d_bounding_boxes function to return the results.%s Call the function with your detections.",
			req.TargetPrompt, labelInstruction)

	case types.Boxes3D:
		return fmt.Sprintf("Analyze this image and detect %s with 3D spatial information. You MUST use the detect_3d_bounding_boxes function to return the results with estimated 3D positions, sizes, and orientations. Call the function with your detections.",
			req.TargetPrompt)

	case types.SegmentationMasks:
		languageInstruction := ""
		if !isEnglish(req.SegmentationLanguage) {
			languageInstruction = fmt.Sprintf(" Provide labels in %s language only.", req.SegmentationLanguage)
		}
		return fmt.Sprintf("Analyze this image and detect %s with segmentation polygons. You MUST use the detect_segmentation_masks function to return the results.%s For each object, provide the bounding box coordinates and a polygon outline that traces the exact shape of the object using coordinate pairs.",
			req.TargetPrompt, languageInstruction)

	case types.Points:
		return fmt.Sprintf("Analyze this image and detect key points for %s. You MUST use the detect_key_points function to return the results with point coordinates and descriptive labels. Call the function with your detections.",
			req.TargetPrompt)
	}
	return fmt.Sprintf("Analyze this image and detect %s.", req.TargetPrompt)
}

// FallbackPrompt builds the plain-text prompt asking for a JSON list answer
func FallbackPrompt(req types.AnalysisRequest) string {
	req = req.WithDefaults()

	switch req.DetectType {
	case types.Boxes2D:
		labelText := req.LabelPrompt
		if labelText == "" {
			labelText = "a text label"
		}
		return fmt.Sprintf(`Detect %s, with no more than %d items. Output a json list where each entry contains the 2D bounding box in "box_2d" and %s in "label".`,
			req.TargetPrompt, MaxBoxes2D, labelText)

	case types.SegmentationMasks:
		languageInstruction := " Use descriptive labels."
		if !isEnglish(req.SegmentationLanguage) {
			languageInstruction = fmt.Sprintf(" Use descriptive labels in %s.", req.SegmentationLanguage)
		}
		return fmt.Sprintf(`Detect and segment %s in this image. For each object, provide:
1. A precise 2D bounding box as [ymin, xmin, ymax, xmax] in 0-1000 pixel coordinates
2. A base64 encoded PNG segmentation mask showing the exact object shape
3. A descriptive text label%s

Output a JSON list where each entry contains:
- "box_2d": [ymin, xmin, ymax, xmax] coordinates
- "mask": base64 encoded PNG image of the segmentation mask
- "label": descriptive text label

IMPORTANT: The mask must be a valid base64 encoded PNG image showing the exact shape of the detected objects.`,
			req.TargetPrompt, languageInstruction)

	case types.Points:
		return fmt.Sprintf(`Detect %s and mark key points. Output a json list where each entry contains the point coordinates in "point" and a text label in "label".`,
			req.TargetPrompt)

	case types.Boxes3D:
		return fmt.Sprintf(`Detect %s and create 3D bounding boxes. Output a json list where each entry contains the 3D bounding box in "box_3d" (9 values: center_x, center_y, center_z, size_x, size_y, size_z, roll, pitch, yaw in degrees) and a text label in "label".`,
			req.TargetPrompt)
	}
	return fmt.Sprintf("Detect %s.", req.TargetPrompt)
}

package detection

import (
	"errors"
	"strings"
	"testing"

	"github.com/menta2k/spatial-understanding/pkg/types"
)

func TestParseModelList(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"bare list", `[{"label": "a"}, {"label": "b"}]`, 2, false},
		{"json fence", "Here you go:\n```json\n[{\"label\": \"a\"}]\n```\nDone.", 1, false},
		{"plain fence", "```\n[{\"label\": \"a\"}]\n```", 1, false},
		{"trailing commas", `[{"label": "a",}, {"label": "b"},]`, 2, false},
		{"comments", "[\n// first\n{\"label\": \"a\"} /* note */\n]", 1, false},
		{"wrapped", `{"detections": [{"label": "a"}]}`, 1, false},
		{"empty list", `[]`, 0, false},
		{"object without list", `{"label": "a"}`, 0, true},
		{"not objects", `[1, 2]`, 0, true},
		{"no json", `sorry, nothing here`, 0, true},
		{"broken", `[{"label": }]`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseModelList(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseModelList() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("Expected %d entries, got %d", tt.want, len(got))
			}
		})
	}
}

func TestParseKeepsBase64Slashes(t *testing.T) {
	raw := `[{"label": "a", "mask": "iVBOR//w0KGgo="}]`
	got, err := ParseModelList(raw)
	if err != nil {
		t.Fatalf("ParseModelList failed: %v", err)
	}
	if got[0]["mask"] != "iVBOR//w0KGgo=" {
		t.Errorf("Mask payload altered: %v", got[0]["mask"])
	}
}

func TestParseNoJSONSentinel(t *testing.T) {
	if _, err := ParseModelList("nothing"); !errors.Is(err, ErrNoJSON) {
		t.Errorf("Expected ErrNoJSON, got %v", err)
	}
}

func TestToolPrompt(t *testing.T) {
	got := ToolPrompt(types.AnalysisRequest{DetectType: types.Boxes2D, TargetPrompt: "cars", LabelPrompt: "their color"})
	want := "Analyze this image and detect cars. You MUST use the detect_2d_bounding_boxes function to return the results. Label each detection with their color. Call the function with your detections."
	if got != want {
		t.Errorf("ToolPrompt() =\n%q\nwant\n%q", got, want)
	}

	got = ToolPrompt(types.AnalysisRequest{DetectType: types.SegmentationMasks, SegmentationLanguage: "Deutsch"})
	if !strings.Contains(got, " Provide labels in Deutsch language only.") {
		t.Errorf("Expected language instruction, got %q", got)
	}
	got = ToolPrompt(types.AnalysisRequest{DetectType: types.SegmentationMasks, SegmentationLanguage: "english"})
	if strings.Contains(got, "language only") {
		t.Errorf("Expected no language instruction for English, got %q", got)
	}
}

func TestFallbackPrompt(t *testing.T) {
	got := FallbackPrompt(types.AnalysisRequest{DetectType: types.Boxes2D})
	want := `Detect items, with no more than 20 items. Output a json list where each entry contains the 2D bounding box in "box_2d" and a text label in "label".`
	if got != want {
		t.Errorf("FallbackPrompt() =\n%q\nwant\n%q", got, want)
	}

	got = FallbackPrompt(types.AnalysisRequest{DetectType: types.SegmentationMasks, SegmentationLanguage: "Français"})
	if !strings.Contains(got, "3. A descriptive text label Use descriptive labels in Français.") {
		t.Errorf("Expected localized label instruction, got %q", got)
	}

	got = FallbackPrompt(types.AnalysisRequest{DetectType: types.Boxes3D, TargetPrompt: "furniture"})
	if !strings.Contains(got, `"box_3d" (9 values`) {
		t.Errorf("Expected 9-value 3D layout, got %q", got)
	}
}

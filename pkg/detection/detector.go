package detection

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/menta2k/spatial-understanding/pkg/client"
	"github.com/menta2k/spatial-understanding/pkg/types"
)

// Default model names
const (
	DefaultModel   = "gemini-2.5-flash"
	DefaultModel3D = "gemini-2.0-flash"
)

// ErrNoValidDetections is returned when a model answered with entries but
// none of them could be formatted
var ErrNoValidDetections = errors.New("no valid detections in model answer")

// Models picks the model name per detection type
type Models struct {
	Default string
	Boxes3D string
}

// For returns the model used for dt
func (m Models) For(dt types.DetectionType) string {
	if dt == types.Boxes3D {
		if m.Boxes3D != "" {
			return m.Boxes3D
		}
		return DefaultModel3D
	}
	if m.Default != "" {
		return m.Default
	}
	return DefaultModel
}

// Result is the outcome of one detection run
type Result struct {
	Detections types.Detections
	Model      string
	Strategy   Source
}

// Detector runs detections against a vision backend
type Detector struct {
	client client.VisionClient
	models Models
	tracer trace.Tracer
}

// NewDetector creates a new detector with a vision client
func NewDetector(c client.VisionClient, models Models) *Detector {
	return &Detector{
		client: c,
		models: models,
		tracer: otel.Tracer("github.com/menta2k/spatial-understanding/pkg/detection"),
	}
}

// Backend returns the name of the underlying vision client
func (d *Detector) Backend() string {
	return d.client.Name()
}

// Model returns the model that Detect would use for dt
func (d *Detector) Model(dt types.DetectionType) string {
	return d.models.For(dt)
}

// Detect runs one analysis. Segmentation masks always use the prompt
// path; other types try a forced function call first when the backend
// supports it and fall back to the prompt path on any error.
func (d *Detector) Detect(ctx context.Context, img client.Image, req types.AnalysisRequest) (*Result, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	model := d.models.For(req.DetectType)

	ctx, span := d.tracer.Start(ctx, "detection.Detect", trace.WithAttributes(
		attribute.String("detect_type", string(req.DetectType)),
		attribute.String("model", model),
		attribute.String("backend", d.client.Name()),
	))
	defer span.End()

	query := client.QueryRequest{
		Model:       model,
		Image:       img,
		Temperature: req.Temperature,
	}

	tc, canCall := d.client.(client.ToolCaller)
	if canCall && req.DetectType != types.SegmentationMasks {
		dets, err := d.withTool(ctx, tc, query, req)
		if err == nil {
			span.SetAttributes(attribute.String("strategy", FromTool.String()), attribute.Int("detections", dets.Len()))
			log.Printf("Function calling succeeded with %d detections", dets.Len())
			return &Result{Detections: dets, Model: model, Strategy: FromTool}, nil
		}
		log.Printf("Function calling failed: %v", err)
		log.Printf("Falling back to prompt engineering...")
	}

	dets, err := d.withPrompt(ctx, query, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("strategy", FromPrompt.String()), attribute.Int("detections", dets.Len()))
	log.Printf("Prompt engineering succeeded with %d detections", dets.Len())
	return &Result{Detections: dets, Model: model, Strategy: FromPrompt}, nil
}

func (d *Detector) withTool(ctx context.Context, tc client.ToolCaller, query client.QueryRequest, req types.AnalysisRequest) (types.Detections, error) {
	ctx, span := d.tracer.Start(ctx, "detection.CallTool")
	defer span.End()

	query.Prompt = ToolPrompt(req)
	items, err := tc.CallTool(ctx, client.ToolRequest{QueryRequest: query, DetectType: req.DetectType})
	if err != nil {
		span.RecordError(err)
		return types.Detections{}, err
	}
	dets, err := Format(req.DetectType, items, FromTool)
	if err != nil {
		return types.Detections{}, err
	}
	if len(items) > 0 && dets.Len() == 0 {
		err := fmt.Errorf("%w: %d tool entries", ErrNoValidDetections, len(items))
		span.RecordError(err)
		return types.Detections{}, err
	}
	return dets, nil
}

func (d *Detector) withPrompt(ctx context.Context, query client.QueryRequest, req types.AnalysisRequest) (types.Detections, error) {
	ctx, span := d.tracer.Start(ctx, "detection.Query")
	defer span.End()

	query.Prompt = FallbackPrompt(req)
	text, err := d.client.Query(ctx, query)
	if err != nil {
		span.RecordError(err)
		return types.Detections{}, fmt.Errorf("%s query: %w", d.client.Name(), err)
	}

	items, err := ParseModelList(text)
	if err != nil {
		if errors.Is(err, ErrNoJSON) {
			log.Printf("Response without JSON (%d chars)", len(text))
		}
		span.RecordError(err)
		return types.Detections{}, err
	}
	return Format(req.DetectType, items, FromPrompt)
}

// Package service orchestrates analyses: decode, resize, detect, persist
// and notify. It also serves the history views derived from stored
// predictions.
package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/menta2k/spatial-understanding/internal/events"
	"github.com/menta2k/spatial-understanding/internal/storage"
	"github.com/menta2k/spatial-understanding/pkg/analyzer"
	"github.com/menta2k/spatial-understanding/pkg/client"
	"github.com/menta2k/spatial-understanding/pkg/detection"
	"github.com/menta2k/spatial-understanding/pkg/geometry"
	"github.com/menta2k/spatial-understanding/pkg/processing"
	"github.com/menta2k/spatial-understanding/pkg/types"
)

// ErrInvalidRequest wraps parameter validation failures
var ErrInvalidRequest = errors.New("invalid request")

// Detector runs one detection; *detection.Detector implements it
type Detector interface {
	Detect(ctx context.Context, img client.Image, req types.AnalysisRequest) (*detection.Result, error)
	Backend() string
	Model(dt types.DetectionType) string
}

// Upload is an image received from a client
type Upload struct {
	Filename string
	Data     []byte
}

// Analysis is the outcome of Analyze. Failure is set when the model or the
// persistence step failed; the failed attempt is still recorded when
// possible and PredictionID points at it.
type Analysis struct {
	PredictionID   int64
	Detections     types.Detections
	Model          string
	Backend        string
	Strategy       detection.Source
	Width          int
	Height         int
	ProcessingTime float64
	Failure        error
}

// Response converts the outcome to the /analyze envelope
func (a *Analysis) Response() types.VisionResponse {
	resp := types.VisionResponse{Success: a.Failure == nil, Data: a.Detections}
	if a.PredictionID > 0 {
		id := a.PredictionID
		resp.PredictionID = &id
	}
	if a.Failure != nil {
		msg := a.Failure.Error()
		resp.Error = &msg
		resp.Data = types.Detections{Type: a.Detections.Type}
	}
	return resp
}

// Options wires the service dependencies. Analyzer and Processor default
// when nil; Events may be nil.
type Options struct {
	Analyzer  *analyzer.ImageAnalyzer
	Processor *processing.Processor
	Detector  Detector
	Store     storage.PredictionStore
	Events    events.Publisher
}

// Service is the analysis and history facade used by the HTTP API
type Service struct {
	analyzer  *analyzer.ImageAnalyzer
	processor *processing.Processor
	detector  Detector
	store     storage.PredictionStore
	events    events.Publisher
	now       func() time.Time
}

// New creates a service from opts
func New(opts Options) (*Service, error) {
	if opts.Detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	s := &Service{
		analyzer:  opts.Analyzer,
		processor: opts.Processor,
		detector:  opts.Detector,
		store:     opts.Store,
		events:    opts.Events,
		now:       time.Now,
	}
	if s.analyzer == nil {
		s.analyzer = analyzer.New()
	}
	if s.processor == nil {
		s.processor = processing.NewProcessor(processing.DefaultMaxImageSize)
	}
	return s, nil
}

// Backend returns the vision backend name
func (s *Service) Backend() string {
	return s.detector.Backend()
}

// Analyze runs one detection on upload and stores the outcome. Invalid
// parameters and undecodable images are returned as errors and nothing is
// stored; model failures come back in Analysis.Failure.
func (s *Service) Analyze(ctx context.Context, upload Upload, req types.AnalysisRequest) (*Analysis, error) {
	start := s.now()
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	log.Printf("Starting analysis: %s for '%s'", req.DetectType, req.TargetPrompt)

	decoded, err := s.analyzer.LoadImageFromBytes(upload.Data)
	if err != nil {
		return nil, err
	}
	log.Printf("Image loaded: %dx%d %s", decoded.Info.Width, decoded.Info.Height, decoded.Format)

	prepared, err := s.processor.Prepare(decoded.Image)
	if err != nil {
		return nil, fmt.Errorf("prepare image: %w", err)
	}
	if prepared.Resized {
		log.Printf("Image resized to: %dx%d", prepared.Width, prepared.Height)
	}

	name := upload.Filename
	if name == "" {
		name = "unknown"
	}
	analysis := &Analysis{
		Detections: types.Detections{Type: req.DetectType},
		Model:      s.detector.Model(req.DetectType),
		Backend:    s.detector.Backend(),
		Width:      prepared.Width,
		Height:     prepared.Height,
	}
	rec := storage.PredictionRecord{
		ImageName:            name,
		ImageData:            prepared.DataURI(),
		DetectType:           req.DetectType,
		TargetPrompt:         req.TargetPrompt,
		LabelPrompt:          req.LabelPrompt,
		SegmentationLanguage: req.SegmentationLanguage,
		Temperature:          req.Temperature,
		ModelUsed:            analysis.Model,
		Backend:              analysis.Backend,
	}
	log.Printf("Using model: %s (%s)", analysis.Model, analysis.Backend)

	result, detectErr := s.detector.Detect(ctx, client.Image{MIMEType: processing.MIMEPNG, Data: prepared.PNG}, req)
	analysis.ProcessingTime = s.now().Sub(start).Seconds()
	rec.ProcessingTime = analysis.ProcessingTime

	if detectErr != nil {
		log.Printf("Analysis failed after %.2fs: %v", analysis.ProcessingTime, detectErr)
		analysis.Failure = detectErr
		rec.Results = []byte("[]")
		rec.Error = detectErr.Error()
		// use a fresh context so a canceled request still leaves a record
		id, err := s.store.CreatePrediction(context.WithoutCancel(ctx), rec)
		if err != nil {
			log.Printf("Failed to save failed prediction to database: %v", err)
			return analysis, nil
		}
		log.Printf("Saved failed prediction to database with ID: %d", id)
		analysis.PredictionID = id
		s.publish(events.PredictionCreated, id, rec)
		return analysis, nil
	}

	analysis.Detections = result.Detections
	analysis.Model = result.Model
	analysis.Strategy = result.Strategy
	log.Printf("Analysis completed in %.2fs with %d detections (%s)", analysis.ProcessingTime, result.Detections.Len(), result.Strategy)

	results, err := result.Detections.MarshalJSON()
	if err != nil {
		analysis.Failure = fmt.Errorf("encode results: %w", err)
		return analysis, nil
	}
	rec.Results = results
	rec.ResultCount = result.Detections.Len()
	rec.ModelUsed = result.Model

	id, err := s.store.CreatePrediction(ctx, rec)
	if err != nil {
		log.Printf("Failed to save prediction: %v", err)
		analysis.Failure = fmt.Errorf("save prediction: %w", err)
		return analysis, nil
	}
	log.Printf("Saved prediction to database with ID: %d", id)
	analysis.PredictionID = id
	s.publish(events.PredictionCreated, id, rec)
	return analysis, nil
}

func (s *Service) publish(eventType string, id int64, rec storage.PredictionRecord) {
	if s.events == nil {
		return
	}
	s.events.Publish(events.Event{
		Type:         eventType,
		PredictionID: id,
		DetectType:   string(rec.DetectType),
		ResultCount:  rec.ResultCount,
		Success:      !rec.Failed(),
		Timestamp:    s.now().UTC(),
	})
}

// List returns history summaries, newest first
func (s *Service) List(ctx context.Context, filter storage.ListFilter) ([]storage.PredictionSummary, error) {
	return s.store.ListPredictions(ctx, filter)
}

// Get returns a stored prediction
func (s *Service) Get(ctx context.Context, id int64) (storage.PredictionRecord, error) {
	return s.store.GetPrediction(ctx, id)
}

// Delete removes a stored prediction and notifies viewers
func (s *Service) Delete(ctx context.Context, id int64) error {
	rec, err := s.store.GetPrediction(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeletePrediction(ctx, id); err != nil {
		return err
	}
	log.Printf("Deleted prediction %d", id)
	s.publish(events.PredictionDeleted, id, rec)
	return nil
}

// Stats summarizes the history
func (s *Service) Stats(ctx context.Context) (storage.Stats, error) {
	return s.store.Stats(ctx)
}

// load returns a stored prediction with its decoded image and detections
func (s *Service) load(ctx context.Context, id int64) (image.Image, types.Detections, error) {
	rec, err := s.store.GetPrediction(ctx, id)
	if err != nil {
		return nil, types.Detections{}, err
	}
	data, _, err := processing.DecodeDataURI(rec.ImageData)
	if err != nil {
		return nil, types.Detections{}, fmt.Errorf("prediction %d image: %w", id, err)
	}
	decoded, err := s.analyzer.LoadImageFromBytes(data)
	if err != nil {
		return nil, types.Detections{}, fmt.Errorf("prediction %d image: %w", id, err)
	}
	dets, err := rec.Detections()
	if err != nil {
		return nil, types.Detections{}, fmt.Errorf("prediction %d results: %w", id, err)
	}
	return decoded.Image, dets, nil
}

// Overlay renders a prediction's detections over its image and encodes
// the result as png, jpg or webp
func (s *Service) Overlay(ctx context.Context, id int64, format string) ([]byte, string, error) {
	img, dets, err := s.load(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return s.processor.Encode(s.processor.RenderOverlay(img, dets), format)
}

// Thumbnail returns a JPEG square thumbnail centered on the main subject
func (s *Service) Thumbnail(ctx context.Context, id int64, size int) ([]byte, error) {
	img, dets, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	thumb, err := s.processor.Thumbnail(img, dets, size)
	if err != nil {
		return nil, fmt.Errorf("thumbnail: %w", err)
	}
	data, _, err := s.processor.Encode(thumb, "jpg")
	return data, err
}

// Hit reports which detection lies under container pixel (x, y) when the
// prediction image is displayed contain-fit in container
func (s *Service) Hit(ctx context.Context, id int64, x, y float64, container geometry.Size) (int, bool, error) {
	img, dets, err := s.load(ctx, id)
	if err != nil {
		return -1, false, err
	}
	b := img.Bounds()
	layout := processing.NewLayout(geometry.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}, container)
	idx, ok := layout.HitTest(dets, x, y)
	return idx, ok, nil
}

// Package spatial provides spatial understanding of images: a vision model
// is asked for 2D boxes, 3D boxes, segmentation masks or points, and the
// answers are normalized, rendered and hit-tested locally.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		spatial "github.com/menta2k/spatial-understanding"
//		"github.com/menta2k/spatial-understanding/pkg/types"
//	)
//
//	func main() {
//		ctx := context.Background()
//		sa, err := spatial.New(ctx, spatial.Options{
//			Backend: spatial.BackendGemini,
//			APIKey:  os.Getenv("GEMINI_API_KEY"),
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer sa.Close()
//
//		data, err := os.ReadFile("kitchen.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//		res, err := sa.Analyze(ctx, data, types.AnalysisRequest{
//			DetectType:   types.Boxes2D,
//			TargetPrompt: "cups",
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//		if err := sa.SaveImage(sa.RenderOverlay(res), "kitchen_boxes.png"); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package combines:
//
// 1. Analyzer (pkg/analyzer): upload decoding and validation
// 2. Processing (pkg/processing): resizing, overlays, thumbnails and layout
// 3. Detection (pkg/detection): prompts, model answer parsing and formatting
// 4. Backends (pkg/gemini, pkg/ollama, pkg/llamacpp): vision model clients
//
// The HTTP service in cmd/spatial-server adds prediction history on top.
package spatial

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/menta2k/spatial-understanding/pkg/analyzer"
	"github.com/menta2k/spatial-understanding/pkg/client"
	"github.com/menta2k/spatial-understanding/pkg/detection"
	"github.com/menta2k/spatial-understanding/pkg/gemini"
	"github.com/menta2k/spatial-understanding/pkg/geometry"
	"github.com/menta2k/spatial-understanding/pkg/llamacpp"
	"github.com/menta2k/spatial-understanding/pkg/ollama"
	"github.com/menta2k/spatial-understanding/pkg/processing"
	"github.com/menta2k/spatial-understanding/pkg/types"
)

// Version of the spatial understanding library
const Version = "1.0.0"

// Supported backends
const (
	BackendGemini   = gemini.BackendName
	BackendOllama   = ollama.BackendName
	BackendLlamaCpp = llamacpp.BackendName
)

// Default local server URLs
const (
	DefaultOllamaURL   = "http://localhost:11434/api/chat"
	DefaultLlamaCppURL = "http://localhost:8080"
)

// Options selects the vision backend and image limits
type Options struct {
	Backend      string
	URL          string
	APIKey       string
	Model        string
	Model3D      string
	MaxImageSize int
}

// NewVisionClient creates the client for backend. The returned close
// function releases backend resources and is never nil.
func NewVisionClient(ctx context.Context, backend, url, apiKey string) (client.VisionClient, func() error, error) {
	noop := func() error { return nil }

	switch backend {
	case BackendGemini, "":
		c, err := gemini.NewClient(ctx, apiKey)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return c, c.Close, nil
	case BackendOllama:
		if url == "" {
			url = DefaultOllamaURL
		}
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, noop, nil
	case BackendLlamaCpp:
		if url == "" {
			url = DefaultLlamaCppURL
		}
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown backend: %s (use gemini, ollama or llamacpp)", backend)
}

// ModelsFor returns the model names for backend. Gemini falls back to its
// default models; local backends have no default, so model is required
// and also serves 3D boxes unless model3D is set.
func ModelsFor(backend, model, model3D string) (detection.Models, error) {
	switch backend {
	case BackendGemini, "":
		return detection.Models{Default: model, Boxes3D: model3D}, nil
	}
	if model == "" {
		return detection.Models{}, fmt.Errorf("a model name is required for the %s backend", backend)
	}
	if model3D == "" {
		model3D = model
	}
	return detection.Models{Default: model, Boxes3D: model3D}, nil
}

// Analyzer runs one-shot analyses without persistence
type Analyzer struct {
	analyzer  *analyzer.ImageAnalyzer
	processor *processing.Processor
	detector  *detection.Detector
	closeFn   func() error
}

// Result is the outcome of Analyze
type Result struct {
	Detections types.Detections
	Model      string
	Strategy   detection.Source
	// Image is the resized image the model saw
	Image   image.Image
	Elapsed time.Duration
}

// New creates an Analyzer backed by the backend named in opts
func New(ctx context.Context, opts Options) (*Analyzer, error) {
	models, err := ModelsFor(opts.Backend, opts.Model, opts.Model3D)
	if err != nil {
		return nil, err
	}
	c, closeFn, err := NewVisionClient(ctx, opts.Backend, opts.URL, opts.APIKey)
	if err != nil {
		return nil, err
	}
	a := NewWithClient(c, models, opts.MaxImageSize)
	a.closeFn = closeFn
	return a, nil
}

// NewWithClient creates an Analyzer around an existing vision client
func NewWithClient(c client.VisionClient, models detection.Models, maxImageSize int) *Analyzer {
	return &Analyzer{
		analyzer:  analyzer.New(),
		processor: processing.NewProcessor(maxImageSize),
		detector:  detection.NewDetector(c, models),
		closeFn:   func() error { return nil },
	}
}

// Close releases the backend
func (a *Analyzer) Close() error {
	return a.closeFn()
}

// Backend returns the vision backend name
func (a *Analyzer) Backend() string {
	return a.detector.Backend()
}

// Analyze decodes data, resizes it for the model and runs one detection
func (a *Analyzer) Analyze(ctx context.Context, data []byte, req types.AnalysisRequest) (*Result, error) {
	start := time.Now()

	decoded, err := a.analyzer.LoadImageFromBytes(data)
	if err != nil {
		return nil, err
	}
	prepared, err := a.processor.Prepare(decoded.Image)
	if err != nil {
		return nil, fmt.Errorf("prepare image: %w", err)
	}

	res, err := a.detector.Detect(ctx, client.Image{MIMEType: processing.MIMEPNG, Data: prepared.PNG}, req)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	return &Result{
		Detections: res.Detections,
		Model:      res.Model,
		Strategy:   res.Strategy,
		Image:      prepared.Image,
		Elapsed:    time.Since(start),
	}, nil
}

// RenderOverlay draws the result's detections over the analyzed image
func (a *Analyzer) RenderOverlay(res *Result) image.Image {
	return a.processor.RenderOverlay(res.Image, res.Detections)
}

// Thumbnail returns a square crop of size pixels around the main subject
func (a *Analyzer) Thumbnail(res *Result, size int) (image.Image, error) {
	return a.processor.Thumbnail(res.Image, res.Detections, size)
}

// HitTest returns the detection under container pixel (x, y) when the
// analyzed image is displayed contain-fit in container
func (a *Analyzer) HitTest(res *Result, container geometry.Size, x, y float64) (int, bool) {
	b := res.Image.Bounds()
	layout := processing.NewLayout(geometry.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}, container)
	return layout.HitTest(res.Detections, x, y)
}

// SaveImage saves an image to file, picking the format from the extension
func (a *Analyzer) SaveImage(img image.Image, path string) error {
	return a.processor.SaveImage(img, path)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

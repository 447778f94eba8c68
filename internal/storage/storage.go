// Package storage defines the prediction history records and the store
// contract implemented by the SQLite backend.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/menta2k/spatial-understanding/pkg/types"
)

// ErrNotFound indicates a requested prediction is missing.
var ErrNotFound = errors.New("prediction not found")

// History listing limits
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// PredictionRecord is one persisted analysis. Results holds the JSON list
// returned to the client; failed analyses store "[]" and the error text.
type PredictionRecord struct {
	ID                   int64
	ImageName            string
	ImageData            string
	DetectType           types.DetectionType
	TargetPrompt         string
	LabelPrompt          string
	SegmentationLanguage string
	Temperature          float64
	ModelUsed            string
	Backend              string
	Results              []byte
	ResultCount          int
	Error                string
	ProcessingTime       float64
	CreatedAt            time.Time
}

// Detections decodes the stored result list
func (r PredictionRecord) Detections() (types.Detections, error) {
	return types.DecodeDetections(r.DetectType, r.Results)
}

// Failed reports whether the analysis ended with an error
func (r PredictionRecord) Failed() bool {
	return r.Error != ""
}

// PredictionSummary is the history listing view of a record
type PredictionSummary struct {
	ID             int64
	ImageName      string
	DetectType     types.DetectionType
	TargetPrompt   string
	CreatedAt      time.Time
	ProcessingTime float64
	ResultCount    int
}

// ListFilter narrows a history listing
type ListFilter struct {
	DetectType types.DetectionType
	Limit      int
	Offset     int
}

// Normalize applies the default and maximum limit and clamps the offset
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Stats summarizes the stored history
type Stats struct {
	Total             int64            `json:"total"`
	Failed            int64            `json:"failed"`
	ByType            map[string]int64 `json:"by_type"`
	AvgProcessingTime float64          `json:"avg_processing_time"`
	LastCreatedAt     *time.Time       `json:"last_created_at"`
}

// PredictionStore persists prediction history
type PredictionStore interface {
	CreatePrediction(ctx context.Context, rec PredictionRecord) (int64, error)
	GetPrediction(ctx context.Context, id int64) (PredictionRecord, error)
	ListPredictions(ctx context.Context, filter ListFilter) ([]PredictionSummary, error)
	DeletePrediction(ctx context.Context, id int64) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

package client

import (
	"context"
	"errors"

	"github.com/menta2k/spatial-understanding/pkg/types"
)

// Image is an encoded image ready to send to a model
type Image struct {
	MIMEType string
	Data     []byte
}

// QueryRequest is a single prompt + image exchange
type QueryRequest struct {
	Model       string
	Prompt      string
	Image       Image
	Temperature float64
}

// ToolRequest asks the model to answer through the declared tool for DetectType
type ToolRequest struct {
	QueryRequest
	DetectType types.DetectionType
}

// VisionClient is implemented by every model backend
type VisionClient interface {
	// Name is the backend label persisted with each prediction
	Name() string
	// Query returns the model's free-text answer
	Query(ctx context.Context, req QueryRequest) (string, error)
}

// ToolCaller is implemented by backends that support forced function calls.
// CallTool returns the "detections" argument of the call.
type ToolCaller interface {
	CallTool(ctx context.Context, req ToolRequest) ([]map[string]any, error)
}

// ErrNoFunctionCall is returned by CallTool when the model answered without calling the tool
var ErrNoFunctionCall = errors.New("no function call found in response")

// ErrEmptyResponse is returned when the model produced no usable content
var ErrEmptyResponse = errors.New("empty response from model")

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/menta2k/spatial-understanding/internal/service"
	"github.com/menta2k/spatial-understanding/internal/storage"
	"github.com/menta2k/spatial-understanding/pkg/analyzer"
	"github.com/menta2k/spatial-understanding/pkg/geometry"
	"github.com/menta2k/spatial-understanding/pkg/processing"
	"github.com/menta2k/spatial-understanding/pkg/types"
)

const maxThumbnailSize = 1024

// PredictionSummary is one /history entry
type PredictionSummary struct {
	ID             int64     `json:"id"`
	ImageName      string    `json:"image_name"`
	DetectType     string    `json:"detect_type"`
	TargetPrompt   string    `json:"target_prompt"`
	CreatedAt      time.Time `json:"created_at"`
	ProcessingTime float64   `json:"processing_time"`
	ResultCount    int       `json:"result_count"`
}

// PredictionDetail is the /prediction/:id body
type PredictionDetail struct {
	ID                   int64           `json:"id"`
	ImageName            string          `json:"image_name"`
	ImageData            string          `json:"image_data"`
	DetectType           string          `json:"detect_type"`
	TargetPrompt         string          `json:"target_prompt"`
	LabelPrompt          string          `json:"label_prompt"`
	SegmentationLanguage string          `json:"segmentation_language"`
	Temperature          float64         `json:"temperature"`
	ModelUsed            string          `json:"model_used"`
	Backend              string          `json:"backend"`
	Results              json.RawMessage `json:"results"`
	Error                string          `json:"error,omitempty"`
	ProcessingTime       float64         `json:"processing_time"`
	CreatedAt            time.Time       `json:"created_at"`
}

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

func failure(c *gin.Context, status int, dt types.DetectionType, err error) {
	msg := err.Error()
	c.AbortWithStatusJSON(status, types.VisionResponse{
		Success: false,
		Data:    types.Detections{Type: dt},
		Error:   &msg,
	})
}

func (h *Handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Spatial Understanding API with Tools & Database"})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": h.svc.Backend()})
}

func (h *Handler) analyze(c *gin.Context) {
	req := types.AnalysisRequest{
		DetectType:           types.DetectionType(strings.TrimSpace(c.PostForm("detect_type"))),
		TargetPrompt:         c.DefaultPostForm("target_prompt", types.DefaultTargetPrompt),
		LabelPrompt:          c.PostForm("label_prompt"),
		SegmentationLanguage: c.DefaultPostForm("segmentation_language", types.DefaultSegmentationLanguage),
		Temperature:          types.DefaultTemperature,
	}
	if req.DetectType == "" {
		failure(c, http.StatusBadRequest, "", fmt.Errorf("detect_type is required"))
		return
	}
	if raw := strings.TrimSpace(c.PostForm("temperature")); raw != "" {
		temp, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			failure(c, http.StatusBadRequest, req.DetectType, fmt.Errorf("invalid temperature %q", raw))
			return
		}
		req.Temperature = temp
	}

	fh, err := c.FormFile("file")
	if err != nil {
		failure(c, http.StatusBadRequest, req.DetectType, fmt.Errorf("file is required"))
		return
	}
	if fh.Size > h.maxUploadBytes {
		failure(c, http.StatusRequestEntityTooLarge, req.DetectType, fmt.Errorf("file larger than %d bytes", h.maxUploadBytes))
		return
	}
	f, err := fh.Open()
	if err != nil {
		failure(c, http.StatusBadRequest, req.DetectType, fmt.Errorf("read upload: %w", err))
		return
	}
	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	f.Close()
	if err != nil {
		failure(c, http.StatusBadRequest, req.DetectType, fmt.Errorf("read upload: %w", err))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	res, err := h.svc.Analyze(ctx, service.Upload{Filename: fh.Filename, Data: data}, req)
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, analyzer.ErrInvalidImage):
		failure(c, http.StatusBadRequest, req.DetectType, err)
		return
	case err != nil:
		log.Printf("[%s] analyze: %v", c.GetString(requestIDKey), err)
		failure(c, http.StatusInternalServerError, req.DetectType, err)
		return
	}

	c.JSON(http.StatusOK, res.Response())
}

func (h *Handler) history(c *gin.Context) {
	filter := storage.ListFilter{}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			detail(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			detail(c, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}
	if raw := c.Query("detect_type"); raw != "" {
		dt, err := types.ParseDetectionType(raw)
		if err != nil {
			detail(c, http.StatusBadRequest, err.Error())
			return
		}
		filter.DetectType = dt
	}

	list, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		h.internal(c, err)
		return
	}
	out := make([]PredictionSummary, 0, len(list))
	for _, p := range list {
		out = append(out, PredictionSummary{
			ID:             p.ID,
			ImageName:      p.ImageName,
			DetectType:     string(p.DetectType),
			TargetPrompt:   p.TargetPrompt,
			CreatedAt:      p.CreatedAt,
			ProcessingTime: p.ProcessingTime,
			ResultCount:    p.ResultCount,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func predictionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		detail(c, http.StatusBadRequest, "invalid prediction id")
		return 0, false
	}
	return id, true
}

// lookupError writes the response for a failed prediction lookup
func (h *Handler) lookupError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		detail(c, http.StatusNotFound, "Prediction not found")
		return
	}
	h.internal(c, err)
}

func (h *Handler) internal(c *gin.Context, err error) {
	log.Printf("[%s] %s %s: %v", c.GetString(requestIDKey), c.Request.Method, c.Request.URL.Path, err)
	detail(c, http.StatusInternalServerError, err.Error())
}

func (h *Handler) getPrediction(c *gin.Context) {
	id, ok := predictionID(c)
	if !ok {
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.lookupError(c, err)
		return
	}
	results := json.RawMessage(rec.Results)
	if !json.Valid(results) {
		results = json.RawMessage("[]")
	}
	c.JSON(http.StatusOK, PredictionDetail{
		ID:                   rec.ID,
		ImageName:            rec.ImageName,
		ImageData:            rec.ImageData,
		DetectType:           string(rec.DetectType),
		TargetPrompt:         rec.TargetPrompt,
		LabelPrompt:          rec.LabelPrompt,
		SegmentationLanguage: rec.SegmentationLanguage,
		Temperature:          rec.Temperature,
		ModelUsed:            rec.ModelUsed,
		Backend:              rec.Backend,
		Results:              results,
		Error:                rec.Error,
		ProcessingTime:       rec.ProcessingTime,
		CreatedAt:            rec.CreatedAt,
	})
}

func (h *Handler) deletePrediction(c *gin.Context) {
	id, ok := predictionID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		h.lookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Prediction deleted successfully"})
}

func (h *Handler) overlay(c *gin.Context) {
	id, ok := predictionID(c)
	if !ok {
		return
	}
	format := strings.ToLower(c.DefaultQuery("format", "png"))
	switch format {
	case "png", "jpg", "jpeg", "webp":
	default:
		detail(c, http.StatusBadRequest, "format must be png, jpg or webp")
		return
	}
	data, contentType, err := h.svc.Overlay(c.Request.Context(), id, format)
	if err != nil {
		h.lookupError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

func (h *Handler) thumbnail(c *gin.Context) {
	id, ok := predictionID(c)
	if !ok {
		return
	}
	size := processing.DefaultThumbnailSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxThumbnailSize {
			detail(c, http.StatusBadRequest, fmt.Sprintf("size must be between 1 and %d", maxThumbnailSize))
			return
		}
		size = n
	}
	data, err := h.svc.Thumbnail(c.Request.Context(), id, size)
	if err != nil {
		h.lookupError(c, err)
		return
	}
	c.Data(http.StatusOK, processing.MIMEJPEG, data)
}

func queryFloat(c *gin.Context, name string) (float64, bool) {
	v, err := strconv.ParseFloat(c.Query(name), 64)
	if err != nil {
		detail(c, http.StatusBadRequest, name+" must be a number")
		return 0, false
	}
	return v, true
}

func (h *Handler) hit(c *gin.Context) {
	id, ok := predictionID(c)
	if !ok {
		return
	}
	var vals [4]float64
	for i, name := range []string{"x", "y", "width", "height"} {
		if vals[i], ok = queryFloat(c, name); !ok {
			return
		}
	}
	if vals[2] <= 0 || vals[3] <= 0 {
		detail(c, http.StatusBadRequest, "width and height must be positive")
		return
	}

	idx, found, err := h.svc.Hit(c.Request.Context(), id, vals[0], vals[1], geometry.Size{Width: vals[2], Height: vals[3]})
	if err != nil {
		h.lookupError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusOK, gin.H{"index": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": idx})
}

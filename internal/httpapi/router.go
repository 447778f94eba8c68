// Package httpapi exposes the analysis service over HTTP with gin.
package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/menta2k/spatial-understanding/internal/events"
	"github.com/menta2k/spatial-understanding/internal/service"
)

// Options configures the router
type Options struct {
	Service        *service.Service
	Hub            *events.Hub
	CORSOrigins    []string
	RequestTimeout time.Duration
	MaxUploadBytes int64
}

// Handler holds the request handlers
type Handler struct {
	svc            *service.Service
	requestTimeout time.Duration
	maxUploadBytes int64
}

// NewRouter builds the gin engine with middleware and every route
func NewRouter(opts Options) *gin.Engine {
	h := &Handler{
		svc:            opts.Service,
		requestTimeout: opts.RequestTimeout,
		maxUploadBytes: opts.MaxUploadBytes,
	}
	if h.requestTimeout <= 0 {
		h.requestTimeout = 5 * time.Minute
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = 20 << 20
	}

	r := gin.New()
	r.MaxMultipartMemory = h.maxUploadBytes
	r.Use(RequestID(), Logger(), gin.Recovery(), Tracing(), CORS(opts.CORSOrigins))

	r.GET("/", h.root)
	r.GET("/health", h.health)
	r.POST("/analyze", h.analyze)
	r.GET("/history", h.history)
	r.GET("/stats", h.stats)

	prediction := r.Group("/prediction/:id")
	{
		prediction.GET("", h.getPrediction)
		prediction.DELETE("", h.deletePrediction)
		prediction.GET("/overlay", h.overlay)
		prediction.GET("/thumbnail", h.thumbnail)
		prediction.GET("/hit", h.hit)
	}

	if opts.Hub != nil {
		r.GET("/ws", gin.WrapF(opts.Hub.ServeWS))
	}

	return r
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	spatial "github.com/menta2k/spatial-understanding"
	"github.com/menta2k/spatial-understanding/internal/config"
	"github.com/menta2k/spatial-understanding/internal/events"
	"github.com/menta2k/spatial-understanding/internal/httpapi"
	"github.com/menta2k/spatial-understanding/internal/service"
	"github.com/menta2k/spatial-understanding/internal/storage/sqlite"
	"github.com/menta2k/spatial-understanding/internal/telemetry"
	"github.com/menta2k/spatial-understanding/pkg/analyzer"
	"github.com/menta2k/spatial-understanding/pkg/detection"
	"github.com/menta2k/spatial-understanding/pkg/processing"
)

const shutdownTimeout = 15 * time.Second

func main() {
	var configFile, envFile string
	flag.StringVar(&configFile, "config", "", "JSON config file, applied before the environment")
	flag.StringVar(&envFile, "env", ".env", "dotenv file")
	flag.Parse()

	if err := run(configFile, envFile); err != nil {
		log.Fatal(err)
	}
}

func run(configFile, envFile string) error {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile, envFile)
	} else {
		cfg, err = config.Load(envFile)
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Printf("Tracing shutdown: %v", err)
		}
	}()

	store, err := sqlite.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Printf("Database ready at %s", cfg.Storage.Path)

	models, err := spatial.ModelsFor(cfg.Vision.Backend, cfg.Vision.Model, cfg.Vision.Model3D)
	if err != nil {
		return err
	}
	visionClient, closeClient, err := spatial.NewVisionClient(ctx, cfg.Vision.Backend, cfg.Vision.URL, cfg.Vision.APIKey)
	if err != nil {
		return err
	}
	defer closeClient()

	hub := events.NewHub(cfg.Server.CORSOrigins)
	go hub.Run(ctx)

	imageConfig := analyzer.DefaultConfig()
	imageConfig.MaxBytes = cfg.Analyzer.MaxUploadBytes

	svc, err := service.New(service.Options{
		Analyzer:  analyzer.NewWithConfig(imageConfig),
		Processor: processing.NewProcessor(cfg.Analyzer.MaxImageSize),
		Detector:  detection.NewDetector(visionClient, models),
		Store:     store,
		Events:    hub,
	})
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.Options{
		Service:        svc,
		Hub:            hub,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxUploadBytes: cfg.Analyzer.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Spatial Understanding API listening on %s (backend %s)", srv.Addr, visionClient.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Printf("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	spatial "github.com/menta2k/spatial-understanding"
	"github.com/menta2k/spatial-understanding/internal/config"
	"github.com/menta2k/spatial-understanding/internal/utils"
	"github.com/menta2k/spatial-understanding/pkg/processing"
	"github.com/menta2k/spatial-understanding/pkg/types"
)

// output is the detections.json layout
type output struct {
	Input      string           `json:"input"`
	DetectType string           `json:"detect_type"`
	Backend    string           `json:"backend"`
	Model      string           `json:"model"`
	Strategy   string           `json:"strategy"`
	Elapsed    float64          `json:"processing_time"`
	Detections types.Detections `json:"detections"`
}

func main() {
	var in, outDir, detectType, prompt, label, lang string
	var backend, url, model, model3D, configFile, envFile, ext string
	var temperature float64
	var maxSize, thumbSize int

	flag.StringVar(&in, "in", "", "input image path, URL or directory (jpg/png/gif/webp)")
	flag.StringVar(&outDir, "out", "out", "output directory")
	flag.StringVar(&detectType, "type", string(types.Boxes2D), `detection type: "2D bounding boxes", "3D bounding boxes", "Segmentation masks" or "Points"`)
	flag.StringVar(&prompt, "prompt", types.DefaultTargetPrompt, "what to detect")
	flag.StringVar(&label, "label", "", "how to label detections")
	flag.StringVar(&lang, "lang", types.DefaultSegmentationLanguage, "language of segmentation labels")
	flag.Float64Var(&temperature, "temp", types.DefaultTemperature, "sampling temperature (0-2)")

	flag.StringVar(&backend, "backend", "", "backend to use: gemini, ollama or llamacpp (default from env)")
	flag.StringVar(&url, "url", "", "server URL for ollama/llamacpp")
	flag.StringVar(&model, "model", "", "model name (default gemini-2.5-flash, required for ollama and llamacpp)")
	flag.StringVar(&model3D, "model3d", "", "model name for 3D boxes (default gemini-2.0-flash, or -model on local backends)")
	flag.IntVar(&maxSize, "maxsize", 0, "max long side sent to the model (px)")

	flag.StringVar(&ext, "ext", "png", "overlay format: png|jpg|webp")
	flag.IntVar(&thumbSize, "thumb", 0, "also write a square thumbnail of this size (0=off)")
	flag.StringVar(&configFile, "config", "", "JSON config file")
	flag.StringVar(&envFile, "env", ".env", "dotenv file")

	flag.Parse()
	if in == "" {
		log.Fatalf("usage: %s -in input.jpg|URL [-type \"Points\"] [-prompt items] [-backend gemini|ollama|llamacpp] [-url server_url] [-out outdir]", filepath.Base(os.Args[0]))
	}

	cfg, err := loadConfig(configFile, envFile)
	if err != nil {
		log.Fatal(err)
	}
	if backend != "" {
		cfg.Vision.Backend = backend
	}
	if url != "" {
		cfg.Vision.URL = url
	}
	if model != "" {
		cfg.Vision.Model = model
	}
	if model3D != "" {
		cfg.Vision.Model3D = model3D
	}
	if maxSize > 0 {
		cfg.Analyzer.MaxImageSize = maxSize
	}

	dt, err := types.ParseDetectionType(detectType)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sa, err := spatial.New(ctx, spatial.Options{
		Backend:      cfg.Vision.Backend,
		URL:          cfg.Vision.URL,
		APIKey:       cfg.Vision.APIKey,
		Model:        cfg.Vision.Model,
		Model3D:      cfg.Vision.Model3D,
		MaxImageSize: cfg.Analyzer.MaxImageSize,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer sa.Close()

	j := job{
		analyzer: sa,
		request: types.AnalysisRequest{
			DetectType:           dt,
			TargetPrompt:         prompt,
			LabelPrompt:          label,
			SegmentationLanguage: lang,
			Temperature:          temperature,
		},
		ext:       strings.ToLower(ext),
		thumbSize: thumbSize,
	}

	// a directory input is processed file by file, mirroring its layout under out/
	if utils.DirExists(in) {
		files, err := utils.ListImageFiles(in)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("found %d images in %s", len(files), in)
		dirs := utils.OutputDirs(outDir, in, files)
		failed := 0
		for i, f := range files {
			if ctx.Err() != nil {
				break
			}
			if err := j.run(ctx, f, dirs[i]); err != nil {
				log.Printf("%s: %v", f, err)
				failed++
			}
		}
		if failed > 0 {
			log.Fatalf("%d of %d images failed", failed, len(files))
		}
		return
	}

	if err := j.run(ctx, in, outDir); err != nil {
		log.Fatal(err)
	}
}

// job analyzes one input and writes its outputs
type job struct {
	analyzer  *spatial.Analyzer
	request   types.AnalysisRequest
	ext       string
	thumbSize int
}

func (j job) run(ctx context.Context, in, outDir string) error {
	if err := utils.EnsureDir(outDir); err != nil {
		return err
	}

	data, err := processing.ReadSource(in)
	if err != nil {
		return err
	}
	log.Printf("%s: %s", in, utils.FormatFileSize(int64(len(data))))

	sa := j.analyzer
	res, err := sa.Analyze(ctx, data, j.request)
	if err != nil {
		return err
	}

	log.Printf("type=%q backend=%s model=%s strategy=%s detections=%d elapsed=%s",
		j.request.DetectType, sa.Backend(), res.Model, res.Strategy, res.Detections.Len(), res.Elapsed.Round(time.Millisecond))
	for i, l := range res.Detections.Labels() {
		log.Printf("  %02d %s", i+1, l)
	}

	overlayPath := filepath.Join(outDir, fmt.Sprintf("overlay.%s", j.ext))
	if err := sa.SaveImage(sa.RenderOverlay(res), overlayPath); err != nil {
		log.Printf("overlay save failed: %v", err)
	} else {
		log.Printf("wrote %s", overlayPath)
	}

	if j.thumbSize > 0 {
		thumb, err := sa.Thumbnail(res, j.thumbSize)
		if err != nil {
			log.Printf("thumbnail failed: %v", err)
		} else {
			thumbPath := filepath.Join(outDir, "thumbnail.jpg")
			if err := sa.SaveImage(thumb, thumbPath); err != nil {
				log.Printf("thumbnail save failed: %v", err)
			} else {
				log.Printf("wrote %s", thumbPath)
			}
		}
	}

	js, err := json.MarshalIndent(output{
		Input:      in,
		DetectType: string(j.request.DetectType),
		Backend:    sa.Backend(),
		Model:      res.Model,
		Strategy:   res.Strategy.String(),
		Elapsed:    res.Elapsed.Seconds(),
		Detections: res.Detections,
	}, "", "  ")
	if err != nil {
		return err
	}
	jsonPath := filepath.Join(outDir, "detections.json")
	if err := os.WriteFile(jsonPath, js, 0o644); err != nil {
		return err
	}
	log.Printf("wrote %s", jsonPath)
	return nil
}

// loadConfig reads the JSON file when given, then the dotenv file and the environment
func loadConfig(configFile, envFile string) (*config.Config, error) {
	if configFile != "" {
		return config.LoadFromFile(configFile, envFile)
	}
	return config.Load(envFile)
}

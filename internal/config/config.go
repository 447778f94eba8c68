package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Vision backends
const (
	BackendGemini   = "gemini"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `json:"server"`
	Vision    VisionConfig    `json:"vision"`
	Storage   StorageConfig   `json:"storage"`
	Analyzer  AnalyzerConfig  `json:"analyzer"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Host           string        `json:"host" env:"HOST" envDefault:"0.0.0.0"`
	Port           int           `json:"port" env:"PORT" envDefault:"8000"`
	CORSOrigins    []string      `json:"cors_origins" env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	RequestTimeout time.Duration `json:"request_timeout" env:"REQUEST_TIMEOUT" envDefault:"5m"`
	GinMode        string        `json:"gin_mode" env:"GIN_MODE" envDefault:"release"`
}

// VisionConfig selects and configures the model backend. Empty model names
// fall back to the Gemini defaults.
type VisionConfig struct {
	Backend string `json:"backend" env:"VISION_BACKEND" envDefault:"gemini"`
	URL     string `json:"url" env:"VISION_BACKEND_URL"`
	APIKey  string `json:"-" env:"GEMINI_API_KEY"`
	Model   string `json:"model" env:"VISION_MODEL"`
	Model3D string `json:"model_3d" env:"VISION_MODEL_3D"`
}

// StorageConfig holds the prediction database settings
type StorageConfig struct {
	Path string `json:"path" env:"DATABASE_PATH" envDefault:"predictions.db"`
}

// AnalyzerConfig holds upload and image preparation limits
type AnalyzerConfig struct {
	MaxImageSize   int   `json:"max_image_size" env:"MAX_IMAGE_SIZE" envDefault:"640"`
	MaxUploadBytes int64 `json:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" envDefault:"20971520"`
}

// TelemetryConfig holds tracing settings
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled" env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint    string `json:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `json:"service_name" env:"OTEL_SERVICE_NAME" envDefault:"spatial-understanding"`
}

// Default returns a configuration with default values
func Default() *Config {
	var cfg Config
	// An empty environment leaves only the envDefault values
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &cfg
}

// fileDefaultTag is a tag no field carries, so env parsing on top of a
// loaded file never resets fields to their envDefault
const fileDefaultTag = "envFileDefault"

func loadDotenv(envFile string) error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return nil
}

// Load reads an optional dotenv file and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if err := loadDotenv(envFile); err != nil {
		return nil, err
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// LoadFromFile loads a JSON file on top of the defaults, then applies the
// optional dotenv file and the process environment. Secrets such as
// GEMINI_API_KEY only come from the environment.
func LoadFromFile(filename, envFile string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := loadDotenv(envFile); err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(config, env.Options{DefaultValueTagName: fileDefaultTag}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return config, nil
}

// Addr returns host:port for the HTTP listener
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}

	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.gin_mode must be debug, release or test, got %q", c.Server.GinMode)
	}

	switch c.Vision.Backend {
	case BackendGemini:
		if c.Vision.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini backend")
		}
	case BackendOllama, BackendLlamaCpp:
		if c.Vision.Model == "" {
			return fmt.Errorf("VISION_MODEL is required for the %s backend", c.Vision.Backend)
		}
	default:
		return fmt.Errorf("vision.backend must be gemini, ollama or llamacpp, got %q", c.Vision.Backend)
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path cannot be empty")
	}

	if c.Analyzer.MaxImageSize < 1 {
		return fmt.Errorf("analyzer.max_image_size must be positive")
	}

	if c.Analyzer.MaxUploadBytes < 1 {
		return fmt.Errorf("analyzer.max_upload_bytes must be positive")
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return fmt.Errorf("telemetry.service_name cannot be empty when tracing is enabled")
	}

	return nil
}

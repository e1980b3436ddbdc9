package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	NotifyNone     = "none"
	NotifyWebhook  = "webhook"
	NotifyRabbitMQ = "rabbitmq"
	NotifyMemory   = "memory"

	StorageNone  = "none"
	StorageLocal = "local"
	StorageS3    = "s3"
)

type Config struct {
	APIPort     int      `env:"API_PORT" envDefault:"8001"`
	DatabaseURL string   `env:"DATABASE_URL" envDefault:"./data/estimates.db"`
	CorsOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`

	SlicerInstallDir      string        `env:"SLICER_INSTALL_DIR" envDefault:"/opt/slicer"`
	SlicerBinary          string        `env:"SLICER_BINARY" envDefault:"CuraEngine"`
	SlicerProfile         string        `env:"SLICER_PROFILE" envDefault:"printer.def.json"`
	SlicerOutputFlag      string        `env:"SLICER_OUTPUT_FLAG" envDefault:"--output"`
	SlicerSettingsFile    string        `env:"SLICER_SETTINGS_FILE"`
	SlicerTimeout         time.Duration `env:"SLICER_TIMEOUT" envDefault:"120s"`
	SlicerMaxConcurrent   int64         `env:"SLICER_MAX_CONCURRENT" envDefault:"4"`
	SlicerAdmissionWait   time.Duration `env:"SLICER_ADMISSION_WAIT" envDefault:"10s"`
	SlicerMaxCaptureBytes int64         `env:"SLICER_MAX_CAPTURE_BYTES" envDefault:"4194304"`

	UploadDir        string  `env:"UPLOAD_DIR" envDefault:"./data/uploads"`
	WorkDir          string  `env:"WORK_DIR" envDefault:"./data/jobs"`
	MaxUploadBytes   int64   `env:"MAX_UPLOAD_BYTES" envDefault:"52428800"`
	AllowedExtension string  `env:"ALLOWED_EXTENSION" envDefault:".stl"`
	WorkQuotaBytes   int64   `env:"WORK_QUOTA_BYTES" envDefault:"0"`
	RatePerHour      float64 `env:"RATE_PER_HOUR" envDefault:"5"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	SweepGrace    time.Duration `env:"SWEEP_GRACE" envDefault:"30m"`

	NotifyMode        string        `env:"NOTIFY_MODE" envDefault:"none"`
	NotifyWebhookURL  string        `env:"NOTIFY_WEBHOOK_URL"`
	RabbitMQURL       string        `env:"RABBITMQ_URL"`
	NotifyInterval    time.Duration `env:"NOTIFY_INTERVAL" envDefault:"5s"`
	NotifyMaxAttempts int           `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"5"`

	StorageMode       string `env:"STORAGE_MODE" envDefault:"local"`
	StorageDir        string `env:"STORAGE_DIR" envDefault:"./data/storage"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	DiagnosticsBucket string `env:"DIAGNOSTICS_BUCKET" envDefault:"estimate-diagnostics"`
}

// LoadConfig reads a .env file from the working directory if one exists and
// then parses the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded, continuing with environment variables", "error", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.SlicerTimeout <= 0 {
		return fmt.Errorf("SLICER_TIMEOUT must be positive, got %v", c.SlicerTimeout)
	}
	if c.SlicerMaxConcurrent <= 0 {
		return fmt.Errorf("SLICER_MAX_CONCURRENT must be positive, got %d", c.SlicerMaxConcurrent)
	}
	if c.SlicerAdmissionWait < 0 {
		return fmt.Errorf("SLICER_ADMISSION_WAIT must not be negative, got %v", c.SlicerAdmissionWait)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %v", c.SweepInterval)
	}
	// A live job can hold its files for the admission wait plus the slicer
	// timeout; the sweeper must never reach them.
	if c.SweepGrace < c.SlicerAdmissionWait {
		return fmt.Errorf("SWEEP_GRACE (%v) must be at least SLICER_ADMISSION_WAIT (%v)", c.SweepGrace, c.SlicerAdmissionWait)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.WorkQuotaBytes < 0 {
		return fmt.Errorf("WORK_QUOTA_BYTES must not be negative, got %d", c.WorkQuotaBytes)
	}
	if c.RatePerHour < 0 {
		return fmt.Errorf("RATE_PER_HOUR must not be negative, got %v", c.RatePerHour)
	}

	ext := strings.TrimPrefix(c.AllowedExtension, ".")
	if ext == "" || strings.ContainsAny(ext, `./\ `) {
		return fmt.Errorf("ALLOWED_EXTENSION %q is not a valid file extension", c.AllowedExtension)
	}

	if c.SlicerBinary == "" || c.SlicerProfile == "" {
		return fmt.Errorf("SLICER_BINARY and SLICER_PROFILE are required")
	}

	switch c.NotifyMode {
	case NotifyNone, NotifyMemory:
	case NotifyWebhook:
		if c.NotifyWebhookURL == "" {
			return fmt.Errorf("NOTIFY_WEBHOOK_URL is required when NOTIFY_MODE=%s", NotifyWebhook)
		}
	case NotifyRabbitMQ:
		if c.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL is required when NOTIFY_MODE=%s", NotifyRabbitMQ)
		}
	default:
		return fmt.Errorf("unknown NOTIFY_MODE %q", c.NotifyMode)
	}
	if c.NotifyMode != NotifyNone && (c.NotifyInterval <= 0 || c.NotifyMaxAttempts <= 0) {
		return fmt.Errorf("NOTIFY_INTERVAL and NOTIFY_MAX_ATTEMPTS must be positive")
	}

	switch c.StorageMode {
	case StorageNone, StorageLocal, StorageS3:
	default:
		return fmt.Errorf("unknown STORAGE_MODE %q", c.StorageMode)
	}

	return nil
}

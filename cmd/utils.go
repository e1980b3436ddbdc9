package cmd

import (
	"context"
	"estimate-backend/internal/config"
	"estimate-backend/internal/database"
	"estimate-backend/internal/estimate"
	"estimate-backend/internal/messaging"
	"estimate-backend/internal/notify"
	"estimate-backend/internal/storage"
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

const webhookTimeout = 30 * time.Second

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func ConfigureLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		log.Printf("invalid LOG_LEVEL '%s', using INFO", level)
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func CreateDatabase(cfg *config.Config) *gorm.DB {
	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return db
}

// CreateCaptureArchive returns nil when STORAGE_MODE=none.
func CreateCaptureArchive(ctx context.Context, cfg *config.Config) *storage.CaptureArchive {
	var provider storage.Provider
	switch cfg.StorageMode {
	case config.StorageNone:
		slog.Info("diagnostics archive disabled")
		return nil
	case config.StorageLocal:
		local, err := storage.NewLocalProvider(cfg.StorageDir)
		if err != nil {
			log.Fatalf("Failed to create local storage provider: %v", err)
		}
		provider = local
	case config.StorageS3:
		s3p, err := storage.NewS3Provider(storage.S3ProviderConfig{
			S3EndpointURL:     cfg.S3EndpointURL,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
			S3Region:          cfg.S3Region,
		})
		if err != nil {
			log.Fatalf("Failed to create S3 storage provider: %v", err)
		}
		provider = s3p
	}

	archive, err := storage.NewCaptureArchive(ctx, provider, cfg.DiagnosticsBucket)
	if err != nil {
		log.Fatalf("Failed to initialize diagnostics archive: %v", err)
	}
	return archive
}

// CreateNotifier returns nil when NOTIFY_MODE=none. The returned close func
// releases the underlying connection.
func CreateNotifier(cfg *config.Config) (notify.Notifier, func()) {
	switch cfg.NotifyMode {
	case config.NotifyWebhook:
		return notify.NewWebhookNotifier(cfg.NotifyWebhookURL, webhookTimeout), func() {}
	case config.NotifyRabbitMQ:
		publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		return notify.NewQueueNotifier(publisher), publisher.Close
	case config.NotifyMemory:
		queue := messaging.NewInMemoryQueue()
		go LogEvents(queue)
		return notify.NewQueueNotifier(queue), queue.Close
	default:
		slog.Info("outbound notifications disabled, events stay pending")
		return nil, func() {}
	}
}

// LogEvents drains a receiver, logging every estimate event it carries.
func LogEvents(receiver messaging.Receiver) {
	for task := range receiver.Tasks() {
		slog.Info("estimate event", "queue", task.Type(), "payload", string(task.Payload()))
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging estimate event", "error", err)
		}
	}
}

func CreateEstimateService(cfg *config.Config, recorder estimate.Recorder, archive *storage.CaptureArchive) *estimate.Service {
	stager, err := estimate.NewStager(cfg.UploadDir, cfg.AllowedExtension, cfg.MaxUploadBytes)
	if err != nil {
		log.Fatalf("Failed to create upload stager: %v", err)
	}

	var settings map[string]string
	if cfg.SlicerSettingsFile != "" {
		settings, err = estimate.LoadSettings(cfg.SlicerSettingsFile)
		if err != nil {
			log.Fatalf("Failed to load slicer settings: %v", err)
		}
		slog.Info("loaded slicer setting overrides", "file", cfg.SlicerSettingsFile, "count", len(settings))
	}

	invoker, err := estimate.NewInvoker(estimate.SlicerConfig{
		InstallDir:      cfg.SlicerInstallDir,
		Binary:          cfg.SlicerBinary,
		Profile:         cfg.SlicerProfile,
		OutputFlag:      cfg.SlicerOutputFlag,
		Settings:        settings,
		WorkDir:         cfg.WorkDir,
		Timeout:         cfg.SlicerTimeout,
		MaxCaptureBytes: cfg.SlicerMaxCaptureBytes,
	})
	if err != nil {
		log.Fatalf("Failed to create slicer invoker: %v", err)
	}

	opts := estimate.Options{
		Stager:        stager,
		Slicer:        invoker,
		Calculator:    estimate.Calculator{RatePerHour: cfg.RatePerHour},
		MaxConcurrent: cfg.SlicerMaxConcurrent,
		AdmissionWait: cfg.SlicerAdmissionWait,
		QuotaBytes:    cfg.WorkQuotaBytes,
		Recorder:      recorder,
	}
	if archive != nil {
		opts.Diagnostics = archive
	}

	service, err := estimate.NewService(opts)
	if err != nil {
		log.Fatalf("Failed to create estimate service: %v", err)
	}
	return service
}

// NewSweeper covers both artifact roots. Anything older than a slicer timeout
// plus the grace period cannot belong to a live job.
func NewSweeper(cfg *config.Config, reaper *estimate.Reaper) *estimate.Sweeper {
	return &estimate.Sweeper{
		Reaper: reaper,
		Roots:  []string{cfg.UploadDir, cfg.WorkDir},
		MaxAge: cfg.SlicerTimeout + cfg.SweepGrace,
	}
}

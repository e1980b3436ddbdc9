package config_test

import (
	"estimate-backend/internal/config"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.APIPort)
	assert.Equal(t, []string{"*"}, cfg.CorsOrigins)
	assert.Equal(t, 120*time.Second, cfg.SlicerTimeout)
	assert.Equal(t, int64(4), cfg.SlicerMaxConcurrent)
	assert.Equal(t, ".stl", cfg.AllowedExtension)
	assert.Equal(t, 5.0, cfg.RatePerHour)
	assert.Equal(t, config.NotifyNone, cfg.NotifyMode)
	assert.Equal(t, config.StorageLocal, cfg.StorageMode)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SLICER_TIMEOUT", "45s")
	t.Setenv("RATE_PER_HOUR", "12.5")
	t.Setenv("CORS_ORIGINS", "https://shop.example.com,https://admin.example.com")
	t.Setenv("NOTIFY_MODE", "webhook")
	t.Setenv("NOTIFY_WEBHOOK_URL", "https://hooks.example.com/estimates")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.SlicerTimeout)
	assert.Equal(t, 12.5, cfg.RatePerHour)
	assert.Equal(t, []string{"https://shop.example.com", "https://admin.example.com"}, cfg.CorsOrigins)
	assert.Equal(t, "https://hooks.example.com/estimates", cfg.NotifyWebhookURL)
}

func TestValidateRejectsBadValues(t *testing.T) {
	for name, value := range map[string]string{
		"SLICER_TIMEOUT":        "0s",
		"SLICER_MAX_CONCURRENT": "0",
		"MAX_UPLOAD_BYTES":      "-1",
		"ALLOWED_EXTENSION":     "tar.gz",
		"NOTIFY_MODE":           "carrier-pigeon",
		"STORAGE_MODE":          "floppy",
		"RATE_PER_HOUR":         "-3",
		"SWEEP_INTERVAL":        "0s",
		"SWEEP_GRACE":           "-1h",
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			_, err := config.LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestValidateSweepGraceCoversAdmissionWait(t *testing.T) {
	t.Setenv("SLICER_ADMISSION_WAIT", "1m")
	t.Setenv("SWEEP_GRACE", "30s")

	_, err := config.LoadConfig()
	assert.ErrorContains(t, err, "SWEEP_GRACE")

	t.Setenv("SWEEP_GRACE", "1m")
	_, err = config.LoadConfig()
	assert.NoError(t, err)
}

func TestValidateRequiresNotifyTarget(t *testing.T) {
	t.Setenv("NOTIFY_MODE", "rabbitmq")

	_, err := config.LoadConfig()
	assert.ErrorContains(t, err, "RABBITMQ_URL")
}

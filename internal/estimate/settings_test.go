package estimate_test

import (
	"context"
	"estimate-backend/internal/estimate"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSettings(t *testing.T) {
	settings, err := estimate.LoadSettings(writeSettings(t, "layer_height: 0.2\ninfill_sparse_density: 20\nsupport_enable: true\nadhesion_type: brim\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"layer_height":          "0.2",
		"infill_sparse_density": "20",
		"support_enable":        "true",
		"adhesion_type":         "brim",
	}, settings)
}

func TestLoadSettingsRejectsInvalidFiles(t *testing.T) {
	for name, content := range map[string]string{
		"nested":  "machine:\n  width: 200\n",
		"list":    "extruders: [1, 2]\n",
		"empty":   "layer_height:\n",
		"syntax":  "layer_height: [\n",
		"badname": "\"layer height\": 0.2\n",
	} {
		_, err := estimate.LoadSettings(writeSettings(t, content))
		assert.Error(t, err, name)
	}

	_, err := estimate.LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestInvokerPassesSettingsInOrder(t *testing.T) {
	invoker, err := estimate.NewInvoker(estimate.SlicerConfig{
		Binary:   writeEngine(t, `echo "settings=$settings"`),
		Profile:  "printer.def.json",
		Settings: map[string]string{"support_enable": "true", "layer_height": "0.2"},
		WorkDir:  filepath.Join(t.TempDir(), "jobs"),
		Timeout:  10 * time.Second,
	})
	require.NoError(t, err)

	model := stagedModel(t, "solid cube")
	job, err := invoker.NewJob(model.Id, model)
	require.NoError(t, err)

	result, err := invoker.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "settings= layer_height=0.2 support_enable=true", strings.TrimSpace(result.RawCaptureText))
}

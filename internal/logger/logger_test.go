package logger

import (
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gps-no-calibration/internal/config/components"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLoggerLevel(t *testing.T) {
	l := NewLogger(components.LoggerConfigImpl{Level: "WARN", Format: "json"})
	assert.Equal(t, zerolog.WarnLevel, l.GetLevel())
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibrator.log")

	l := NewLogger(components.LoggerConfigImpl{
		Level:      "info",
		Format:     "json",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	})
	l.Info().Str("antenna_id", "ant-1").Msg("calibrated")

	wl := GetLogger("workflow")
	wl.Info().Msg("component message")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"antenna_id":"ant-1"`)
	assert.Contains(t, string(data), `"component":"workflow"`)
}

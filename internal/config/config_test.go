package config

import (
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gps-no-calibration/internal/config/shared"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INFLUXDB_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gps-no-calibration", cfg.MQTT.ClientID)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.GetUrl())
	assert.Equal(t, 15*time.Second, cfg.Calibration.CollectionDuration)
	assert.Equal(t, 100*time.Millisecond, cfg.Calibration.TickInterval)
	assert.Equal(t, 5.0, cfg.Calibration.AcceptanceRadius)
	assert.Equal(t, 0.5, cfg.Calibration.MinStrength)
	assert.True(t, cfg.Calibration.RequireLineOfSight)
	assert.Equal(t, "similarity", cfg.Calibration.Model)
	assert.Equal(t, "first-three", cfg.Calibration.PositionStrategy)
	assert.Equal(t, ":8080", cfg.Service.HTTPAddress)
	assert.Empty(t, cfg.Service.AntennaIDs)
	assert.Equal(t, 25, cfg.Postgres.MaxOpenConns)
	assert.Equal(t, 5, cfg.Postgres.MaxIdleConns)
	assert.Equal(t, time.Second, cfg.Postgres.SlowQueryThreshold)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("INFLUXDB_ENABLED", "false")
	t.Setenv("MQTT_BASE_TOPIC", "site-a/")
	t.Setenv("ANTENNA_IDS", "ant-1, ant-2,,ant-3")
	t.Setenv("CALIBRATION_ACCEPTANCE_RADIUS", "0")
	t.Setenv("CALIBRATION_COLLECTION_DURATION", "3s")
	t.Setenv("CALIBRATION_MODEL", "affine")
	t.Setenv("POSTGRES_SSL_MODE", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "site-a", cfg.MQTT.BaseTopic)
	assert.Equal(t, []string{"ant-1", "ant-2", "ant-3"}, cfg.Service.AntennaIDs)
	assert.Zero(t, cfg.Calibration.AcceptanceRadius)
	assert.Equal(t, 3*time.Second, cfg.Calibration.CollectionDuration)
	assert.Equal(t, "affine", cfg.Calibration.Model)
	assert.Contains(t, cfg.Postgres.GetDsn(), "sslmode=disable")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		component string
	}{
		{"unknown model", map[string]string{"CALIBRATION_MODEL": "projective"}, "calibration"},
		{"unknown strategy", map[string]string{"POSITION_STRATEGY": "kalman"}, "calibration"},
		{"idle above open", map[string]string{"POSTGRES_MAX_OPEN_CONNS": "2", "POSTGRES_MAX_IDLE_CONNS": "4"}, "postgres"},
		{"strength out of range", map[string]string{"CALIBRATION_MIN_STRENGTH": "1.5"}, "calibration"},
		{"mqtt port", map[string]string{"MQTT_PORT": "70000"}, "mqtt"},
		{"duplicate antenna", map[string]string{"ANTENNA_IDS": "a,b,a"}, "service"},
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "logger"},
		{"influx without token", map[string]string{"INFLUXDB_ENABLED": "true"}, "influxdb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("INFLUXDB_ENABLED", "false")
			t.Setenv("INFLUXDB_TOKEN", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)

			var cfgErr *shared.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.component, cfgErr.Component)
		})
	}
}

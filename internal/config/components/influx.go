package components

import (
	"gps-no-calibration/internal/config/shared"
	"gps-no-calibration/internal/interfaces"
	"strings"
)

type InfluxConfig interface {
	interfaces.Config
	GetUrl() string
}

// InfluxConfigImpl configures the observation and position archive. With Enabled unset
// the service runs without an archive and the remaining fields are not validated.
type InfluxConfigImpl struct {
	Enabled       bool   `json:"enabled"`
	URL           string `json:"url"`
	Token         string `json:"token"`
	Organization  string `json:"organization"`
	Bucket        string `json:"bucket"`
	BatchSize     int    `json:"batch_size"`
	FlushInterval int    `json:"flush_interval_seconds"`
}

func NewInfluxConfig() InfluxConfigImpl {
	config := InfluxConfigImpl{}
	config.Load()
	config.SetDefaults()
	return config
}

func (I *InfluxConfigImpl) Load() {
	I.Enabled = shared.GetEnvAsBool("INFLUXDB_ENABLED", true)
	I.URL = shared.GetEnv("INFLUXDB_URL")
	I.Token = shared.GetEnv("INFLUXDB_TOKEN")
	I.Organization = shared.GetEnv("INFLUXDB_ORG")
	I.Bucket = shared.GetEnv("INFLUXDB_BUCKET")
	I.BatchSize = shared.GetEnvAsInt("INFLUXDB_BATCH_SIZE")
	I.FlushInterval = shared.GetEnvAsInt("INFLUXDB_FLUSH_INTERVAL")
}

func (I *InfluxConfigImpl) SetDefaults() {
	if I.URL == "" {
		I.URL = "http://localhost:8086"
	}
	if I.Organization == "" {
		I.Organization = "gps_no"
	}
	if I.Bucket == "" {
		I.Bucket = "calibration"
	}
	if I.BatchSize <= 0 {
		I.BatchSize = 100
	}
	if I.FlushInterval <= 0 {
		I.FlushInterval = 10
	}
}

func (I *InfluxConfigImpl) Validate() error {
	if !I.Enabled {
		return nil
	}
	if I.URL == "" {
		return &shared.ConfigError{Component: "influxdb", Field: "url", Message: "is required"}
	}
	if !strings.HasPrefix(I.URL, "http://") && !strings.HasPrefix(I.URL, "https://") {
		return &shared.ConfigError{Component: "influxdb", Field: "url", Value: I.URL, Message: "must start with http:// or https://"}
	}
	if I.Token == "" {
		return &shared.ConfigError{Component: "influxdb", Field: "token", Message: "is required"}
	}
	if I.Organization == "" {
		return &shared.ConfigError{Component: "influxdb", Field: "organization", Message: "is required"}
	}
	if I.Bucket == "" {
		return &shared.ConfigError{Component: "influxdb", Field: "bucket", Message: "is required"}
	}
	if I.BatchSize <= 0 {
		return &shared.ConfigError{Component: "influxdb", Field: "batch_size", Value: I.BatchSize, Message: "must be greater than 0"}
	}
	if I.FlushInterval < 1 || I.FlushInterval > 60 {
		return &shared.ConfigError{Component: "influxdb", Field: "flush_interval", Value: I.FlushInterval, Message: "must be between 1 and 60 seconds"}
	}

	return nil
}

func (I *InfluxConfigImpl) GetUrl() string {
	return I.URL
}

var _ InfluxConfig = (*InfluxConfigImpl)(nil)

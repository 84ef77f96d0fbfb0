package components

import (
	"gps-no-calibration/internal/config/shared"
	"gps-no-calibration/internal/interfaces"
	"strings"
)

type LoggerConfig interface {
	interfaces.Config
}

// LoggerConfigImpl configures zerolog output. A non-empty File adds a rotating log file
// next to stdout.
type LoggerConfigImpl struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

func NewLoggerConfig() LoggerConfigImpl {
	config := LoggerConfigImpl{}
	config.Load()
	config.SetDefaults()
	return config
}

func (L *LoggerConfigImpl) Load() {
	L.Level = shared.GetEnv("LOG_LEVEL")
	L.Format = shared.GetEnv("LOG_FORMAT")
	L.File = shared.GetEnv("LOG_FILE")
	L.MaxSizeMB = shared.GetEnvAsInt("LOG_FILE_MAX_SIZE_MB")
	L.MaxBackups = shared.GetEnvAsInt("LOG_FILE_MAX_BACKUPS")
	L.MaxAgeDays = shared.GetEnvAsInt("LOG_FILE_MAX_AGE_DAYS")
}

func (L *LoggerConfigImpl) SetDefaults() {
	if L.Level == "" {
		L.Level = "info"
	}
	if L.Format == "" {
		L.Format = "console"
	}
	if L.MaxSizeMB <= 0 {
		L.MaxSizeMB = 50
	}
	if L.MaxBackups <= 0 {
		L.MaxBackups = 3
	}
	if L.MaxAgeDays <= 0 {
		L.MaxAgeDays = 28
	}
}

func (L *LoggerConfigImpl) Validate() error {
	switch strings.ToLower(L.Level) {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return &shared.ConfigError{Component: "logger", Field: "level", Value: L.Level, Message: "LOG_LEVEL must be one of: debug, info, warn, error, fatal"}
	}

	if L.Format != "console" && L.Format != "json" {
		return &shared.ConfigError{Component: "logger", Field: "format", Value: L.Format, Message: "LOG_FORMAT must be console or json"}
	}

	return nil
}

var _ LoggerConfig = (*LoggerConfigImpl)(nil)

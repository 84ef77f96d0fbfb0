package components

import (
	"fmt"
	"gps-no-calibration/internal/config/shared"
	"gps-no-calibration/internal/interfaces"
	"time"
)

type PostgresConfig interface {
	interfaces.Config
	GetDsn() string
}

type PostgresConfigImpl struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
	TimeZone string `json:"timezone"`

	MaxOpenConns       int           `json:"max_open_conns"`
	MaxIdleConns       int           `json:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `json:"conn_max_lifetime"`
	SlowQueryThreshold time.Duration `json:"slow_query_threshold"`
}

func NewPostgresConfig() PostgresConfigImpl {
	config := PostgresConfigImpl{}
	config.Load()
	config.SetDefaults()
	return config
}

func (P *PostgresConfigImpl) Load() {
	P.Host = shared.GetEnv("POSTGRES_HOST")
	P.Port = shared.GetEnvAsInt("POSTGRES_PORT")
	P.User = shared.GetEnv("POSTGRES_USER")
	P.Password = shared.GetEnv("POSTGRES_PASSWORD")
	P.Database = shared.GetEnv("POSTGRES_DB")
	P.SSLMode = shared.GetEnv("POSTGRES_SSL_MODE")
	P.TimeZone = shared.GetEnv("TZ")
	P.MaxOpenConns = shared.GetEnvAsInt("POSTGRES_MAX_OPEN_CONNS")
	P.MaxIdleConns = shared.GetEnvAsInt("POSTGRES_MAX_IDLE_CONNS")
	P.ConnMaxLifetime = shared.GetEnvAsDuration("POSTGRES_CONN_MAX_LIFETIME")
	P.SlowQueryThreshold = shared.GetEnvAsDuration("POSTGRES_SLOW_QUERY_THRESHOLD")
}

func (P *PostgresConfigImpl) SetDefaults() {
	if P.Host == "" {
		P.Host = "localhost"
	}
	if P.Port == 0 {
		P.Port = 5432
	}
	if P.User == "" {
		P.User = "postgres"
	}
	if P.Database == "" {
		P.Database = "gps_no"
	}
	if P.SSLMode == "" || P.SSLMode == "false" {
		P.SSLMode = "disable"
	}
	if P.SSLMode == "true" {
		P.SSLMode = "require"
	}
	if P.TimeZone == "" {
		P.TimeZone = "UTC"
	}
	if P.MaxOpenConns <= 0 {
		P.MaxOpenConns = 25
	}
	if P.MaxIdleConns <= 0 {
		P.MaxIdleConns = 5
	}
	if P.ConnMaxLifetime <= 0 {
		P.ConnMaxLifetime = 5 * time.Minute
	}
	if P.SlowQueryThreshold <= 0 {
		P.SlowQueryThreshold = time.Second
	}
}

func (P *PostgresConfigImpl) Validate() error {
	if P.Host == "" {
		return &shared.ConfigError{Component: "postgres", Field: "host", Message: "POSTGRES_HOST is required"}
	}
	if P.Port <= 0 || P.Port > 65535 {
		return &shared.ConfigError{Component: "postgres", Field: "port", Value: P.Port, Message: "must be between 1 and 65535"}
	}
	if P.User == "" {
		return &shared.ConfigError{Component: "postgres", Field: "user", Message: "POSTGRES_USER is required"}
	}
	if P.Database == "" {
		return &shared.ConfigError{Component: "postgres", Field: "database", Message: "POSTGRES_DB is required"}
	}
	if P.MaxIdleConns > P.MaxOpenConns {
		return &shared.ConfigError{Component: "postgres", Field: "max_idle_conns", Value: P.MaxIdleConns, Message: "must not exceed max_open_conns"}
	}
	switch P.SSLMode {
	case "disable", "require", "verify-ca", "verify-full":
	default:
		return &shared.ConfigError{Component: "postgres", Field: "ssl_mode", Value: P.SSLMode, Message: "must be one of: disable, require, verify-ca, verify-full"}
	}
	return nil
}

// GetDsn returns a key/value connection string, accepted by both the gorm driver and lib/pq.
func (P *PostgresConfigImpl) GetDsn() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		P.Host, P.Port, P.User, P.Password, P.Database, P.SSLMode, P.TimeZone,
	)
}

var _ PostgresConfig = (*PostgresConfigImpl)(nil)

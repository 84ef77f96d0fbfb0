package config

import (
	"fmt"
	"github.com/joho/godotenv"
	"gps-no-calibration/internal/config/components"
	"gps-no-calibration/internal/interfaces"
)

type Config struct {
	MQTT        components.MQTTConfigImpl        `json:"mqtt"`
	Postgres    components.PostgresConfigImpl    `json:"postgres"`
	InfluxDB    components.InfluxConfigImpl      `json:"influxdb"`
	Logger      components.LoggerConfigImpl      `json:"logger"`
	Service     components.ServiceConfigImpl     `json:"service"`
	Calibration components.CalibrationConfigImpl `json:"calibration"`
}

// Load reads every component from the environment (and .env when present), applies
// defaults and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		MQTT:        components.NewMQTTConfig(),
		Postgres:    components.NewPostgresConfig(),
		InfluxDB:    components.NewInfluxConfig(),
		Logger:      components.NewLoggerConfig(),
		Service:     components.NewServiceConfig(),
		Calibration: components.NewCalibrationConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	for _, component := range c.components() {
		if err := component.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return nil
}

func (c *Config) components() []interfaces.Config {
	return []interfaces.Config{
		&c.MQTT,
		&c.Postgres,
		&c.InfluxDB,
		&c.Logger,
		&c.Service,
		&c.Calibration,
	}
}

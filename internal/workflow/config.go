package workflow

import (
	"gps-no-calibration/internal/estimator"
	"time"
)

const (
	DefaultCollectionDuration = 15 * time.Second
	DefaultTickInterval       = 100 * time.Millisecond
	DefaultAcceptanceRadius   = 5.0
	DefaultMinStrength        = 0.5
	MinimumMappings           = 3
)

// Config tunes a Workflow. A non-positive AcceptanceRadius disables the radius check.
// When AntennaIDs is empty the workflow collects from every antenna reported connected.
type Config struct {
	AntennaIDs         []string
	FloorMapID         string
	CollectionDuration time.Duration
	TickInterval       time.Duration
	AcceptanceRadius   float64
	MinStrength        float64
	RequireLineOfSight bool
	Model              estimator.Model
}

func DefaultConfig() Config {
	return Config{
		CollectionDuration: DefaultCollectionDuration,
		TickInterval:       DefaultTickInterval,
		AcceptanceRadius:   DefaultAcceptanceRadius,
		MinStrength:        DefaultMinStrength,
		RequireLineOfSight: true,
		Model:              estimator.ModelSimilarity,
	}
}

func (c Config) withDefaults() Config {
	if c.CollectionDuration <= 0 {
		c.CollectionDuration = DefaultCollectionDuration
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.Model == "" {
		c.Model = estimator.ModelSimilarity
	}
	return c
}

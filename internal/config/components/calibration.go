package components

import (
	"gps-no-calibration/internal/config/shared"
	"gps-no-calibration/internal/estimator"
	"gps-no-calibration/internal/interfaces"
	"gps-no-calibration/internal/positioning"
	"time"
)

type CalibrationConfig interface {
	interfaces.Config
}

// CalibrationConfigImpl holds the collection window, sample acceptance and fitting
// parameters, plus the live position estimator settings.
type CalibrationConfigImpl struct {
	CollectionDuration  time.Duration `json:"collection_duration"`
	TickInterval        time.Duration `json:"tick_interval"`
	AcceptanceRadius    float64       `json:"acceptance_radius"`
	MinStrength         float64       `json:"min_strength"`
	RequireLineOfSight  bool          `json:"require_line_of_sight"`
	MinTagObservations  int           `json:"min_tag_observations"`
	Model               string        `json:"model"`
	PositionStrategy    string        `json:"position_strategy"`
	PositionMaxRangeAge time.Duration `json:"position_max_range_age"`
}

func NewCalibrationConfig() CalibrationConfigImpl {
	config := CalibrationConfigImpl{}
	config.Load()
	config.SetDefaults()
	return config
}

func (C *CalibrationConfigImpl) Load() {
	C.CollectionDuration = shared.GetEnvAsDuration("CALIBRATION_COLLECTION_DURATION")
	C.TickInterval = shared.GetEnvAsDuration("CALIBRATION_TICK_INTERVAL")
	C.AcceptanceRadius = shared.GetEnvAsFloat("CALIBRATION_ACCEPTANCE_RADIUS", 5)
	C.MinStrength = shared.GetEnvAsFloat("CALIBRATION_MIN_STRENGTH", 0.5)
	C.RequireLineOfSight = shared.GetEnvAsBool("CALIBRATION_REQUIRE_LOS", true)
	C.MinTagObservations = shared.GetEnvAsInt("CALIBRATION_MIN_TAG_OBSERVATIONS")
	C.Model = shared.GetEnv("CALIBRATION_MODEL")
	C.PositionStrategy = shared.GetEnv("POSITION_STRATEGY")
	C.PositionMaxRangeAge = shared.GetEnvAsDuration("POSITION_MAX_RANGE_AGE")
}

// SetDefaults leaves AcceptanceRadius alone: a non-positive radius disables the radius check.
func (C *CalibrationConfigImpl) SetDefaults() {
	if C.CollectionDuration <= 0 {
		C.CollectionDuration = 15 * time.Second
	}
	if C.TickInterval <= 0 {
		C.TickInterval = 100 * time.Millisecond
	}
	if C.MinTagObservations <= 0 {
		C.MinTagObservations = estimator.DefaultMinimumTagObservations
	}
	if C.Model == "" {
		C.Model = string(estimator.ModelSimilarity)
	}
	if C.PositionStrategy == "" {
		C.PositionStrategy = string(positioning.StrategyFirstThree)
	}
	if C.PositionMaxRangeAge <= 0 {
		C.PositionMaxRangeAge = 2 * time.Second
	}
}

func (C *CalibrationConfigImpl) Validate() error {
	if C.CollectionDuration <= 0 {
		return &shared.ConfigError{Component: "calibration", Field: "collection_duration", Value: C.CollectionDuration, Message: "must be greater than 0"}
	}
	if C.TickInterval <= 0 || C.TickInterval > C.CollectionDuration {
		return &shared.ConfigError{Component: "calibration", Field: "tick_interval", Value: C.TickInterval, Message: "must be positive and not exceed the collection duration"}
	}
	if C.MinStrength < 0 || C.MinStrength > 1 {
		return &shared.ConfigError{Component: "calibration", Field: "min_strength", Value: C.MinStrength, Message: "must be within [0, 1]"}
	}
	if _, err := estimator.ParseModel(C.Model); err != nil {
		return &shared.ConfigError{Component: "calibration", Field: "model", Value: C.Model, Message: err.Error()}
	}
	if _, err := positioning.ParseStrategy(C.PositionStrategy); err != nil {
		return &shared.ConfigError{Component: "calibration", Field: "position_strategy", Value: C.PositionStrategy, Message: err.Error()}
	}
	return nil
}

var _ CalibrationConfig = (*CalibrationConfigImpl)(nil)

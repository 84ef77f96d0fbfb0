package messages

import (
	"fmt"
	"gps-no-calibration/internal/geometry"
	"gps-no-calibration/internal/models"
	"time"
)

// ObservationMessage is one sample published by an antenna on <base>/v1/observations/<antenna>.
type ObservationMessage struct {
	Data   ObservationDto `json:"data"`
	Source string         `json:"source"`
}

type QualityDto struct {
	Strength      float64 `json:"strength"`
	LineOfSight   bool    `json:"line_of_sight"`
	Confidence    float64 `json:"confidence"`
	ErrorEstimate float64 `json:"error_estimate"`
}

type ObservationDto struct {
	SessionID string           `json:"session_id"`
	Position  geometry.Point3D `json:"position"`
	Quality   QualityDto       `json:"quality"`
	Distance  float64          `json:"distance"`
	RSSI      float64          `json:"rssi"`
	Timestamp *time.Time       `json:"timestamp,omitempty"`
}

// ToModel builds the sample for antennaID. A missing timestamp is replaced by receivedAt.
func (o *ObservationDto) ToModel(antennaID string, receivedAt time.Time) models.ObservationPoint {
	timestamp := receivedAt
	if o.Timestamp != nil && !o.Timestamp.IsZero() {
		timestamp = *o.Timestamp
	}

	return models.ObservationPoint{
		AntennaID: antennaID,
		Position:  o.Position,
		Quality: models.NewSignalQuality(
			o.Quality.Strength,
			o.Quality.LineOfSight,
			o.Quality.Confidence,
			o.Quality.ErrorEstimate,
		),
		Distance:  o.Distance,
		RSSI:      o.RSSI,
		SessionID: o.SessionID,
		Timestamp: timestamp,
	}
}

func (o *ObservationDto) Validate() error {
	if !o.Position.IsFinite() {
		return fmt.Errorf("%w: position %s is not finite", ErrInvalidMessage, o.Position)
	}
	if o.Distance < 0 {
		return fmt.Errorf("%w: negative distance %f", ErrInvalidMessage, o.Distance)
	}
	return nil
}

func (m *ObservationMessage) Validate() error {
	return m.Data.Validate()
}

package models

import (
	"fmt"
	"gps-no-calibration/internal/geometry"
	"math"
	"time"
)

// SignalQuality describes one UWB sample. Values are clamped by NewSignalQuality.
type SignalQuality struct {
	Strength      float64 `json:"strength"`
	IsLineOfSight bool    `json:"is_line_of_sight"`
	Confidence    float64 `json:"confidence"`
	ErrorEstimate float64 `json:"error_estimate"`
}

func NewSignalQuality(strength float64, lineOfSight bool, confidence, errorEstimate float64) SignalQuality {
	return SignalQuality{
		Strength:      clamp(strength, 0, 1),
		IsLineOfSight: lineOfSight,
		Confidence:    clamp(confidence, 0, 1),
		ErrorEstimate: clamp(errorEstimate, 0, math.Inf(1)),
	}
}

// Clamped returns q with every field forced into its valid range.
func (q SignalQuality) Clamped() SignalQuality {
	return NewSignalQuality(q.Strength, q.IsLineOfSight, q.Confidence, q.ErrorEstimate)
}

// ObservationPoint is a single tag position reported by an antenna in its local frame.
type ObservationPoint struct {
	AntennaID string           `json:"antenna_id"`
	Position  geometry.Point3D `json:"position"`
	Quality   SignalQuality    `json:"quality"`
	Distance  float64          `json:"distance"`
	RSSI      float64          `json:"rssi"`
	SessionID string           `json:"session_id"`
	Timestamp time.Time        `json:"timestamp"`
}

func (o *ObservationPoint) Validate() error {
	if o.AntennaID == "" {
		return fmt.Errorf("antenna_id is required")
	}
	if !o.Position.IsFinite() {
		return fmt.Errorf("position %s is not finite", o.Position)
	}
	if o.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

func (o *ObservationPoint) ToInfluxTags() map[string]string {
	tags := map[string]string{
		"antenna_id":       o.AntennaID,
		"is_line_of_sight": fmt.Sprintf("%t", o.Quality.IsLineOfSight),
	}

	if o.SessionID != "" {
		tags["session_id"] = o.SessionID
	}

	return tags
}

func (o *ObservationPoint) ToInfluxFields() map[string]interface{} {
	return map[string]interface{}{
		"x":              o.Position.X,
		"y":              o.Position.Y,
		"z":              o.Position.Z,
		"distance":       o.Distance,
		"rssi":           o.RSSI,
		"strength":       o.Quality.Strength,
		"confidence":     o.Quality.Confidence,
		"error_estimate": o.Quality.ErrorEstimate,
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return min(max(v, lo), hi)
}

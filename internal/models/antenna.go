package models

import (
	"fmt"
	"gps-no-calibration/internal/geometry"
	"time"
)

// AntennaPosition is the calibrated world pose of an anchor on a floor map.
type AntennaPosition struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	AntennaID    string    `gorm:"uniqueIndex:idx_antenna_floor_map;not null" json:"antenna_id"`
	FloorMapID   string    `gorm:"uniqueIndex:idx_antenna_floor_map;not null" json:"floor_map_id"`
	X            float64   `gorm:"not null" json:"x"`
	Y            float64   `gorm:"not null" json:"y"`
	Z            float64   `gorm:"not null" json:"z"`
	Heading      float64   `json:"heading"`
	Accuracy     float64   `json:"accuracy"`
	CalibratedAt time.Time `json:"calibrated_at"`
}

func NewAntennaPosition(antennaID, floorMapID string, transform geometry.AffineTransform) AntennaPosition {
	position := transform.Translation()
	return AntennaPosition{
		AntennaID:    antennaID,
		FloorMapID:   floorMapID,
		X:            position.X,
		Y:            position.Y,
		Z:            position.Z,
		Heading:      transform.Heading(),
		Accuracy:     transform.Accuracy,
		CalibratedAt: transform.Timestamp,
	}
}

func (a *AntennaPosition) Position() geometry.Point3D {
	return geometry.NewPoint(a.X, a.Y, a.Z)
}

func (a *AntennaPosition) Validate() error {
	if a.AntennaID == "" {
		return fmt.Errorf("antenna_id is required")
	}
	if !a.Position().IsFinite() {
		return fmt.Errorf("position %s is not finite", a.Position())
	}
	return nil
}

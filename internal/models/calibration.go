package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"gps-no-calibration/internal/geometry"
	"time"
)

// CalibrationPoint pairs a known world position with what an antenna measured there.
// Points are immutable once created and deleted explicitly by ID.
type CalibrationPoint struct {
	ID                string           `json:"id"`
	AntennaID         string           `json:"antenna_id"`
	ReferencePosition geometry.Point3D `json:"reference_position"`
	MeasuredPosition  geometry.Point3D `json:"measured_position"`
	Timestamp         time.Time        `json:"timestamp"`
}

// CalibrationData is the per-antenna calibration state as handed to persistence.
// Transform is nil while the antenna is uncalibrated.
type CalibrationData struct {
	AntennaID string                    `json:"antenna_id"`
	Points    []CalibrationPoint        `json:"points"`
	Transform *geometry.AffineTransform `json:"transform,omitempty"`
	UpdatedAt time.Time                 `json:"updated_at"`
	IsActive  bool                      `json:"is_active"`
}

func (c CalibrationData) IsCalibrated() bool {
	return c.Transform != nil && len(c.Points) >= 3
}

func (c *CalibrationData) ToRecord() *CalibrationRecord {
	record := &CalibrationRecord{
		AntennaID: c.AntennaID,
		Points:    CalibrationPoints(c.Points),
		IsActive:  c.IsActive,
	}
	if c.Transform != nil {
		record.Transform = &TransformColumn{AffineTransform: *c.Transform}
	}
	if !c.UpdatedAt.IsZero() {
		updatedAt := c.UpdatedAt
		record.UpdatedAt = &updatedAt
	}
	return record
}

// CalibrationRecord is the persisted row for one antenna.
type CalibrationRecord struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	CreatedAt *time.Time        `json:"created_at"`
	UpdatedAt *time.Time        `json:"updated_at"`
	AntennaID string            `gorm:"uniqueIndex;not null" json:"antenna_id"`
	Points    CalibrationPoints `gorm:"type:jsonb" json:"points"`
	Transform *TransformColumn  `gorm:"type:jsonb" json:"transform"`
	IsActive  bool              `gorm:"not null;default:true" json:"is_active"`
}

func (r *CalibrationRecord) ToData() CalibrationData {
	data := CalibrationData{
		AntennaID: r.AntennaID,
		Points:    []CalibrationPoint(r.Points),
		IsActive:  r.IsActive,
	}
	if r.Transform != nil {
		transform := r.Transform.AffineTransform
		data.Transform = &transform
	}
	if r.UpdatedAt != nil {
		data.UpdatedAt = *r.UpdatedAt
	}
	return data
}

type CalibrationPoints []CalibrationPoint

func (p CalibrationPoints) Value() (driver.Value, error) {
	if p == nil {
		return json.Marshal([]CalibrationPoint{})
	}
	return json.Marshal([]CalibrationPoint(p))
}

func (p *CalibrationPoints) Scan(value interface{}) error {
	return scanJSON(value, p)
}

type TransformColumn struct {
	geometry.AffineTransform
}

func (t TransformColumn) Value() (driver.Value, error) {
	return json.Marshal(t.AffineTransform)
}

func (t *TransformColumn) Scan(value interface{}) error {
	return scanJSON(value, &t.AffineTransform)
}

func scanJSON(value interface{}, target interface{}) error {
	if value == nil {
		return nil
	}

	var fieldBytes []byte
	switch v := value.(type) {
	case []byte:
		fieldBytes = v
	case string:
		fieldBytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into %T", value, target)
	}

	return json.Unmarshal(fieldBytes, target)
}

// CalibrationResult is the outcome of one antenna in a workflow run. Transform is nil
// when the antenna failed.
type CalibrationResult struct {
	AntennaID       string                    `json:"antenna_id"`
	Success         bool                      `json:"success"`
	Transform       *geometry.AffineTransform `json:"transform,omitempty"`
	Accuracy        float64                   `json:"accuracy"`
	ProcessedPoints int                       `json:"processed_points"`
	ErrorMessage    string                    `json:"error_message,omitempty"`
	Err             error                     `json:"-"`
}

func (r *CalibrationResult) ToInfluxTags() map[string]string {
	return map[string]string{
		"antenna_id": r.AntennaID,
		"success":    fmt.Sprintf("%t", r.Success),
	}
}

func (r *CalibrationResult) ToInfluxFields() map[string]interface{} {
	fields := map[string]interface{}{
		"accuracy":         r.Accuracy,
		"processed_points": r.ProcessedPoints,
	}
	if r.Transform != nil {
		position := r.Transform.Translation()
		fields["x"] = position.X
		fields["y"] = position.Y
		fields["z"] = position.Z
		fields["heading"] = r.Transform.HeadingDegrees()
	}
	if r.ErrorMessage != "" {
		fields["error"] = r.ErrorMessage
	}
	return fields
}

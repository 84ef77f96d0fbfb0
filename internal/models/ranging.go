package models

import (
	"fmt"
	"gps-no-calibration/internal/geometry"
	"time"
)

// RangingData is one tag-to-anchor distance as reported by a station.
type RangingData struct {
	SourceDevice      string `json:"source_device"`
	DestinationDevice string `json:"destination_device"`
	Distance          struct {
		RawDistance float64 `json:"raw_distance"`
	} `json:"distance"`
	Timestamp time.Time `json:"timestamp"`
}

type RangingDataArray []RangingData

func (r *RangingData) Validate() error {
	if r.SourceDevice == "" {
		return fmt.Errorf("source_device is not set")
	}
	if r.DestinationDevice == "" {
		return fmt.Errorf("destination_device is not set")
	}
	if r.SourceDevice == r.DestinationDevice {
		return fmt.Errorf("source and destination address are identical: %s", r.SourceDevice)
	}
	return nil
}

// TagPosition is a live position estimate for a tag.
type TagPosition struct {
	TagID       string           `json:"tag_id"`
	Position    geometry.Point3D `json:"position"`
	Anchors     []string         `json:"anchors"`
	Residual    float64          `json:"residual"`
	FloorMapID  string           `json:"floor_map_id"`
	EstimatedAt time.Time        `json:"estimated_at"`
}

func (p *TagPosition) ToInfluxTags() map[string]string {
	return map[string]string{
		"tag_id":       p.TagID,
		"floor_map_id": p.FloorMapID,
	}
}

func (p *TagPosition) ToInfluxFields() map[string]interface{} {
	return map[string]interface{}{
		"x":            p.Position.X,
		"y":            p.Position.Y,
		"z":            p.Position.Z,
		"anchors_used": len(p.Anchors),
		"residual":     p.Residual,
	}
}

package influx

import (
	"context"
	"fmt"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"gps-no-calibration/internal/models"
	"gps-no-calibration/internal/workflow"
	"time"
)

const (
	ObservationMeasurement       = "uwb_observation"
	CalibrationResultMeasurement = "calibration_result"
	TagPositionMeasurement       = "tag_position"
)

// PointWriter is the part of api.WriteAPI the writers need.
type PointWriter interface {
	WritePoint(point *write.Point)
}

// ObservationWriter archives raw samples and per-antenna calibration results.
type ObservationWriter struct {
	writeAPI PointWriter
	logger   zerolog.Logger
}

func NewObservationWriter(writeAPI PointWriter, logger zerolog.Logger) *ObservationWriter {
	return &ObservationWriter{
		writeAPI: writeAPI,
		logger:   logger,
	}
}

func (w *ObservationWriter) WriteObservation(ctx context.Context, observation models.ObservationPoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := observation.Validate(); err != nil {
		return fmt.Errorf("invalid observation: %w", err)
	}

	point := influxdb2.NewPoint(
		ObservationMeasurement,
		observation.ToInfluxTags(),
		observation.ToInfluxFields(),
		observation.Timestamp,
	)
	w.writeAPI.WritePoint(point)

	w.logger.Debug().
		Str("antenna_id", observation.AntennaID).
		Str("session_id", observation.SessionID).
		Msg("Added observation to influxDB")

	return nil
}

func (w *ObservationWriter) WriteCalibrationResult(ctx context.Context, floorMapID string, result models.CalibrationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tags := result.ToInfluxTags()
	if floorMapID != "" {
		tags["floor_map_id"] = floorMapID
	}

	timestamp := time.Now()
	if result.Transform != nil && !result.Transform.Timestamp.IsZero() {
		timestamp = result.Transform.Timestamp
	}

	w.writeAPI.WritePoint(influxdb2.NewPoint(CalibrationResultMeasurement, tags, result.ToInfluxFields(), timestamp))

	w.logger.Debug().
		Str("antenna_id", result.AntennaID).
		Bool("success", result.Success).
		Msg("Added calibration result to influxDB")

	return nil
}

// PositionWriter archives live tag position estimates.
type PositionWriter struct {
	writeAPI PointWriter
	logger   zerolog.Logger
}

func NewPositionWriter(writeAPI PointWriter, logger zerolog.Logger) *PositionWriter {
	return &PositionWriter{
		writeAPI: writeAPI,
		logger:   logger,
	}
}

func (w *PositionWriter) WriteTagPosition(ctx context.Context, position *models.TagPosition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.writeAPI.WritePoint(influxdb2.NewPoint(
		TagPositionMeasurement,
		position.ToInfluxTags(),
		position.ToInfluxFields(),
		position.EstimatedAt,
	))

	return nil
}

var _ workflow.Archive = (*ObservationWriter)(nil)

package influx

import (
	"context"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gps-no-calibration/internal/geometry"
	"gps-no-calibration/internal/models"
	"testing"
	"time"
)

type capturingWriter struct {
	points []*write.Point
}

func (c *capturingWriter) WritePoint(point *write.Point) {
	c.points = append(c.points, point)
}

func tags(p *write.Point) map[string]string {
	out := map[string]string{}
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func fields(p *write.Point) map[string]interface{} {
	out := map[string]interface{}{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestWriteObservation(t *testing.T) {
	sink := &capturingWriter{}
	w := NewObservationWriter(sink, zerolog.Nop())
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	err := w.WriteObservation(context.Background(), models.ObservationPoint{
		AntennaID: "ant-1",
		SessionID: "s-1",
		Position:  geometry.NewPoint(1, 2, 3),
		Quality:   models.NewSignalQuality(0.8, true, 0.9, 0.1),
		RSSI:      -61,
		Timestamp: at,
	})
	require.NoError(t, err)

	require.Len(t, sink.points, 1)
	p := sink.points[0]
	assert.Equal(t, ObservationMeasurement, p.Name())
	assert.Equal(t, at, p.Time())
	assert.Equal(t, "ant-1", tags(p)["antenna_id"])
	assert.Equal(t, "s-1", tags(p)["session_id"])
	assert.Equal(t, "true", tags(p)["is_line_of_sight"])
	assert.Equal(t, 2.0, fields(p)["y"])
	assert.Equal(t, -61.0, fields(p)["rssi"])
}

func TestWriteObservationRejectsInvalid(t *testing.T) {
	sink := &capturingWriter{}
	w := NewObservationWriter(sink, zerolog.Nop())

	assert.Error(t, w.WriteObservation(context.Background(), models.ObservationPoint{Timestamp: time.Now()}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, w.WriteObservation(ctx, models.ObservationPoint{AntennaID: "a", Timestamp: time.Now()}))

	assert.Empty(t, sink.points)
}

func TestWriteCalibrationResult(t *testing.T) {
	sink := &capturingWriter{}
	w := NewObservationWriter(sink, zerolog.Nop())
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	transform := geometry.FromRotation(0, 1, geometry.NewPoint(4, 5, 0))
	transform.Timestamp = at
	require.NoError(t, w.WriteCalibrationResult(context.Background(), "floor-1", models.CalibrationResult{
		AntennaID:       "ant-1",
		Success:         true,
		Transform:       &transform,
		ProcessedPoints: 3,
	}))
	require.NoError(t, w.WriteCalibrationResult(context.Background(), "floor-1", models.CalibrationResult{
		AntennaID:    "ant-2",
		ErrorMessage: "insufficient points",
	}))

	require.Len(t, sink.points, 2)
	ok := sink.points[0]
	assert.Equal(t, CalibrationResultMeasurement, ok.Name())
	assert.Equal(t, at, ok.Time())
	assert.Equal(t, "floor-1", tags(ok)["floor_map_id"])
	assert.Equal(t, 4.0, fields(ok)["x"])
	assert.Equal(t, int64(3), fields(ok)["processed_points"])

	failed := sink.points[1]
	assert.Equal(t, "false", tags(failed)["success"])
	assert.Equal(t, "insufficient points", fields(failed)["error"])
	assert.NotContains(t, fields(failed), "x")
}

func TestWriteTagPosition(t *testing.T) {
	sink := &capturingWriter{}
	w := NewPositionWriter(sink, zerolog.Nop())

	require.NoError(t, w.WriteTagPosition(context.Background(), &models.TagPosition{
		TagID:       "tag-1",
		FloorMapID:  "floor-1",
		Position:    geometry.NewPoint(1, 1, 0),
		Anchors:     []string{"ant-1", "ant-2", "ant-3"},
		EstimatedAt: time.Now(),
	}))

	require.Len(t, sink.points, 1)
	assert.Equal(t, TagPositionMeasurement, sink.points[0].Name())
	assert.Equal(t, "tag-1", tags(sink.points[0])["tag_id"])
	assert.Equal(t, int64(3), fields(sink.points[0])["anchors_used"])
}

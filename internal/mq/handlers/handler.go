package handlers

import (
	"context"
	"gps-no-calibration/internal/models"
	"gps-no-calibration/internal/workflow"
)

// EventSink receives sensor events decoded from MQTT, typically a *mq.SensingClient.
type EventSink interface {
	Emit(ctx context.Context, event workflow.SensorEvent) error
}

type RangingProcessor interface {
	ProcessRangingData(ctx context.Context, tagID string, data models.RangingDataArray) error
}

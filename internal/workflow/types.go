package workflow

import (
	"context"
	"fmt"
	"gps-no-calibration/internal/geometry"
	"gps-no-calibration/internal/models"
	"gps-no-calibration/internal/quality"
	"time"
)

type State string

const (
	StateIdle                  State = "idle"
	StateCollectingReference   State = "collecting_reference"
	StateCollectingObservation State = "collecting_observation"
	StateCalculating           State = "calculating"
	StateCompleted             State = "completed"
	StateFailed                State = "failed"
)

type Step string

const (
	StepNone                   Step = ""
	StepPlacingTag             Step = "placing_tag"
	StepReadyToStart           Step = "ready_to_start"
	StepCollecting             Step = "collecting"
	StepShowingAntennaPosition Step = "showing_antenna_position"
)

type SessionStatus string

const (
	SessionRecording SessionStatus = "recording"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// ObservationSession collects one antenna's samples for one reference point. Status only
// moves forward, except paused back to recording.
type ObservationSession struct {
	ID             string                    `json:"id"`
	AntennaID      string                    `json:"antenna_id"`
	ReferenceIndex int                       `json:"reference_index"`
	StartTime      time.Time                 `json:"start_time"`
	EndTime        *time.Time                `json:"end_time,omitempty"`
	Observations   []models.ObservationPoint `json:"observations"`
	Status         SessionStatus             `json:"status"`
}

func (s *ObservationSession) IsOpen() bool {
	return s.Status == SessionRecording || s.Status == SessionPaused
}

func (s *ObservationSession) pause() error {
	if s.Status != SessionRecording {
		return fmt.Errorf("cannot pause session %s in status %s", s.ID, s.Status)
	}
	s.Status = SessionPaused
	return nil
}

func (s *ObservationSession) resume() error {
	if s.Status != SessionPaused {
		return fmt.Errorf("cannot resume session %s in status %s", s.ID, s.Status)
	}
	s.Status = SessionRecording
	return nil
}

func (s *ObservationSession) close(status SessionStatus, at time.Time) {
	if !s.IsOpen() {
		return
	}
	s.Status = status
	s.EndTime = &at
}

func (s *ObservationSession) clone() ObservationSession {
	c := *s
	c.Observations = make([]models.ObservationPoint, len(s.Observations))
	copy(c.Observations, s.Observations)
	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}
	return c
}

// ReferenceObservationMapping links a reference point to the samples accepted for it.
// AntennaCentroids holds the centroid of each antenna's accepted samples.
type ReferenceObservationMapping struct {
	ReferenceIndex    int                         `json:"reference_index"`
	ReferencePosition geometry.Point3D            `json:"reference_position"`
	Observations      []models.ObservationPoint   `json:"observations"`
	CentroidPosition  geometry.Point3D            `json:"centroid_position"`
	PositionError     float64                     `json:"position_error"`
	MappingQuality    float64                     `json:"mapping_quality"`
	AntennaCentroids  map[string]geometry.Point3D `json:"antenna_centroids"`
}

// AntennaPreview summarises one antenna's samples from the window that just closed.
type AntennaPreview struct {
	AntennaID  string             `json:"antenna_id"`
	SessionID  string             `json:"session_id"`
	Centroid   geometry.Point3D   `json:"centroid"`
	Samples    int                `json:"samples"`
	Statistics quality.Statistics `json:"statistics"`
	NLoS       quality.NLoSReport `json:"nlos"`
}

type Progress struct {
	State                 State                               `json:"state"`
	Step                  Step                                `json:"step,omitempty"`
	CurrentReferenceIndex int                                 `json:"current_reference_index"`
	TotalReferencePoints  int                                 `json:"total_reference_points"`
	CurrentStep           int                                 `json:"current_step"`
	TotalSteps            int                                 `json:"total_steps"`
	Progress              float64                             `json:"progress"`
	CollectionProgress    float64                             `json:"collection_progress"`
	Instruction           string                              `json:"instruction"`
	Error                 string                              `json:"error,omitempty"`
	Preview               []AntennaPreview                    `json:"preview,omitempty"`
	Results               map[string]models.CalibrationResult `json:"results,omitempty"`
}

// Sensor is the sensing collaborator that starts and stops sample collection on antennas.
type Sensor interface {
	StartCollection(ctx context.Context, antennaID, sessionID string) error
	StopCollection(ctx context.Context, sessionID string) error
	PauseCollection(ctx context.Context, sessionID string) error
	ResumeCollection(ctx context.Context, sessionID string) error
}

type PositionStore interface {
	SaveAntennaPosition(ctx context.Context, position models.AntennaPosition) error
}

// Archive receives raw samples and per-antenna results for long-term storage.
type Archive interface {
	WriteObservation(ctx context.Context, observation models.ObservationPoint) error
	WriteCalibrationResult(ctx context.Context, floorMapID string, result models.CalibrationResult) error
}

type EventType string

const (
	EventDeviceFound        EventType = "device_found"
	EventDeviceConnected    EventType = "device_connected"
	EventDeviceDisconnected EventType = "device_disconnected"
	EventDataReceived       EventType = "data_received"
)

type SensorEvent struct {
	Type        EventType
	AntennaID   string
	Observation *models.ObservationPoint
}

func (e SensorEvent) Validate() error {
	switch e.Type {
	case EventDeviceFound, EventDeviceConnected, EventDeviceDisconnected:
		if e.AntennaID == "" {
			return fmt.Errorf("%s event without antenna_id", e.Type)
		}
	case EventDataReceived:
		if e.Observation == nil {
			return fmt.Errorf("%s event without observation", e.Type)
		}
	default:
		return fmt.Errorf("unknown sensor event type %q", e.Type)
	}
	return nil
}

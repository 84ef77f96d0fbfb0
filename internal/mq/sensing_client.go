package mq

import (
	"context"
	"fmt"
	"github.com/rs/zerolog"
	"gps-no-calibration/internal/calerr"
	"gps-no-calibration/internal/mq/messages"
	"gps-no-calibration/internal/workflow"
	"sync"
	"time"
)

type Publisher interface {
	PublishJson(topic string, data interface{}) error
	IsConnected() bool
}

// SensingClient drives antenna collection over MQTT. Commands go out on each antenna's
// collection topic and the handlers feed status and samples back through Emit.
type SensingClient struct {
	publisher    Publisher
	topicManager *TopicManager
	logger       zerolog.Logger

	mu           sync.Mutex
	sessions     map[string]string
	disconnected map[string]bool

	events chan workflow.SensorEvent
}

func NewSensingClient(publisher Publisher, topicManager *TopicManager, buffer int, logger zerolog.Logger) *SensingClient {
	return &SensingClient{
		publisher:    publisher,
		topicManager: topicManager,
		logger:       logger,
		sessions:     make(map[string]string),
		disconnected: make(map[string]bool),
		events:       make(chan workflow.SensorEvent, buffer),
	}
}

func (s *SensingClient) Events() <-chan workflow.SensorEvent {
	return s.events
}

// Emit queues an event, giving up when ctx ends.
func (s *SensingClient) Emit(ctx context.Context, event workflow.SensorEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	switch event.Type {
	case workflow.EventDeviceConnected:
		s.setDisconnected(event.AntennaID, false)
	case workflow.EventDeviceDisconnected:
		s.setDisconnected(event.AntennaID, true)
	}

	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dropping %s event for antenna %s: %w", event.Type, event.AntennaID, ctx.Err())
	}
}

func (s *SensingClient) StartCollection(ctx context.Context, antennaID, sessionID string) error {
	s.mu.Lock()
	down := s.disconnected[antennaID]
	s.mu.Unlock()
	if down {
		return fmt.Errorf("antenna %s: %w", antennaID, calerr.ErrDeviceNotConnected)
	}

	if err := s.send(ctx, messages.CollectionStart, antennaID, sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	s.sessions[sessionID] = antennaID
	s.mu.Unlock()

	return nil
}

func (s *SensingClient) StopCollection(ctx context.Context, sessionID string) error {
	antennaID, err := s.antennaFor(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	return s.send(ctx, messages.CollectionStop, antennaID, sessionID)
}

func (s *SensingClient) PauseCollection(ctx context.Context, sessionID string) error {
	antennaID, err := s.antennaFor(sessionID)
	if err != nil {
		return err
	}
	return s.send(ctx, messages.CollectionPause, antennaID, sessionID)
}

func (s *SensingClient) ResumeCollection(ctx context.Context, sessionID string) error {
	antennaID, err := s.antennaFor(sessionID)
	if err != nil {
		return err
	}
	return s.send(ctx, messages.CollectionResume, antennaID, sessionID)
}

func (s *SensingClient) send(ctx context.Context, action messages.CollectionAction, antennaID, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.publisher.IsConnected() {
		return fmt.Errorf("%s collection on antenna %s: %w", action, antennaID, calerr.ErrDeviceNotConnected)
	}

	command := messages.CollectionCommand{
		Action:    action,
		AntennaID: antennaID,
		SessionID: sessionID,
		IssuedAt:  time.Now().UTC(),
	}

	topic := s.topicManager.GetCollectionTopic(antennaID)
	if err := s.publisher.PublishJson(topic, command); err != nil {
		return fmt.Errorf("%s collection on antenna %s: %w", action, antennaID, err)
	}

	s.logger.Debug().
		Str("action", string(action)).
		Str("antenna_id", antennaID).
		Str("session_id", sessionID).
		Msg("Sent collection command")

	return nil
}

func (s *SensingClient) antennaFor(sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	antennaID, ok := s.sessions[sessionID]
	if !ok {
		return "", fmt.Errorf("session %s: %w", sessionID, calerr.ErrSessionNotFound)
	}
	return antennaID, nil
}

func (s *SensingClient) setDisconnected(antennaID string, down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if down {
		s.disconnected[antennaID] = true
		return
	}
	delete(s.disconnected, antennaID)
}

var _ workflow.Sensor = (*SensingClient)(nil)

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"gps-no-calibration/internal/mq"
	"gps-no-calibration/internal/mq/messages"
	"gps-no-calibration/internal/workflow"
	"time"
)

type ObservationHandler struct {
	sink         EventSink
	logger       zerolog.Logger
	topicManager *mq.TopicManager
	now          func() time.Time
}

func NewObservationHandler(topicManager *mq.TopicManager, sink EventSink, logger zerolog.Logger) *ObservationHandler {
	return &ObservationHandler{
		sink:         sink,
		logger:       logger,
		topicManager: topicManager,
		now:          time.Now,
	}
}

func (h *ObservationHandler) HandleMessage(client mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := h.handle(ctx, msg.Topic(), msg.Payload()); err != nil {
		h.logger.Error().Err(err).
			Str("topic", msg.Topic()).
			Str("payload", string(msg.Payload())).
			Msg("Could not process observation")
	}
}

func (h *ObservationHandler) handle(ctx context.Context, topic string, payload []byte) error {
	if len(payload) == 0 {
		return messages.ErrEmptyMessage
	}

	antennaID, err := h.topicManager.ExtractIdFromTopic(topic, mq.ObservationTopicTemplate)
	if err != nil {
		return err
	}

	var message messages.ObservationMessage
	if err := json.Unmarshal(payload, &message); err != nil {
		return fmt.Errorf("%w: %v", messages.ErrInvalidMessage, err)
	}

	if message.Source == mq.SourceCalibrator {
		return nil
	}

	if err := message.Validate(); err != nil {
		return err
	}

	observation := message.Data.ToModel(antennaID, h.now())

	h.logger.Debug().
		Str("antenna_id", antennaID).
		Str("session_id", observation.SessionID).
		Float64("strength", observation.Quality.Strength).
		Msg("Received observation")

	return h.sink.Emit(ctx, workflow.SensorEvent{
		Type:        workflow.EventDataReceived,
		AntennaID:   antennaID,
		Observation: &observation,
	})
}

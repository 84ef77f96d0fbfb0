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

type AntennaStatusHandler struct {
	sink         EventSink
	logger       zerolog.Logger
	topicManager *mq.TopicManager
}

func NewAntennaStatusHandler(topicManager *mq.TopicManager, sink EventSink, logger zerolog.Logger) *AntennaStatusHandler {
	return &AntennaStatusHandler{
		sink:         sink,
		logger:       logger,
		topicManager: topicManager,
	}
}

func (h *AntennaStatusHandler) HandleMessage(client mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := h.handle(ctx, msg.Topic(), msg.Payload()); err != nil {
		h.logger.Error().Err(err).
			Str("topic", msg.Topic()).
			Str("payload", string(msg.Payload())).
			Msg("Could not process antenna status")
	}
}

func (h *AntennaStatusHandler) handle(ctx context.Context, topic string, payload []byte) error {
	if len(payload) == 0 {
		return messages.ErrEmptyMessage
	}

	antennaID, err := h.topicManager.ExtractIdFromTopic(topic, mq.AntennaStatusTopicTemplate)
	if err != nil {
		return err
	}

	var message messages.AntennaStatusMessage
	if err := json.Unmarshal(payload, &message); err != nil {
		return fmt.Errorf("%w: %v", messages.ErrInvalidMessage, err)
	}

	if err := message.Validate(); err != nil {
		return err
	}

	var eventType workflow.EventType
	switch message.Normalized() {
	case messages.AntennaFound:
		eventType = workflow.EventDeviceFound
	case messages.AntennaConnected:
		eventType = workflow.EventDeviceConnected
	case messages.AntennaDisconnected:
		eventType = workflow.EventDeviceDisconnected
	}

	h.logger.Info().
		Str("antenna_id", antennaID).
		Str("status", string(message.Normalized())).
		Msg("Antenna status changed")

	return h.sink.Emit(ctx, workflow.SensorEvent{Type: eventType, AntennaID: antennaID})
}

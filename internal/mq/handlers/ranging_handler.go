package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"gps-no-calibration/internal/models"
	"gps-no-calibration/internal/mq"
	"gps-no-calibration/internal/mq/messages"
	"time"
)

type RangingHandler struct {
	processor    RangingProcessor
	logger       zerolog.Logger
	topicManager *mq.TopicManager
}

func NewRangingHandler(topicManager *mq.TopicManager, processor RangingProcessor, logger zerolog.Logger) *RangingHandler {
	return &RangingHandler{
		processor:    processor,
		logger:       logger,
		topicManager: topicManager,
	}
}

func (h *RangingHandler) HandleMessage(client mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := h.handle(ctx, msg.Topic(), msg.Payload()); err != nil {
		h.logger.Error().Err(err).
			Str("topic", msg.Topic()).
			Str("payload", string(msg.Payload())).
			Msg("Could not process ranging data")
	}
}

// handle accepts both the enveloped RangingMessage and a bare array of ranging data.
func (h *RangingHandler) handle(ctx context.Context, topic string, payload []byte) error {
	if len(payload) == 0 {
		return messages.ErrEmptyMessage
	}

	tagID, err := h.topicManager.ExtractTagId(topic)
	if err != nil {
		return err
	}

	var message messages.RangingMessage
	if err := json.Unmarshal(payload, &message); err != nil {
		var data models.RangingDataArray
		if errArray := json.Unmarshal(payload, &data); errArray != nil {
			return fmt.Errorf("%w: %v", messages.ErrInvalidMessage, err)
		}
		message.Data = data
	}

	if err := message.Validate(); err != nil {
		return err
	}

	if err := h.processor.ProcessRangingData(ctx, tagID, message.Data); err != nil {
		return fmt.Errorf("tag %s: %w", tagID, err)
	}

	h.logger.Debug().
		Str("tag_id", tagID).
		Int("measurements", len(message.Data)).
		Msg("Processed ranging data")

	return nil
}

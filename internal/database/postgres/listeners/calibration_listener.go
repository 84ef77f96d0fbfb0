package listeners

import (
	"context"
	"fmt"
	"github.com/rs/zerolog"
	"gps-no-calibration/internal/interfaces"
)

type CalibrationReloader interface {
	Load(ctx context.Context) error
	Reload(ctx context.Context, antennaID string) error
	AntennaIDs() []string
}

type EventPublisher interface {
	PublishJson(topic string, data interface{}) error
}

// CalibrationTableListener keeps the in-memory calibration sessions in step with rows
// changed by other writers and announces every change on the antenna's calibration topic.
type CalibrationTableListener struct {
	*BaseTableListener
	logger    zerolog.Logger
	reloader  CalibrationReloader
	publisher EventPublisher
	topicFor  func(antennaID string) string
}

func NewCalibrationTableListener(
	logger zerolog.Logger,
	reloader CalibrationReloader,
	publisher EventPublisher,
	topicFor func(antennaID string) string,
) *CalibrationTableListener {
	return &CalibrationTableListener{
		BaseTableListener: NewBaseTableListener("calibration_records", "antenna_id", "is_active", "updated_at"),
		logger:            logger,
		reloader:          reloader,
		publisher:         publisher,
		topicFor:          topicFor,
	}
}

func (c *CalibrationTableListener) HandleChange(ctx context.Context, event *interfaces.TableChangeEvent) error {
	antennaID := event.StringField("antenna_id")
	if antennaID == "" {
		return fmt.Errorf("calibration change without antenna_id")
	}

	c.logger.Info().
		Str("operation", string(event.Operation)).
		Str("table", event.Table).
		Str("antenna_id", antennaID).
		Time("timestamp", event.Timestamp).
		Msg("Calibration table change detected")

	switch event.Operation {
	case interfaces.InsertOperation, interfaces.UpdateOperation, interfaces.DeleteOperation:
	default:
		return fmt.Errorf("unknown operation: %s", event.Operation)
	}

	if err := c.reloader.Reload(ctx, antennaID); err != nil {
		return fmt.Errorf("reload calibration of antenna %s: %w", antennaID, err)
	}

	if c.publisher == nil || c.topicFor == nil {
		return nil
	}

	payload := map[string]interface{}{
		"event":      "calibration_" + operationVerb(event.Operation),
		"antenna_id": antennaID,
		"timestamp":  event.Timestamp,
	}
	if event.NewData != nil {
		payload["calibration"] = event.NewData
	}
	if err := c.publisher.PublishJson(c.topicFor(antennaID), payload); err != nil {
		c.logger.Error().Err(err).Str("antenna_id", antennaID).Msg("Failed to publish calibration change event")
	}

	return nil
}

// Resync re-reads every known antenna, dropping those deleted meanwhile, then loads
// antennas created while notifications were not delivered.
func (c *CalibrationTableListener) Resync(ctx context.Context) error {
	for _, antennaID := range c.reloader.AntennaIDs() {
		if err := c.reloader.Reload(ctx, antennaID); err != nil {
			return fmt.Errorf("reload calibration of antenna %s: %w", antennaID, err)
		}
	}
	if err := c.reloader.Load(ctx); err != nil {
		return fmt.Errorf("load calibrations: %w", err)
	}
	return nil
}

func operationVerb(op interfaces.OperationType) string {
	switch op {
	case interfaces.InsertOperation:
		return "created"
	case interfaces.UpdateOperation:
		return "updated"
	default:
		return "deleted"
	}
}

var (
	_ interfaces.ITableListener = (*CalibrationTableListener)(nil)
	_ Resyncer                  = (*CalibrationTableListener)(nil)
)

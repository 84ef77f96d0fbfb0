package messages

import (
	"fmt"
	"gps-no-calibration/internal/models"
)

// RangingMessage carries the distances a tag measured to the anchors in range.
type RangingMessage struct {
	Data   models.RangingDataArray `json:"data"`
	Source string                  `json:"source"`
}

func (m *RangingMessage) Validate() error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%w: no ranging data", ErrInvalidMessage)
	}
	return nil
}
